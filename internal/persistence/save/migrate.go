package save

import (
	"math"

	"github.com/google/uuid"

	"tappytrade.io/internal/sim/farm"
)

// Doc is a save document decoded without a schema.
type Doc = map[string]any

// VersionOf reads the schema tag of doc. Documents from before the tag
// existed are version 1.
func VersionOf(doc Doc) int {
	for _, k := range []string{"saveSchemaVersion", "saveVersion"} {
		if f, ok := doc[k].(float64); ok && f >= 1 && f == math.Trunc(f) {
			return int(f)
		}
	}
	return 1
}

// Migrate patches doc in place up to the current schema version and
// backfills every field added since version 1. baseCap is the inventory
// capacity written by the 1→2 patch.
func Migrate(doc Doc, baseCap int) Doc {
	v := VersionOf(doc)
	if v < 2 {
		doc["cap"] = float64(baseCap)
		doc["saveVersion"] = float64(2)
		v = 2
	}
	if v < 3 {
		migrateShortKeys(doc)
		v = 3
	}
	doc["saveSchemaVersion"] = float64(farm.SchemaVersion)
	backfill(doc)
	return doc
}

var renamedKeys = map[string]string{
	"inv":        "inventory",
	"stats":      "statistics",
	"ach":        "achievements",
	"lastUpdate": "lastUpdateTimestamp",
}

// migrateShortKeys rewrites a version 2 document into the version 3 layout.
// Capacity stopped being stored in version 3; it is derived from buildings.
func migrateShortKeys(doc Doc) {
	for from, to := range renamedKeys {
		if val, ok := doc[from]; ok {
			if _, taken := doc[to]; !taken {
				doc[to] = val
			}
			delete(doc, from)
		}
	}
	delete(doc, "saveVersion")
	delete(doc, "cap")

	if plots, ok := doc["plots"].([]any); ok {
		for _, p := range plots {
			pm, ok := p.(map[string]any)
			if !ok {
				continue
			}
			subs, _ := pm["subs"].([]any)
			for _, s := range subs {
				sm, ok := s.(map[string]any)
				if !ok {
					continue
				}
				renameKey(sm, "t", "type")
				renameKey(sm, "c", "storedAmount")
				renameKey(sm, "lv", "level")
			}
		}
	}

	if orders, ok := doc["limitOrders"].([]any); ok {
		for _, o := range orders {
			om, ok := o.(map[string]any)
			if !ok {
				continue
			}
			renameKey(om, "type", "direction")
			renameKey(om, "res", "resourceId")
			renameKey(om, "qty", "quantity")
			renameKey(om, "price", "targetPrice")
			renameKey(om, "created", "createdAt")
			if _, ok := om["id"].(string); !ok {
				om["id"] = uuid.NewString()
			}
		}
	}
}

func renameKey(m map[string]any, from, to string) {
	val, ok := m[from]
	if !ok {
		return
	}
	delete(m, from)
	if _, taken := m[to]; !taken {
		m[to] = val
	}
}

func backfill(doc Doc) {
	defaults := map[string]func() any{
		"farmName":        func() any { return DefaultFarmName },
		"limitOrders":     func() any { return []any{} },
		"governmentTiers": func() any { return map[string]any{} },
		"achievements":    func() any { return map[string]any{} },
		"lastDailyReward": func() any { return float64(0) },
		"dailyStreak":     func() any { return float64(0) },
		"statistics": func() any {
			return map[string]any{"harvested": 0.0, "sold": 0.0, "earned": 0.0, "built": 0.0}
		},
	}
	for k, mk := range defaults {
		if _, ok := doc[k]; !ok {
			doc[k] = mk()
		}
	}
}
