package save

import (
	"math"

	"github.com/google/uuid"

	"tappytrade.io/internal/sim/farm"
	"tappytrade.io/internal/sim/regen"
)

// Validate builds a state from a migrated document. Fields that fail a
// type or range check are clamped or replaced by their first-run default;
// the document as a whole is never rejected. nowMillis stands in for a
// missing update timestamp.
func Validate(doc Doc, r farm.Rules, nowMillis int64) *farm.State {
	st := farm.New(r, nowMillis)

	if name, ok := doc["farmName"].(string); ok {
		st.FarmName = name
	} else {
		st.FarmName = DefaultFarmName
	}
	if m, ok := finite(doc["money"]); ok && m >= 0 {
		st.Money = m
	}

	if inv, ok := doc["inventory"].(map[string]any); ok {
		for id, v := range inv {
			if _, known := r.Cat.Resource(id); !known {
				continue
			}
			if q, ok := count(v); ok && q > 0 {
				st.Inventory[id] = q
			}
		}
	}

	if plots, ok := doc["plots"].([]any); ok && len(plots) > 0 {
		st.Plots = make([]farm.Plot, 0, len(plots))
		for i, p := range plots {
			st.Plots = append(st.Plots, validatePlot(p, i, r))
		}
	}

	if workers, ok := doc["workers"].([]any); ok {
		for _, w := range workers {
			if len(st.Workers) >= r.Tune.MaxWorkers {
				break
			}
			wm, ok := w.(map[string]any)
			if !ok {
				continue
			}
			p, okP := index(wm["plot"])
			s, okS := index(wm["sub"])
			if okP && okS {
				st.Workers = append(st.Workers, farm.Worker{Plot: p, Sub: s})
			}
		}
	}

	if stats, ok := doc["statistics"].(map[string]any); ok {
		st.Stats.Harvested, _ = count(stats["harvested"])
		st.Stats.Sold, _ = count(stats["sold"])
		st.Stats.Built, _ = count(stats["built"])
		if e, ok := finite(stats["earned"]); ok && e > 0 {
			st.Stats.Earned = e
		}
	}

	if orders, ok := doc["limitOrders"].([]any); ok {
		for _, o := range orders {
			if lo, ok := validateOrder(o, r); ok {
				st.LimitOrders = append(st.LimitOrders, lo)
			}
		}
	}

	if tiers, ok := doc["governmentTiers"].(map[string]any); ok {
		for cat, t := range tiers {
			if !r.Cat.Government.HasCategory(cat) {
				continue
			}
			tm, ok := t.(map[string]any)
			if !ok {
				continue
			}
			sold, _ := count(tm["totalSold"])
			st.GovTiers[cat] = farm.GovTier{TotalSold: sold, CurrentTier: r.Cat.Government.TierFor(sold)}
		}
	}

	if ach, ok := doc["achievements"].(map[string]any); ok {
		for id, v := range ach {
			if _, known := r.Cat.Achievements.Defs[id]; !known {
				continue
			}
			if at, ok := finite(v); ok && at >= 0 {
				st.Achievements[id] = int64(at)
			}
		}
	}

	if at, ok := finite(doc["lastDailyReward"]); ok && at >= 0 {
		st.LastDailyReward = int64(at)
	}
	st.DailyStreak, _ = count(doc["dailyStreak"])
	if at, ok := finite(doc["lastUpdateTimestamp"]); ok && at >= 0 {
		st.LastUpdate = int64(at)
	}
	return st
}

func validatePlot(v any, i int, r farm.Rules) farm.Plot {
	pm, ok := v.(map[string]any)
	if !ok {
		return placeholderPlot(i, r)
	}
	subs, ok := pm["subs"].([]any)
	if !ok || len(subs) == 0 {
		return placeholderPlot(i, r)
	}
	p := farm.Plot{Subs: make([]farm.Subplot, 0, len(subs))}
	for _, s := range subs {
		p.Subs = append(p.Subs, validateSubplot(s, r))
	}
	return p
}

func placeholderPlot(i int, r farm.Rules) farm.Plot {
	if i == 0 {
		return r.WildPlot(r.Cat.Plots.StarterSubplots)
	}
	return r.WildPlot(r.Cat.Plots.PurchasedSubplots)
}

func validateSubplot(v any, r farm.Rules) farm.Subplot {
	sm, ok := v.(map[string]any)
	if !ok {
		return r.FreshWild()
	}
	typ, _ := sm["type"].(string)
	def, known := r.Cat.Subplot(typ)
	if !known {
		return r.FreshWild()
	}
	sub := farm.Subplot{Type: def.ID, Level: 1}
	if lv, ok := count(sm["level"]); ok {
		sub.Level = min(max(lv, 1), r.Tune.MaxSubplotLevel)
	}
	if amt, ok := finite(sm["storedAmount"]); ok && amt > 0 {
		sub.Stored = min(amt, regen.CapacityForLevel(def, sub.Level, r.Tune))
	}
	return sub
}

func validateOrder(v any, r farm.Rules) (farm.LimitOrder, bool) {
	om, ok := v.(map[string]any)
	if !ok {
		return farm.LimitOrder{}, false
	}
	dir, _ := om["direction"].(string)
	if d := farm.Direction(dir); d != farm.Buy && d != farm.Sell {
		return farm.LimitOrder{}, false
	}
	res, _ := om["resourceId"].(string)
	if _, known := r.Cat.Resource(res); !known {
		return farm.LimitOrder{}, false
	}
	qty, ok := count(om["quantity"])
	if !ok || qty <= 0 {
		return farm.LimitOrder{}, false
	}
	price, ok := finite(om["targetPrice"])
	if !ok || price <= 0 {
		return farm.LimitOrder{}, false
	}
	lo := farm.LimitOrder{
		Direction:   farm.Direction(dir),
		ResourceID:  res,
		Quantity:    qty,
		TargetPrice: price,
	}
	if id, ok := om["id"].(string); ok && id != "" {
		lo.ID = id
	} else {
		lo.ID = uuid.NewString()
	}
	if at, ok := finite(om["createdAt"]); ok && at >= 0 {
		lo.CreatedAt = int64(at)
	}
	return lo, true
}

// maxWhole is the largest integer a JSON number holds exactly.
const maxWhole = 1 << 53

func finite(v any) (float64, bool) {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// count floors a finite non-negative number.
func count(v any) (int, bool) {
	f, ok := finite(v)
	if !ok || f < 0 || f > maxWhole {
		return 0, false
	}
	return int(math.Floor(f)), true
}

// index accepts only whole non-negative numbers.
func index(v any) (int, bool) {
	f, ok := finite(v)
	if !ok || f < 0 || f != math.Trunc(f) || f > maxWhole {
		return 0, false
	}
	return int(f), true
}
