// Package save converts economy state to and from its persisted document:
// encoding, schema migration, clamp-and-default validation and the gateway
// that ties them to a store.
package save

import (
	"encoding/json"
	"fmt"

	"tappytrade.io/internal/sim/farm"
)

// DefaultFarmName is backfilled into documents written before farms had names.
const DefaultFarmName = "Untitled Farm"

type Record struct {
	SaveSchemaVersion   int                   `json:"saveSchemaVersion"`
	FarmName            string                `json:"farmName"`
	Money               float64               `json:"money"`
	Inventory           map[string]int        `json:"inventory"`
	Plots               []PlotRecord          `json:"plots"`
	Workers             []WorkerRecord        `json:"workers"`
	Statistics          StatsRecord           `json:"statistics"`
	LimitOrders         []LimitOrderRecord    `json:"limitOrders"`
	GovernmentTiers     map[string]TierRecord `json:"governmentTiers"`
	Achievements        map[string]int64      `json:"achievements"`
	LastDailyReward     int64                 `json:"lastDailyReward"`
	DailyStreak         int                   `json:"dailyStreak"`
	LastUpdateTimestamp int64                 `json:"lastUpdateTimestamp"`
}

type PlotRecord struct {
	Subs []SubplotRecord `json:"subs"`
}

type SubplotRecord struct {
	Type         string  `json:"type"`
	StoredAmount float64 `json:"storedAmount"`
	Level        int     `json:"level"`
}

type WorkerRecord struct {
	Plot int `json:"plot"`
	Sub  int `json:"sub"`
}

type StatsRecord struct {
	Harvested int     `json:"harvested"`
	Sold      int     `json:"sold"`
	Earned    float64 `json:"earned"`
	Built     int     `json:"built"`
}

type LimitOrderRecord struct {
	ID          string  `json:"id"`
	Direction   string  `json:"direction"`
	ResourceID  string  `json:"resourceId"`
	Quantity    int     `json:"quantity"`
	TargetPrice float64 `json:"targetPrice"`
	CreatedAt   int64   `json:"createdAt"`
}

type TierRecord struct {
	TotalSold   int `json:"totalSold"`
	CurrentTier int `json:"currentTier"`
}

// FromState builds the current-version record for st.
func FromState(st *farm.State) Record {
	rec := Record{
		SaveSchemaVersion:   farm.SchemaVersion,
		FarmName:            st.FarmName,
		Money:               st.Money,
		Inventory:           map[string]int{},
		Plots:               make([]PlotRecord, 0, len(st.Plots)),
		Workers:             make([]WorkerRecord, 0, len(st.Workers)),
		LimitOrders:         make([]LimitOrderRecord, 0, len(st.LimitOrders)),
		GovernmentTiers:     map[string]TierRecord{},
		Achievements:        map[string]int64{},
		LastDailyReward:     st.LastDailyReward,
		DailyStreak:         st.DailyStreak,
		LastUpdateTimestamp: st.LastUpdate,
		Statistics: StatsRecord{
			Harvested: st.Stats.Harvested,
			Sold:      st.Stats.Sold,
			Earned:    st.Stats.Earned,
			Built:     st.Stats.Built,
		},
	}
	for id, q := range st.Inventory {
		if q > 0 {
			rec.Inventory[id] = q
		}
	}
	for _, p := range st.Plots {
		pr := PlotRecord{Subs: make([]SubplotRecord, 0, len(p.Subs))}
		for _, s := range p.Subs {
			pr.Subs = append(pr.Subs, SubplotRecord{Type: s.Type, StoredAmount: s.Stored, Level: s.Level})
		}
		rec.Plots = append(rec.Plots, pr)
	}
	for _, w := range st.Workers {
		rec.Workers = append(rec.Workers, WorkerRecord{Plot: w.Plot, Sub: w.Sub})
	}
	for _, o := range st.LimitOrders {
		rec.LimitOrders = append(rec.LimitOrders, LimitOrderRecord{
			ID:          o.ID,
			Direction:   string(o.Direction),
			ResourceID:  o.ResourceID,
			Quantity:    o.Quantity,
			TargetPrice: o.TargetPrice,
			CreatedAt:   o.CreatedAt,
		})
	}
	for cat, t := range st.GovTiers {
		rec.GovernmentTiers[cat] = TierRecord{TotalSold: t.TotalSold, CurrentTier: t.CurrentTier}
	}
	for id, at := range st.Achievements {
		rec.Achievements[id] = at
	}
	return rec
}

// Encode serializes st as a current-version save document.
func Encode(st *farm.State) ([]byte, error) {
	b, err := json.Marshal(FromState(st))
	if err != nil {
		return nil, fmt.Errorf("encode save: %w", err)
	}
	return b, nil
}
