package protocol

import (
	"tappytrade.io/internal/sim/catalogs"
	"tappytrade.io/internal/sim/estate"
	"tappytrade.io/internal/sim/farm"
	"tappytrade.io/internal/sim/market"
	"tappytrade.io/internal/sim/progress"
	"tappytrade.io/internal/sim/regen"
)

// StateView is the read model the client renders. It carries derived
// values (capacity, prices, costs) so the client never recomputes rules.
type StateView struct {
	FarmName       string               `json:"farm_name"`
	Money          float64              `json:"money"`
	Inventory      map[string]int       `json:"inventory"`
	InventoryUsed  int                  `json:"inventory_used"`
	Capacity       int                  `json:"capacity"`
	Plots          []PlotView           `json:"plots"`
	Workers        []WorkerView         `json:"workers"`
	Stats          StatsView            `json:"stats"`
	LimitOrders    []LimitOrderView     `json:"limit_orders"`
	GovTiers       map[string]TierView  `json:"gov_tiers"`
	Prices         map[string]PriceView `json:"prices"`
	Achievements   map[string]int64     `json:"achievements"`
	NextPlotCost   *float64             `json:"next_plot_cost,omitempty"`
	NextWorkerCost *float64             `json:"next_worker_cost,omitempty"`
	DailyAvailable bool                 `json:"daily_available"`
	DailyStreak    int                  `json:"daily_streak"`
	LastUpdate     int64                `json:"last_update"`
}

type PlotView struct {
	Subs []SubplotView `json:"subs"`
}

type SubplotView struct {
	Type        string  `json:"type"`
	Level       int     `json:"level"`
	Stored      float64 `json:"stored"`
	Capacity    float64 `json:"capacity"`
	Worker      bool    `json:"worker"`
	UpgradeCost *Cost   `json:"upgrade_cost,omitempty"`
}

type Cost struct {
	Money float64        `json:"money"`
	Items map[string]int `json:"items,omitempty"`
}

type WorkerView struct {
	Plot int `json:"plot"`
	Sub  int `json:"sub"`
}

type StatsView struct {
	Harvested int     `json:"harvested"`
	Sold      int     `json:"sold"`
	Earned    float64 `json:"earned"`
	Built     int     `json:"built"`
}

type LimitOrderView struct {
	ID          string  `json:"id"`
	Direction   string  `json:"direction"`
	Resource    string  `json:"resource"`
	Quantity    int     `json:"quantity"`
	TargetPrice float64 `json:"target_price"`
	CreatedAt   int64   `json:"created_at"`
}

type TierView struct {
	TotalSold int     `json:"total_sold"`
	Tier      int     `json:"tier"`
	Bonus     float64 `json:"bonus"`
}

type PriceView struct {
	Sell float64 `json:"sell"`
	Buy  float64 `json:"buy"`
}

// BuildState renders st for the client.
func BuildState(st *farm.State, r farm.Rules, nowMillis int64) StateView {
	v := StateView{
		FarmName:       st.FarmName,
		Money:          st.Money,
		Inventory:      st.Inventory.Clone(),
		InventoryUsed:  st.Inventory.Total(),
		Capacity:       r.Capacity(st),
		Plots:          make([]PlotView, 0, len(st.Plots)),
		Workers:        make([]WorkerView, 0, len(st.Workers)),
		Stats:          StatsView(st.Stats),
		LimitOrders:    make([]LimitOrderView, 0, len(st.LimitOrders)),
		GovTiers:       map[string]TierView{},
		Prices:         map[string]PriceView{},
		Achievements:   map[string]int64{},
		DailyAvailable: progress.CanClaimDaily(st, r.Tune, nowMillis),
		DailyStreak:    st.DailyStreak,
		LastUpdate:     st.LastUpdate,
	}

	staffed := map[[2]int]bool{}
	for _, w := range st.Workers {
		v.Workers = append(v.Workers, WorkerView{Plot: w.Plot, Sub: w.Sub})
		staffed[[2]int{w.Plot, w.Sub}] = true
	}
	for pi, p := range st.Plots {
		pv := PlotView{Subs: make([]SubplotView, 0, len(p.Subs))}
		for si, s := range p.Subs {
			sv := SubplotView{Type: s.Type, Level: s.Level, Stored: s.Stored, Worker: staffed[[2]int{pi, si}]}
			if def, ok := r.Cat.Subplot(s.Type); ok {
				sv.Capacity = regen.CapacityForLevel(def, s.Level, r.Tune)
			}
			if s.Level < r.Tune.MaxSubplotLevel {
				c := costView(estate.UpgradeCost(r, s.Type, s.Level))
				sv.UpgradeCost = &c
			}
			pv.Subs = append(pv.Subs, sv)
		}
		v.Plots = append(v.Plots, pv)
	}

	for _, o := range st.LimitOrders {
		v.LimitOrders = append(v.LimitOrders, LimitOrderView{
			ID:          o.ID,
			Direction:   string(o.Direction),
			Resource:    o.ResourceID,
			Quantity:    o.Quantity,
			TargetPrice: o.TargetPrice,
			CreatedAt:   o.CreatedAt,
		})
	}
	for cat, t := range st.GovTiers {
		v.GovTiers[cat] = TierView{TotalSold: t.TotalSold, Tier: t.CurrentTier, Bonus: r.Cat.Government.Bonus(t.CurrentTier)}
	}
	for _, id := range r.Cat.Resources.Order {
		v.Prices[id] = PriceView{Sell: market.SellPrice(st, r, id), Buy: market.BuyPrice(r, id)}
	}
	for id, at := range st.Achievements {
		v.Achievements[id] = at
	}
	if cost, ok := r.Cat.Plots.NextCost(len(st.Plots)); ok {
		v.NextPlotCost = &cost
	}
	if len(st.Workers) < r.Tune.MaxWorkers {
		cost := r.Tune.WorkerCost(len(st.Workers))
		v.NextWorkerCost = &cost
	}
	return v
}

func costView(c catalogs.Cost) Cost {
	out := Cost{Money: c.Money}
	if len(c.Items) > 0 {
		out.Items = make(map[string]int, len(c.Items))
		for k, n := range c.Items {
			out.Items[k] = n
		}
	}
	return out
}
