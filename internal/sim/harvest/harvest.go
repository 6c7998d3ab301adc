// Package harvest implements the single harvest primitive shared by manual
// taps and hired workers.
package harvest

import (
	"tappytrade.io/internal/sim/catalogs"
	"tappytrade.io/internal/sim/farm"
)

// Rand is the randomness harvesting needs; *math/rand/v2.Rand satisfies it.
type Rand interface {
	IntN(n int) int
	Float64() float64
}

// Result describes one harvest. Harvested is false when there was nothing
// ready, which is not a rejection.
type Result struct {
	Harvested bool           `json:"harvested"`
	Resource  string         `json:"resource,omitempty"`
	Consumed  int            `json:"consumed,omitempty"`
	Extras    map[string]int `json:"extras,omitempty"`
}

// Harvest takes one unit from subplot (plot, sub). It either applies the whole
// effect or none of it.
func Harvest(st *farm.State, r farm.Rules, rng Rand, plot, sub int) (Result, error) {
	s, ok := st.Subplot(plot, sub)
	if !ok {
		return Result{}, farm.Reject(farm.InvalidTarget, "no subplot %d/%d", plot, sub)
	}
	def, ok := r.Cat.Subplot(s.Type)
	if !ok || def.Kind == catalogs.KindStorage {
		return Result{}, farm.Reject(farm.InvalidTarget, "%s cannot be harvested", s.Type)
	}
	capacity := r.Capacity(st)
	if st.Inventory.Total() >= capacity {
		return Result{}, farm.Reject(farm.InventoryFull, "inventory full")
	}

	var res Result
	switch def.Kind {
	case catalogs.KindWild:
		if s.Stored < 1 {
			return Result{}, nil
		}
		s.Stored--
		res.Resource = def.Pool[rng.IntN(len(def.Pool))]
	case catalogs.KindConversion:
		if st.Inventory.Count(def.Input) < def.InputAmount {
			return Result{}, farm.Reject(farm.MissingInput, "need %d %s", def.InputAmount, def.Input)
		}
		st.Inventory.Remove(def.Input, def.InputAmount)
		res.Consumed = def.InputAmount
		res.Resource = def.Output
	default:
		if s.Stored < 1 {
			return Result{}, nil
		}
		s.Stored--
		res.Resource = def.Output
	}
	st.Inventory.Add(res.Resource, 1)
	st.Stats.Harvested++
	res.Harvested = true

	// Extras only land while there is room; the main unit already did.
	for _, id := range def.ExtraIDs() {
		if rng.Float64() >= def.Extras[id] {
			continue
		}
		if st.Inventory.Total() >= capacity {
			continue
		}
		st.Inventory.Add(id, 1)
		if res.Extras == nil {
			res.Extras = map[string]int{}
		}
		res.Extras[id]++
	}
	return res, nil
}

// Gains accumulates what worker ticks produced.
type Gains struct {
	Harvests int            `json:"harvests"`
	Items    map[string]int `json:"items,omitempty"`
}

func (g *Gains) add(res Result) {
	if !res.Harvested {
		return
	}
	if g.Items == nil {
		g.Items = map[string]int{}
	}
	g.Harvests++
	g.Items[res.Resource]++
	for id, n := range res.Extras {
		g.Items[id] += n
	}
}

// Merge folds o into g.
func (g *Gains) Merge(o Gains) {
	g.Harvests += o.Harvests
	for id, n := range o.Items {
		if g.Items == nil {
			g.Items = map[string]int{}
		}
		g.Items[id] += n
	}
}

// TickWorkers gives every hired worker one harvest attempt on its subplot.
// Empty stock, missing input, a full inventory or a dangling assignment all
// make that worker skip the tick.
func TickWorkers(st *farm.State, r farm.Rules, rng Rand) Gains {
	var g Gains
	for _, w := range st.Workers {
		if _, ok := st.Subplot(w.Plot, w.Sub); !ok {
			continue
		}
		res, err := Harvest(st, r, rng, w.Plot, w.Sub)
		if err != nil {
			continue
		}
		g.add(res)
	}
	return g
}
