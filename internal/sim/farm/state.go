package farm

import (
	"tappytrade.io/internal/sim/catalogs"
	"tappytrade.io/internal/sim/tuning"
)

// SchemaVersion is the version written into every new save.
const SchemaVersion = 3

type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

type Subplot struct {
	Type   string
	Level  int
	Stored float64
}

type Plot struct {
	Subs []Subplot
}

type Worker struct {
	Plot int
	Sub  int
}

type Statistics struct {
	Harvested int
	Sold      int
	Earned    float64
	Built     int
}

type LimitOrder struct {
	ID          string
	Direction   Direction
	ResourceID  string
	Quantity    int
	TargetPrice float64
	CreatedAt   int64
}

type GovTier struct {
	TotalSold   int
	CurrentTier int
}

// State is one player's economy. A single owner mutates it through the sim
// packages; everyone else works on a Clone.
type State struct {
	SaveSchemaVersion int
	FarmName          string

	Money     float64
	Inventory Inventory
	Plots     []Plot
	Workers   []Worker
	Stats     Statistics

	LimitOrders []LimitOrder
	GovTiers    map[string]GovTier

	Achievements    map[string]int64
	LastDailyReward int64
	DailyStreak     int

	LastUpdate int64
}

// Rules bundles the static inputs every operation needs.
type Rules struct {
	Cat  *catalogs.Catalogs
	Tune tuning.Tuning
}

// New builds a first-run state: one starter plot of fully stocked wild subplots.
func New(r Rules, nowMillis int64) *State {
	st := &State{
		SaveSchemaVersion: SchemaVersion,
		Inventory:         Inventory{},
		Workers:           []Worker{},
		LimitOrders:       []LimitOrder{},
		GovTiers:          map[string]GovTier{},
		Achievements:      map[string]int64{},
		LastUpdate:        nowMillis,
	}
	st.Plots = []Plot{r.WildPlot(r.Cat.Plots.StarterSubplots)}
	return st
}

// WildPlot returns a plot of n level-1 wild subplots stocked to capacity.
func (r Rules) WildPlot(n int) Plot {
	p := Plot{Subs: make([]Subplot, n)}
	for i := range p.Subs {
		p.Subs[i] = r.FreshWild()
	}
	return p
}

func (r Rules) FreshWild() Subplot {
	wild, _ := r.Cat.Subplot(catalogs.WildType)
	return Subplot{Type: catalogs.WildType, Level: 1, Stored: float64(wild.BaseCapacity)}
}

// Capacity is the inventory cap: base plus every storage building's bonus.
func (r Rules) Capacity(st *State) int {
	c := r.Tune.BaseInventoryCap
	for _, p := range st.Plots {
		for _, s := range p.Subs {
			if def, ok := r.Cat.Subplot(s.Type); ok && def.Kind == catalogs.KindStorage {
				c += def.StorageBonus
			}
		}
	}
	return c
}

// FreeSpace is how many more units the inventory can hold.
func (r Rules) FreeSpace(st *State) int {
	free := r.Capacity(st) - st.Inventory.Total()
	if free < 0 {
		return 0
	}
	return free
}

// Subplot resolves a plot/subplot pair.
func (st *State) Subplot(plot, sub int) (*Subplot, bool) {
	if plot < 0 || plot >= len(st.Plots) {
		return nil, false
	}
	subs := st.Plots[plot].Subs
	if sub < 0 || sub >= len(subs) {
		return nil, false
	}
	return &subs[sub], true
}

func (st *State) LimitOrderIndex(id string) int {
	for i, o := range st.LimitOrders {
		if o.ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy that shares nothing with st.
func (st *State) Clone() *State {
	out := *st
	out.Inventory = st.Inventory.Clone()
	out.Plots = make([]Plot, len(st.Plots))
	for i, p := range st.Plots {
		out.Plots[i] = Plot{Subs: append([]Subplot(nil), p.Subs...)}
		if out.Plots[i].Subs == nil {
			out.Plots[i].Subs = []Subplot{}
		}
	}
	out.Workers = append([]Worker{}, st.Workers...)
	out.LimitOrders = append([]LimitOrder{}, st.LimitOrders...)
	out.GovTiers = make(map[string]GovTier, len(st.GovTiers))
	for k, v := range st.GovTiers {
		out.GovTiers[k] = v
	}
	out.Achievements = make(map[string]int64, len(st.Achievements))
	for k, v := range st.Achievements {
		out.Achievements[k] = v
	}
	return &out
}
