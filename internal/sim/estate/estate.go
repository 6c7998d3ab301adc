// Package estate covers land, labour and buildings: buying plots, hiring and
// firing workers, and building, upgrading or demolishing subplots.
package estate

import (
	"maps"
	"math"
	"slices"
	"strings"
	"unicode/utf8"

	"tappytrade.io/internal/sim/catalogs"
	"tappytrade.io/internal/sim/farm"
)

const maxFarmNameLen = 20

// BuyPlot pays the next ladder price and appends a plot of wild subplots.
func BuyPlot(st *farm.State, r farm.Rules) (float64, error) {
	cost, ok := r.Cat.Plots.NextCost(len(st.Plots))
	if !ok {
		return 0, farm.Reject(farm.InvalidTarget, "all %d plots owned", r.Cat.Plots.MaxPlots())
	}
	if st.Money < cost {
		return 0, farm.Reject(farm.InsufficientFunds, "plot costs %.0f", cost)
	}
	st.Money -= cost
	st.Plots = append(st.Plots, r.WildPlot(r.Cat.Plots.PurchasedSubplots))
	return cost, nil
}

// HireWorker assigns a new worker to (plot, sub); the price grows with headcount.
func HireWorker(st *farm.State, r farm.Rules, plot, sub int) (float64, error) {
	if len(st.Workers) >= r.Tune.MaxWorkers {
		return 0, farm.Reject(farm.WorkerCapacityReached, "max %d workers", r.Tune.MaxWorkers)
	}
	if _, ok := st.Subplot(plot, sub); !ok {
		return 0, farm.Reject(farm.InvalidTarget, "no subplot %d/%d", plot, sub)
	}
	cost := r.Tune.WorkerCost(len(st.Workers))
	if st.Money < cost {
		return 0, farm.Reject(farm.InsufficientFunds, "worker costs %.0f", cost)
	}
	st.Money -= cost
	st.Workers = append(st.Workers, farm.Worker{Plot: plot, Sub: sub})
	return cost, nil
}

// FireWorker removes the worker at index. There is no refund.
func FireWorker(st *farm.State, index int) error {
	if index < 0 || index >= len(st.Workers) {
		return farm.Reject(farm.InvalidTarget, "no worker %d", index)
	}
	st.Workers = append(st.Workers[:index], st.Workers[index+1:]...)
	return nil
}

func canAfford(st *farm.State, c catalogs.Cost) error {
	if st.Money < c.Money {
		return farm.Reject(farm.InsufficientFunds, "need %.0f", c.Money)
	}
	for _, id := range slices.Sorted(maps.Keys(c.Items)) {
		if st.Inventory.Count(id) < c.Items[id] {
			return farm.Reject(farm.InsufficientInventory, "need %d %s", c.Items[id], id)
		}
	}
	return nil
}

func pay(st *farm.State, c catalogs.Cost) {
	st.Money -= c.Money
	for id, n := range c.Items {
		st.Inventory.Remove(id, n)
	}
}

// Build places buildingType on a wild subplot. The new building starts empty at level 1.
func Build(st *farm.State, r farm.Rules, plot, sub int, buildingType string) error {
	s, ok := st.Subplot(plot, sub)
	if !ok {
		return farm.Reject(farm.InvalidTarget, "no subplot %d/%d", plot, sub)
	}
	if s.Type != catalogs.WildType {
		return farm.Reject(farm.InvalidTarget, "subplot already holds %s", s.Type)
	}
	b, ok := r.Cat.Building(buildingType)
	if !ok {
		return farm.Reject(farm.InvalidTarget, "unknown building %q", buildingType)
	}
	if err := canAfford(st, b.Cost); err != nil {
		return err
	}
	pay(st, b.Cost)
	*s = farm.Subplot{Type: buildingType, Level: 1}
	st.Stats.Built++
	return nil
}

// UpgradeCost prices the step from level to level+1. Buildings scale their
// build cost; wild land has a flat money ladder.
func UpgradeCost(r farm.Rules, subType string, level int) catalogs.Cost {
	mult := float64(level+1) * r.Tune.UpgradeCostFactor
	b, ok := r.Cat.Building(subType)
	if !ok {
		return catalogs.Cost{Money: r.Tune.WildUpgradeBase * float64(level+1)}
	}
	c := catalogs.Cost{Money: math.Floor(b.Cost.Money * mult)}
	if len(b.Cost.Items) > 0 {
		c.Items = make(map[string]int, len(b.Cost.Items))
		for id, n := range b.Cost.Items {
			c.Items[id] = int(math.Floor(float64(n) * mult))
		}
	}
	return c
}

func Upgrade(st *farm.State, r farm.Rules, plot, sub int) error {
	s, ok := st.Subplot(plot, sub)
	if !ok {
		return farm.Reject(farm.InvalidTarget, "no subplot %d/%d", plot, sub)
	}
	if s.Level >= r.Tune.MaxSubplotLevel {
		return farm.Reject(farm.InvalidTarget, "already level %d", s.Level)
	}
	cost := UpgradeCost(r, s.Type, s.Level)
	if err := canAfford(st, cost); err != nil {
		return err
	}
	pay(st, cost)
	s.Level++
	return nil
}

// Demolish turns a building back into fresh wild land and refunds part of
// its build cost. Refunded items only fill free space.
func Demolish(st *farm.State, r farm.Rules, plot, sub int) (catalogs.Cost, error) {
	s, ok := st.Subplot(plot, sub)
	if !ok {
		return catalogs.Cost{}, farm.Reject(farm.InvalidTarget, "no subplot %d/%d", plot, sub)
	}
	b, ok := r.Cat.Building(s.Type)
	if !ok {
		return catalogs.Cost{}, farm.Reject(farm.InvalidTarget, "%s is not a building", s.Type)
	}
	if def, _ := r.Cat.Subplot(s.Type); def.Kind == catalogs.KindStorage {
		if st.Inventory.Total() > r.Capacity(st)-def.StorageBonus {
			return catalogs.Cost{}, farm.Reject(farm.InventoryFull, "inventory would exceed capacity")
		}
	}

	*s = r.FreshWild()

	refund := catalogs.Cost{Money: math.Floor(b.Cost.Money * r.Tune.DemolishRefund)}
	st.Money += refund.Money
	free := r.FreeSpace(st)
	for _, id := range slices.Sorted(maps.Keys(b.Cost.Items)) {
		n := int(math.Floor(float64(b.Cost.Items[id]) * r.Tune.DemolishRefund))
		if n > free {
			n = free
		}
		if n <= 0 {
			continue
		}
		st.Inventory.Add(id, n)
		free -= n
		if refund.Items == nil {
			refund.Items = map[string]int{}
		}
		refund.Items[id] = n
	}
	return refund, nil
}

// Rename sets the farm name. Blank names are refused.
func Rename(st *farm.State, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return farm.Reject(farm.InvalidTarget, "name is empty")
	}
	if utf8.RuneCountInString(name) > maxFarmNameLen {
		return farm.Reject(farm.InvalidTarget, "name longer than %d characters", maxFarmNameLen)
	}
	st.FarmName = name
	return nil
}
