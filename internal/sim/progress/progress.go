// Package progress tracks achievements and the daily login reward.
package progress

import (
	"tappytrade.io/internal/sim/catalogs"
	"tappytrade.io/internal/sim/farm"
)

func metric(st *farm.State, kind string) float64 {
	switch kind {
	case "harvest":
		return float64(st.Stats.Harvested)
	case "money":
		return st.Stats.Earned
	case "sell":
		return float64(st.Stats.Sold)
	case "build":
		return float64(st.Stats.Built)
	case "worker":
		return float64(len(st.Workers))
	case "plot":
		return float64(len(st.Plots))
	}
	return 0
}

// CheckAchievements unlocks every achievement whose requirement is met and
// returns the newly unlocked ids in catalog order.
func CheckAchievements(st *farm.State, cat *catalogs.Catalogs, nowMillis int64) []string {
	var unlocked []string
	for _, id := range cat.Achievements.Order {
		if _, done := st.Achievements[id]; done {
			continue
		}
		a := cat.Achievements.Defs[id]
		if metric(st, a.Kind) >= a.Required {
			st.Achievements[id] = nowMillis
			unlocked = append(unlocked, id)
		}
	}
	return unlocked
}

// Progress is the fraction in [0,1] toward an achievement.
func Progress(st *farm.State, a catalogs.AchievementDef) float64 {
	if _, done := st.Achievements[a.ID]; done || a.Required <= 0 {
		return 1
	}
	p := metric(st, a.Kind) / a.Required
	if p > 1 {
		p = 1
	}
	return p
}
