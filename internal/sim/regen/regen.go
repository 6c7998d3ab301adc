// Package regen grows subplot stock over elapsed time.
package regen

import (
	"tappytrade.io/internal/sim/catalogs"
	"tappytrade.io/internal/sim/farm"
	"tappytrade.io/internal/sim/tuning"
)

// LevelBonus is the regeneration multiplier for a level: 1 + (level-1)*bonus.
func LevelBonus(level int, tune tuning.Tuning) float64 {
	if level < 1 {
		level = 1
	}
	return 1 + float64(level-1)*tune.LevelRegenBonus
}

// CapacityForLevel is the most stock a subplot of def can hold at level.
func CapacityForLevel(def catalogs.SubplotTypeDef, level int, tune tuning.Tuning) float64 {
	if level < 1 {
		level = 1
	}
	return float64(def.BaseCapacity + (level-1)*tune.LevelCapacityBonus)
}

// Rate is the per-second growth of def at level.
func Rate(def catalogs.SubplotTypeDef, level int, tune tuning.Tuning) float64 {
	return def.RegenPerSec * LevelBonus(level, tune)
}

// Advance grows sub by delta seconds, saturating at its level capacity.
// Types without regeneration (conversion, storage) are left alone.
func Advance(sub *farm.Subplot, def catalogs.SubplotTypeDef, delta float64, tune tuning.Tuning) {
	if delta <= 0 || def.RegenPerSec <= 0 {
		return
	}
	max := CapacityForLevel(def, sub.Level, tune)
	if sub.Stored >= max {
		return
	}
	next := sub.Stored + Rate(def, sub.Level, tune)*delta
	if next > max {
		next = max
	}
	sub.Stored = next
}

// AdvanceAll runs Advance over every subplot of st. Unknown types are skipped.
func AdvanceAll(st *farm.State, r farm.Rules, delta float64) {
	for pi := range st.Plots {
		subs := st.Plots[pi].Subs
		for si := range subs {
			def, ok := r.Cat.Subplot(subs[si].Type)
			if !ok {
				continue
			}
			Advance(&subs[si], def, delta, r.Tune)
		}
	}
}
