package progress

import (
	"tappytrade.io/internal/sim/catalogs"
	"tappytrade.io/internal/sim/farm"
	"tappytrade.io/internal/sim/tuning"
)

// CanClaimDaily reports whether the cooldown since the last claim has passed.
// A last claim in the future (clock rolled back) blocks claiming.
func CanClaimDaily(st *farm.State, tune tuning.Tuning, nowMillis int64) bool {
	if st.LastDailyReward > nowMillis {
		return false
	}
	return nowMillis-st.LastDailyReward >= tune.Daily.CooldownSec*1000
}

// ClaimDaily pays the reward for the resulting streak. Missing a claim for
// longer than the reset window starts the streak over.
func ClaimDaily(st *farm.State, r farm.Rules, nowMillis int64) (catalogs.DailyReward, error) {
	if !CanClaimDaily(st, r.Tune, nowMillis) {
		return catalogs.DailyReward{}, farm.Reject(farm.InvalidTarget, "daily reward already claimed")
	}
	if nowMillis-st.LastDailyReward > r.Tune.Daily.StreakResetSec*1000 {
		st.DailyStreak = 1
	} else {
		st.DailyStreak++
	}
	st.LastDailyReward = nowMillis

	reward := r.Cat.Daily.ForStreak(st.DailyStreak)
	st.Money += reward.Money
	free := r.FreeSpace(st)
	for id, n := range reward.Items {
		if n > free {
			n = free
		}
		st.Inventory.Add(id, n)
		free -= n
	}
	return reward, nil
}
