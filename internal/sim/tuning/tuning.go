package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning holds every balance and cadence knob of the simulation. Intervals
// are simulated seconds.
type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	BaseInventoryCap int     `yaml:"base_inventory_cap"`
	MaxWorkers       int     `yaml:"max_workers"`
	WorkerBaseCost   float64 `yaml:"worker_base_cost"`
	WorkerCostStep   float64 `yaml:"worker_cost_step"`

	WorkerIntervalSec      float64 `yaml:"worker_interval_sec"`
	LimitOrderIntervalSec  float64 `yaml:"limit_order_interval_sec"`
	SaveIntervalSec        float64 `yaml:"save_interval_sec"`
	AchievementIntervalSec float64 `yaml:"achievement_interval_sec"`
	FrameIntervalMs        int     `yaml:"frame_interval_ms"`
	MaxFrameDeltaSec       float64 `yaml:"max_frame_delta_sec"`

	CatchUp CatchUp `yaml:"catch_up"`

	MaxSubplotLevel    int     `yaml:"max_subplot_level"`
	LevelRegenBonus    float64 `yaml:"level_regen_bonus"`
	LevelCapacityBonus int     `yaml:"level_capacity_bonus"`
	DemolishRefund     float64 `yaml:"demolish_refund"`
	UpgradeCostFactor  float64 `yaml:"upgrade_cost_factor"`
	WildUpgradeBase    float64 `yaml:"wild_upgrade_base"`

	Daily Daily `yaml:"daily"`

	RateLimits RateLimits `yaml:"rate_limits"`
}

type CatchUp struct {
	ThresholdSec  float64 `yaml:"threshold_sec"`
	MaxOfflineSec float64 `yaml:"max_offline_sec"`
	MaxCycles     int     `yaml:"max_cycles"`
}

type Daily struct {
	CooldownSec    int64 `yaml:"cooldown_sec"`
	StreakResetSec int64 `yaml:"streak_reset_sec"`
}

type RateLimits struct {
	CommandsPerSec float64 `yaml:"commands_per_sec"`
	CommandBurst   int     `yaml:"command_burst"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",

		BaseInventoryCap: 1000,
		MaxWorkers:       10,
		WorkerBaseCost:   500,
		WorkerCostStep:   200,

		WorkerIntervalSec:      5,
		LimitOrderIntervalSec:  10,
		SaveIntervalSec:        10,
		AchievementIntervalSec: 15,
		FrameIntervalMs:        100,
		MaxFrameDeltaSec:       1,

		CatchUp: CatchUp{
			ThresholdSec:  60,
			MaxOfflineSec: 12 * 60 * 60,
			MaxCycles:     8640,
		},

		MaxSubplotLevel:    5,
		LevelRegenBonus:    0.1,
		LevelCapacityBonus: 10,
		DemolishRefund:     0.5,
		UpgradeCostFactor:  0.75,
		WildUpgradeBase:    100,

		Daily: Daily{
			CooldownSec:    24 * 60 * 60,
			StreakResetSec: 48 * 60 * 60,
		},

		RateLimits: RateLimits{
			CommandsPerSec: 20,
			CommandBurst:   40,
		},
	}
}

// Load reads path over Defaults so a file only needs the keys it changes.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	switch {
	case t.BaseInventoryCap <= 0:
		return fmt.Errorf("base_inventory_cap must be positive")
	case t.MaxWorkers < 0:
		return fmt.Errorf("max_workers must not be negative")
	case t.WorkerIntervalSec <= 0, t.LimitOrderIntervalSec <= 0, t.SaveIntervalSec <= 0, t.AchievementIntervalSec <= 0:
		return fmt.Errorf("intervals must be positive")
	case t.FrameIntervalMs <= 0:
		return fmt.Errorf("frame_interval_ms must be positive")
	case t.MaxFrameDeltaSec <= 0:
		return fmt.Errorf("max_frame_delta_sec must be positive")
	case t.CatchUp.MaxOfflineSec <= 0 || t.CatchUp.MaxCycles <= 0:
		return fmt.Errorf("catch_up bounds must be positive")
	case t.MaxSubplotLevel < 1:
		return fmt.Errorf("max_subplot_level must be at least 1")
	case t.DemolishRefund < 0 || t.DemolishRefund > 1:
		return fmt.Errorf("demolish_refund must be within [0,1]")
	}
	return nil
}

// WorkerCost is the hire price when count workers are already employed.
func (t Tuning) WorkerCost(count int) float64 {
	return t.WorkerBaseCost + t.WorkerCostStep*float64(count)
}
