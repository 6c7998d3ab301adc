// Package archive keeps a copy of a farm's last save before a confirmed
// reset wipes it.
package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"tappytrade.io/internal/persistence/save"
	"tappytrade.io/internal/persistence/snapshot"
	"tappytrade.io/internal/sim/farm"
)

type Meta struct {
	Player        string  `json:"player"`
	Reason        string  `json:"reason"`
	Snapshot      string  `json:"snapshot"`
	CreatedAt     string  `json:"created_at"`
	SchemaVersion int     `json:"save_schema_version"`
	Money         float64 `json:"money"`
	Plots         int     `json:"plots"`
	Workers       int     `json:"workers"`
	Harvested     int     `json:"harvested"`
}

// BackupState writes st to `dataDir/archives/<player>/<stamp>/` as a
// snapshot file with a meta.json beside it and returns the snapshot path.
func BackupState(dataDir, player, reason string, st *farm.State, now time.Time) (string, error) {
	body, err := save.Encode(st)
	if err != nil {
		return "", err
	}
	stamp := now.UTC().Format("20060102T150405.000Z")
	dir := filepath.Join(dataDir, "archives", player, stamp)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, player+".save.zst")
	h := snapshot.Header{Player: player, SchemaVersion: st.SaveSchemaVersion, SavedAt: now.UnixMilli()}
	if err := snapshot.WriteSnapshot(dst, h, body); err != nil {
		return "", fmt.Errorf("archive %s: %w", player, err)
	}

	meta := Meta{
		Player:        player,
		Reason:        reason,
		Snapshot:      filepath.Base(dst),
		CreatedAt:     now.UTC().Format(time.RFC3339Nano),
		SchemaVersion: st.SaveSchemaVersion,
		Money:         st.Money,
		Plots:         len(st.Plots),
		Workers:       len(st.Workers),
		Harvested:     st.Stats.Harvested,
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644)
	}
	return dst, nil
}

// List returns the player's archived metas, oldest first.
func List(dataDir, player string) ([]Meta, error) {
	root := filepath.Join(dataDir, "archives", player)
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Meta
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(root, e.Name(), "meta.json"))
		if err != nil {
			continue
		}
		var m Meta
		if json.Unmarshal(b, &m) == nil {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}
