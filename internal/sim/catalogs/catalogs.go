package catalogs

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
)

//go:embed defaults/*.json
var embedded embed.FS

// Kind is the closed set of subplot behaviours.
type Kind string

const (
	KindWild       Kind = "wild"
	KindStandard   Kind = "standard"
	KindConversion Kind = "conversion"
	KindStorage    Kind = "storage"
)

// WildType is the subplot type every fresh or demolished subplot starts as.
const WildType = "wild"

type Catalogs struct {
	Resources    ResourceCatalog
	Subplots     SubplotCatalog
	Buildings    BuildingCatalog
	Plots        PlotLadder
	Achievements AchievementCatalog
	Government   GovernmentCatalog
	Daily        DailyCatalog
}

type ResourceCatalog struct {
	Order  []string
	Defs   map[string]ResourceDef
	Digest string
}

type ResourceDef struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Icon     string  `json:"icon"`
	Price    float64 `json:"price"`
	Category string  `json:"category"` // "raw","crops","livestock","processed"
}

type SubplotCatalog struct {
	Defs   map[string]SubplotTypeDef
	Digest string
}

type SubplotTypeDef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
	Kind Kind   `json:"kind"`

	Output       string             `json:"output,omitempty"`
	Pool         []string           `json:"pool,omitempty"`
	RegenPerSec  float64            `json:"regen_per_sec,omitempty"`
	BaseCapacity int                `json:"capacity,omitempty"`
	Input        string             `json:"input,omitempty"`
	InputAmount  int                `json:"input_amount,omitempty"`
	Extras       map[string]float64 `json:"extras,omitempty"`
	StorageBonus int                `json:"storage_bonus,omitempty"`
}

// ExtraIDs returns the extra-output resources in a stable order so that
// random rolls are reproducible for a seeded source.
func (d SubplotTypeDef) ExtraIDs() []string {
	if len(d.Extras) == 0 {
		return nil
	}
	ids := make([]string, 0, len(d.Extras))
	for id := range d.Extras {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type BuildingCatalog struct {
	Order  []string
	Defs   map[string]BuildingDef
	Digest string
}

type BuildingDef struct {
	Type     string `json:"type"`
	Category string `json:"category"`
	Cost     Cost   `json:"cost"`
}

type Cost struct {
	Money float64        `json:"money"`
	Items map[string]int `json:"items,omitempty"`
}

type PlotLadder struct {
	Costs             []float64 `json:"costs"`
	StarterSubplots   int       `json:"starter_subplots"`
	PurchasedSubplots int       `json:"purchased_subplots"`
	Digest            string    `json:"-"`
}

// NextCost is the price of the plot after owned ones; ok is false once the
// ladder is exhausted.
func (l PlotLadder) NextCost(owned int) (float64, bool) {
	if owned < 0 || owned >= len(l.Costs) {
		return 0, false
	}
	return l.Costs[owned], true
}

func (l PlotLadder) MaxPlots() int { return len(l.Costs) }

type AchievementCatalog struct {
	Order  []string
	Defs   map[string]AchievementDef
	Digest string
}

type AchievementDef struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Kind        string  `json:"kind"` // "harvest","money","plot","build","worker","sell"
	Required    float64 `json:"required"`
}

type GovernmentCatalog struct {
	Categories []GovCategory `json:"categories"`
	Tiers      []GovTier     `json:"tiers"`

	ByResource map[string]string `json:"-"`
	Digest     string            `json:"-"`
}

type GovCategory struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Icon      string   `json:"icon"`
	Resources []string `json:"resources"`
}

type GovTier struct {
	Sold  int     `json:"sold"`
	Bonus float64 `json:"bonus"`
	Label string  `json:"label"`
}

// CategoryOf returns the government category a resource counts toward.
func (g GovernmentCatalog) CategoryOf(resourceID string) (string, bool) {
	c, ok := g.ByResource[resourceID]
	return c, ok
}

// TierFor returns the highest tier whose threshold totalSold has reached.
func (g GovernmentCatalog) HasCategory(id string) bool {
	for _, c := range g.Categories {
		if c.ID == id {
			return true
		}
	}
	return false
}

func (g GovernmentCatalog) TierFor(totalSold int) int {
	tier := 0
	for i, t := range g.Tiers {
		if totalSold >= t.Sold {
			tier = i
		}
	}
	return tier
}

func (g GovernmentCatalog) Bonus(tier int) float64 {
	if tier < 0 || tier >= len(g.Tiers) {
		return 0
	}
	return g.Tiers[tier].Bonus
}

type DailyCatalog struct {
	Rewards []DailyReward
	Digest  string
}

type DailyReward struct {
	Day   int            `json:"day"`
	Money float64        `json:"money"`
	Items map[string]int `json:"items,omitempty"`
}

// ForStreak picks the reward for a streak: one step up every three days.
func (d DailyCatalog) ForStreak(streak int) DailyReward {
	if len(d.Rewards) == 0 {
		return DailyReward{}
	}
	tier := streak / 3
	if tier < 0 {
		tier = 0
	}
	if tier > len(d.Rewards)-1 {
		tier = len(d.Rewards) - 1
	}
	return d.Rewards[tier]
}

// RoundCents rounds a money amount to two decimals.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// Default returns the catalogs compiled into the binary.
func Default() (*Catalogs, error) {
	sub, err := fs.Sub(embedded, "defaults")
	if err != nil {
		return nil, err
	}
	return load(sub)
}

// MustDefault is Default for tests and tools that cannot proceed without catalogs.
func MustDefault() *Catalogs {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads catalogs from configDir. Files missing from the directory fall
// back to the embedded defaults.
func Load(configDir string) (*Catalogs, error) {
	sub, err := fs.Sub(embedded, "defaults")
	if err != nil {
		return nil, err
	}
	return load(overlayFS{dir: configDir, base: sub})
}

type overlayFS struct {
	dir  string
	base fs.FS
}

func (o overlayFS) Open(name string) (fs.File, error) {
	f, err := os.Open(filepath.Join(o.dir, filepath.FromSlash(name)))
	if err == nil {
		return f, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return o.base.Open(name)
	}
	return nil, err
}

func load(fsys fs.FS) (*Catalogs, error) {
	var c Catalogs
	if err := loadResources(fsys, &c.Resources); err != nil {
		return nil, err
	}
	if err := loadSubplots(fsys, &c.Subplots, &c.Resources); err != nil {
		return nil, err
	}
	if err := loadBuildings(fsys, &c.Buildings, &c.Subplots, &c.Resources); err != nil {
		return nil, err
	}
	if err := loadPlots(fsys, &c.Plots); err != nil {
		return nil, err
	}
	if err := loadAchievements(fsys, &c.Achievements); err != nil {
		return nil, err
	}
	if err := loadGovernment(fsys, &c.Government, &c.Resources); err != nil {
		return nil, err
	}
	if err := loadDaily(fsys, &c.Daily); err != nil {
		return nil, err
	}
	return &c, nil
}

// Digests lists every catalog digest keyed by file name.
func (c *Catalogs) Digests() map[string]string {
	return map[string]string{
		"resources":     c.Resources.Digest,
		"subplots":      c.Subplots.Digest,
		"buildings":     c.Buildings.Digest,
		"plots":         c.Plots.Digest,
		"achievements":  c.Achievements.Digest,
		"government":    c.Government.Digest,
		"daily_rewards": c.Daily.Digest,
	}
}

func (c *Catalogs) Resource(id string) (ResourceDef, bool) {
	d, ok := c.Resources.Defs[id]
	return d, ok
}

func (c *Catalogs) Subplot(id string) (SubplotTypeDef, bool) {
	d, ok := c.Subplots.Defs[id]
	return d, ok
}

func (c *Catalogs) Building(typ string) (BuildingDef, bool) {
	d, ok := c.Buildings.Defs[typ]
	return d, ok
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func readJSON(fsys fs.FS, name string, v any) (string, error) {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return sha256Hex(raw), nil
}

func loadResources(fsys fs.FS, out *ResourceCatalog) error {
	var defs []ResourceDef
	digest, err := readJSON(fsys, "resources.json", &defs)
	if err != nil {
		return err
	}
	out.Digest = digest
	out.Defs = make(map[string]ResourceDef, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("resources.json: empty id")
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("resources.json: duplicate id %q", d.ID)
		}
		if d.Price < 0 {
			return fmt.Errorf("resources.json: %s: negative price", d.ID)
		}
		out.Defs[d.ID] = d
		out.Order = append(out.Order, d.ID)
	}
	return nil
}

func loadSubplots(fsys fs.FS, out *SubplotCatalog, res *ResourceCatalog) error {
	var defs []SubplotTypeDef
	digest, err := readJSON(fsys, "subplots.json", &defs)
	if err != nil {
		return err
	}
	out.Digest = digest
	out.Defs = make(map[string]SubplotTypeDef, len(defs))
	known := func(id string) bool { _, ok := res.Defs[id]; return ok }
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("subplots.json: empty id")
		}
		switch d.Kind {
		case KindWild:
			if len(d.Pool) == 0 {
				return fmt.Errorf("subplots.json: %s: wild type needs a pool", d.ID)
			}
			for _, r := range d.Pool {
				if !known(r) {
					return fmt.Errorf("subplots.json: %s: unknown pool resource %q", d.ID, r)
				}
			}
		case KindStandard:
			if !known(d.Output) {
				return fmt.Errorf("subplots.json: %s: unknown output %q", d.ID, d.Output)
			}
			for r, p := range d.Extras {
				if !known(r) {
					return fmt.Errorf("subplots.json: %s: unknown extra %q", d.ID, r)
				}
				if p < 0 || p > 1 {
					return fmt.Errorf("subplots.json: %s: extra %s chance out of range", d.ID, r)
				}
			}
		case KindConversion:
			if !known(d.Output) || !known(d.Input) {
				return fmt.Errorf("subplots.json: %s: unknown input or output", d.ID)
			}
			if d.InputAmount <= 0 {
				return fmt.Errorf("subplots.json: %s: input_amount must be positive", d.ID)
			}
		case KindStorage:
			if d.StorageBonus <= 0 {
				return fmt.Errorf("subplots.json: %s: storage_bonus must be positive", d.ID)
			}
		default:
			return fmt.Errorf("subplots.json: %s: unknown kind %q", d.ID, d.Kind)
		}
		out.Defs[d.ID] = d
	}
	if w, ok := out.Defs[WildType]; !ok || w.Kind != KindWild {
		return fmt.Errorf("subplots.json: missing %s", WildType)
	}
	return nil
}

func loadBuildings(fsys fs.FS, out *BuildingCatalog, subs *SubplotCatalog, res *ResourceCatalog) error {
	var defs []BuildingDef
	digest, err := readJSON(fsys, "buildings.json", &defs)
	if err != nil {
		return err
	}
	out.Digest = digest
	out.Defs = make(map[string]BuildingDef, len(defs))
	for _, d := range defs {
		st, ok := subs.Defs[d.Type]
		if !ok {
			return fmt.Errorf("buildings.json: unknown subplot type %q", d.Type)
		}
		if st.Kind == KindWild {
			return fmt.Errorf("buildings.json: %s: wild is not buildable", d.Type)
		}
		for r, n := range d.Cost.Items {
			if _, ok := res.Defs[r]; !ok || n <= 0 {
				return fmt.Errorf("buildings.json: %s: bad cost item %q", d.Type, r)
			}
		}
		out.Defs[d.Type] = d
		out.Order = append(out.Order, d.Type)
	}
	return nil
}

func loadPlots(fsys fs.FS, out *PlotLadder) error {
	digest, err := readJSON(fsys, "plots.json", out)
	if err != nil {
		return err
	}
	out.Digest = digest
	if len(out.Costs) == 0 || out.StarterSubplots <= 0 || out.PurchasedSubplots <= 0 {
		return fmt.Errorf("plots.json: incomplete ladder")
	}
	return nil
}

func loadAchievements(fsys fs.FS, out *AchievementCatalog) error {
	var defs []AchievementDef
	digest, err := readJSON(fsys, "achievements.json", &defs)
	if err != nil {
		return err
	}
	out.Digest = digest
	out.Defs = make(map[string]AchievementDef, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("achievements.json: empty id")
		}
		out.Defs[d.ID] = d
		out.Order = append(out.Order, d.ID)
	}
	return nil
}

func loadGovernment(fsys fs.FS, out *GovernmentCatalog, res *ResourceCatalog) error {
	digest, err := readJSON(fsys, "government.json", out)
	if err != nil {
		return err
	}
	out.Digest = digest
	out.ByResource = map[string]string{}
	for _, c := range out.Categories {
		for _, r := range c.Resources {
			if _, ok := res.Defs[r]; !ok {
				return fmt.Errorf("government.json: %s: unknown resource %q", c.ID, r)
			}
			out.ByResource[r] = c.ID
		}
	}
	if len(out.Tiers) == 0 || out.Tiers[0].Sold != 0 {
		return fmt.Errorf("government.json: tier 0 must start at 0")
	}
	for i := 1; i < len(out.Tiers); i++ {
		if out.Tiers[i].Sold <= out.Tiers[i-1].Sold {
			return fmt.Errorf("government.json: tier %d threshold not ascending", i)
		}
	}
	return nil
}

func loadDaily(fsys fs.FS, out *DailyCatalog) error {
	digest, err := readJSON(fsys, "daily_rewards.json", &out.Rewards)
	if err != nil {
		return err
	}
	out.Digest = digest
	return nil
}
