package catalogs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if got := len(c.Resources.Order); got != 21 {
		t.Fatalf("resources: got %d want 21", got)
	}
	if w, ok := c.Resource("wood"); !ok || w.Price != 5 {
		t.Fatalf("wood: %+v ok=%v", w, ok)
	}
	wild, ok := c.Subplot(WildType)
	if !ok || wild.Kind != KindWild || len(wild.Pool) != 4 || wild.BaseCapacity != 10 {
		t.Fatalf("wild: %+v", wild)
	}
	saw, _ := c.Subplot("sawmill")
	if saw.Kind != KindConversion || saw.Input != "wood" || saw.InputAmount != 2 || saw.Output != "planks" {
		t.Fatalf("sawmill: %+v", saw)
	}
	if st, _ := c.Subplot("storage"); st.StorageBonus != 250 {
		t.Fatalf("storage bonus: %d", st.StorageBonus)
	}
	if got := len(c.Buildings.Order); got != 17 {
		t.Fatalf("buildings: got %d want 17", got)
	}
	cow, _ := c.Building("cowPasture")
	if cow.Cost.Money != 2500 || cow.Cost.Items["wood"] != 60 || cow.Cost.Items["wheat"] != 50 {
		t.Fatalf("cowPasture cost: %+v", cow.Cost)
	}
	if got := len(c.Achievements.Order); got != 16 {
		t.Fatalf("achievements: %d", got)
	}
	if got := len(c.Government.Tiers); got != 20 {
		t.Fatalf("tiers: %d", got)
	}
	for name, d := range c.Digests() {
		if len(d) != 64 {
			t.Fatalf("%s digest %q", name, d)
		}
	}
}

func TestPlotLadder(t *testing.T) {
	c := MustDefault()
	if cost, ok := c.Plots.NextCost(1); !ok || cost != 5000 {
		t.Fatalf("second plot: %v %v", cost, ok)
	}
	if _, ok := c.Plots.NextCost(5); ok {
		t.Fatalf("ladder should be exhausted at 5 plots")
	}
}

func TestGovernmentTiers(t *testing.T) {
	g := MustDefault().Government
	cases := []struct {
		sold int
		tier int
	}{
		{0, 0}, {99, 0}, {100, 1}, {1499, 2}, {1500, 3}, {10000000, 19}, {99999999, 19},
	}
	for _, tc := range cases {
		if got := g.TierFor(tc.sold); got != tc.tier {
			t.Fatalf("TierFor(%d)=%d want %d", tc.sold, got, tc.tier)
		}
	}
	if cat, ok := g.CategoryOf("milk"); !ok || cat != "livestock" {
		t.Fatalf("milk category: %q", cat)
	}
	if _, ok := g.CategoryOf("fertilizer"); ok {
		t.Fatalf("fertilizer has no government category")
	}
	if g.Bonus(19) != 2.0 || g.Bonus(42) != 0 {
		t.Fatalf("bonus lookup")
	}
}

func TestDailyForStreak(t *testing.T) {
	d := MustDefault().Daily
	cases := map[int]float64{1: 100, 2: 100, 3: 150, 8: 200, 18: 1000, 500: 1000}
	for streak, want := range cases {
		if got := d.ForStreak(streak).Money; got != want {
			t.Fatalf("streak %d: got %v want %v", streak, got, want)
		}
	}
}

func TestRoundCents(t *testing.T) {
	if got := RoundCents(5 * 1.02); got != 5.1 {
		t.Fatalf("got %v", got)
	}
	if got := RoundCents(7 * 1.15); got != 8.05 {
		t.Fatalf("got %v", got)
	}
}

func TestLoadOverridesFromDir(t *testing.T) {
	dir := t.TempDir()
	plots := `{"costs":[0,10],"starter_subplots":2,"purchased_subplots":3}`
	if err := os.WriteFile(filepath.Join(dir, "plots.json"), []byte(plots), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Plots.StarterSubplots != 2 || c.Plots.MaxPlots() != 2 {
		t.Fatalf("override not applied: %+v", c.Plots)
	}
	if len(c.Resources.Order) != 21 {
		t.Fatalf("embedded fallback missing")
	}
	def := MustDefault()
	if c.Plots.Digest == def.Plots.Digest || c.Resources.Digest != def.Resources.Digest {
		t.Fatalf("digests should track the file that was read")
	}
}

func TestLoadRejectsBadSubplot(t *testing.T) {
	dir := t.TempDir()
	bad := `[{"id":"wild","kind":"wild","pool":["wood"]},{"id":"x","kind":"conversion","output":"planks","input":"wood"}]`
	if err := os.WriteFile(filepath.Join(dir, "subplots.json"), []byte(bad), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected error for conversion without input_amount")
	}
}
