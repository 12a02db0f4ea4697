package policy

import (
	"errors"
	"strings"
	"testing"

	"github.com/ppiankov/hookwarden/internal/detect"
)

func TestParseLevel(t *testing.T) {
	for _, name := range []string{"off", "WATCH", " guard ", "Shield"} {
		if _, err := ParseLevel(name); err != nil {
			t.Errorf("ParseLevel(%q): %v", name, err)
		}
	}
	_, err := ParseLevel("paranoid")
	if !errors.Is(err, ErrInvalidLevel) {
		t.Errorf("expected ErrInvalidLevel, got %v", err)
	}
}

func TestWatchNeverBlocks(t *testing.T) {
	p := DefaultPolicies().For(LevelWatch)
	issues := []detect.Issue{
		{Type: detect.CategoryDataLeak, Severity: detect.SeverityCritical},
		{Type: detect.CategoryPromptInjection, Severity: detect.SeverityHigh},
	}
	if p.BlocksAny(issues) {
		t.Error("watch must never block")
	}
}

func TestGuardBlocksConfiguredCategories(t *testing.T) {
	p := DefaultPolicies().For(LevelGuard)
	if !p.Blocks(detect.CategoryDestructiveCommand) {
		t.Error("guard should block destructive commands")
	}
	if p.Blocks(detect.CategorySuspiciousURL) {
		t.Error("guard should only log suspicious urls")
	}
	mixed := []detect.Issue{{Type: detect.CategorySuspiciousURL}, {Type: detect.CategoryDataLeak}}
	if got := p.BlockingIssues(mixed); len(got) != 1 || got[0].Type != detect.CategoryDataLeak {
		t.Errorf("unexpected blocking issues %+v", got)
	}
}

func TestShieldBlocksEverything(t *testing.T) {
	p := DefaultPolicies().For(LevelShield)
	if !p.Blocks(detect.Category("made_up")) {
		t.Error("shield should block unknown categories")
	}
}

func TestOffBlocksNothingAndHasNoSeed(t *testing.T) {
	p := DefaultPolicies().For(LevelOff)
	if p.Enabled() || p.Blocks(detect.CategoryDataLeak) {
		t.Error("off must be disabled")
	}
	if p.SeedFor() != "" {
		t.Error("off must not inject a seed")
	}
}

func TestSeedTemplates(t *testing.T) {
	if !strings.Contains(DefaultPolicies().For(LevelShield).SeedFor(), "strict") {
		t.Error("shield should inject the strict seed")
	}
	if DefaultPolicies().For(LevelGuard).SeedFor() == "" {
		t.Error("guard should inject a seed")
	}
	if _, err := ParseSeed("verbose"); !errors.Is(err, ErrInvalidSeed) {
		t.Errorf("expected ErrInvalidSeed, got %v", err)
	}
}

func TestMergeOverridesLevel(t *testing.T) {
	merged, err := DefaultPolicies().Merge(map[string]LevelPolicy{
		"watch": {Block: []detect.Category{detect.CategoryDataLeak}},
	})
	if err != nil {
		t.Fatal(err)
	}
	w := merged.For(LevelWatch)
	if !w.Blocks(detect.CategoryDataLeak) {
		t.Error("override should make watch block data leaks")
	}
	if w.Seed != SeedStandard {
		t.Errorf("empty seed override should keep built-in seed, got %q", w.Seed)
	}
	if DefaultPolicies().For(LevelWatch).Blocks(detect.CategoryDataLeak) {
		t.Error("Merge must not mutate the receiver")
	}
}

func TestMergeRejectsInvalid(t *testing.T) {
	if _, err := DefaultPolicies().Merge(map[string]LevelPolicy{"nope": {}}); err == nil {
		t.Error("expected unknown level to be rejected")
	}
	if _, err := DefaultPolicies().Merge(map[string]LevelPolicy{"off": {Block: []detect.Category{"*"}}}); err == nil {
		t.Error("expected off with blocking to be rejected")
	}
	if _, err := DefaultPolicies().Merge(map[string]LevelPolicy{"guard": {Seed: "loud"}}); err == nil {
		t.Error("expected invalid seed to be rejected")
	}
}
