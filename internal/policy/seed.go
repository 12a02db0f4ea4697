package policy

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
)

// SeedTemplate names the context text injected before an agent starts.
type SeedTemplate string

const (
	SeedNone     SeedTemplate = "none"
	SeedStandard SeedTemplate = "standard"
	SeedStrict   SeedTemplate = "strict"
)

//go:embed seeds/standard.txt
var standardSeed string

//go:embed seeds/strict.txt
var strictSeed string

// ErrInvalidSeed is returned for unknown template names.
var ErrInvalidSeed = errors.New("invalid_seed")

// ParseSeed maps a name to a SeedTemplate.
func ParseSeed(s string) (SeedTemplate, error) {
	switch t := SeedTemplate(strings.ToLower(strings.TrimSpace(s))); t {
	case SeedNone, SeedStandard, SeedStrict:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSeed, s)
	}
}

// Text returns the seed body. none yields an empty string.
func (t SeedTemplate) Text() string {
	switch t {
	case SeedStandard:
		return standardSeed
	case SeedStrict:
		return strictSeed
	default:
		return ""
	}
}

// SeedFor returns the seed text the policy injects, empty when the level is
// off or uses no seed.
func (p LevelPolicy) SeedFor() string {
	if !p.Enabled() {
		return ""
	}
	return p.Seed.Text()
}
