package achievement

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// DefaultCatalog returns the catalog bundled with the binary, ordered by XP reward.
func DefaultCatalog() ([]Definition, error) {
	return ParseCatalog(defaultCatalog)
}

// ParseCatalog decodes a YAML list of definitions.
func ParseCatalog(raw []byte) ([]Definition, error) {
	var defs []Definition
	if err := yaml.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse achievement catalog: %w", err)
	}

	seen := make(map[string]bool, len(defs))
	for i, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("achievement catalog entry %d has no id", i)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("duplicate achievement id %q", d.ID)
		}
		if d.XPReward < 0 {
			return nil, fmt.Errorf("achievement %q has negative xp_reward", d.ID)
		}
		seen[d.ID] = true
	}

	sort.SliceStable(defs, func(i, j int) bool { return defs[i].XPReward < defs[j].XPReward })
	return defs, nil
}
