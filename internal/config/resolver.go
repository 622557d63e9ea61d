package config

import (
	"cmp"
	"slices"
	"strings"
)

// Resolve returns the configured module IDs in load order: sorted, so
// loading is deterministic, with gateway modules last so they start after
// the modules they serve.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		ga, gb := strings.HasPrefix(a, "gateway."), strings.HasPrefix(b, "gateway.")
		if ga != gb {
			if ga {
				return 1
			}
			return -1
		}
		return cmp.Compare(a, b)
	})
	return ids
}
