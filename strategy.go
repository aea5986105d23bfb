package raypipe

import (
	"fmt"
	"strings"
)

// Strategy selects how specialized pipelines are built.
type Strategy int

const (
	// StrategyLibraries builds a shared base library and one library per
	// material, then links the libraries each mask needs. Libraries are
	// reused by every mask that includes them.
	StrategyLibraries Strategy = iota

	// StrategyNative builds each mask's pipeline directly from its shader
	// stages. Use it when the backend cannot link libraries or when only a
	// few masks are ever requested.
	StrategyNative
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategyLibraries:
		return "Libraries"
	case StrategyNative:
		return "Native"
	default:
		return "Unknown"
	}
}

// ParseStrategy parses a strategy name case-insensitively.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "libraries", "library", "libs":
		return StrategyLibraries, nil
	case "native", "monolithic":
		return StrategyNative, nil
	default:
		return 0, fmt.Errorf("raypipe: unknown build strategy %q", name)
	}
}
