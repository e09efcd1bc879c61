package metadata

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gosimple/slug"
)

// AllocationStrategy selects which free region receives a new allocation. The set of
// strategies is closed: CreateAllocationRequest dispatches on exactly these four values.
type AllocationStrategy uint32

const (
	// AllocationStrategyFirstFit selects the lowest-offset free region that is large enough
	AllocationStrategyFirstFit AllocationStrategy = iota
	// AllocationStrategyBestFit selects the smallest free region that is large enough. Ties go
	// to the lowest offset.
	AllocationStrategyBestFit
	// AllocationStrategyWorstFit selects the largest free region that is large enough. Ties go
	// to the lowest offset.
	AllocationStrategyWorstFit
	// AllocationStrategyNextFit resumes scanning from the region of the previous next-fit
	// allocation, wrapping around to the start of the block list.
	AllocationStrategyNextFit
)

// AllStrategies lists every AllocationStrategy in menu order
var AllStrategies = []AllocationStrategy{
	AllocationStrategyFirstFit,
	AllocationStrategyBestFit,
	AllocationStrategyWorstFit,
	AllocationStrategyNextFit,
}

var allocationStrategyMapping = map[AllocationStrategy]string{
	AllocationStrategyFirstFit: "First Fit",
	AllocationStrategyBestFit:  "Best Fit",
	AllocationStrategyWorstFit: "Worst Fit",
	AllocationStrategyNextFit:  "Next Fit",
}

func (s AllocationStrategy) String() string {
	return allocationStrategyMapping[s]
}

// Slug returns the command-line form of the strategy name, e.g. "first-fit"
func (s AllocationStrategy) Slug() string {
	return slug.Make(s.String())
}

// IsValid returns true if s is one of the four known strategies
func (s AllocationStrategy) IsValid() bool {
	_, ok := allocationStrategyMapping[s]
	return ok
}

// ParseAllocationStrategy accepts a strategy label in any of its common spellings
// ("First Fit", "first-fit", "firstfit", "FIRST_FIT") and returns the matching strategy.
func ParseAllocationStrategy(label string) (AllocationStrategy, error) {
	normalized := slug.Make(strings.ReplaceAll(label, "_", " "))
	for _, strategy := range AllStrategies {
		name := strategy.Slug()
		if normalized == name || normalized == strings.ReplaceAll(name, "-", "") {
			return strategy, nil
		}
	}

	return 0, errors.Newf("unknown allocation strategy %q", label)
}
