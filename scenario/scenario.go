package scenario

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/fitsim/arena"
	"github.com/vkngwrapper/fitsim/memutils"
	"github.com/vkngwrapper/fitsim/memutils/metadata"
	"github.com/vkngwrapper/fitsim/simulator"
	"gopkg.in/yaml.v2"
)

// Op is a scenario step operation
type Op string

const (
	OpAllocate   Op = "allocate"
	OpDeallocate Op = "deallocate"
	OpClear      Op = "clear"
)

// AllStrategies is the Step.Strategy value that applies a step to every arena
const AllStrategies = "all"

// Step is one scripted request. Strategy is a strategy label, or "all" (the default) for every arena.
// Deallocation uses Owner when set and Address otherwise.
type Step struct {
	Op       Op     `yaml:"op"`
	Strategy string `yaml:"strategy,omitempty"`
	Size     int    `yaml:"size,omitempty"`
	Address  int    `yaml:"address,omitempty"`
	Owner    string `yaml:"owner,omitempty"`
}

// Scenario is a named list of steps replayed against a simulator in order
type Scenario struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Outcome is the result of applying one step to one arena. Engine failures such as a request that
// does not fit are recorded in Err rather than stopping the replay.
type Outcome struct {
	Step     int
	Op       Op
	Strategy metadata.AllocationStrategy
	Regions  []metadata.Region
	Err      error
}

// Parse decodes a scenario document. Unknown fields are rejected.
func Parse(r io.Reader) (*Scenario, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading scenario")
	}

	var s Scenario
	if err := yaml.UnmarshalStrict(data, &s); err != nil {
		return nil, errors.Wrap(err, "unmarshaling scenario")
	}

	for i := range s.Steps {
		if err := s.Steps[i].validate(); err != nil {
			return nil, errors.Wrapf(err, "step %d", i+1)
		}
	}

	return &s, nil
}

// Load reads and parses the scenario file at path
func Load(path string) (*Scenario, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening scenario")
	}
	defer file.Close()

	s, err := Parse(file)
	if err != nil {
		return nil, errors.Wrapf(err, "scenario %s", path)
	}

	return s, nil
}

func (s Step) validate() error {
	switch s.Op {
	case OpAllocate, OpDeallocate, OpClear:
	default:
		return errors.Newf("unknown op %q", s.Op)
	}

	_, _, err := s.strategy()
	return err
}

func (s Step) strategy() (metadata.AllocationStrategy, bool, error) {
	label := strings.TrimSpace(s.Strategy)
	if label == "" || strings.EqualFold(label, AllStrategies) {
		return 0, true, nil
	}

	strategy, err := metadata.ParseAllocationStrategy(label)
	return strategy, false, err
}

func (s Step) key() arena.Key {
	if s.Owner != "" {
		return arena.OwnerKey(s.Owner)
	}
	return arena.AddressKey(s.Address)
}

// Run applies every step of scenario to sim in order and returns one Outcome per arena touched by
// each step. Allocation sizes outside [1, total size] are recorded as memutils.ErrInvalidSize and
// never reach the arena. It stops early only when ctx is done or a step names a strategy sim has
// no arena for.
func Run(ctx context.Context, sim *simulator.Simulator, scenario *Scenario) ([]Outcome, error) {
	var outcomes []Outcome

	for i, step := range scenario.Steps {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		strategy, all, err := step.strategy()
		if err != nil {
			return outcomes, errors.Wrapf(err, "step %d", i+1)
		}

		targets := sim.Arenas()
		if !all {
			a, err := sim.Arena(strategy)
			if err != nil {
				return outcomes, errors.Wrapf(err, "step %d", i+1)
			}
			targets = []*arena.Arena{a}
		}

		for _, a := range targets {
			outcome := Outcome{Step: i + 1, Op: step.Op, Strategy: a.Strategy()}

			switch step.Op {
			case OpAllocate:
				outcome.Err = memutils.CheckSize(step.Size, a.Size(), "size")
				if outcome.Err != nil {
					break
				}

				var region metadata.Region
				region, outcome.Err = a.Allocate(step.Size, step.Owner)
				if outcome.Err == nil {
					outcome.Regions = []metadata.Region{region}
				}
			case OpDeallocate:
				outcome.Regions, outcome.Err = a.Deallocate(step.key())
			case OpClear:
				a.Clear()
			default:
				return outcomes, errors.Newf("step %d: unknown op %q", i+1, step.Op)
			}

			outcomes = append(outcomes, outcome)
		}
	}

	return outcomes, nil
}
