package simulator

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/fitsim/arena"
	"github.com/vkngwrapper/fitsim/memutils/metadata"
	"github.com/vkngwrapper/fitsim/report"
	"golang.org/x/exp/slog"
)

// CreateOptions contains optional settings when creating a Simulator. It is valid to leave all the
// fields blank.
type CreateOptions struct {
	// Arena is passed to every arena the simulator creates
	Arena arena.CreateOptions
	// Strategies lists the arenas to create, in display order. metadata.AllStrategies is used when empty
	Strategies []metadata.AllocationStrategy
	// Visualizer runs after SaveStatistics writes a report. Nothing runs when nil
	Visualizer Visualizer
}

// Simulator owns one arena per strategy and applies requests to one or all of them
type Simulator struct {
	logger     *slog.Logger
	sessionID  uuid.UUID
	arenas     []*arena.Arena
	byStrategy map[metadata.AllocationStrategy]*arena.Arena
	visualizer Visualizer
}

// AllocateOutcome is the result of one arena's part in AllocateAll
type AllocateOutcome struct {
	Strategy metadata.AllocationStrategy
	Region   metadata.Region
	Err      error
}

// DeallocateOutcome is the result of one arena's part in DeallocateAll
type DeallocateOutcome struct {
	Strategy metadata.AllocationStrategy
	Freed    []metadata.Region
	Err      error
}

// New creates a Simulator with a fresh arena for each requested strategy
func New(logger *slog.Logger, options CreateOptions) (*Simulator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	strategies := options.Strategies
	if len(strategies) == 0 {
		strategies = metadata.AllStrategies
	}

	sessionID := uuid.New()
	s := &Simulator{
		logger:     logger.With(slog.String("Session", sessionID.String())),
		sessionID:  sessionID,
		byStrategy: make(map[metadata.AllocationStrategy]*arena.Arena, len(strategies)),
		visualizer: options.Visualizer,
	}

	for _, strategy := range strategies {
		if _, exists := s.byStrategy[strategy]; exists {
			return nil, errors.Newf("strategy %s was requested more than once", strategy)
		}

		a, err := arena.New(s.logger, strategy, options.Arena)
		if err != nil {
			return nil, err
		}

		s.arenas = append(s.arenas, a)
		s.byStrategy[strategy] = a
	}

	s.logger.Debug("Simulator::New", slog.Int("Arenas", len(s.arenas)))

	return s, nil
}

func (s *Simulator) SessionID() uuid.UUID { return s.sessionID }

// TotalSize is the address space size shared by every arena
func (s *Simulator) TotalSize() int { return s.arenas[0].Size() }

// Addressing is the deallocation addressing mode shared by every arena
func (s *Simulator) Addressing() metadata.AddressingMode { return s.arenas[0].Addressing() }

// Arena returns the arena for strategy
func (s *Simulator) Arena(strategy metadata.AllocationStrategy) (*arena.Arena, error) {
	a, ok := s.byStrategy[strategy]
	if !ok {
		return nil, errors.Newf("no arena for strategy %s", strategy)
	}

	return a, nil
}

// Arenas returns every arena in display order
func (s *Simulator) Arenas() []*arena.Arena {
	out := make([]*arena.Arena, len(s.arenas))
	copy(out, s.arenas)
	return out
}

// Allocate places size bytes in the arena for strategy
func (s *Simulator) Allocate(strategy metadata.AllocationStrategy, size int, owner string) (metadata.Region, error) {
	a, err := s.Arena(strategy)
	if err != nil {
		return metadata.Region{}, err
	}

	return a.Allocate(size, owner)
}

// AllocateAll places size bytes in every arena. Arenas are independent: a failure in one does not
// stop the others.
func (s *Simulator) AllocateAll(size int, owner string) []AllocateOutcome {
	outcomes := make([]AllocateOutcome, 0, len(s.arenas))
	for _, a := range s.arenas {
		region, err := a.Allocate(size, owner)
		outcomes = append(outcomes, AllocateOutcome{
			Strategy: a.Strategy(),
			Region:   region,
			Err:      err,
		})
	}

	return outcomes
}

// Deallocate frees the allocations identified by key in the arena for strategy
func (s *Simulator) Deallocate(strategy metadata.AllocationStrategy, key arena.Key) ([]metadata.Region, error) {
	a, err := s.Arena(strategy)
	if err != nil {
		return nil, err
	}

	return a.Deallocate(key)
}

// DeallocateAll frees the allocations identified by key in every arena
func (s *Simulator) DeallocateAll(key arena.Key) []DeallocateOutcome {
	outcomes := make([]DeallocateOutcome, 0, len(s.arenas))
	for _, a := range s.arenas {
		freed, err := a.Deallocate(key)
		outcomes = append(outcomes, DeallocateOutcome{
			Strategy: a.Strategy(),
			Freed:    freed,
			Err:      err,
		})
	}

	return outcomes
}

// Statistics returns the current statistics of every arena in display order
func (s *Simulator) Statistics() []arena.Statistics {
	stats := make([]arena.Statistics, 0, len(s.arenas))
	for _, a := range s.arenas {
		stats = append(stats, a.Statistics())
	}

	return stats
}

// BestPerformer returns the statistics of the arena with the highest score
func (s *Simulator) BestPerformer() arena.Statistics {
	best, _ := report.BestPerformer(s.Statistics())
	return best
}

// Validate checks every arena
func (s *Simulator) Validate() error {
	for _, a := range s.arenas {
		err := a.Validate()
		if err != nil {
			return err
		}
	}

	return nil
}

// Clear frees every allocation in every arena and resets their counters
func (s *Simulator) Clear() {
	for _, a := range s.arenas {
		a.Clear()
	}
}

// BuildStatsString returns a json document describing every arena. When detailedMap is true, each
// arena includes its full region list.
func (s *Simulator) BuildStatsString(detailedMap bool) string {
	writer := jwriter.NewWriter()
	obj := writer.Object()
	obj.Name("Session").String(s.sessionID.String())

	arr := obj.Name("Arenas").Array()
	for _, a := range s.arenas {
		arenaObj := arr.Object()
		a.WriteJson(&arenaObj, detailedMap)
		arenaObj.End()
	}
	arr.End()

	obj.Name("BestPerformer").String(s.BestPerformer().Label)
	obj.End()

	return string(writer.Bytes())
}

// SaveStatistics writes a report of every arena to path, then runs the visualizer, if any, on it
func (s *Simulator) SaveStatistics(ctx context.Context, path string) error {
	stats := s.Statistics()

	err := report.Save(path, s.sessionID.String(), stats)
	if err != nil {
		return err
	}

	s.logger.Info("Statistics saved", slog.String("Path", path), slog.Int("Arenas", len(stats)))

	if s.visualizer == nil {
		return nil
	}

	err = s.visualizer.Visualize(ctx, path)
	if err != nil {
		return errors.Wrapf(err, "failed to visualize %s", path)
	}

	return nil
}
