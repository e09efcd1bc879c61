package arena

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/fitsim/internal/utils"
	"github.com/vkngwrapper/fitsim/memutils/metadata"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific arena behaviors to activate or deactivate
type CreateFlags int32

const (
	// ArenaCreateExternallySynchronized ensures that the arena will not be synchronized internally.
	// The consumer must guarantee it is used from only one goroutine at a time or is synchronized
	// by some other mechanism.
	ArenaCreateExternallySynchronized CreateFlags = 1 << iota
)

var createFlagsMapping = map[CreateFlags]string{
	ArenaCreateExternallySynchronized: "ArenaCreateExternallySynchronized",
}

func (f CreateFlags) String() string {
	var names []string
	for flag, name := range createFlagsMapping {
		if f&flag != 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "None"
	}
	return strings.Join(names, "|")
}

const (
	// DefaultTotalSize is the size of the address space when CreateOptions.TotalSize is 0
	DefaultTotalSize int = 1000
	// DefaultMaxBlocks is the block count bound when CreateOptions.MaxBlocks is 0
	DefaultMaxBlocks int = 20
	// DefaultFragmentThreshold is the fragment threshold when CreateOptions.FragmentThreshold is 0
	DefaultFragmentThreshold int = 5
	// NoFragmentThreshold sets a fragment threshold of 0 bytes, so no free region counts as a fragment
	NoFragmentThreshold int = -1
)

// CreateOptions contains optional settings when creating an arena. It is valid to leave all the
// fields blank.
type CreateOptions struct {
	// Flags indicates specific arena behaviors to activate or deactivate
	Flags CreateFlags
	// TotalSize is the size in bytes of the simulated address space
	TotalSize int
	// MaxBlocks is the maximum number of regions, free and allocated, the arena may track
	MaxBlocks int
	// FragmentThreshold is the size in bytes at or below which a free region counts as a fragment.
	// Use NoFragmentThreshold for a threshold of 0.
	FragmentThreshold int
	// Addressing selects whether allocations are freed by start address or by owner
	Addressing metadata.AddressingMode
}

func (o CreateOptions) withDefaults() CreateOptions {
	if o.TotalSize == 0 {
		o.TotalSize = DefaultTotalSize
	}
	if o.MaxBlocks == 0 {
		o.MaxBlocks = DefaultMaxBlocks
	}
	switch o.FragmentThreshold {
	case 0:
		o.FragmentThreshold = DefaultFragmentThreshold
	case NoFragmentThreshold:
		o.FragmentThreshold = 0
	}
	return o
}

// New creates a new Arena that places every allocation with the provided strategy
//
// logger - Receives debug records for every operation. slog.Default() is used when nil
//
// strategy - The placement strategy for all allocations in this arena
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, strategy metadata.AllocationStrategy, options CreateOptions) (*Arena, error) {
	if !strategy.IsValid() {
		return nil, errors.Newf("unknown allocation strategy: %d", strategy)
	}

	options = options.withDefaults()
	if options.TotalSize < 1 {
		return nil, errors.Newf("arena.CreateOptions.TotalSize must be positive, but was %d", options.TotalSize)
	}
	if options.MaxBlocks < 1 {
		return nil, errors.Newf("arena.CreateOptions.MaxBlocks must be positive, but was %d", options.MaxBlocks)
	}
	if options.FragmentThreshold < 0 {
		return nil, errors.Newf("arena.CreateOptions.FragmentThreshold cannot be negative, but was %d", options.FragmentThreshold)
	}
	if options.Addressing != metadata.AddressByOffset && options.Addressing != metadata.AddressByOwner {
		return nil, errors.Newf("unknown addressing mode: %d", options.Addressing)
	}

	if logger == nil {
		logger = slog.Default()
	}

	md := metadata.NewBlockListMetadata(options.MaxBlocks, options.FragmentThreshold, options.Addressing)
	md.Init(options.TotalSize)

	a := &Arena{
		logger:   logger.With(slog.String("Strategy", strategy.String())),
		strategy: strategy,
		metadata: md,
		flags:    options.Flags,
		mutex: utils.OptionalRWMutex{
			UseMutex: options.Flags&ArenaCreateExternallySynchronized == 0,
		},
	}

	a.logger.Debug("Arena::New",
		slog.Int("TotalSize", options.TotalSize),
		slog.Int("MaxBlocks", options.MaxBlocks),
		slog.Int("FragmentThreshold", options.FragmentThreshold),
		slog.String("Addressing", options.Addressing.String()),
		slog.String("Flags", options.Flags.String()),
	)

	return a, nil
}
