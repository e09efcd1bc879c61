package arena

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/fitsim/internal/utils"
	"github.com/vkngwrapper/fitsim/memutils"
	"github.com/vkngwrapper/fitsim/memutils/metadata"
	"golang.org/x/exp/slog"
)

// Arena is a block-list allocator over a fixed-size address space that places every allocation with
// a single strategy. Each operation runs to completion under the arena's own lock, and either fully
// succeeds or leaves the arena exactly as it was.
type Arena struct {
	logger   *slog.Logger
	strategy metadata.AllocationStrategy
	metadata metadata.BlockMetadata
	flags    CreateFlags

	mutex    utils.OptionalRWMutex
	counters Counters
}

// Counters are the request totals of an arena over its lifetime.
// TotalRequests is always SuccessfulAllocations + FailedAllocations.
type Counters struct {
	SuccessfulAllocations int
	FailedAllocations     int
	TotalRequests         int
}

// Key identifies the allocations a deallocation applies to. Build one with AddressKey or OwnerKey.
type Key struct {
	addressing metadata.AddressingMode
	address    int
	owner      string
}

// AddressKey addresses the single allocation starting at address
func AddressKey(address int) Key {
	return Key{addressing: metadata.AddressByOffset, address: address}
}

// OwnerKey addresses every allocation tagged with owner
func OwnerKey(owner string) Key {
	return Key{addressing: metadata.AddressByOwner, owner: owner}
}

func (k Key) Addressing() metadata.AddressingMode { return k.addressing }

func (k Key) String() string {
	if k.addressing == metadata.AddressByOwner {
		return fmt.Sprintf("owner %q", k.owner)
	}
	return fmt.Sprintf("address %d", k.address)
}

func (a *Arena) Strategy() metadata.AllocationStrategy { return a.strategy }
func (a *Arena) Label() string                         { return a.strategy.String() }
func (a *Arena) Size() int                             { return a.metadata.Size() }
func (a *Arena) Addressing() metadata.AddressingMode   { return a.metadata.Addressing() }

// Counters returns a copy of the arena's request counters
func (a *Arena) Counters() Counters {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return a.counters
}

// Allocate places size bytes with the arena's strategy and returns the inclusive range it occupies.
// owner tags the allocation and is required when the arena is addressed by owner.
//
// A request that reaches the block list always counts toward TotalRequests. It fails with
// memutils.ErrNoFit when no free region is large enough, or memutils.ErrMaxBlocksReached when
// the chosen region cannot be split; both count as failed allocations. Sizes below 1 and a missing
// owner are rejected before anything is counted.
func (a *Arena) Allocate(size int, owner string) (metadata.Region, error) {
	if size < 1 {
		return metadata.Region{}, errors.Wrapf(memutils.ErrInvalidSize, "%s: size is %d", a.strategy, size)
	}

	if a.metadata.Addressing() == metadata.AddressByOwner && owner == "" {
		return metadata.Region{}, errors.Wrapf(memutils.ErrMissingOwner, "%s: allocation of %d bytes", a.strategy, size)
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	success, request, err := a.metadata.CreateAllocationRequest(size, a.strategy)
	if err != nil {
		return metadata.Region{}, err
	}

	a.counters.TotalRequests++

	if !success {
		a.counters.FailedAllocations++
		a.logger.Debug("Arena::Allocate failed", slog.Int("Size", size), slog.Int("SumFreeSize", a.metadata.SumFreeSize()))
		return metadata.Region{}, errors.Wrapf(memutils.ErrNoFit, "%s: failed to allocate %d bytes", a.strategy, size)
	}

	region, err := a.metadata.Alloc(request, owner)
	if err != nil {
		a.counters.FailedAllocations++
		a.logger.Debug("Arena::Allocate failed",
			slog.Int("Size", size),
			slog.Int("Offset", request.Offset),
			slog.Int("BlockCount", a.metadata.BlockCount()),
			slog.Any("error", err),
		)
		return metadata.Region{}, errors.Wrapf(err, "%s", a.strategy)
	}

	a.counters.SuccessfulAllocations++
	a.logger.Debug("Arena::Allocate",
		slog.Int("Size", size),
		slog.Int("Start", region.Start),
		slog.Int("End", region.End),
		slog.String("Request", request.Type.String()),
		slog.String("Owner", owner),
	)

	memutils.DebugValidate(validatorFunc(a.validate))

	return region, nil
}

// Deallocate frees the allocations identified by key and returns the ranges that were freed, in
// ascending order. An owner key frees every allocation with that owner. The key must match the
// arena's addressing mode, or memutils.ErrAddressingMode is returned. If nothing matches,
// memutils.ErrNotFound is returned and the arena is unchanged. Counters are never affected.
func (a *Arena) Deallocate(key Key) ([]metadata.Region, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	var freed []metadata.Region
	switch key.addressing {
	case metadata.AddressByOffset:
		region, err := a.metadata.FreeOffset(key.address)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", a.strategy)
		}
		freed = append(freed, region)
	case metadata.AddressByOwner:
		regions, err := a.metadata.FreeOwner(key.owner)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", a.strategy)
		}
		freed = regions
	default:
		return nil, errors.Newf("unknown addressing mode: %d", key.addressing)
	}

	for _, region := range freed {
		a.logger.Debug("Arena::Deallocate",
			slog.String("Key", key.String()),
			slog.Int("Start", region.Start),
			slog.Int("End", region.End),
			slog.Int("Size", region.Size()),
		)
	}

	memutils.DebugValidate(validatorFunc(a.validate))

	return freed, nil
}

// DeallocateAddress frees the allocation starting at address
func (a *Arena) DeallocateAddress(address int) ([]metadata.Region, error) {
	return a.Deallocate(AddressKey(address))
}

// DeallocateOwner frees every allocation tagged with owner
func (a *Arena) DeallocateOwner(owner string) ([]metadata.Region, error) {
	return a.Deallocate(OwnerKey(owner))
}

// Snapshot returns a copy of every region in ascending offset order
func (a *Arena) Snapshot() []metadata.Suballocation {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	out := make([]metadata.Suballocation, 0, a.metadata.BlockCount())
	_ = a.metadata.VisitAllRegions(func(index int, region metadata.Suballocation) error {
		out = append(out, region)
		return nil
	})

	return out
}

// Validate checks the block list invariants and that the request counters add up
func (a *Arena) Validate() error {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return a.validate()
}

// validatorFunc runs an unlocked check for memutils.DebugValidate while the caller holds the lock
type validatorFunc func() error

func (f validatorFunc) Validate() error { return f() }

func (a *Arena) validate() error {
	err := a.metadata.Validate()
	if err != nil {
		return errors.Wrapf(err, "%s", a.strategy)
	}

	if a.counters.TotalRequests != a.counters.SuccessfulAllocations+a.counters.FailedAllocations {
		return errors.Newf("%s: %d total requests, but %d succeeded and %d failed",
			a.strategy, a.counters.TotalRequests, a.counters.SuccessfulAllocations, a.counters.FailedAllocations)
	}

	return nil
}

// Clear frees every allocation and resets the counters
func (a *Arena) Clear() {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.metadata.Clear()
	a.counters = Counters{}
	a.logger.Debug("Arena::Clear")
}

// WriteJson populates a json object with the arena's statistics and, if detailedMap is true, every region
func (a *Arena) WriteJson(json *jwriter.ObjectState, detailedMap bool) {
	stats := a.Statistics()

	a.mutex.RLock()
	defer a.mutex.RUnlock()

	json.Name("Strategy").String(a.strategy.String())
	json.Name("Flags").String(a.flags.String())
	stats.writeJson(json)

	if detailedMap {
		mapObj := json.Name("DetailedMap").Object()
		a.metadata.BlockJsonData(&mapObj)
		mapObj.End()
	}
}

// BuildStatsString returns a json document describing the arena
func (a *Arena) BuildStatsString(detailedMap bool) string {
	writer := jwriter.NewWriter()
	obj := writer.Object()
	a.WriteJson(&obj, detailedMap)
	obj.End()

	return string(writer.Bytes())
}
