package arena_test

import (
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/fitsim/arena"
	"github.com/vkngwrapper/fitsim/memutils"
	"github.com/vkngwrapper/fitsim/memutils/metadata"
)

func newArena(t *testing.T, strategy metadata.AllocationStrategy, options arena.CreateOptions) *arena.Arena {
	t.Helper()

	a, err := arena.New(nil, strategy, options)
	require.NoError(t, err)
	require.NoError(t, a.Validate())

	return a
}

func TestNew_Defaults(t *testing.T) {
	a := newArena(t, metadata.AllocationStrategyBestFit, arena.CreateOptions{})

	require.Equal(t, arena.DefaultTotalSize, a.Size())
	require.Equal(t, "Best Fit", a.Label())
	require.Equal(t, metadata.AddressByOffset, a.Addressing())
	require.Equal(t, []metadata.Suballocation{
		{Offset: 0, Size: arena.DefaultTotalSize},
	}, a.Snapshot())

	stats := a.Statistics()
	require.Equal(t, 0, stats.AllocatedBytes)
	require.Equal(t, arena.DefaultTotalSize, stats.FreeBytes)
	require.Equal(t, 0.0, stats.FragmentationPercent)
	require.Equal(t, 0.0, stats.SuccessRate)
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := arena.New(nil, metadata.AllocationStrategy(17), arena.CreateOptions{})
	require.Error(t, err)

	_, err = arena.New(nil, metadata.AllocationStrategyFirstFit, arena.CreateOptions{TotalSize: -5})
	require.Error(t, err)

	_, err = arena.New(nil, metadata.AllocationStrategyFirstFit, arena.CreateOptions{MaxBlocks: -1})
	require.Error(t, err)

	_, err = arena.New(nil, metadata.AllocationStrategyFirstFit, arena.CreateOptions{FragmentThreshold: -2})
	require.Error(t, err)

	_, err = arena.New(nil, metadata.AllocationStrategyFirstFit, arena.CreateOptions{Addressing: metadata.AddressingMode(9)})
	require.Error(t, err)
}

func TestArena_EndToEnd(t *testing.T) {
	a := newArena(t, metadata.AllocationStrategyFirstFit, arena.CreateOptions{
		TotalSize:         100,
		FragmentThreshold: 5,
	})

	region, err := a.Allocate(60, "")
	require.NoError(t, err)
	require.Equal(t, metadata.Region{Start: 0, End: 59}, region)
	require.Equal(t, []metadata.Suballocation{
		{Offset: 0, Size: 60, Allocated: true},
		{Offset: 60, Size: 40},
	}, a.Snapshot())

	_, err = a.Allocate(50, "")
	require.True(t, errors.Is(err, memutils.ErrNoFit))

	freed, err := a.DeallocateAddress(0)
	require.NoError(t, err)
	require.Equal(t, []metadata.Region{{Start: 0, End: 59}}, freed)
	require.Equal(t, []metadata.Suballocation{
		{Offset: 0, Size: 100},
	}, a.Snapshot())

	stats := a.Statistics()
	require.Equal(t, 0, stats.AllocatedBytes)
	require.Equal(t, 100, stats.FreeBytes)
	require.Equal(t, 50.0, stats.SuccessRate)
	require.Equal(t, arena.Counters{
		SuccessfulAllocations: 1,
		FailedAllocations:     1,
		TotalRequests:         2,
	}, stats.Counters)
	require.InDelta(t, 100*0.4+50*0.6, stats.Score(), 0.0001)
	require.NoError(t, a.Validate())
}

func TestArena_ArgumentErrorsAreNotCounted(t *testing.T) {
	a := newArena(t, metadata.AllocationStrategyWorstFit, arena.CreateOptions{TotalSize: 100})

	_, err := a.Allocate(0, "")
	require.True(t, errors.Is(err, memutils.ErrInvalidSize))

	_, err = a.Allocate(-3, "")
	require.True(t, errors.Is(err, memutils.ErrInvalidSize))

	_, err = a.DeallocateAddress(40)
	require.True(t, errors.Is(err, memutils.ErrNotFound))

	_, err = a.DeallocateOwner("nobody")
	require.True(t, errors.Is(err, memutils.ErrAddressingMode))

	require.Equal(t, arena.Counters{}, a.Counters())
	require.NoError(t, a.Validate())
}

func TestArena_OwnerMultiFree(t *testing.T) {
	a := newArena(t, metadata.AllocationStrategyFirstFit, arena.CreateOptions{
		TotalSize:  100,
		Addressing: metadata.AddressByOwner,
	})

	_, err := a.Allocate(10, "")
	require.True(t, errors.Is(err, memutils.ErrMissingOwner))
	require.Equal(t, arena.Counters{}, a.Counters())

	_, err = a.Allocate(10, "P1")
	require.NoError(t, err)
	_, err = a.Allocate(20, "P2")
	require.NoError(t, err)
	_, err = a.Allocate(30, "P1")
	require.NoError(t, err)

	_, err = a.DeallocateAddress(0)
	require.True(t, errors.Is(err, memutils.ErrAddressingMode))

	freed, err := a.DeallocateOwner("P1")
	require.NoError(t, err)
	require.Equal(t, []metadata.Region{
		{Start: 0, End: 9},
		{Start: 30, End: 59},
	}, freed)

	require.Equal(t, []metadata.Suballocation{
		{Offset: 0, Size: 10},
		{Offset: 10, Size: 20, Allocated: true, Owner: "P2"},
		{Offset: 30, Size: 70},
	}, a.Snapshot())

	_, err = a.DeallocateOwner("P1")
	require.True(t, errors.Is(err, memutils.ErrNotFound))

	_, err = a.Deallocate(arena.OwnerKey("P2"))
	require.NoError(t, err)
	require.Equal(t, []metadata.Suballocation{
		{Offset: 0, Size: 100},
	}, a.Snapshot())
	require.NoError(t, a.Validate())
}

func TestArena_MaxBlocksReached(t *testing.T) {
	a := newArena(t, metadata.AllocationStrategyFirstFit, arena.CreateOptions{
		TotalSize: 100,
		MaxBlocks: 3,
	})

	_, err := a.Allocate(10, "")
	require.NoError(t, err)
	_, err = a.Allocate(10, "")
	require.NoError(t, err)

	before := a.Snapshot()
	_, err = a.Allocate(10, "")
	require.True(t, errors.Is(err, memutils.ErrMaxBlocksReached))
	require.Equal(t, before, a.Snapshot())

	// The last free region can still be taken whole
	region, err := a.Allocate(80, "")
	require.NoError(t, err)
	require.Equal(t, metadata.Region{Start: 20, End: 99}, region)

	require.Equal(t, arena.Counters{
		SuccessfulAllocations: 3,
		FailedAllocations:     1,
		TotalRequests:         4,
	}, a.Counters())
	require.NoError(t, a.Validate())
}

func TestArena_Fragmentation(t *testing.T) {
	a := newArena(t, metadata.AllocationStrategyFirstFit, arena.CreateOptions{
		TotalSize:         100,
		FragmentThreshold: 5,
	})

	_, err := a.Allocate(4, "")
	require.NoError(t, err)
	_, err = a.Allocate(56, "")
	require.NoError(t, err)
	_, err = a.Allocate(20, "")
	require.NoError(t, err)

	_, err = a.DeallocateAddress(0)
	require.NoError(t, err)

	// Free regions: [0,3] size 4 (fragment) and [80,99] size 20
	stats := a.Statistics()
	require.Equal(t, 24, stats.FreeBytes)
	require.Equal(t, 4, stats.FragmentedBytes)
	require.InDelta(t, 100*4.0/24.0, stats.FragmentationPercent, 0.0001)
	require.Equal(t, 2, stats.FreeRegions)
	require.Equal(t, 4, stats.BlockCount)
	require.Equal(t, 2, stats.AllocationCount)
}

func TestArena_ZeroFragmentThreshold(t *testing.T) {
	a := newArena(t, metadata.AllocationStrategyFirstFit, arena.CreateOptions{
		TotalSize:         100,
		FragmentThreshold: arena.NoFragmentThreshold,
	})

	_, err := a.Allocate(1, "")
	require.NoError(t, err)
	_, err = a.Allocate(98, "")
	require.NoError(t, err)
	_, err = a.DeallocateAddress(0)
	require.NoError(t, err)

	// Free regions of 1 byte each, which the default threshold would count
	stats := a.Statistics()
	require.Equal(t, 2, stats.FreeBytes)
	require.Equal(t, 0, stats.FragmentedBytes)
	require.Equal(t, 0.0, stats.FragmentationPercent)

	defaulted := newArena(t, metadata.AllocationStrategyFirstFit, arena.CreateOptions{TotalSize: 100})
	_, err = defaulted.Allocate(1, "")
	require.NoError(t, err)
	_, err = defaulted.Allocate(98, "")
	require.NoError(t, err)
	_, err = defaulted.DeallocateAddress(0)
	require.NoError(t, err)
	require.Equal(t, 2, defaulted.Statistics().FragmentedBytes)
}

func TestArena_Clear(t *testing.T) {
	a := newArena(t, metadata.AllocationStrategyNextFit, arena.CreateOptions{TotalSize: 50})

	_, err := a.Allocate(20, "")
	require.NoError(t, err)
	_, err = a.Allocate(40, "")
	require.Error(t, err)

	a.Clear()
	require.Equal(t, arena.Counters{}, a.Counters())
	require.Equal(t, []metadata.Suballocation{{Offset: 0, Size: 50}}, a.Snapshot())
	require.NoError(t, a.Validate())
}

func TestArena_BuildStatsString(t *testing.T) {
	a := newArena(t, metadata.AllocationStrategyFirstFit, arena.CreateOptions{TotalSize: 100})

	_, err := a.Allocate(60, "")
	require.NoError(t, err)

	require.JSONEq(t, `{
		"Strategy": "First Fit",
		"Flags": "None",
		"TotalBytes": 100,
		"AllocatedBytes": 60,
		"FreeBytes": 40,
		"FragmentedBytes": 0,
		"FragmentationPercent": 0,
		"SuccessRate": 100,
		"Score": 100,
		"BlockCount": 2,
		"FreeRegions": 1,
		"AllocationCount": 1,
		"Counters": {"Successful": 1, "Failed": 0, "Total": 1},
		"AllocationSizeMin": 60,
		"AllocationSizeMax": 60,
		"UnusedRangeSizeMin": 40,
		"UnusedRangeSizeMax": 40
	}`, a.BuildStatsString(false))

	detailed := a.BuildStatsString(true)
	require.Contains(t, detailed, `"DetailedMap"`)
	require.Contains(t, detailed, `"Suballocations"`)
}

func TestArena_ConcurrentAllocate(t *testing.T) {
	a := newArena(t, metadata.AllocationStrategyBestFit, arena.CreateOptions{
		TotalSize: 1000,
		MaxBlocks: 200,
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, _ = a.Allocate(10, "")
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				assert.NoError(t, a.Validate())
			}
		}()
	}
	wg.Wait()

	require.NoError(t, a.Validate())
	stats := a.Statistics()
	require.Equal(t, 80, stats.Counters.TotalRequests)
	require.Equal(t, 80, stats.Counters.SuccessfulAllocations)
	require.Equal(t, 800, stats.AllocatedBytes)
}
