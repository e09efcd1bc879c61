package arena

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/fitsim/memutils"
	"github.com/vkngwrapper/fitsim/memutils/metadata"
)

// Statistics is a point-in-time view of an arena, computed from the block list on every call
type Statistics struct {
	Label    string
	Strategy metadata.AllocationStrategy

	TotalBytes           int
	AllocatedBytes       int
	FreeBytes            int
	FragmentedBytes      int
	FragmentationPercent float64
	SuccessRate          float64

	BlockCount      int
	FreeRegions     int
	AllocationCount int

	Counters Counters
	Detailed memutils.DetailedStatistics
}

// Score rates the arena by weighing unfragmented free memory against request success
func (s Statistics) Score() float64 {
	return (100-s.FragmentationPercent)*0.4 + s.SuccessRate*0.6
}

func (s Statistics) writeJson(json *jwriter.ObjectState) {
	json.Name("TotalBytes").Int(s.TotalBytes)
	json.Name("AllocatedBytes").Int(s.AllocatedBytes)
	json.Name("FreeBytes").Int(s.FreeBytes)
	json.Name("FragmentedBytes").Int(s.FragmentedBytes)
	json.Name("FragmentationPercent").Float64(s.FragmentationPercent)
	json.Name("SuccessRate").Float64(s.SuccessRate)
	json.Name("Score").Float64(s.Score())
	json.Name("BlockCount").Int(s.BlockCount)
	json.Name("FreeRegions").Int(s.FreeRegions)
	json.Name("AllocationCount").Int(s.AllocationCount)

	countersObj := json.Name("Counters").Object()
	countersObj.Name("Successful").Int(s.Counters.SuccessfulAllocations)
	countersObj.Name("Failed").Int(s.Counters.FailedAllocations)
	countersObj.Name("Total").Int(s.Counters.TotalRequests)
	countersObj.End()

	if s.Detailed.AllocationCount > 0 {
		json.Name("AllocationSizeMin").Int(s.Detailed.AllocationSizeMin)
		json.Name("AllocationSizeMax").Int(s.Detailed.AllocationSizeMax)
	}
	if s.Detailed.UnusedRangeCount > 0 {
		json.Name("UnusedRangeSizeMin").Int(s.Detailed.UnusedRangeSizeMin)
		json.Name("UnusedRangeSizeMax").Int(s.Detailed.UnusedRangeSizeMax)
	}
}

// Statistics computes the arena's current statistics
func (a *Arena) Statistics() Statistics {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	var detailed memutils.DetailedStatistics
	detailed.Clear()
	a.metadata.AddDetailedStatistics(&detailed)

	return Statistics{
		Label:    a.strategy.String(),
		Strategy: a.strategy,

		TotalBytes:           detailed.BlockBytes,
		AllocatedBytes:       detailed.AllocationBytes,
		FreeBytes:            detailed.UnusedBytes,
		FragmentedBytes:      detailed.FragmentedBytes,
		FragmentationPercent: detailed.FragmentationPercent(),
		SuccessRate:          memutils.Percent(a.counters.SuccessfulAllocations, a.counters.TotalRequests),

		BlockCount:      a.metadata.BlockCount(),
		FreeRegions:     a.metadata.FreeRegionsCount(),
		AllocationCount: a.metadata.AllocationCount(),

		Counters: a.counters,
		Detailed: detailed,
	}
}
