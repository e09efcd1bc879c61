package metadata

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/fitsim/memutils"
)

// AddressingMode determines which key deallocation uses to find its targets. It is fixed for
// the lifetime of a BlockMetadata.
type AddressingMode uint32

const (
	// AddressByOffset frees a single allocation identified by its start offset
	AddressByOffset AddressingMode = iota
	// AddressByOwner frees every allocation tagged with an owner identifier
	AddressByOwner
)

var addressingModeMapping = map[AddressingMode]string{
	AddressByOffset: "Offset",
	AddressByOwner:  "Owner",
}

func (m AddressingMode) String() string {
	return addressingModeMapping[m]
}

// BlockMetadata represents a fixed-size address space divided into an ordered list of free and
// allocated regions. Regions always cover [0, Size()) with no gaps or overlaps, and no two
// adjacent regions are both free.
type BlockMetadata interface {
	// Init must be called before the BlockMetadata is used. It resets the block list to a single
	// free region spanning size bytes.
	Init(size int)
	// Size retrieves the size in bytes that the block was initialized with
	Size() int
	// MaxBlocks retrieves the maximum number of regions the block list may hold
	MaxBlocks() int
	// Addressing retrieves the deallocation addressing mode
	Addressing() AddressingMode

	// Validate performs internal consistency checks on the metadata. When the implementation is
	// functioning correctly, it should not be possible for this method to return an error.
	Validate() error
	// BlockCount returns the number of regions, free and allocated, in the block list
	BlockCount() int
	// AllocationCount returns the number of live allocations
	AllocationCount() int
	// FreeRegionsCount returns the number of free regions
	FreeRegionsCount() int
	// SumFreeSize returns the number of free bytes of memory in the block.
	SumFreeSize() int
	// IsEmpty will return true if this block has no live allocations
	IsEmpty() bool
	// NextFitCursor returns the index next-fit scanning starts from
	NextFitCursor() int

	// VisitAllRegions will call the provided callback once for each region in ascending offset order
	VisitAllRegions(handleRegion func(index int, region Suballocation) error) error

	// AddDetailedStatistics sums this block's allocation statistics into the provided object
	AddDetailedStatistics(stats *memutils.DetailedStatistics)
	// AddStatistics sums this block's allocation statistics into the provided object
	AddStatistics(stats *memutils.Statistics)

	// Clear instantly frees all allocations and resets the next-fit cursor
	Clear()
	// BlockJsonData populates a json object with information about this block
	BlockJsonData(json *jwriter.ObjectState)

	// CreateAllocationRequest runs a placement strategy over the block list without mutating it.
	// It returns false if no free region can hold allocSize bytes.
	CreateAllocationRequest(allocSize int, strategy AllocationStrategy) (bool, AllocationRequest, error)
	// Alloc commits an AllocationRequest. The implementation must return an error and leave the block
	// list untouched if the request no longer describes a free region of the block list, or if
	// committing it would exceed MaxBlocks.
	Alloc(request AllocationRequest, owner string) (Region, error)

	// FreeOffset frees the allocation that starts at offset and coalesces it with free neighbors
	FreeOffset(offset int) (Region, error)
	// FreeOwner frees every allocation tagged with owner, coalescing each with its free neighbors
	FreeOwner(owner string) ([]Region, error)
}

// BlockMetadataBase is a simple struct that provides a few shared utilities for BlockMetadata
// implementations.
type BlockMetadataBase struct {
	size              int
	maxBlocks         int
	fragmentThreshold int
	addressing        AddressingMode
}

// NewBlockMetadata creates a new BlockMetadataBase. maxBlocks bounds the number of regions the block
// list may hold, and free regions of fragmentThreshold bytes or fewer count as fragments in statistics.
func NewBlockMetadata(maxBlocks, fragmentThreshold int, addressing AddressingMode) BlockMetadataBase {
	return BlockMetadataBase{
		size:              0,
		maxBlocks:         maxBlocks,
		fragmentThreshold: fragmentThreshold,
		addressing:        addressing,
	}
}

// Init prepares this structure for allocations and sizes the block in bytes based on the parameter size.
func (m *BlockMetadataBase) Init(size int) {
	m.size = size
}

// Size returns the size of the block in bytes
func (m *BlockMetadataBase) Size() int { return m.size }

func (m *BlockMetadataBase) MaxBlocks() int                 { return m.maxBlocks }
func (m *BlockMetadataBase) FragmentThreshold() int         { return m.fragmentThreshold }
func (m *BlockMetadataBase) Addressing() AddressingMode     { return m.addressing }
func (m *BlockMetadataBase) isFragment(regionSize int) bool { return regionSize <= m.fragmentThreshold }

// blockJsonData populates a json object with information about this block
func (m *BlockMetadataBase) blockJsonData(json *jwriter.ObjectState, unusedBytes, allocationCount, unusedRangeCount int) {
	json.Name("TotalBytes").Int(m.Size())
	json.Name("UnusedBytes").Int(unusedBytes)
	json.Name("Allocations").Int(allocationCount)
	json.Name("UnusedRanges").Int(unusedRangeCount)
	json.Name("MaxBlocks").Int(m.maxBlocks)
	json.Name("Addressing").String(m.addressing.String())
}
