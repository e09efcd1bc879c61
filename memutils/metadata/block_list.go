package metadata

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/fitsim/memutils"
	"golang.org/x/exp/slices"
)

// BlockListMetadata is a BlockMetadata implementation that keeps every region of the address
// space, free or allocated, in a single slice ordered by offset. Allocation splits a free region
// into an allocated prefix and a free remainder; freeing merges the region with free neighbors
// so that no two adjacent regions are ever both free.
//
// The number of regions is bounded by MaxBlocks. Splitting is the only way the list grows, so an
// allocation that needs a split while the list is full fails with memutils.ErrMaxBlocksReached even
// though a large enough free region exists.
type BlockListMetadata struct {
	BlockMetadataBase

	blocks        []Suballocation
	sumFreeSize   int
	allocCount    int
	nextFitCursor int

	// Live allocations by start offset, value is the allocation size
	offsetKey *swiss.Map[int, int]
	// Live allocation count per owner
	ownerKey *swiss.Map[string, int]
}

var _ BlockMetadata = &BlockListMetadata{}

// NewBlockListMetadata creates a new BlockListMetadata. The parameters are passed to NewBlockMetadata.
// Init must be called before use.
func NewBlockListMetadata(maxBlocks, fragmentThreshold int, addressing AddressingMode) *BlockListMetadata {
	return &BlockListMetadata{
		BlockMetadataBase: NewBlockMetadata(maxBlocks, fragmentThreshold, addressing),
	}
}

// Init prepares this structure for allocations and sizes the block in bytes based on the parameter size.
// The block list starts as a single free region covering the whole block.
func (m *BlockListMetadata) Init(size int) {
	m.BlockMetadataBase.Init(size)

	capacity := m.maxBlocks
	if capacity < 1 {
		capacity = 1
	}

	m.blocks = make([]Suballocation, 1, capacity)
	m.blocks[0] = Suballocation{Offset: 0, Size: size}
	m.sumFreeSize = size
	m.allocCount = 0
	m.nextFitCursor = 0
	m.offsetKey = swiss.NewMap[int, int](uint32(capacity))
	m.ownerKey = swiss.NewMap[string, int](uint32(capacity))
}

func (m *BlockListMetadata) BlockCount() int       { return len(m.blocks) }
func (m *BlockListMetadata) AllocationCount() int  { return m.allocCount }
func (m *BlockListMetadata) SumFreeSize() int      { return m.sumFreeSize }
func (m *BlockListMetadata) IsEmpty() bool         { return m.allocCount == 0 }
func (m *BlockListMetadata) NextFitCursor() int    { return m.nextFitCursor }
func (m *BlockListMetadata) FreeRegionsCount() int { return len(m.blocks) - m.allocCount }

// Validate performs internal consistency checks on the metadata. These checks walk the entire block list.
func (m *BlockListMetadata) Validate() error {
	if len(m.blocks) == 0 {
		return errors.New("the block list is empty")
	}

	if len(m.blocks) > m.maxBlocks {
		return errors.Errorf("the block list holds %d regions, but the maximum is %d", len(m.blocks), m.maxBlocks)
	}

	if m.nextFitCursor < 0 {
		return errors.Errorf("the next-fit cursor is negative: %d", m.nextFitCursor)
	}

	var nextOffset, calculatedFreeSize, allocCount int
	ownerCounts := make(map[string]int)

	for index, block := range m.blocks {
		if block.Size <= 0 {
			return errors.Errorf("region at index %d has non-positive size %d", index, block.Size)
		}

		if block.Offset != nextOffset {
			return errors.Errorf("region at index %d has offset %d, but the previous region ends at %d", index, block.Offset, nextOffset)
		}

		if block.Allocated {
			allocCount++

			size, ok := m.offsetKey.Get(block.Offset)
			if !ok {
				return errors.Errorf("allocated region at offset %d is missing from the offset index", block.Offset)
			}
			if size != block.Size {
				return errors.Errorf("allocated region at offset %d has size %d, but the offset index records %d", block.Offset, block.Size, size)
			}

			if block.Owner != "" {
				ownerCounts[block.Owner]++
			} else if m.addressing == AddressByOwner {
				return errors.Errorf("allocated region at offset %d has no owner in an owner-addressed block", block.Offset)
			}
		} else {
			calculatedFreeSize += block.Size

			if block.Owner != "" {
				return errors.Errorf("free region at offset %d still has owner %q", block.Offset, block.Owner)
			}

			if index > 0 && !m.blocks[index-1].Allocated {
				return errors.Errorf("free regions at offsets %d and %d are adjacent and should have been merged", m.blocks[index-1].Offset, block.Offset)
			}
		}

		nextOffset = block.Offset + block.Size
	}

	if nextOffset != m.size {
		return errors.Errorf("the full size of the metadata is %d, but the regions only added up to %d", m.size, nextOffset)
	}

	if calculatedFreeSize != m.sumFreeSize {
		return errors.Errorf("the free size of the metadata is %d, but the free regions added up to %d", m.sumFreeSize, calculatedFreeSize)
	}

	if allocCount != m.allocCount {
		return errors.Errorf("the allocation count of the metadata is %d, but the allocated regions added up to %d", m.allocCount, allocCount)
	}

	if m.offsetKey.Count() != allocCount {
		return errors.Errorf("the offset index holds %d entries, but there are %d allocated regions", m.offsetKey.Count(), allocCount)
	}

	if m.ownerKey.Count() != len(ownerCounts) {
		return errors.Errorf("the owner index holds %d owners, but the allocated regions have %d", m.ownerKey.Count(), len(ownerCounts))
	}

	for owner, count := range ownerCounts {
		indexed, _ := m.ownerKey.Get(owner)
		if indexed != count {
			return errors.Errorf("owner %q holds %d regions, but the owner index records %d", owner, count, indexed)
		}
	}

	return nil
}

// VisitAllRegions will call the provided callback once for each region in ascending offset order.
// Iteration stops at the first error returned by the callback.
func (m *BlockListMetadata) VisitAllRegions(handleRegion func(index int, region Suballocation) error) error {
	for index, block := range m.blocks {
		err := handleRegion(index, block)
		if err != nil {
			return err
		}
	}

	return nil
}

func (m *BlockListMetadata) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.BlockCount++
	stats.BlockBytes += m.size

	for _, block := range m.blocks {
		if block.Allocated {
			stats.AddAllocation(block.Size)
		} else {
			stats.AddUnusedRange(block.Size, m.isFragment(block.Size))
		}
	}
}

func (m *BlockListMetadata) AddStatistics(stats *memutils.Statistics) {
	stats.BlockCount++
	stats.AllocationCount += m.allocCount
	stats.BlockBytes += m.size
	stats.AllocationBytes += m.size - m.sumFreeSize
}

// Clear instantly frees all allocations and resets the next-fit cursor
func (m *BlockListMetadata) Clear() {
	m.Init(m.size)
}

// BlockJsonData populates a json object with information about this block, including every region
func (m *BlockListMetadata) BlockJsonData(json *jwriter.ObjectState) {
	m.blockJsonData(json, m.sumFreeSize, m.allocCount, m.FreeRegionsCount())
	json.Name("NextFitCursor").Int(m.nextFitCursor)

	arrayState := json.Name("Suballocations").Array()
	defer arrayState.End()

	for _, block := range m.blocks {
		obj := arrayState.Object()
		obj.Name("Offset").Int(block.Offset)
		obj.Name("Size").Int(block.Size)
		if block.Allocated {
			obj.Name("Type").String("Allocated")
			if block.Owner != "" {
				obj.Name("Owner").String(block.Owner)
			}
		} else {
			obj.Name("Type").String("Free")
		}
		obj.End()
	}
}

// CreateAllocationRequest runs the placement strategy over the block list and reports the free region
// it would use for allocSize bytes. The block list is not modified.
func (m *BlockListMetadata) CreateAllocationRequest(allocSize int, strategy AllocationStrategy) (bool, AllocationRequest, error) {
	var allocRequest AllocationRequest

	if allocSize < 1 {
		return false, allocRequest, cerrors.Wrapf(memutils.ErrInvalidSize, "invalid allocSize: %d", allocSize)
	}

	memutils.DebugValidate(m)

	// Is the block big enough?
	if allocSize > m.sumFreeSize {
		return false, allocRequest, nil
	}

	index := -1
	switch strategy {
	case AllocationStrategyFirstFit:
		index = m.firstFit(allocSize)
	case AllocationStrategyBestFit:
		index = m.bestFit(allocSize)
	case AllocationStrategyWorstFit:
		index = m.worstFit(allocSize)
	case AllocationStrategyNextFit:
		index = m.nextFit(allocSize)
	default:
		return false, allocRequest, errors.Errorf("unknown allocation strategy: %d", strategy)
	}

	if index < 0 {
		return false, allocRequest, nil
	}

	block := m.blocks[index]
	allocRequest.Index = index
	allocRequest.Offset = block.Offset
	allocRequest.Size = allocSize
	allocRequest.RegionSize = block.Size
	allocRequest.Strategy = strategy
	allocRequest.Type = AllocationRequestExact
	if block.Size > allocSize {
		allocRequest.Type = AllocationRequestSplit
	}

	return true, allocRequest, nil
}

func (m *BlockListMetadata) fits(index, allocSize int) bool {
	return !m.blocks[index].Allocated && m.blocks[index].Size >= allocSize
}

func (m *BlockListMetadata) firstFit(allocSize int) int {
	for index := range m.blocks {
		if m.fits(index, allocSize) {
			return index
		}
	}

	return -1
}

func (m *BlockListMetadata) bestFit(allocSize int) int {
	bestIndex := -1
	for index, block := range m.blocks {
		// Strict comparison keeps the lowest index on ties
		if m.fits(index, allocSize) && (bestIndex < 0 || block.Size < m.blocks[bestIndex].Size) {
			bestIndex = index
		}
	}

	return bestIndex
}

func (m *BlockListMetadata) worstFit(allocSize int) int {
	worstIndex := -1
	for index, block := range m.blocks {
		if m.fits(index, allocSize) && (worstIndex < 0 || block.Size > m.blocks[worstIndex].Size) {
			worstIndex = index
		}
	}

	return worstIndex
}

func (m *BlockListMetadata) nextFit(allocSize int) int {
	// Coalescing can leave the cursor past the end of the list
	cursor := m.nextFitCursor
	if cursor > len(m.blocks) {
		cursor = len(m.blocks)
	}

	for index := cursor; index < len(m.blocks); index++ {
		if m.fits(index, allocSize) {
			return index
		}
	}

	for index := 0; index < cursor; index++ {
		if m.fits(index, allocSize) {
			return index
		}
	}

	return -1
}

// Alloc commits an AllocationRequest created by CreateAllocationRequest. If the chosen region is larger
// than the request it is split, which fails with memutils.ErrMaxBlocksReached when the block list is full.
// On any error the block list is left exactly as it was.
func (m *BlockListMetadata) Alloc(request AllocationRequest, owner string) (Region, error) {
	if request.Index < 0 || request.Index >= len(m.blocks) {
		return Region{}, errors.Errorf("allocation request index %d is outside the block list of %d regions", request.Index, len(m.blocks))
	}

	block := m.blocks[request.Index]
	if block.Allocated || block.Offset != request.Offset || block.Size < request.Size || request.Size < 1 {
		return Region{}, errors.Errorf("allocation request for %d bytes at offset %d no longer matches a free region", request.Size, request.Offset)
	}

	if m.addressing == AddressByOwner && owner == "" {
		return Region{}, cerrors.Wrapf(memutils.ErrMissingOwner, "allocation of %d bytes", request.Size)
	}

	memutils.DebugCheckSize(request.Size, m.size, "allocation size")

	if block.Size > request.Size {
		if len(m.blocks) >= m.maxBlocks {
			return Region{}, cerrors.Wrapf(memutils.ErrMaxBlocksReached, "splitting the %d-byte region at offset %d would exceed %d regions", block.Size, block.Offset, m.maxBlocks)
		}

		remainder := Suballocation{
			Offset: block.Offset + request.Size,
			Size:   block.Size - request.Size,
		}
		m.blocks = slices.Insert(m.blocks, request.Index+1, remainder)
	}

	taken := &m.blocks[request.Index]
	taken.Size = request.Size
	taken.Allocated = true
	taken.Owner = owner

	m.sumFreeSize -= request.Size
	m.allocCount++
	m.offsetKey.Put(taken.Offset, taken.Size)
	if owner != "" {
		count, _ := m.ownerKey.Get(owner)
		m.ownerKey.Put(owner, count+1)
	}

	if request.Strategy == AllocationStrategyNextFit {
		m.nextFitCursor = request.Index
	}

	memutils.DebugValidate(m)

	return taken.Region(), nil
}

// FreeOffset frees the allocation that starts at offset. It returns the range that was freed, which
// may since have merged into a larger free region.
func (m *BlockListMetadata) FreeOffset(offset int) (Region, error) {
	if m.addressing != AddressByOffset {
		return Region{}, cerrors.Wrapf(memutils.ErrAddressingMode, "block is addressed by %s, not by offset", m.addressing)
	}

	if _, ok := m.offsetKey.Get(offset); !ok {
		return Region{}, cerrors.Wrapf(memutils.ErrNotFound, "no allocated block at address %d", offset)
	}

	index, found := slices.BinarySearchFunc(m.blocks, offset, func(block Suballocation, target int) int {
		return block.Offset - target
	})
	if !found || !m.blocks[index].Allocated {
		return Region{}, errors.Errorf("offset index lists address %d, but no allocated region starts there", offset)
	}

	freed, _ := m.freeAt(index)
	memutils.DebugValidate(m)

	return freed, nil
}

// FreeOwner frees every allocation tagged with owner, in ascending offset order. Each freed region is
// coalesced with its free neighbors independently.
func (m *BlockListMetadata) FreeOwner(owner string) ([]Region, error) {
	if m.addressing != AddressByOwner {
		return nil, cerrors.Wrapf(memutils.ErrAddressingMode, "block is addressed by %s, not by owner", m.addressing)
	}

	if owner == "" || !m.ownerKey.Has(owner) {
		return nil, cerrors.Wrapf(memutils.ErrNotFound, "no allocated block owned by %q", owner)
	}

	var freed []Region
	for index := 0; index < len(m.blocks); index++ {
		block := m.blocks[index]
		if !block.Allocated || block.Owner != owner {
			continue
		}

		var region Region
		region, index = m.freeAt(index)
		freed = append(freed, region)
	}

	memutils.DebugValidate(m)

	return freed, nil
}

// freeAt marks the allocated region at index free and merges it left, then right. It returns the freed
// range and the index of the free region that now contains it.
func (m *BlockListMetadata) freeAt(index int) (Region, int) {
	block := &m.blocks[index]
	freed := block.Region()

	m.offsetKey.Delete(block.Offset)
	if block.Owner != "" {
		count, _ := m.ownerKey.Get(block.Owner)
		if count <= 1 {
			m.ownerKey.Delete(block.Owner)
		} else {
			m.ownerKey.Put(block.Owner, count-1)
		}
	}

	block.Allocated = false
	block.Owner = ""
	m.sumFreeSize += block.Size
	m.allocCount--

	if index > 0 && !m.blocks[index-1].Allocated {
		m.blocks[index-1].Size += m.blocks[index].Size
		m.blocks = slices.Delete(m.blocks, index, index+1)
		index--
	}

	if index+1 < len(m.blocks) && !m.blocks[index+1].Allocated {
		m.blocks[index].Size += m.blocks[index+1].Size
		m.blocks = slices.Delete(m.blocks, index+1, index+2)
	}

	return freed, index
}
