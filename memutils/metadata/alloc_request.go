package metadata

// AllocationRequestType is an enum that indicates how an allocation will be committed.
// It is returned in AllocationRequest from CreateAllocationRequest
type AllocationRequestType uint32

const (
	// AllocationRequestExact indicates that the chosen free region is exactly the requested size
	// and will be marked allocated in place
	AllocationRequestExact AllocationRequestType = iota
	// AllocationRequestSplit indicates that the chosen free region is larger than the requested
	// size and will be split into an allocated prefix and a free remainder
	AllocationRequestSplit
)

var allocationRequestMapping = map[AllocationRequestType]string{
	AllocationRequestExact: "Exact",
	AllocationRequestSplit: "Split",
}

func (t AllocationRequestType) String() string {
	return allocationRequestMapping[t]
}

// AllocationRequest is a type returned from BlockMetadata.CreateAllocationRequest which indicates where and how
// the metadata intends to place a new allocation. It can be committed with BlockMetadata.Alloc as long as the
// block list has not been mutated in between.
type AllocationRequest struct {
	// Index is the position of the chosen free region in the ordered block list
	Index int
	// Offset is the start of the chosen free region, and of the allocation
	Offset int
	// Size is the requested allocation size in bytes
	Size int
	// RegionSize is the size of the chosen free region at the time the request was created
	RegionSize int
	// Strategy is the placement strategy that chose the region
	Strategy AllocationStrategy
	// Type identifies whether committing the request splits the region
	Type AllocationRequestType
}
