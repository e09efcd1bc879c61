package metadata

// Suballocation is one contiguous region of the arena, either free or allocated.
// Owner is empty unless the allocation was tagged by its requester.
type Suballocation struct {
	Offset    int
	Size      int
	Allocated bool
	Owner     string
}

// End returns the offset of the last byte in the region
func (s Suballocation) End() int {
	return s.Offset + s.Size - 1
}

// Region is an inclusive [Start, End] byte range reported back to callers
type Region struct {
	Start int
	End   int
}

// Size returns the number of bytes in the region
func (r Region) Size() int {
	return r.End - r.Start + 1
}

func (s Suballocation) Region() Region {
	return Region{Start: s.Offset, End: s.End()}
}
