package memutils

import (
	cerrors "github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~int32 | ~int64 | ~uint | ~uint32 | ~uint64
}

// CheckSize verifies that size falls within [1, limit]. The returned error wraps ErrInvalidSize.
func CheckSize[T Number](size T, limit T, name string) error {
	if size < 1 || size > limit {
		return cerrors.Wrapf(ErrInvalidSize, "%s is %d, must be 1-%d", name, size, limit)
	}
	return nil
}

// Percent returns 100*part/whole, or 0 when whole is 0
func Percent[T Number](part, whole T) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
