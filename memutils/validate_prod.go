//go:build !debug_mem_utils

package memutils

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_mem_utils build tag is present
func DebugValidate(validatable Validatable) {
}

// DebugCheckSize will verify that size is within [1, limit], and panics if it is not.
// This method no-ops unless the debug_mem_utils build tag is present.
func DebugCheckSize[T Number](size T, limit T, name string) {

}
