//go:build !unix

package cli

// diskFree is unavailable here; callers treat unknown as not-blocking.
func diskFree(path string) (uint64, bool) {
	return 0, false
}
