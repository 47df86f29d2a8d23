// Package catalog discovers and orders the numbered parts of a split zip backup.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/mwhite/zotrestore/internal/ports"
)

// ErrNotFound is returned when the source directory does not exist.
var ErrNotFound = errors.New("source directory not found")

// Validity is the validation state of a part.
type Validity int

const (
	// Unvalidated means no integrity scan has run on the part.
	Unvalidated Validity = iota
	// Valid means the part passed a full integrity scan.
	Valid
	// Invalid means the part failed to open or failed its integrity scan.
	Invalid
)

func (v Validity) String() string {
	switch v {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "unvalidated"
	}
}

// Part is one file in a sequence of split zip archives forming one backup.
// Discovery fills Path, Seq and Size; only validation touches Validity and
// ErrorDetail.
type Part struct {
	Path        string
	Seq         int
	Size        int64
	Validity    Validity
	ErrorDetail string
}

// pattern compiles the matcher for <prefix><digits>.zip. The prefix is a
// literal string, so its regexp metacharacters are escaped, and only the
// extension is matched case-insensitively.
func pattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `(\d+)\.(?i:zip)$`)
}

// Discover returns the parts in dir whose filename matches <prefix><digits>.zip,
// sorted ascending by sequence number. Non-matching files are ignored.
func Discover(fsys ports.FileSystem, dir, prefix string) ([]Part, error) {
	if _, err := fsys.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
		}
		return nil, fmt.Errorf("stat source directory: %w", err)
	}

	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading source directory: %w", err)
	}

	re := pattern(prefix)
	var parts []Part
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := re.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		seq, err := strconv.Atoi(m[1])
		if err != nil {
			// Digit run too long to be a real part number.
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", entry.Name(), err)
		}
		parts = append(parts, Part{
			Path: filepath.Join(dir, entry.Name()),
			Seq:  seq,
			Size: info.Size(),
		})
	}

	// Filenames are unique, so sequence numbers cannot tie.
	sort.Slice(parts, func(i, j int) bool { return parts[i].Seq < parts[j].Seq })

	return parts, nil
}

// Continuity reports whether the parts' sequence numbers run without gaps
// from their minimum to their maximum, and returns the sorted missing
// numbers when they do not. An empty catalog is never continuous.
func Continuity(parts []Part) (bool, []int) {
	if len(parts) == 0 {
		return false, nil
	}

	present := make(map[int]bool, len(parts))
	min, max := parts[0].Seq, parts[0].Seq
	for _, p := range parts {
		present[p.Seq] = true
		if p.Seq < min {
			min = p.Seq
		}
		if p.Seq > max {
			max = p.Seq
		}
	}

	var missing []int
	for seq := min; seq <= max; seq++ {
		if !present[seq] {
			missing = append(missing, seq)
		}
	}

	return len(missing) == 0, missing
}

// TotalSize sums the sizes of all parts.
func TotalSize(parts []Part) int64 {
	var total int64
	for _, p := range parts {
		total += p.Size
	}
	return total
}
