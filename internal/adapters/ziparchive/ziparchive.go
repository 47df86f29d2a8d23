// Package ziparchive provides a read-only archive adapter using archive/zip.
package ziparchive

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"math"

	"github.com/mwhite/zotrestore/internal/ports"
)

// ZipReader implements ports.ArchiveReader using archive/zip.
type ZipReader struct{}

// New creates a new ZipReader adapter.
func New() *ZipReader {
	return &ZipReader{}
}

// Open opens the zip archive at path for reading.
func (r *ZipReader) Open(path string) (ports.Archive, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}

	members := make([]ports.Member, 0, len(rc.File))
	for i, f := range rc.File {
		members = append(members, toMember(i, f))
	}

	return &zipArchive{rc: rc, members: members}, nil
}

// zipArchive wraps an open zip.ReadCloser behind ports.Archive.
type zipArchive struct {
	rc      *zip.ReadCloser
	members []ports.Member
}

// Members returns the archive's members in central-directory order.
func (a *zipArchive) Members() []ports.Member {
	return a.members
}

// OpenMember opens the member's content for streaming.
func (a *zipArchive) OpenMember(m ports.Member) (io.ReadCloser, error) {
	if m.Index < 0 || m.Index >= len(a.rc.File) {
		return nil, fmt.Errorf("no such member: %s", m.Path)
	}
	return a.rc.File[m.Index].Open()
}

// TestIntegrity reads every member in full, letting the zip reader verify
// each CRC32 at EOF. It returns the name of the first defective member.
func (a *zipArchive) TestIntegrity() (string, error) {
	for _, f := range a.rc.File {
		rc, err := f.Open()
		if err != nil {
			return f.Name, nil
		}
		_, err = io.Copy(io.Discard, rc)
		_ = rc.Close()
		if err != nil {
			return f.Name, nil
		}
	}
	return "", nil
}

// Close releases the archive handle.
func (a *zipArchive) Close() error {
	return a.rc.Close()
}

// toMember converts a zip file header into the port's member descriptor.
// Unix permission bits live in the high 16 bits of the external attributes;
// archives written on non-Unix systems leave them zero.
func toMember(index int, f *zip.File) ports.Member {
	// Guard the uint64 -> int64 conversion against hostile headers.
	size := int64(0)
	if f.UncompressedSize64 <= math.MaxInt64 {
		size = int64(f.UncompressedSize64)
	}

	mode := fs.FileMode(f.ExternalAttrs >> 16 & 0o777)

	return ports.Member{
		Index:   index,
		Path:    f.Name,
		IsDir:   f.FileInfo().IsDir(),
		Size:    size,
		Mode:    mode,
		HasMode: mode != 0,
	}
}

// Compile-time checks that the adapter satisfies the ports.
var (
	_ ports.ArchiveReader = (*ZipReader)(nil)
	_ ports.Archive       = (*zipArchive)(nil)
)
