package ports

import (
	"io"
	"io/fs"
)

// ArchiveReader abstracts opening zip archives for testability.
// Production code uses the ZipReader adapter; tests use MockArchiveReader.
type ArchiveReader interface {
	// Open opens the archive at path for reading.
	Open(path string) (Archive, error)
}

// Archive is an open archive handle.
type Archive interface {
	// Members returns the archive's members in their declared order.
	Members() []Member

	// OpenMember opens the named member's content for streaming.
	OpenMember(m Member) (io.ReadCloser, error)

	// TestIntegrity reads every member and verifies its checksum without
	// writing any output. It returns the name of the first defective
	// member, or an error for defects not attributable to one member.
	TestIntegrity() (string, error)

	// Close releases the archive handle.
	Close() error
}

// Member describes one entry declared inside an archive.
// The path comes from the archive and is untrusted.
type Member struct {
	// Index is the member's position in the archive's declared order.
	Index int
	// Path is the member's declared relative path.
	Path string
	// IsDir reports whether the member is a directory entry.
	IsDir bool
	// Size is the declared uncompressed size in bytes.
	Size int64
	// Mode holds the member's Unix permission bits when HasMode is true.
	Mode fs.FileMode
	// HasMode reports whether the member carried Unix permission metadata.
	HasMode bool
}
