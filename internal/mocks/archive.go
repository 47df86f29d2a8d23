// Package mocks provides hand-rolled test doubles for the ports interfaces.
package mocks

import (
	"bytes"
	"fmt"
	"io"

	"github.com/mwhite/zotrestore/internal/ports"
)

// MockArchiveReader implements ports.ArchiveReader for testing.
type MockArchiveReader struct {
	// Archives maps archive paths to their mock handles.
	Archives map[string]*MockArchive
	// OpenErrors maps archive paths to errors returned by Open.
	OpenErrors map[string]error
	// OpenCalls records the paths passed to Open, in order.
	OpenCalls []string
}

// NewMockArchiveReader creates a new mock archive reader.
func NewMockArchiveReader() *MockArchiveReader {
	return &MockArchiveReader{
		Archives:   make(map[string]*MockArchive),
		OpenErrors: make(map[string]error),
	}
}

// Open returns the configured mock archive or error for path.
func (m *MockArchiveReader) Open(path string) (ports.Archive, error) {
	m.OpenCalls = append(m.OpenCalls, path)
	if err, ok := m.OpenErrors[path]; ok {
		return nil, err
	}
	if arc, ok := m.Archives[path]; ok {
		return arc, nil
	}
	return nil, fmt.Errorf("no mock archive for %s", path)
}

// MockArchive implements ports.Archive for testing.
type MockArchive struct {
	// MemberList is returned by Members in order.
	MemberList []ports.Member
	// Data maps member paths to their content.
	Data map[string][]byte
	// OpenErrors maps member paths to errors returned by OpenMember.
	OpenErrors map[string]error
	// StreamErrors maps member paths to an error surfaced mid-stream,
	// after half of the member's data has been read.
	StreamErrors map[string]error
	// BadMember and IntegrityErr are returned by TestIntegrity.
	BadMember    string
	IntegrityErr error
	// Closed records whether Close was called.
	Closed bool
}

// NewMockArchive creates a new mock archive.
func NewMockArchive() *MockArchive {
	return &MockArchive{
		Data:         make(map[string][]byte),
		OpenErrors:   make(map[string]error),
		StreamErrors: make(map[string]error),
	}
}

// AddFile appends a file member with the given content.
func (m *MockArchive) AddFile(path string, data []byte) {
	m.MemberList = append(m.MemberList, ports.Member{
		Index: len(m.MemberList),
		Path:  path,
		Size:  int64(len(data)),
	})
	m.Data[path] = data
}

// AddDir appends a directory member.
func (m *MockArchive) AddDir(path string) {
	m.MemberList = append(m.MemberList, ports.Member{
		Index: len(m.MemberList),
		Path:  path,
		IsDir: true,
	})
}

// Members returns the configured members in order.
func (m *MockArchive) Members() []ports.Member {
	return m.MemberList
}

// OpenMember streams the configured content, optionally failing mid-read.
func (m *MockArchive) OpenMember(mem ports.Member) (io.ReadCloser, error) {
	if err, ok := m.OpenErrors[mem.Path]; ok {
		return nil, err
	}
	data := m.Data[mem.Path]
	if err, ok := m.StreamErrors[mem.Path]; ok {
		return &failingReader{data: data[:len(data)/2], err: err}, nil
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// TestIntegrity returns the configured scan result.
func (m *MockArchive) TestIntegrity() (string, error) {
	return m.BadMember, m.IntegrityErr
}

// Close records the call.
func (m *MockArchive) Close() error {
	m.Closed = true
	return nil
}

// failingReader yields its data and then the configured error instead of EOF.
type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func (r *failingReader) Close() error { return nil }

// Compile-time checks that the mocks implement the ports.
var (
	_ ports.ArchiveReader = (*MockArchiveReader)(nil)
	_ ports.Archive       = (*MockArchive)(nil)
)
