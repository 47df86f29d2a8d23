package restore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/mwhite/zotrestore/internal/ports"
)

// MaxMemberSize is the maximum allowed uncompressed member size (10GB).
// Larger declared sizes are treated as decompression bombs.
const MaxMemberSize = 10 * 1024 * 1024 * 1024

// extractMember resolves one member against the destination root and
// performs at most one filesystem mutation. root must already be a
// canonical absolute path. The first failing check wins.
func (s *Service) extractMember(arc ports.Archive, m ports.Member, root string, overwrite bool) Result {
	res := Result{Member: m.Path}

	if filepath.IsAbs(m.Path) || strings.HasPrefix(m.Path, "/") {
		res.Outcome, res.Reason = SkippedUnsafe, "absolute path"
		return res
	}

	target, ok := s.securePath(root, m.Path)
	if !ok {
		res.Outcome, res.Reason = SkippedUnsafe, "path traversal"
		return res
	}

	info, err := s.fs.Stat(target)
	exists := err == nil

	if m.IsDir {
		if exists {
			if info.IsDir() {
				res.Outcome, res.Reason = SkippedIdentical, "directory already exists"
			} else {
				res.Outcome, res.Reason = Failed, "exists and is not a directory"
			}
			return res
		}
		if err := s.fs.MkdirAll(target, 0o755); err != nil {
			res.Outcome, res.Reason = Failed, err.Error()
			return res
		}
		res.Outcome = Extracted
		return res
	}

	if exists && !overwrite {
		// Size-match skip is what makes re-running after a partial
		// failure cheap and safe.
		if info.Mode().IsRegular() && info.Size() == m.Size {
			res.Outcome, res.Reason = SkippedIdentical, "already exists with same size"
		} else {
			res.Outcome, res.Reason = Failed, "exists with different size"
		}
		return res
	}

	if m.Size > MaxMemberSize {
		res.Outcome = Failed
		res.Reason = fmt.Sprintf("declared size %d exceeds limit of %d bytes", m.Size, int64(MaxMemberSize))
		return res
	}

	if err := s.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		res.Outcome, res.Reason = Failed, err.Error()
		return res
	}

	if err := s.writeAtomic(arc, m, target); err != nil {
		res.Outcome, res.Reason = Failed, err.Error()
		return res
	}

	res.Outcome = Extracted
	return res
}

// writeAtomic streams the member into a temp file in the target's own
// directory, then renames it into place. The same-directory temp file
// keeps the rename on one filesystem, so the destination never observes
// a partially written file. The temp file is removed on any failure.
func (s *Service) writeAtomic(arc ports.Archive, m ports.Member, target string) (err error) {
	tmp, err := s.fs.CreateTemp(filepath.Dir(target), filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = s.fs.Remove(tmpPath)
		}
	}()

	rc, err := arc.OpenMember(m)
	if err != nil {
		return fmt.Errorf("opening member: %w", err)
	}
	// Copy at most one byte past the declared size so an overlong stream
	// is caught without decompressing it in full.
	written, copyErr := io.Copy(tmp, io.LimitReader(rc, m.Size+1))
	_ = rc.Close()
	if copyErr != nil {
		err = fmt.Errorf("writing member: %w", copyErr)
		return err
	}
	if written > m.Size {
		err = errors.New("decompressed size exceeds declared size")
		return err
	}

	if cerr := tmp.Close(); cerr != nil {
		err = fmt.Errorf("closing temp file: %w", cerr)
		return err
	}
	if rerr := s.fs.Rename(tmpPath, target); rerr != nil {
		err = fmt.Errorf("renaming into place: %w", rerr)
		return err
	}

	if m.HasMode {
		if mode := m.Mode.Perm(); mode != 0 {
			if cerr := s.fs.Chmod(target, mode); cerr != nil {
				return fmt.Errorf("applying permissions: %w", cerr)
			}
		}
	}

	return nil
}

// securePath joins the declared member path under root and confirms the
// result stays inside root, both lexically and after resolving symlinks
// on any existing ancestors. Any resolution error is treated as unsafe.
func (s *Service) securePath(root, declared string) (string, bool) {
	target := filepath.Join(root, filepath.FromSlash(declared))
	if !isWithinDir(root, target) {
		return "", false
	}

	resolved, err := s.resolveExisting(target)
	if err != nil {
		return "", false
	}
	if !isWithinDir(root, resolved) {
		return "", false
	}

	return resolved, true
}

// resolveExisting canonicalizes the longest existing ancestor of path and
// rejoins the not-yet-created remainder, so a symlink planted by an
// earlier member cannot redirect a later one outside the root.
func (s *Service) resolveExisting(path string) (string, error) {
	p := path
	var suffix []string
	for {
		resolved, err := s.fs.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(append([]string{resolved}, suffix...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", err
		}
		suffix = append([]string{filepath.Base(p)}, suffix...)
		p = parent
	}
}

// isWithinDir checks if the cleaned target path is within the base directory.
func isWithinDir(absBaseDir, targetPath string) bool {
	return strings.HasPrefix(targetPath, absBaseDir+string(filepath.Separator)) ||
		targetPath == absBaseDir
}
