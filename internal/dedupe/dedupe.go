// Package dedupe flattens a nested attachment tree into one directory,
// keeping only the newest of each " 2"/" 3"-suffixed duplicate that cloud
// sync tools leave behind.
package dedupe

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mwhite/zotrestore/internal/adapters/osfs"
	"github.com/mwhite/zotrestore/internal/ports"
)

// Options configures a dedupe copy.
type Options struct {
	// Extension filters source files, e.g. ".pdf". ".*" copies everything.
	Extension string
	// Workers bounds the number of concurrent copies.
	Workers int
}

// SkippedFile records a source file that failed to copy.
type SkippedFile struct {
	Path   string
	Reason string
}

// Result summarizes a dedupe copy.
type Result struct {
	Copied     int
	Duplicates int
	Errors     int
	// Skipped lists the files that failed to copy, with reasons.
	Skipped []SkippedFile
	// DuplicateGroups maps each kept filename to the older variants it
	// shadowed, newest first.
	DuplicateGroups map[string][]string
}

// Service copies deduplicated files with injected dependencies.
type Service struct {
	fs  ports.FileSystem
	log *zap.Logger
}

// NewService creates a dedupe service with the given dependencies.
// A nil logger disables logging.
func NewService(fs ports.FileSystem, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{fs: fs, log: log}
}

// NewDefaultService creates a dedupe service with real production dependencies.
func NewDefaultService(log *zap.Logger) *Service {
	return NewService(osfs.New(), log)
}

// trailingCopyNumber matches the " 1", " 2", ... suffix that sync clients
// append to colliding filenames.
var trailingCopyNumber = regexp.MustCompile(`\s+\d+$`)

// baseName reduces a filename to its duplicate-group key: extension
// stripped, trailing copy number stripped, lowercased.
func baseName(filename string) string {
	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	name = trailingCopyNumber.ReplaceAllString(name, "")
	return strings.ToLower(name)
}

type candidate struct {
	name  string
	path  string
	mtime time.Time
}

// Run copies the newest variant of every matching file under srcDir into a
// flat destDir. An existing destination tree is removed first: the
// destination is a generated view, not user state. Per-file copy failures
// are isolated and tallied; only scan errors and cancellation abort.
func (s *Service) Run(ctx context.Context, srcDir, destDir string, opts Options) (*Result, error) {
	if opts.Workers <= 0 {
		opts.Workers = 3
	}

	candidates, err := s.scan(srcDir, opts.Extension)
	if err != nil {
		return nil, err
	}

	// Newest first, so the first occurrence of each base name wins.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].mtime.After(candidates[j].mtime)
	})

	result := &Result{DuplicateGroups: make(map[string][]string)}
	kept := make(map[string]candidate)
	var toCopy []candidate
	for _, c := range candidates {
		key := baseName(c.name)
		if winner, ok := kept[key]; ok {
			result.DuplicateGroups[winner.name] = append(result.DuplicateGroups[winner.name], c.path)
			result.Duplicates++
			continue
		}
		kept[key] = c
		toCopy = append(toCopy, c)
	}

	if _, err := s.fs.Stat(destDir); err == nil {
		s.log.Warn("destination exists, removing", zap.String("dest", destDir))
		if err := s.fs.RemoveAll(destDir); err != nil {
			return nil, fmt.Errorf("removing destination: %w", err)
		}
	}
	if err := s.fs.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating destination: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	var mu sync.Mutex

	for _, c := range toCopy {
		c := c
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			dest := filepath.Join(destDir, c.name)
			err := s.copyFile(c, dest)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors++
				result.Skipped = append(result.Skipped, SkippedFile{Path: c.path, Reason: err.Error()})
				s.log.Warn("copy failed", zap.String("src", c.path), zap.Error(err))
				return nil
			}
			result.Copied++
			s.log.Debug("copied", zap.String("src", c.path), zap.String("dest", dest))
			return nil
		})
	}

	// Workers never return errors, so Wait only gates completion.
	_ = g.Wait()

	s.log.Info("dedupe copy complete",
		zap.Int("copied", result.Copied),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("errors", result.Errors))

	return result, ctx.Err()
}

// scan walks srcDir collecting files that match the extension filter.
func (s *Service) scan(srcDir, ext string) ([]candidate, error) {
	if _, err := s.fs.Stat(srcDir); err != nil {
		return nil, fmt.Errorf("source directory: %w", err)
	}

	var candidates []candidate
	walkErr := s.fs.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}
		if ext != ".*" && !strings.EqualFold(filepath.Ext(path), ext) {
			return nil
		}
		candidates = append(candidates, candidate{
			name:  filepath.Base(path),
			path:  path,
			mtime: info.ModTime(),
		})
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("scanning source: %w", walkErr)
	}

	return candidates, nil
}

// copyFile copies one file and carries the source's mtime over, so later
// newest-wins comparisons against the copy stay meaningful.
func (s *Service) copyFile(c candidate, dest string) error {
	src, err := s.fs.Open(c.path)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	out, err := s.fs.Create(dest)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		_ = s.fs.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		_ = s.fs.Remove(dest)
		return err
	}

	return s.fs.Chtimes(dest, c.mtime, c.mtime)
}
