// Package restore drives the restoration of a split zip backup: catalog
// the numbered parts, check sequence continuity, validate each part, then
// extract every member into the destination tree with zip-slip and
// partial-write defenses.
package restore

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/mwhite/zotrestore/internal/adapters/osfs"
	"github.com/mwhite/zotrestore/internal/adapters/ziparchive"
	"github.com/mwhite/zotrestore/internal/catalog"
	"github.com/mwhite/zotrestore/internal/ports"
)

// Options configures a restore run.
type Options struct {
	// DryRun stops after continuity and validation and reports the plan.
	DryRun bool
	// Validate runs a full integrity scan of every part before any
	// member is extracted.
	Validate bool
	// Overwrite replaces existing files instead of skipping or failing.
	Overwrite bool
	// ConfirmGap decides whether to continue when sequence numbers are
	// missing. A nil callback means no.
	ConfirmGap func(missing []int) bool
}

// Report is what a run hands back to its caller, whichever way it ended.
type Report struct {
	Parts       []catalog.Part
	Missing     []int
	TotalSize   int64
	Destination string
	// PlanOnly marks a dry run that stopped before touching the filesystem.
	PlanOnly bool
	Tally    Tally
	// Problems holds every non-extracted, non-identical outcome with its reason.
	Problems []Result
}

// Success reports whether the run completed without member errors.
func (r *Report) Success() bool {
	return r.Tally.Errors == 0
}

// Service restores split zip backups with injected dependencies.
type Service struct {
	fs     ports.FileSystem
	reader ports.ArchiveReader
	log    *zap.Logger
}

// NewService creates a restore service with the given dependencies.
// A nil logger disables logging.
func NewService(fs ports.FileSystem, reader ports.ArchiveReader, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		fs:     fs,
		reader: reader,
		log:    log,
	}
}

// NewDefaultService creates a restore service with real production dependencies.
func NewDefaultService(log *zap.Logger) *Service {
	return NewService(osfs.New(), ziparchive.New(), log)
}

// Run restores every part matching <prefix><digits>.zip in sourceDir into
// destDir. Structural failures before any write abort with an error;
// per-member failures are isolated, tallied in the report and never abort
// the run. The report is returned for every outcome except a failed scan.
func (s *Service) Run(ctx context.Context, sourceDir, prefix, destDir string, opts Options) (*Report, error) {
	parts, err := catalog.Discover(s.fs, sourceDir, prefix)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: %s*.zip in %s", ErrNoPartsFound, prefix, sourceDir)
	}

	report := &Report{
		Parts:       parts,
		TotalSize:   catalog.TotalSize(parts),
		Destination: destDir,
	}

	for _, p := range parts {
		s.log.Debug("found part",
			zap.Int("seq", p.Seq),
			zap.String("file", filepath.Base(p.Path)),
			zap.Int64("size", p.Size))
	}
	s.log.Info("scan complete",
		zap.Int("parts", len(parts)),
		zap.Int64("total_size", report.TotalSize))

	continuous, missing := catalog.Continuity(parts)
	if !continuous {
		report.Missing = missing
		s.log.Warn("part sequence has gaps", zap.Ints("missing", missing))
		if opts.ConfirmGap == nil || !opts.ConfirmGap(missing) {
			return report, ErrAbortedByUser
		}
	}

	if opts.Validate {
		var invalid []string
		for i := range parts {
			s.validatePart(&parts[i])
			if parts[i].Validity == catalog.Invalid {
				invalid = append(invalid, fmt.Sprintf("%s: %s",
					filepath.Base(parts[i].Path), parts[i].ErrorDetail))
			}
		}
		if len(invalid) > 0 {
			return report, fmt.Errorf("%w: %s", ErrValidationFailed, strings.Join(invalid, "; "))
		}
	}

	if opts.DryRun {
		report.PlanOnly = true
		s.log.Info("dry run, nothing extracted",
			zap.Int("parts", len(parts)),
			zap.String("destination", destDir))
		return report, nil
	}

	if err := s.fs.MkdirAll(destDir, 0o755); err != nil {
		return report, fmt.Errorf("creating destination: %w", err)
	}
	absDest, err := filepath.Abs(destDir)
	if err != nil {
		return report, fmt.Errorf("resolving destination: %w", err)
	}
	// Canonicalize once; every containment check compares against this.
	root, err := s.fs.EvalSymlinks(absDest)
	if err != nil {
		return report, fmt.Errorf("resolving destination: %w", err)
	}

	for i := range parts {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := s.extractPart(ctx, &parts[i], root, opts.Overwrite, report); err != nil {
			return report, err
		}
	}

	s.log.Info("extraction complete",
		zap.Int("extracted", report.Tally.Extracted),
		zap.Int("skipped", report.Tally.Skipped),
		zap.Int("errors", report.Tally.Errors))

	return report, nil
}

// extractPart processes one part's members in their declared order.
// A part that cannot be opened counts one error and the run continues;
// only cancellation propagates out.
func (s *Service) extractPart(ctx context.Context, p *catalog.Part, root string, overwrite bool, report *Report) error {
	s.log.Info("extracting part",
		zap.String("part", filepath.Base(p.Path)),
		zap.Int64("size", p.Size))

	arc, err := s.reader.Open(p.Path)
	if err != nil {
		report.Tally.Errors++
		report.Problems = append(report.Problems, Result{
			Member:  filepath.Base(p.Path),
			Outcome: Failed,
			Reason:  err.Error(),
		})
		s.log.Error("failed to open part", zap.String("part", p.Path), zap.Error(err))
		return nil
	}
	defer func() { _ = arc.Close() }()

	members := arc.Members()
	for i, m := range members {
		if err := ctx.Err(); err != nil {
			return err
		}

		res := s.extractMember(arc, m, root, overwrite)
		report.Tally.add(res.Outcome)

		switch res.Outcome {
		case Extracted:
			s.log.Debug("extracted", zap.String("member", m.Path))
		case SkippedIdentical:
			s.log.Debug("skipped", zap.String("member", m.Path), zap.String("reason", res.Reason))
		default:
			report.Problems = append(report.Problems, res)
			s.log.Warn("member not extracted",
				zap.String("member", m.Path),
				zap.String("outcome", res.Outcome.String()),
				zap.String("reason", res.Reason))
		}

		if (i+1)%1000 == 0 || i+1 == len(members) {
			s.log.Info("progress",
				zap.String("part", filepath.Base(p.Path)),
				zap.Int("processed", i+1),
				zap.Int("total", len(members)))
		}
	}

	return nil
}
