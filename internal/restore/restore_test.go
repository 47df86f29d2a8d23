package restore

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/mwhite/zotrestore/internal/adapters/osfs"
	"github.com/mwhite/zotrestore/internal/adapters/ziparchive"
	"github.com/mwhite/zotrestore/internal/catalog"
	"github.com/mwhite/zotrestore/internal/mocks"
)

func newZipService() *Service {
	return NewService(osfs.New(), ziparchive.New(), nil)
}

// createPartZip writes a zip archive with the given files at path.
func createPartZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	w := zip.NewWriter(f)
	for name, content := range files {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("adding %s: %v", name, err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("closing file: %v", err)
	}
}

func TestRunFullRestore(t *testing.T) {
	src := t.TempDir()
	dest := filepath.Join(t.TempDir(), "restored")
	createPartZip(t, filepath.Join(src, "A-001.zip"), map[string]string{"one.txt": "first"})
	createPartZip(t, filepath.Join(src, "A-002.zip"), map[string]string{"two.txt": "second"})
	createPartZip(t, filepath.Join(src, "A-003.zip"), map[string]string{"three.txt": "third"})

	report, err := newZipService().Run(context.Background(), src, "A-", dest, Options{Validate: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !report.Success() {
		t.Errorf("Success = false, problems: %+v", report.Problems)
	}
	want := Tally{Extracted: 3, Skipped: 0, Errors: 0}
	if report.Tally != want {
		t.Errorf("tally = %+v, expected %+v", report.Tally, want)
	}
	for _, p := range report.Parts {
		if p.Validity != catalog.Valid {
			t.Errorf("part %s validity = %v, expected valid", p.Path, p.Validity)
		}
	}

	for name, content := range map[string]string{"one.txt": "first", "two.txt": "second", "three.txt": "third"} {
		data, err := os.ReadFile(filepath.Join(dest, name))
		if err != nil {
			t.Errorf("missing %s: %v", name, err)
			continue
		}
		if string(data) != content {
			t.Errorf("%s content = %q, expected %q", name, data, content)
		}
	}
}

func TestRunIsIdempotent(t *testing.T) {
	src := t.TempDir()
	dest := filepath.Join(t.TempDir(), "restored")
	createPartZip(t, filepath.Join(src, "A-1.zip"), map[string]string{"a.txt": "aaa", "b.txt": "bbbb"})

	svc := newZipService()
	first, err := svc.Run(context.Background(), src, "A-", dest, Options{Validate: true})
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if first.Tally.Extracted != 2 {
		t.Fatalf("first run extracted = %d, expected 2", first.Tally.Extracted)
	}

	second, err := svc.Run(context.Background(), src, "A-", dest, Options{Validate: true})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	want := Tally{Extracted: 0, Skipped: 2, Errors: 0}
	if second.Tally != want {
		t.Errorf("second run tally = %+v, expected %+v", second.Tally, want)
	}

	data, _ := os.ReadFile(filepath.Join(dest, "a.txt"))
	if string(data) != "aaa" {
		t.Errorf("a.txt content changed on second run: %q", data)
	}
}

func TestRunMissingPartDeclined(t *testing.T) {
	src := t.TempDir()
	dest := filepath.Join(t.TempDir(), "restored")
	createPartZip(t, filepath.Join(src, "A-001.zip"), map[string]string{"one.txt": "first"})
	createPartZip(t, filepath.Join(src, "A-003.zip"), map[string]string{"three.txt": "third"})

	var asked []int
	opts := Options{
		Validate: true,
		ConfirmGap: func(missing []int) bool {
			asked = missing
			return false
		},
	}
	report, err := newZipService().Run(context.Background(), src, "A-", dest, opts)
	if !errors.Is(err, ErrAbortedByUser) {
		t.Fatalf("expected ErrAbortedByUser, got %v", err)
	}
	if !reflect.DeepEqual(asked, []int{2}) {
		t.Errorf("ConfirmGap called with %v, expected [2]", asked)
	}
	if !reflect.DeepEqual(report.Missing, []int{2}) {
		t.Errorf("report.Missing = %v, expected [2]", report.Missing)
	}

	// Zero files written: the destination was never created.
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Errorf("destination exists after abort: %v", err)
	}
}

func TestRunMissingPartAccepted(t *testing.T) {
	src := t.TempDir()
	dest := filepath.Join(t.TempDir(), "restored")
	createPartZip(t, filepath.Join(src, "A-001.zip"), map[string]string{"one.txt": "first"})
	createPartZip(t, filepath.Join(src, "A-003.zip"), map[string]string{"three.txt": "third"})

	opts := Options{
		Validate:   true,
		ConfirmGap: func([]int) bool { return true },
	}
	report, err := newZipService().Run(context.Background(), src, "A-", dest, opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Tally.Extracted != 2 || !report.Success() {
		t.Errorf("tally = %+v", report.Tally)
	}
}

func TestRunNilConfirmGapMeansNo(t *testing.T) {
	src := t.TempDir()
	createPartZip(t, filepath.Join(src, "A-1.zip"), map[string]string{"a": "x"})
	createPartZip(t, filepath.Join(src, "A-3.zip"), map[string]string{"b": "y"})

	_, err := newZipService().Run(context.Background(), src, "A-", filepath.Join(t.TempDir(), "d"), Options{})
	if !errors.Is(err, ErrAbortedByUser) {
		t.Fatalf("expected ErrAbortedByUser with nil ConfirmGap, got %v", err)
	}
}

func TestRunValidationFailure(t *testing.T) {
	src := t.TempDir()
	dest := filepath.Join(t.TempDir(), "restored")
	createPartZip(t, filepath.Join(src, "A-1.zip"), map[string]string{"one.txt": "first"})
	if err := os.WriteFile(filepath.Join(src, "A-2.zip"), []byte("garbage, not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := newZipService().Run(context.Background(), src, "A-", dest, Options{Validate: true})
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
	if report.Parts[0].Validity != catalog.Valid {
		t.Errorf("A-1.zip validity = %v, expected valid", report.Parts[0].Validity)
	}
	if report.Parts[1].Validity != catalog.Invalid || report.Parts[1].ErrorDetail == "" {
		t.Errorf("A-2.zip validity = %v detail=%q, expected invalid with detail",
			report.Parts[1].Validity, report.Parts[1].ErrorDetail)
	}

	// Extraction never starts when validation fails.
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Errorf("destination exists after validation failure")
	}
}

func TestRunSkipValidationExtractsAnyway(t *testing.T) {
	src := t.TempDir()
	dest := filepath.Join(t.TempDir(), "restored")
	createPartZip(t, filepath.Join(src, "A-1.zip"), map[string]string{"one.txt": "first"})

	report, err := newZipService().Run(context.Background(), src, "A-", dest, Options{Validate: false})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Parts[0].Validity != catalog.Unvalidated {
		t.Errorf("validity = %v, expected unvalidated", report.Parts[0].Validity)
	}
	if report.Tally.Extracted != 1 {
		t.Errorf("extracted = %d, expected 1", report.Tally.Extracted)
	}
}

func TestRunDryRun(t *testing.T) {
	src := t.TempDir()
	dest := filepath.Join(t.TempDir(), "restored")
	createPartZip(t, filepath.Join(src, "A-1.zip"), map[string]string{"one.txt": "first"})
	createPartZip(t, filepath.Join(src, "A-2.zip"), map[string]string{"two.txt": "second"})

	report, err := newZipService().Run(context.Background(), src, "A-", dest, Options{Validate: true, DryRun: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !report.PlanOnly {
		t.Error("PlanOnly = false on dry run")
	}
	if len(report.Parts) != 2 || report.TotalSize <= 0 {
		t.Errorf("plan = %d parts, %d bytes", len(report.Parts), report.TotalSize)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Errorf("dry run touched the filesystem")
	}
}

func TestRunNoParts(t *testing.T) {
	_, err := newZipService().Run(context.Background(), t.TempDir(), "A-", t.TempDir(), Options{})
	if !errors.Is(err, ErrNoPartsFound) {
		t.Fatalf("expected ErrNoPartsFound, got %v", err)
	}
}

func TestRunMissingSourceDir(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	_, err := newZipService().Run(context.Background(), missing, "A-", t.TempDir(), Options{})
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected catalog.ErrNotFound, got %v", err)
	}
}

func TestRunPartOpenFailureIsIsolated(t *testing.T) {
	src := t.TempDir()
	dest := filepath.Join(t.TempDir(), "restored")

	// Catalog discovery needs real files; content goes through the mock.
	for _, name := range []string{"B-1.zip", "B-2.zip"} {
		if err := os.WriteFile(filepath.Join(src, name), []byte("stub"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	reader := mocks.NewMockArchiveReader()
	good := mocks.NewMockArchive()
	good.AddFile("ok.txt", []byte("fine"))
	reader.Archives[filepath.Join(src, "B-2.zip")] = good
	reader.OpenErrors[filepath.Join(src, "B-1.zip")] = errors.New("central directory damaged")

	svc := NewService(osfs.New(), reader, nil)
	report, err := svc.Run(context.Background(), src, "B-", dest, Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := Tally{Extracted: 1, Skipped: 0, Errors: 1}
	if report.Tally != want {
		t.Errorf("tally = %+v, expected %+v", report.Tally, want)
	}
	if report.Success() {
		t.Error("Success = true despite a part open failure")
	}
	if len(report.Problems) != 1 || report.Problems[0].Member != "B-1.zip" {
		t.Errorf("problems = %+v", report.Problems)
	}
	if _, err := os.Stat(filepath.Join(dest, "ok.txt")); err != nil {
		t.Errorf("later part was not extracted: %v", err)
	}
}

func TestRunUnsafeMembersAreCountedAsErrors(t *testing.T) {
	src := t.TempDir()
	dest := filepath.Join(t.TempDir(), "restored")
	if err := os.WriteFile(filepath.Join(src, "B-1.zip"), []byte("stub"), 0o644); err != nil {
		t.Fatal(err)
	}

	reader := mocks.NewMockArchiveReader()
	arc := mocks.NewMockArchive()
	arc.AddFile("../escape.txt", []byte("x"))
	arc.AddFile("fine.txt", []byte("y"))
	reader.Archives[filepath.Join(src, "B-1.zip")] = arc

	report, err := NewService(osfs.New(), reader, nil).Run(context.Background(), src, "B-", dest, Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	want := Tally{Extracted: 1, Skipped: 0, Errors: 1}
	if report.Tally != want {
		t.Errorf("tally = %+v, expected %+v", report.Tally, want)
	}
	if len(report.Problems) != 1 || report.Problems[0].Outcome != SkippedUnsafe {
		t.Errorf("problems = %+v", report.Problems)
	}
}

func TestRunCancelledContext(t *testing.T) {
	src := t.TempDir()
	dest := filepath.Join(t.TempDir(), "restored")
	createPartZip(t, filepath.Join(src, "A-1.zip"), map[string]string{"one.txt": "first"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newZipService().Run(ctx, src, "A-", dest, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if report == nil {
		t.Fatal("expected a partial report on cancellation")
	}
	if report.Tally.Extracted != 0 {
		t.Errorf("tally = %+v, expected nothing extracted", report.Tally)
	}
}
