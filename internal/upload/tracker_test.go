package upload

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMarkAndCheck(t *testing.T) {
	tr, err := NewTracker(nil, t.TempDir())
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}

	if tr.IsUploaded(1) {
		t.Fatal("fresh tracker should not report uploads")
	}
	if _, ok := tr.LastUpload(); ok {
		t.Fatal("fresh tracker should have no last upload")
	}

	if err := tr.MarkUploaded(1); err != nil {
		t.Fatalf("MarkUploaded: %v", err)
	}
	if err := tr.MarkUploaded(3); err != nil {
		t.Fatalf("MarkUploaded: %v", err)
	}

	if !tr.IsUploaded(1) || !tr.IsUploaded(3) || tr.IsUploaded(2) {
		t.Fatal("uploaded set does not match marks")
	}
	if tr.UploadedCount() != 2 {
		t.Fatalf("UploadedCount = %d, want 2", tr.UploadedCount())
	}
	if _, ok := tr.LastUpload(); !ok {
		t.Fatal("expected a last upload time after marking")
	}
}

func TestMarkIsIdempotent(t *testing.T) {
	tr, err := NewTracker(nil, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := tr.MarkUploaded(7); err != nil {
			t.Fatal(err)
		}
	}
	if tr.UploadedCount() != 1 {
		t.Fatalf("UploadedCount = %d, want 1", tr.UploadedCount())
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	tr, err := NewTracker(nil, dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.MarkUploaded(5); err != nil {
		t.Fatal(err)
	}
	first, _ := tr.LastUpload()

	reopened, err := NewTracker(nil, dir)
	if err != nil {
		t.Fatal(err)
	}
	if !reopened.IsUploaded(5) {
		t.Fatal("mark lost across reopen")
	}
	// RFC3339 drops sub-second precision in the file.
	last, ok := reopened.LastUpload()
	if !ok || !last.Equal(first.Truncate(time.Second)) {
		t.Fatalf("last upload = %v, want %v", last, first.Truncate(time.Second))
	}
}

func TestCorruptFileDegradesToEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, trackerFileName), []byte("broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	tr, err := NewTracker(nil, dir)
	if err != nil {
		t.Fatalf("NewTracker with corrupt file: %v", err)
	}
	if tr.UploadedCount() != 0 {
		t.Fatalf("UploadedCount = %d, want 0", tr.UploadedCount())
	}
}
