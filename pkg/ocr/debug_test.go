package ocr

import (
	"image"
	"os"
	"path/filepath"
	"testing"
)

func TestDirSinkWritesCandidate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	sink := DirSink{Dir: dir, Prefix: "label"}
	if err := sink.Candidate(Candidate{Method: MethodOtsu, Image: image.NewGray(image.Rect(0, 0, 4, 4))}); err != nil {
		t.Fatalf("Candidate: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "label.ocr.otsu.png")); err != nil {
		t.Fatalf("expected candidate file: %v", err)
	}

	if err := (DirSink{Dir: dir}).Candidate(Candidate{Method: MethodAdaptive, Image: image.NewGray(image.Rect(0, 0, 2, 2))}); err != nil {
		t.Fatalf("Candidate: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "candidate.ocr.adaptive.png")); err != nil {
		t.Fatalf("expected default prefix: %v", err)
	}
}
