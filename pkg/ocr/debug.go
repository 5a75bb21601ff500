package ocr

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// DebugSink receives finished candidates, e.g. to inspect preprocessing.
type DebugSink interface {
	Candidate(c Candidate) error
}

// DirSink writes candidates as PNG files named <Prefix>.ocr.<method>.png into Dir.
type DirSink struct {
	Dir    string
	Prefix string
}

func (d DirSink) Candidate(c Candidate) error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return err
	}
	prefix := d.Prefix
	if prefix == "" {
		prefix = "candidate"
	}
	return imaging.Save(c.Image, filepath.Join(d.Dir, fmt.Sprintf("%s.ocr.%s.png", prefix, c.Method)))
}
