package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelscan/pkg/analyzer"
	"labelscan/pkg/classify"
	"labelscan/pkg/ocr"
)

type fakeAnalyzer struct {
	mu    sync.Mutex
	calls map[string]int
	// errs are returned in order for a file before it succeeds.
	errs map[string][]error
}

func (f *fakeAnalyzer) AnalyzeFile(ctx context.Context, path, productName string) (*analyzer.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := filepath.Base(path)
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	n := f.calls[name]
	f.calls[name]++
	if n < len(f.errs[name]) {
		return nil, f.errs[name][n]
	}
	return &analyzer.Result{
		Record:      classify.Record{HealthScore: 7.5},
		ProductName: productName,
		Source:      analyzer.SourceImage,
	}, nil
}

func (f *fakeAnalyzer) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

type fakeStore struct {
	mu       sync.Mutex
	existing []string
	saved    map[string]string
	saveErr  error
}

func (s *fakeStore) SaveFileAnalysis(ctx context.Context, userID uint, file string, res *analyzer.Result) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return "", s.saveErr
	}
	if s.saved == nil {
		s.saved = map[string]string{}
	}
	s.saved[file] = res.ProductName
	return fmt.Sprintf("id-%d", len(s.saved)), nil
}

func (s *fakeStore) AnalyzedFiles(ctx context.Context, userID uint) ([]string, error) {
	return s.existing, nil
}

func (s *fakeStore) Saved() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.saved))
	for k, v := range s.saved {
		out[k] = v
	}
	return out
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644))
	}
}

func newTestProcessor(an Analyzer, st Store, opts Options) *Processor {
	opts.RetryBackoff = time.Millisecond
	return New(an, st, opts, zerolog.Nop())
}

func TestIsSupportedExt(t *testing.T) {
	cases := map[string]bool{
		"label.jpg":         true,
		"LABEL.JPEG":        true,
		"scan.png":          true,
		"scan.webp":         true,
		"notes.txt":         false,
		"label.ocr.png":     false,
		".hidden.png":       false,
		"no_extension":      false,
		"archive.tar.gz":    false,
		"photo.final.tiff":  true,
		"candidate.ocr.jpg": false,
	}
	for name, want := range cases {
		assert.Equal(t, want, IsSupportedExt(name), name)
	}
}

func TestListImageFilesSortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.png", "a.jpg", "readme.md", "c.ocr.png")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o755))

	assert.Equal(t, []string{"a.jpg", "b.png"}, ListImageFiles(dir))
	assert.Nil(t, ListImageFiles(filepath.Join(dir, "missing")))
}

func TestProductNameFromFile(t *testing.T) {
	assert.Equal(t, "oat bar classic", ProductNameFromFile("oat_bar-classic.jpg"))
	assert.Equal(t, "granola", ProductNameFromFile("/tmp/labels/granola.PNG"))
	assert.Equal(t, "", ProductNameFromFile(".png"))
}

func TestRunSkipsPreloadedAndArchives(t *testing.T) {
	dir, archive := t.TempDir(), t.TempDir()
	touch(t, dir, "done.jpg", "new_bar.jpg", "other.png")
	an := &fakeAnalyzer{}
	st := &fakeStore{existing: []string{"done.jpg"}}
	p := newTestProcessor(an, st, Options{Dir: dir, ArchiveDir: archive, Workers: 2})

	require.NoError(t, p.Preload(context.Background()))
	rep := p.Run(context.Background(), ListImageFiles(dir))

	assert.Equal(t, Report{Analyzed: 2, Skipped: 1}, rep)
	assert.Equal(t, 0, an.Calls("done.jpg"))
	assert.Equal(t, map[string]string{"new_bar.jpg": "new bar", "other.png": "other"}, st.Saved())

	assert.FileExists(t, filepath.Join(archive, "new_bar.jpg"))
	assert.FileExists(t, filepath.Join(archive, "other.png"))
	assert.NoFileExists(t, filepath.Join(dir, "new_bar.jpg"))
	assert.FileExists(t, filepath.Join(dir, "done.jpg"))

	// A second pass finds nothing new.
	rep = p.Run(context.Background(), []string{"new_bar.jpg"})
	assert.Equal(t, int64(2), rep.Skipped)
}

func TestRetryableFailureIsRetried(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "flaky.jpg")
	unavailable := &classify.ServiceUnavailableError{Err: errors.New("connection refused")}
	an := &fakeAnalyzer{errs: map[string][]error{"flaky.jpg": {unavailable, ocr.ErrTimeout}}}
	st := &fakeStore{}
	p := newTestProcessor(an, st, Options{Dir: dir, Workers: 1, MaxRetries: 3})

	rep := p.Run(context.Background(), []string{"flaky.jpg"})
	assert.Equal(t, Report{Analyzed: 1}, rep)
	assert.Equal(t, 3, an.Calls("flaky.jpg"))
	assert.Contains(t, st.Saved(), "flaky.jpg")
}

func TestPermanentFailureIsNotRetried(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "blank.jpg")
	an := &fakeAnalyzer{errs: map[string][]error{"blank.jpg": {ocr.ErrNoTextExtracted}}}
	st := &fakeStore{}
	p := newTestProcessor(an, st, Options{Dir: dir, Workers: 1, MaxRetries: 5})

	rep := p.Run(context.Background(), []string{"blank.jpg"})
	assert.Equal(t, Report{Failed: 1}, rep)
	assert.Equal(t, 1, an.Calls("blank.jpg"))
	assert.Empty(t, st.Saved())
}

func TestRetriesExhausted(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "down.jpg")
	down := &classify.ServiceUnavailableError{Err: errors.New("connection refused")}
	an := &fakeAnalyzer{errs: map[string][]error{"down.jpg": {down, down, down, down}}}
	p := newTestProcessor(an, &fakeStore{}, Options{Dir: dir, Workers: 1, MaxRetries: 2})

	rep := p.Run(context.Background(), []string{"down.jpg"})
	assert.Equal(t, Report{Failed: 1}, rep)
	assert.Equal(t, 3, an.Calls("down.jpg"))
}

func TestUniqueViolationCountsAsSkip(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "dup.jpg")
	st := &fakeStore{saveErr: errors.New(`ERROR: duplicate key value violates unique constraint "idx_user_source_file" (SQLSTATE 23505)`)}
	p := newTestProcessor(&fakeAnalyzer{}, st, Options{Dir: dir, Workers: 1})

	rep := p.Run(context.Background(), []string{"dup.jpg"})
	assert.Equal(t, Report{Skipped: 1}, rep)
	assert.True(t, p.seen.has("dup.jpg"))
}

func TestDryRunWritesNothing(t *testing.T) {
	dir, archive := t.TempDir(), t.TempDir()
	touch(t, dir, "a.jpg")
	st := &fakeStore{existing: []string{"a.jpg"}}
	p := newTestProcessor(&fakeAnalyzer{}, st, Options{Dir: dir, ArchiveDir: archive, DryRun: true})

	require.NoError(t, p.Preload(context.Background()))
	rep := p.Run(context.Background(), []string{"a.jpg"})
	assert.Equal(t, Report{Analyzed: 1}, rep)
	assert.Empty(t, st.Saved())
	assert.FileExists(t, filepath.Join(dir, "a.jpg"))
}

func TestWatchPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	st := &fakeStore{}
	p := newTestProcessor(&fakeAnalyzer{}, st, Options{Dir: dir, Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Watch(ctx, 50*time.Millisecond) }()

	// Give the watcher time to register before creating files.
	time.Sleep(100 * time.Millisecond)
	touch(t, dir, "fresh.jpg", "ignored.txt")

	assert.Eventually(t, func() bool {
		_, ok := st.Saved()["fresh.jpg"]
		return ok
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
	assert.NotContains(t, st.Saved(), "ignored.txt")
}

func noisePNG(t *testing.T, path string, w, h int) int64 {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	fi, err := os.Stat(path)
	require.NoError(t, err)
	return fi.Size()
}

func TestMoveToArchiveShrinksLargePhotos(t *testing.T) {
	dir, archive := t.TempDir(), t.TempDir()
	src := filepath.Join(dir, "big.png")
	size := noisePNG(t, src, 200, 200)

	require.NoError(t, MoveToArchive(src, archive, "big.png", size/4))
	assert.NoFileExists(t, src)

	img, err := ocr.OpenImage(filepath.Join(archive, "big.png"))
	require.NoError(t, err)
	assert.Less(t, img.Bounds().Dx(), 200)
}

func TestMoveToArchiveSmallFileUnchanged(t *testing.T) {
	dir, archive := t.TempDir(), t.TempDir()
	src := filepath.Join(dir, "small.png")
	noisePNG(t, src, 10, 10)
	before, err := os.ReadFile(src)
	require.NoError(t, err)

	require.NoError(t, MoveToArchive(src, archive, "small.png", DefaultArchiveBytes))
	after, err := os.ReadFile(filepath.Join(archive, "small.png"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMoveToArchiveUndecodableLargeFile(t *testing.T) {
	dir, archive := t.TempDir(), t.TempDir()
	src := filepath.Join(dir, "corrupt.jpg")
	require.NoError(t, os.WriteFile(src, make([]byte, 2048), 0o644))

	require.NoError(t, MoveToArchive(src, archive, "corrupt.jpg", 100))
	assert.NoFileExists(t, src)
	assert.FileExists(t, filepath.Join(archive, "corrupt.jpg"))
}
