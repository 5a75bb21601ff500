// Package batch analyzes a directory of label photos: once over the files
// present at start, then optionally for every new file dropped in.
package batch

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/disintegration/imaging"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"labelscan/pkg/analyzer"
)

// DefaultArchiveBytes is the size budget for archived photos.
const DefaultArchiveBytes = 1_000_000

// Analyzer is satisfied by *analyzer.Service.
type Analyzer interface {
	AnalyzeFile(ctx context.Context, path, productName string) (*analyzer.Result, error)
}

// Store is satisfied by *store.Store.
type Store interface {
	SaveFileAnalysis(ctx context.Context, userID uint, file string, res *analyzer.Result) (string, error)
	AnalyzedFiles(ctx context.Context, userID uint) ([]string, error)
}

type Options struct {
	Dir string
	// ArchiveDir receives photos once analyzed. Empty leaves them in place.
	ArchiveDir   string
	ArchiveBytes int64
	UserID       uint
	Workers      int
	// MaxRetries bounds retries of retryable failures (timeouts, LLM down).
	MaxRetries   uint64
	RetryBackoff time.Duration
	DryRun       bool
	Verbose      bool
}

// Report counts what a run did.
type Report struct {
	Analyzed int64 `json:"analyzed"`
	Skipped  int64 `json:"skipped"`
	Failed   int64 `json:"failed"`
}

type Processor struct {
	opts     Options
	analyzer Analyzer
	store    Store
	logger   zerolog.Logger
	seen     *preloadState

	analyzed, skipped, failed atomic.Int64
}

// preloadState remembers which files already have an analysis.
type preloadState struct {
	files map[string]struct{}
	mu    sync.RWMutex
}

func newPreloadState() *preloadState {
	return &preloadState{files: make(map[string]struct{}, 1024)}
}

func (ps *preloadState) has(name string) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	_, ok := ps.files[name]
	return ok
}

func (ps *preloadState) put(name string) {
	ps.mu.Lock()
	ps.files[name] = struct{}{}
	ps.mu.Unlock()
}

func (ps *preloadState) len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.files)
}

func New(an Analyzer, st Store, opts Options, logger zerolog.Logger) *Processor {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.ArchiveBytes <= 0 {
		opts.ArchiveBytes = DefaultArchiveBytes
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	return &Processor{opts: opts, analyzer: an, store: st, logger: logger, seen: newPreloadState()}
}

// Preload fetches the files already analyzed for the user so they are skipped
// without a query per file. Dry runs skip the store entirely.
func (p *Processor) Preload(ctx context.Context) error {
	if p.opts.DryRun || p.store == nil {
		return nil
	}
	files, err := p.store.AnalyzedFiles(ctx, p.opts.UserID)
	if err != nil {
		return err
	}
	for _, f := range files {
		p.seen.put(f)
	}
	p.logger.Info().Int("files", p.seen.len()).Msg("preloaded analyzed files")
	return nil
}

// Report returns the counters accumulated so far.
func (p *Processor) Report() Report {
	return Report{Analyzed: p.analyzed.Load(), Skipped: p.skipped.Load(), Failed: p.failed.Load()}
}

// Run analyzes files with the worker pool and returns once all are done.
func (p *Processor) Run(ctx context.Context, files []string) Report {
	ch := make(chan string)
	go func() {
		defer close(ch)
		for _, f := range files {
			select {
			case ch <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	p.drain(ctx, ch)
	return p.Report()
}

// drain runs the workers until ch is closed.
func (p *Processor) drain(ctx context.Context, ch <-chan string) {
	var g errgroup.Group
	for i := 0; i < p.opts.Workers; i++ {
		g.Go(func() error {
			for name := range ch {
				p.ProcessFile(ctx, name)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Watch feeds newly created photos to the worker pool until ctx is done.
// A file is picked up once no new event arrived for it for settle.
func (p *Processor) Watch(ctx context.Context, settle time.Duration) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(p.opts.Dir); err != nil {
		return err
	}
	p.logger.Info().Str("dir", p.opts.Dir).Msg("watching for new photos")

	fileCh := make(chan string, 256)
	go func() {
		defer close(fileCh)
		pending := map[string]time.Time{}
		tick := settle / 2
		if tick <= 0 {
			tick = 50 * time.Millisecond
		}
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				name := filepath.Base(ev.Name)
				if !IsSupportedExt(name) {
					continue
				}
				pending[name] = time.Now()
			case <-ticker.C:
				now := time.Now()
				for name, t := range pending {
					if now.Sub(t) < settle {
						continue
					}
					delete(pending, name)
					select {
					case fileCh <- name:
					case <-ctx.Done():
						return
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				p.logger.Warn().Err(err).Msg("watch error")
			}
		}
	}()

	p.drain(ctx, fileCh)
	return nil
}

// ProcessFile analyzes one photo unless it was already analyzed, saves the
// result and archives the photo. Failures are logged and counted.
func (p *Processor) ProcessFile(ctx context.Context, name string) {
	log := p.logger.With().Str("file", name).Logger()
	if p.seen.has(name) {
		p.skipped.Add(1)
		if p.opts.Verbose {
			log.Debug().Msg("skip: already analyzed")
		}
		return
	}
	full := filepath.Join(p.opts.Dir, name)

	res, err := p.analyze(ctx, full, ProductNameFromFile(name))
	if err != nil {
		p.failed.Add(1)
		f := analyzer.Classify(err)
		log.Warn().Err(err).Str("kind", f.Kind).Msg("analysis failed")
		return
	}
	if p.opts.DryRun {
		p.analyzed.Add(1)
		log.Info().Float64("health_score", res.HealthScore).Int("ingredients", len(res.Ingredients)).Msg("dry-run analysis")
		return
	}

	// Another worker or process may have saved it meanwhile.
	if p.seen.has(name) {
		p.skipped.Add(1)
		return
	}
	id, err := p.store.SaveFileAnalysis(ctx, p.opts.UserID, name, res)
	if err != nil {
		if isUniqueConstraintError(err) {
			p.seen.put(name)
			p.skipped.Add(1)
			log.Debug().Msg("skip: saved concurrently")
			return
		}
		p.failed.Add(1)
		log.Error().Err(err).Msg("save analysis failed")
		return
	}
	p.seen.put(name)
	p.analyzed.Add(1)
	log.Info().Str("id", id).Float64("health_score", res.HealthScore).Msg("analysis saved")

	if p.opts.ArchiveDir == "" {
		return
	}
	if err := MoveToArchive(full, p.opts.ArchiveDir, name, p.opts.ArchiveBytes); err != nil {
		log.Warn().Err(err).Msg("archive failed")
	} else if p.opts.Verbose {
		log.Debug().Str("dir", p.opts.ArchiveDir).Msg("archived")
	}
}

// analyze retries retryable failures with exponential backoff.
func (p *Processor) analyze(ctx context.Context, path, product string) (*analyzer.Result, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.opts.RetryBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, p.opts.MaxRetries), ctx)

	var res *analyzer.Result
	op := func() error {
		r, err := p.analyzer.AnalyzeFile(ctx, path, product)
		if err != nil {
			if analyzer.Retryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		res = r
		return nil
	}
	notify := func(err error, wait time.Duration) {
		p.logger.Info().Err(err).Str("path", path).Dur("wait", wait).Msg("retrying analysis")
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return nil, perm.Err
		}
		return nil, err
	}
	return res, nil
}

// ListImageFiles returns the supported photos in dir, sorted by name.
func ListImageFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !IsSupportedExt(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}

// IsSupportedExt reports whether name looks like a decodable photo. OCR debug
// candidates (*.ocr.*) are ignored so they are never analyzed themselves.
func IsSupportedExt(name string) bool {
	if strings.HasPrefix(name, ".") || strings.Contains(name, ".ocr.") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp", ".tif", ".tiff":
		return true
	}
	return false
}

// ProductNameFromFile turns "oat_bar-classic.jpg" into "oat bar classic".
func ProductNameFromFile(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return strings.Join(strings.Fields(base), " ")
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint") || strings.Contains(s, "SQLSTATE 23505")
}

// MoveToArchive moves src into dir. Photos above maxBytes are downscaled on
// the way; anything that cannot be re-encoded is moved as is.
func MoveToArchive(src, dir, name string, maxBytes int64) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	dst := filepath.Join(dir, name)

	fi, err := os.Stat(src)
	if err != nil {
		return err
	}
	if fi.Size() <= maxBytes {
		return moveFile(src, dst)
	}
	img, err := imaging.Open(src)
	if err != nil {
		return moveFile(src, dst)
	}
	// Encoded size roughly follows area.
	scale := math.Sqrt(float64(maxBytes) / float64(fi.Size()))
	scale = math.Max(0.1, math.Min(scale, 0.95))
	w := int(math.Max(1, math.Round(float64(img.Bounds().Dx())*scale)))
	h := int(math.Max(1, math.Round(float64(img.Bounds().Dy())*scale)))
	img = imaging.Resize(img, w, h, imaging.Lanczos)
	if err := imaging.Save(img, dst); err != nil {
		return moveFile(src, dst)
	}
	return os.Remove(src)
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	return copyRemove(src, dst)
}

func copyRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
