package sensor

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"

	"librarian/internal/census/domain"
	"librarian/internal/log"
)

const (
	navigateTimeout = 60 * time.Second
	probeTimeout    = 30 * time.Second
)

// Options tunes a Sensor. Zero values get conservative defaults.
type Options struct {
	// EvidenceDir receives the raw HTML and screenshot for each run.
	EvidenceDir string

	// SettleMin/SettleMax bound the random wait after page load, giving
	// client-side rendering time to finish.
	SettleMin time.Duration
	SettleMax time.Duration

	// DeepDiveLimit caps detail-page probes per capture.
	DeepDiveLimit int

	// ProbeCacheTTL is how long a probed detail result is reused across
	// captures; overall odds change only when a game is reissued.
	ProbeCacheTTL time.Duration

	// BrowserURL is the WebSocket URL of an external Chrome. Empty
	// launches a local headless instance.
	BrowserURL string
}

func (o *Options) defaults() {
	if o.EvidenceDir == "" {
		o.EvidenceDir = "evidence"
	}
	if o.SettleMin <= 0 {
		o.SettleMin = 3 * time.Second
	}
	if o.SettleMax < o.SettleMin {
		o.SettleMax = o.SettleMin
	}
	if o.DeepDiveLimit <= 0 {
		o.DeepDiveLimit = 5
	}
	if o.ProbeCacheTTL <= 0 {
		o.ProbeCacheTTL = 12 * time.Hour
	}
}

// Sensor captures snapshots from one provider's site. It implements
// domain.SnapshotSource.
type Sensor struct {
	provider Provider
	opts     Options
	probes   *cache.Cache
}

// New builds a sensor for the given provider.
func New(p Provider, opts Options) *Sensor {
	opts.defaults()
	return &Sensor{
		provider: p,
		opts:     opts,
		probes:   cache.New(opts.ProbeCacheTTL, 30*time.Minute),
	}
}

// NewRunID derives a run identifier from the capture time plus a short
// random suffix so two runs in the same minute stay distinct.
func NewRunID(now time.Time) string {
	return fmt.Sprintf("run_%s_%s", now.Format("20060102_1504"), uuid.NewString()[:4])
}

// Capture drives the browser through one full acquisition: navigate,
// settle, archive evidence, extract, and backfill missing detail attributes.
func (s *Sensor) Capture(ctx context.Context) (domain.Snapshot, error) {
	now := time.Now()
	runID := NewRunID(now)
	log.Info(log.CatSensor, "capture starting",
		"run_id", runID, "provider", s.provider.Code(), "url", s.provider.TargetURL())

	browser, cleanup, err := s.connect()
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer cleanup()

	page, err := stealth.Page(browser)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("sensor: create page: %w", err)
	}
	defer func() { _ = page.Close() }()

	navCtx, cancel := context.WithTimeout(ctx, navigateTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(s.provider.TargetURL()); err != nil {
		return domain.Snapshot{}, fmt.Errorf("sensor: navigate %s: %w", s.provider.TargetURL(), err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		log.Warn(log.CatSensor, "wait load timed out", "run_id", runID, "error", err.Error())
	}
	if err := s.settle(ctx); err != nil {
		return domain.Snapshot{}, err
	}

	htmlContent, err := page.HTML()
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("sensor: read page html: %w", err)
	}

	htmlPath, shotPath := s.archiveEvidence(page, runID, htmlContent)

	games, err := s.provider.Extract(htmlContent)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("sensor: extract: %w", err)
	}
	log.Info(log.CatSensor, "extraction complete",
		"run_id", runID, "games", len(games), "bytes", len(htmlContent))

	s.heal(ctx, browser, games)

	return domain.Snapshot{
		RunID:        runID,
		ObservedAt:   now,
		Games:        games,
		PayloadSize:  int64(len(htmlContent)),
		EvidenceHTML: htmlPath,
		EvidenceShot: shotPath,
	}, nil
}

func (s *Sensor) connect() (*rod.Browser, func(), error) {
	if s.opts.BrowserURL != "" {
		b := rod.New().ControlURL(s.opts.BrowserURL)
		if err := b.Connect(); err != nil {
			return nil, nil, fmt.Errorf("sensor: connect remote browser: %w", err)
		}
		return b, func() { _ = b.Close() }, nil
	}

	l := launcher.New().
		Headless(true).
		Set("disable-blink-features", "AutomationControlled")
	u, err := l.Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("sensor: launch browser: %w", err)
	}
	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, nil, fmt.Errorf("sensor: connect browser: %w", err)
	}
	return b, func() {
		_ = b.Close()
		l.Cleanup()
	}, nil
}

// settle sleeps a random duration in [SettleMin, SettleMax].
func (s *Sensor) settle(ctx context.Context) error {
	d := s.opts.SettleMin
	if spread := s.opts.SettleMax - s.opts.SettleMin; spread > 0 {
		d += time.Duration(rand.Int63n(int64(spread)))
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// archiveEvidence writes the page HTML and a full-page screenshot to the
// evidence directory. Evidence failures are logged, not fatal: extraction
// can proceed from the in-memory HTML.
func (s *Sensor) archiveEvidence(page *rod.Page, runID, htmlContent string) (htmlPath, shotPath string) {
	if err := os.MkdirAll(s.opts.EvidenceDir, 0o755); err != nil {
		log.ErrorErr(log.CatSensor, "evidence dir unavailable", err, "dir", s.opts.EvidenceDir)
		return "", ""
	}

	htmlPath = filepath.Join(s.opts.EvidenceDir, fmt.Sprintf("raw_html_%s.html", runID))
	if err := writeFileAtomic(htmlPath, []byte(htmlContent)); err != nil {
		log.ErrorErr(log.CatSensor, "html evidence write failed", err, "path", htmlPath)
		htmlPath = ""
	}

	shot, err := page.Screenshot(true, nil)
	if err != nil {
		log.Warn(log.CatSensor, "screenshot failed", "run_id", runID, "error", err.Error())
		return htmlPath, ""
	}
	shotPath = filepath.Join(s.opts.EvidenceDir, fmt.Sprintf("screenshot_%s.png", runID))
	if err := writeFileAtomic(shotPath, shot); err != nil {
		log.ErrorErr(log.CatSensor, "screenshot write failed", err, "path", shotPath)
		shotPath = ""
	}
	return htmlPath, shotPath
}

// heal backfills overall odds for games the listing page omits them for, by
// probing each game's detail page. Probes are capped per capture and
// memoized across captures.
func (s *Sensor) heal(ctx context.Context, browser *rod.Browser, games []domain.RawGame) {
	probe := func(url string) string {
		return s.probeDetail(ctx, browser, url)
	}
	healOdds(games, s.provider, probe, s.opts.DeepDiveLimit, s.probes, func() error {
		return s.jitter(ctx, 2*time.Second, 4*time.Second)
	})
}

// healOdds is the browser-free core of the deep-dive pass, split out for
// tests. probe fetches a detail URL and returns the extracted odds; pause
// runs between live probes.
func healOdds(games []domain.RawGame, p Provider, probe func(url string) string, limit int, probes *cache.Cache, pause func() error) {
	dives := 0
	for i := range games {
		if games[i].Attributes.OverallOdds != "" {
			continue
		}

		key := games[i].NaturalKey
		if odds, hit := probes.Get(key); hit {
			games[i].Attributes.OverallOdds = odds.(string)
			continue
		}
		if dives >= limit {
			continue
		}
		dives++

		if pause != nil {
			if err := pause(); err != nil {
				return
			}
		}
		odds := probe(p.DetailURL(games[i]))
		if odds == "" {
			log.Warn(log.CatSensor, "detail probe found no odds", "natural_key", key)
			continue
		}
		games[i].Attributes.OverallOdds = odds
		probes.Set(key, odds, cache.DefaultExpiration)
		log.Debug(log.CatSensor, "odds backfilled", "natural_key", key, "odds", odds)
	}
}

func (s *Sensor) probeDetail(ctx context.Context, browser *rod.Browser, url string) string {
	page, err := stealth.Page(browser)
	if err != nil {
		log.Warn(log.CatSensor, "probe page failed", "url", url, "error", err.Error())
		return ""
	}
	defer func() { _ = page.Close() }()

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := page.Context(probeCtx).Navigate(url); err != nil {
		log.Warn(log.CatSensor, "probe navigate failed", "url", url, "error", err.Error())
		return ""
	}
	if err := page.Context(probeCtx).WaitLoad(); err != nil {
		log.Warn(log.CatSensor, "probe wait load timed out", "url", url, "error", err.Error())
	}

	htmlContent, err := page.HTML()
	if err != nil {
		log.Warn(log.CatSensor, "probe html read failed", "url", url, "error", err.Error())
		return ""
	}
	return s.provider.ExtractDetail(htmlContent)
}

func (s *Sensor) jitter(ctx context.Context, min, max time.Duration) error {
	d := min + time.Duration(rand.Int63n(int64(max-min)))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// writeFileAtomic writes via a temp file and rename so a crashed run never
// leaves truncated evidence behind.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
