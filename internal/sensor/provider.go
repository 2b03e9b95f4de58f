// Package sensor acquires snapshots from lottery provider sites: it drives a
// headless browser to the prizes page, archives the raw HTML and a full-page
// screenshot as evidence, and extracts the normalized records the census
// pipeline consumes. Per-state markup knowledge lives in Provider
// implementations; the capture loop is provider-agnostic.
package sensor

import (
	"fmt"
	"sort"
	"sync"

	"librarian/internal/census/domain"
)

// Provider knows one state lottery's site: where the prizes page lives, how
// many games it must list for a capture to be plausible, and how to read its
// markup.
type Provider interface {
	// Code is the two-letter state code, e.g. "NC".
	Code() string

	// TargetURL is the prizes-remaining page.
	TargetURL() string

	// SafetyFloor is the minimum game count a healthy page renders.
	SafetyFloor() int

	// Extract parses the prizes page HTML into raw records. Records that
	// fail strict parsing are dropped, not guessed at.
	Extract(htmlContent string) ([]domain.RawGame, error)

	// DetailURL is the per-game page probed for attributes the listing
	// page omits.
	DetailURL(g domain.RawGame) string

	// ExtractDetail parses a detail page for the game's overall odds.
	// Empty means the page did not carry them.
	ExtractDetail(htmlContent string) string
}

var (
	providersMu sync.RWMutex
	providers   = make(map[string]Provider)
)

// Register adds a provider under its state code. Called from provider init
// functions; duplicate registration is a programming error.
func Register(p Provider) {
	providersMu.Lock()
	defer providersMu.Unlock()
	if _, dup := providers[p.Code()]; dup {
		panic(fmt.Sprintf("sensor: provider %q registered twice", p.Code()))
	}
	providers[p.Code()] = p
}

// Get returns the provider for a state code.
func Get(code string) (Provider, error) {
	providersMu.RLock()
	defer providersMu.RUnlock()
	p, ok := providers[code]
	if !ok {
		return nil, fmt.Errorf("sensor: unknown provider %q (available: %v)", code, codesLocked())
	}
	return p, nil
}

// List returns registered state codes, sorted.
func List() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()
	return codesLocked()
}

func codesLocked() []string {
	codes := make([]string, 0, len(providers))
	for code := range providers {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
