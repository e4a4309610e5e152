// Package membrane implements the deterministic guards wrapping the
// reasoning step: inbound sanitization of untrusted signals and outbound
// enforcement of economic invariants. The membrane, not the strategy, is
// authoritative over safety.
package membrane

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Detector scans an inbound string field for hostile content. The substrate
// is adversarial, so the pattern source is pluggable rather than a hardcoded
// list; the blocklist implementation below is the default, not the contract.
type Detector interface {
	// Scan returns the name of the matched pattern and true when the value
	// is flagged. The returned pattern is from our own list, never derived
	// from the payload, so it is safe to log.
	Scan(value string) (pattern string, flagged bool)
}

// DefaultPatterns is the known prompt-injection substring set. Matching is
// case-insensitive.
func DefaultPatterns() []string {
	return []string{
		"ignore all previous instructions",
		"ignore previous instructions",
		"system override",
		"you are now",
		"act as a",
		"disregard",
	}
}

// BlocklistDetector flags values containing any configured substring. Safe
// for concurrent use; the pattern set can be swapped at runtime (see
// WatchBlocklist).
type BlocklistDetector struct {
	mu       sync.RWMutex
	patterns []string
}

// NewBlocklistDetector returns a detector over the given patterns, or the
// default set when none are given.
func NewBlocklistDetector(patterns ...string) *BlocklistDetector {
	if len(patterns) == 0 {
		patterns = DefaultPatterns()
	}
	d := &BlocklistDetector{}
	d.SetPatterns(patterns)
	return d
}

// SetPatterns replaces the active pattern set. Empty entries are dropped;
// patterns are lowercased once here so Scan stays allocation-light.
func (d *BlocklistDetector) SetPatterns(patterns []string) {
	cleaned := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	d.mu.Lock()
	d.patterns = cleaned
	d.mu.Unlock()
}

// Patterns returns a copy of the active pattern set.
func (d *BlocklistDetector) Patterns() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.patterns...)
}

// Scan implements Detector.
func (d *BlocklistDetector) Scan(value string) (string, bool) {
	lowered := strings.ToLower(value)
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, p := range d.patterns {
		if strings.Contains(lowered, p) {
			return p, true
		}
	}
	return "", false
}

// blocklistFile is the on-disk shape of a pattern file.
type blocklistFile struct {
	Patterns []string `yaml:"patterns"`
}

// LoadBlocklist reads a YAML pattern file and installs its patterns.
func (d *BlocklistDetector) LoadBlocklist(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read blocklist %s: %w", path, err)
	}
	var f blocklistFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse blocklist %s: %w", path, err)
	}
	if len(f.Patterns) == 0 {
		return fmt.Errorf("blocklist %s contains no patterns", path)
	}
	d.SetPatterns(f.Patterns)
	return nil
}
