// Package patterns holds the keyword sets used to recognise dark patterns.
// The sets are compiled into the binary and never change at runtime.
package patterns

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed patterns.yaml
var defaultPatternsFS embed.FS

// Set contains the three ordered, lowercase pattern lists.
type Set struct {
	Text            []string `yaml:"text"`
	ClassID         []string `yaml:"class_id"`
	OverlayKeywords []string `yaml:"overlay_keywords"`
}

var (
	instance *Set
	once     sync.Once
	loadErr  error
)

// Get returns the process-wide pattern set.
// Patterns are loaded from the embedded patterns.yaml file on first use.
func Get() *Set {
	once.Do(func() {
		instance, loadErr = load()
		if loadErr != nil {
			log.Error().Err(loadErr).Msg("Failed to load patterns, using defaults")
			instance = defaultSet()
		}
	})
	return instance
}

func load() (*Set, error) {
	data, err := defaultPatternsFS.ReadFile("patterns.yaml")
	if err != nil {
		return nil, err
	}
	return parse(data)
}

func parse(data []byte) (*Set, error) {
	var s Set
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("invalid patterns YAML: %w", err)
	}
	if len(s.Text) == 0 || len(s.ClassID) == 0 || len(s.OverlayKeywords) == 0 {
		return nil, fmt.Errorf("patterns must define text, class_id and overlay_keywords")
	}

	s.Text = lowerAll(s.Text)
	s.ClassID = lowerAll(s.ClassID)
	s.OverlayKeywords = lowerAll(s.OverlayKeywords)

	log.Debug().
		Int("text_patterns", len(s.Text)).
		Int("class_id_patterns", len(s.ClassID)).
		Int("overlay_keywords", len(s.OverlayKeywords)).
		Msg("Patterns loaded")

	return &s, nil
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if p = strings.ToLower(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ContainsAny reports whether haystack contains any pattern, ignoring case.
func ContainsAny(haystack string, patterns []string) bool {
	_, ok := FirstMatch(haystack, patterns)
	return ok
}

// FirstMatch returns the first pattern found in haystack, ignoring case.
func FirstMatch(haystack string, patterns []string) (string, bool) {
	if haystack == "" {
		return "", false
	}
	lower := strings.ToLower(haystack)
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(p)) {
			return p, true
		}
	}
	return "", false
}

// defaultSet is the hardcoded fallback used if the embedded file is unreadable.
func defaultSet() *Set {
	return &Set{
		Text: []string{
			"we use cookies",
			"this website uses cookies",
			"accept cookies",
			"accept all cookies",
			"cookie policy",
			"gdpr",
			"consent",
			"privacy policy",
			"personal data",
			"nous utilisons des cookies",
			"newsletter",
			"subscribe now",
			"we value your privacy",
			"before you continue",
		},
		ClassID: []string{
			"cookie",
			"gdpr",
			"consent",
			"cmp",
			"privacy",
			"banner",
			"modal",
			"popup",
			"overlay",
			"backdrop",
			"newsletter",
			"subscribe",
		},
		OverlayKeywords: []string{
			"cookie", "gdpr", "consent", "privacy", "newsletter", "subscribe", "inscrivez",
		},
	}
}
