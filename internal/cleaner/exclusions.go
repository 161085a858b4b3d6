package cleaner

import (
	"context"

	"github.com/Rorqualx/darkpattern-remover/internal/exclusion"
	"github.com/Rorqualx/darkpattern-remover/internal/stats"
	"github.com/Rorqualx/darkpattern-remover/internal/store"
)

func excludedBy(ctx context.Context, settings store.Store, host string) (string, bool) {
	return exclusion.MatchingPattern(host, store.ReadExcludedHosts(ctx, settings))
}

// Exclusions returns the stored exclusion patterns.
func (c *Cleaner) Exclusions(ctx context.Context) []string {
	return store.ReadExcludedHosts(ctx, c.settings)
}

// SetExclusions normalizes and stores the exclusion patterns, returning
// what was saved.
func (c *Cleaner) SetExclusions(ctx context.Context, patterns []string) ([]string, error) {
	cleaned := exclusion.ParseLines(exclusion.FormatLines(patterns))
	if err := c.settings.Set(ctx, store.KeyExcludedHosts, cleaned); err != nil {
		return nil, err
	}
	return cleaned, nil
}

// Stats returns the per-host statistics, or nil when disabled.
func (c *Cleaner) Stats() *stats.Manager {
	return c.stats
}
