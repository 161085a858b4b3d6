package types

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Rorqualx/darkpattern-remover/internal/engine"
	"github.com/Rorqualx/darkpattern-remover/internal/stats"
)

// Request validation limits.
const (
	MaxCmdLength      = 64
	MaxURLLength      = 8192
	MaxHostLength     = 253
	MaxTimeoutMs      = 600000 // 10 minutes
	MaxSettleMs       = 30000
	MaxPatterns       = 1000
	MaxPatternLength  = 512
	MinViewportWidth  = 320
	MaxViewportWidth  = 7680
	MinViewportHeight = 240
	MaxViewportHeight = 4320
)

// Request represents an incoming API request.
type Request struct {
	Cmd              string    `json:"cmd"`
	URL              string    `json:"url,omitempty"`
	HTML             string    `json:"html,omitempty"`
	Host             string    `json:"host,omitempty"`
	MaxTimeout       int       `json:"maxTimeout,omitempty"`
	SettleMs         int       `json:"settleMs,omitempty"`
	ReturnScreenshot bool      `json:"returnScreenshot,omitempty"`
	DisableMedia     bool      `json:"disableMedia,omitempty"`
	Patterns         []string  `json:"patterns,omitempty"`
	Viewport         *Viewport `json:"viewport,omitempty"`
}

// Viewport overrides the viewport used for overlay geometry.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Validate checks the viewport bounds.
func (v *Viewport) Validate() error {
	if v.Width < MinViewportWidth || v.Width > MaxViewportWidth {
		return fmt.Errorf("viewport width must be between %d and %d", MinViewportWidth, MaxViewportWidth)
	}
	if v.Height < MinViewportHeight || v.Height > MaxViewportHeight {
		return fmt.Errorf("viewport height must be between %d and %d", MinViewportHeight, MaxViewportHeight)
	}
	return nil
}

// Validate validates the request and returns an error if invalid.
func (r *Request) Validate() error {
	if r.Cmd == "" {
		return fmt.Errorf("cmd is required")
	}
	if len(r.Cmd) > MaxCmdLength {
		return fmt.Errorf("cmd exceeds maximum length of %d", MaxCmdLength)
	}

	switch r.Cmd {
	case CmdPageClean:
		if r.URL == "" {
			return ErrURLRequired
		}
	case CmdHTMLClean:
		if r.HTML == "" {
			return ErrHTMLRequired
		}
	case CmdExclusionsCheck:
		if r.Host == "" && r.URL == "" {
			return fmt.Errorf("host or url is required")
		}
	case CmdExclusionsGet, CmdExclusionsSet, CmdStatsGet:
	default:
		return fmt.Errorf("Unknown command: %q", r.Cmd)
	}

	if r.URL != "" {
		if len(r.URL) > MaxURLLength {
			return fmt.Errorf("url exceeds maximum length of %d", MaxURLLength)
		}
		u, err := url.Parse(r.URL)
		if err != nil {
			return fmt.Errorf("invalid url: %w", err)
		}
		scheme := strings.ToLower(u.Scheme)
		if scheme != "http" && scheme != "https" {
			return fmt.Errorf("url scheme must be http or https, got: %s", scheme)
		}
	}

	if len(r.Host) > MaxHostLength {
		return fmt.Errorf("host exceeds maximum length of %d", MaxHostLength)
	}

	if r.MaxTimeout < 0 {
		return fmt.Errorf("maxTimeout cannot be negative")
	}
	if r.MaxTimeout > MaxTimeoutMs {
		return fmt.Errorf("maxTimeout exceeds maximum of %d ms", MaxTimeoutMs)
	}

	if r.SettleMs < 0 {
		return fmt.Errorf("settleMs cannot be negative")
	}
	if r.SettleMs > MaxSettleMs {
		return fmt.Errorf("settleMs exceeds maximum of %d ms", MaxSettleMs)
	}

	if len(r.Patterns) > MaxPatterns {
		return fmt.Errorf("too many patterns (maximum %d)", MaxPatterns)
	}
	for i, p := range r.Patterns {
		if len(p) > MaxPatternLength {
			return fmt.Errorf("patterns[%d]: exceeds maximum length of %d", i, MaxPatternLength)
		}
	}

	if r.Viewport != nil {
		if err := r.Viewport.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Response represents an API response.
type Response struct {
	Status     string                         `json:"status"`
	Message    string                         `json:"message"`
	StartTime  int64                          `json:"startTimestamp"`
	EndTime    int64                          `json:"endTimestamp"`
	Version    string                         `json:"version"`
	Solution   *Solution                      `json:"solution,omitempty"`
	Exclusions []string                       `json:"exclusions,omitempty"`
	Check      *ExclusionCheck                `json:"check,omitempty"`
	Stats      map[string]stats.HostStatsJSON `json:"stats,omitempty"`
}

// Solution contains the result of a successful clean.
type Solution struct {
	URL        string         `json:"url"`
	HTML       string         `json:"html"`
	Report     *engine.Report `json:"report"`
	Screenshot string         `json:"screenshot,omitempty"` // base64 PNG

	// HTMLTruncated is set when the serialized page exceeded the size limit.
	HTMLTruncated *bool `json:"htmlTruncated,omitempty"`
}

// ExclusionCheck reports whether a host would be skipped by the engine.
type ExclusionCheck struct {
	Host     string `json:"host"`
	Excluded bool   `json:"excluded"`
	Pattern  string `json:"pattern,omitempty"`
}

// Commands supported by the API.
const (
	CmdPageClean       = "page.clean"
	CmdHTMLClean       = "html.clean"
	CmdExclusionsGet   = "exclusions.get"
	CmdExclusionsSet   = "exclusions.set"
	CmdExclusionsCheck = "exclusions.check"
	CmdStatsGet        = "stats.get"
)

// Status values for API responses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)
