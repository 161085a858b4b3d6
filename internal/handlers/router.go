package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/darkpattern-remover/internal/cleaner"
	"github.com/Rorqualx/darkpattern-remover/internal/dom"
	"github.com/Rorqualx/darkpattern-remover/internal/security"
	"github.com/Rorqualx/darkpattern-remover/internal/stats"
	"github.com/Rorqualx/darkpattern-remover/internal/types"
)

type commandFunc func(h *Handler, r *http.Request, req *types.Request, startTime time.Time) (*types.Response, error)

var commands = map[string]commandFunc{
	types.CmdPageClean:       (*Handler).handlePageClean,
	types.CmdHTMLClean:       (*Handler).handleHTMLClean,
	types.CmdExclusionsGet:   (*Handler).handleExclusionsGet,
	types.CmdExclusionsSet:   (*Handler).handleExclusionsSet,
	types.CmdExclusionsCheck: (*Handler).handleExclusionsCheck,
	types.CmdStatsGet:        (*Handler).handleStatsGet,
}

// routeCommand validates the request, dispatches it and writes the
// response envelope.
func (h *Handler) routeCommand(w http.ResponseWriter, r *http.Request, req *types.Request, startTime time.Time) {
	fn, ok := commands[req.Cmd]
	if !ok {
		h.writeError(w, fmt.Sprintf("Unknown command: %q", req.Cmd), startTime)
		return
	}

	if err := req.Validate(); err != nil {
		recordRequest(req.Cmd, types.StatusError, startTime)
		h.writeError(w, err.Error(), startTime)
		return
	}

	resp, err := fn(h, r, req, startTime)
	if err != nil {
		log.Warn().Err(err).Str("cmd", req.Cmd).Msg("Command failed")
		recordRequest(req.Cmd, types.StatusError, startTime)
		h.writeError(w, err.Error(), startTime)
		return
	}

	recordRequest(req.Cmd, types.StatusOK, startTime)
	resp.EndTime = time.Now().UnixMilli()
	h.writeJSONResponse(w, http.StatusOK, resp)
}

func viewport(req *types.Request) dom.Viewport {
	if req.Viewport == nil {
		return dom.Viewport{}
	}
	return dom.Viewport{Width: float64(req.Viewport.Width), Height: float64(req.Viewport.Height)}
}

func requestHost(req *types.Request) string {
	if req.Host != "" {
		return req.Host
	}
	return stats.ExtractHost(req.URL)
}

func (h *Handler) handlePageClean(r *http.Request, req *types.Request, startTime time.Time) (*types.Response, error) {
	if h.pool == nil {
		return nil, fmt.Errorf("page.clean is unavailable: no browser pool")
	}
	if err := h.validateURL(r, req.URL); err != nil {
		log.Warn().Err(err).Str("url", security.RedactURL(req.URL)).Msg("URL validation failed")
		return nil, fmt.Errorf("Invalid URL: %w", err)
	}

	res, err := h.cleaner.CleanURL(r.Context(), &cleaner.PageOptions{
		URL:          req.URL,
		Timeout:      h.timeout(req),
		Settle:       time.Duration(req.SettleMs) * time.Millisecond,
		Screenshot:   req.ReturnScreenshot,
		DisableMedia: req.DisableMedia,
		Viewport:     viewport(req),
	})
	if err != nil {
		return nil, err
	}

	resp := h.ok(cleanMessage(res), startTime)
	resp.Solution = solution(res)
	return resp, nil
}

func (h *Handler) handleHTMLClean(r *http.Request, req *types.Request, startTime time.Time) (*types.Response, error) {
	res, err := h.cleaner.CleanHTML(r.Context(), req.HTML, requestHost(req), viewport(req))
	if err != nil {
		return nil, err
	}
	res.URL = req.URL

	resp := h.ok(cleanMessage(res), startTime)
	resp.Solution = solution(res)
	return resp, nil
}

func (h *Handler) handleExclusionsGet(r *http.Request, _ *types.Request, startTime time.Time) (*types.Response, error) {
	resp := h.ok("Exclusions retrieved", startTime)
	resp.Exclusions = h.cleaner.Exclusions(r.Context())
	if resp.Exclusions == nil {
		resp.Exclusions = []string{}
	}
	return resp, nil
}

func (h *Handler) handleExclusionsSet(r *http.Request, req *types.Request, startTime time.Time) (*types.Response, error) {
	saved, err := h.cleaner.SetExclusions(r.Context(), req.Patterns)
	if err != nil {
		return nil, fmt.Errorf("Error saving settings: %w", err)
	}
	log.Info().Int("patterns", len(saved)).Msg("Exclusions updated")

	resp := h.ok("Exclusions saved", startTime)
	resp.Exclusions = saved
	return resp, nil
}

func (h *Handler) handleExclusionsCheck(r *http.Request, req *types.Request, startTime time.Time) (*types.Response, error) {
	host := requestHost(req)
	pattern, excluded := h.cleaner.CheckHost(r.Context(), host)

	resp := h.ok("Exclusion checked", startTime)
	resp.Check = &types.ExclusionCheck{Host: host, Excluded: excluded, Pattern: pattern}
	return resp, nil
}

func (h *Handler) handleStatsGet(_ *http.Request, req *types.Request, startTime time.Time) (*types.Response, error) {
	mgr := h.cleaner.Stats()
	if mgr == nil {
		return nil, fmt.Errorf("statistics are disabled")
	}

	all := mgr.AllStats()
	if host := requestHost(req); host != "" {
		filtered := make(map[string]stats.HostStatsJSON, 1)
		if s, ok := all[host]; ok {
			filtered[host] = s
		}
		all = filtered
	}

	resp := h.ok("Statistics retrieved", startTime)
	resp.Stats = all
	return resp, nil
}

func cleanMessage(res *cleaner.Result) string {
	switch {
	case res.Report.Excluded:
		return "Host is excluded, page left unchanged"
	case res.Report.Error != "":
		return "Cleaned with errors: " + res.Report.Error
	default:
		return fmt.Sprintf("Removed %d element(s)", len(res.Report.Removals))
	}
}
