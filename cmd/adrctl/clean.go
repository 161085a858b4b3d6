package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Rorqualx/darkpattern-remover/internal/browser"
	"github.com/Rorqualx/darkpattern-remover/internal/cleaner"
	"github.com/Rorqualx/darkpattern-remover/internal/config"
	"github.com/Rorqualx/darkpattern-remover/internal/dom"
	"github.com/Rorqualx/darkpattern-remover/internal/security"
	"github.com/Rorqualx/darkpattern-remover/internal/stats"
	"github.com/Rorqualx/darkpattern-remover/internal/store"
)

// NewCleanCmd creates the clean command.
func NewCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean [file]",
		Short: "Remove dark patterns from an HTML file or a live page",
		Long: `Clean runs the engine on a document and writes the cleaned HTML.

With a file argument (or "-" for stdin) the static back end is used and
--host names the host checked against the exclusion list. With --url the
page is loaded in headless Chrome and watched for late banners during the
settle window.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runClean,
	}

	cmd.Flags().String("url", "", "load and clean a live page")
	cmd.Flags().String("host", "", "host of a static document, for exclusion matching")
	cmd.Flags().StringP("output", "o", "", "write cleaned HTML to this file (default stdout)")
	cmd.Flags().Bool("report", false, "print the removal report as JSON instead of HTML")
	cmd.Flags().Int("width", 0, "viewport width (default $VIEWPORT_WIDTH)")
	cmd.Flags().Int("height", 0, "viewport height (default $VIEWPORT_HEIGHT)")
	cmd.Flags().Duration("settle", 0, "how long to watch a live page (default $SETTLE_TIME)")
	cmd.Flags().Duration("timeout", time.Minute, "live page timeout")
	cmd.Flags().String("screenshot", "", "write a PNG screenshot of the cleaned live page")

	return cmd
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	target, _ := cmd.Flags().GetString("url")

	if target == "" && len(args) == 0 {
		return fmt.Errorf("either a file argument or --url is required")
	}
	if target != "" && len(args) > 0 {
		return fmt.Errorf("a file argument and --url are mutually exclusive")
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	vp := dom.Viewport{Width: float64(cfg.ViewportWidth), Height: float64(cfg.ViewportHeight)}
	if w, _ := cmd.Flags().GetInt("width"); w > 0 {
		vp.Width = float64(w)
	}
	if h, _ := cmd.Flags().GetInt("height"); h > 0 {
		vp.Height = float64(h)
	}

	var res *cleaner.Result
	if target != "" {
		res, err = cleanLive(cmd, cfg, s, target, vp)
	} else {
		res, err = cleanFile(cmd, cfg, s, args[0], vp)
	}
	if err != nil {
		return err
	}

	return writeResult(cmd, res)
}

func cleanFile(cmd *cobra.Command, cfg *config.Config, s store.Store, path string, vp dom.Viewport) (*cleaner.Result, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	src, err := io.ReadAll(io.LimitReader(r, int64(cfg.MaxHTMLBytes)+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	host, _ := cmd.Flags().GetString("host")
	c := cleaner.New(nil, s, nil, cfg)
	return c.CleanHTML(cmd.Context(), string(src), host, vp)
}

func cleanLive(cmd *cobra.Command, cfg *config.Config, s store.Store, target string, vp dom.Viewport) (*cleaner.Result, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := security.ValidateURL(ctx, target); err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}

	cfg.BrowserPoolSize = 1
	pool, err := browser.NewPool(cfg)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	timeout, _ := cmd.Flags().GetDuration("timeout")
	settle, _ := cmd.Flags().GetDuration("settle")
	shot, _ := cmd.Flags().GetString("screenshot")

	mgr := stats.NewManager(1)
	defer mgr.Close()

	c := cleaner.New(pool, s, mgr, cfg)
	res, err := c.CleanURL(ctx, &cleaner.PageOptions{
		URL:          target,
		Timeout:      timeout,
		Settle:       settle,
		Screenshot:   shot != "",
		DisableMedia: true,
		Viewport:     vp,
	})
	if err != nil {
		return nil, err
	}

	if shot != "" && len(res.Screenshot) > 0 {
		if err := os.WriteFile(shot, res.Screenshot, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write screenshot: %w", err)
		}
	}
	return res, nil
}

func writeResult(cmd *cobra.Command, res *cleaner.Result) error {
	out := cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	if asReport, _ := cmd.Flags().GetBool("report"); asReport {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Report)
	}

	if res.Truncated {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: cleaned HTML was truncated")
	}
	_, err := io.WriteString(out, res.HTML)
	return err
}
