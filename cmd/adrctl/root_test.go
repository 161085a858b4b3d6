package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd()

	if cmd.Use != "adrctl" {
		t.Errorf("Expected use 'adrctl', got %q", cmd.Use)
	}
	if cmd.Short == "" || cmd.Long == "" {
		t.Error("Expected short and long descriptions")
	}
	if !cmd.SilenceUsage || !cmd.SilenceErrors {
		t.Error("Expected usage and errors to be silenced")
	}

	for _, name := range []string{"store-backend", "store-path", "log-level"} {
		if cmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("Expected persistent flag %q", name)
		}
	}

	want := map[string]bool{"check": false, "clean": false, "exclusions": false}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("Expected subcommand %q", name)
		}
	}
}

// run executes the root command against a file store in a temp dir.
func run(t *testing.T, storePath string, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--store-backend", "file", "--store-path", storePath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func storeFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "settings.json")
}

func TestExclusionsAddListRemove(t *testing.T) {
	path := storeFile(t)

	if _, err := run(t, path, "", "exclusions", "add", "example.com", " .tracker.io ", "example.com"); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	out, err := run(t, path, "", "exclusions", "list")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if out != "example.com\n.tracker.io\n" {
		t.Errorf("Expected two patterns, got %q", out)
	}

	if _, err := run(t, path, "", "exclusions", "remove", "example.com"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	out, _ = run(t, path, "", "exclusions", "list")
	if out != ".tracker.io\n" {
		t.Errorf("Expected one pattern after remove, got %q", out)
	}
}

func TestCheckCmd(t *testing.T) {
	path := storeFile(t)
	if _, err := run(t, path, "", "exclusions", "add", ".example.com"); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	out, err := run(t, path, "", "check", "shop.example.com")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !strings.Contains(out, `excluded by ".example.com"`) {
		t.Errorf("Expected excluded output, got %q", out)
	}

	out, _ = run(t, path, "", "check", "example.org")
	if !strings.Contains(out, "not excluded") {
		t.Errorf("Expected not excluded output, got %q", out)
	}
}

func TestCheckCmdRequiresHost(t *testing.T) {
	if _, err := run(t, storeFile(t), "", "check"); err == nil {
		t.Error("Expected error without a host argument")
	}
}

func TestCleanCmdRequiresInput(t *testing.T) {
	if _, err := run(t, storeFile(t), "", "clean"); err == nil {
		t.Error("Expected error without file or --url")
	}
	if _, err := run(t, storeFile(t), "", "clean", "page.html", "--url", "https://example.com"); err == nil {
		t.Error("Expected error with both file and --url")
	}
}

func TestCleanCmdExcludedHostReport(t *testing.T) {
	path := storeFile(t)
	if _, err := run(t, path, "", "exclusions", "add", "example.com"); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	doc := `<html><body><div class="cookie-banner">We use cookies</div></body></html>`
	out, err := run(t, path, doc, "clean", "-", "--host", "example.com", "--report")
	if err != nil {
		t.Fatalf("clean failed: %v", err)
	}

	var report struct {
		Excluded bool `json:"excluded"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("Expected JSON report, got %q: %v", out, err)
	}
	if !report.Excluded {
		t.Error("Expected report to mark the run as excluded")
	}
}

func TestCleanCmdWritesOutputFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "page.html")
	outPath := filepath.Join(dir, "clean.html")
	doc := `<html><body><p>Article text</p></body></html>`
	if err := os.WriteFile(in, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := run(t, filepath.Join(dir, "settings.json"), "", "clean", in, "-o", outPath); err != nil {
		t.Fatalf("clean failed: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("Expected output file: %v", err)
	}
	if !strings.Contains(string(data), "Article text") {
		t.Errorf("Expected article text in output, got %q", data)
	}
}

func TestExclusionsCmdSubcommands(t *testing.T) {
	cmd := NewExclusionsCmd()
	names := map[string]*cobra.Command{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = sub
	}
	for _, n := range []string{"list", "add", "remove", "edit"} {
		if names[n] == nil {
			t.Errorf("Expected exclusions subcommand %q", n)
		}
	}
}
