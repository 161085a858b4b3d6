package types

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/Rorqualx/darkpattern-remover/internal/engine"
)

func TestRequestJSONFieldNames(t *testing.T) {
	req := Request{
		Cmd:              CmdPageClean,
		URL:              "https://example.com",
		HTML:             "<p>x</p>",
		Host:             "example.com",
		MaxTimeout:       60000,
		SettleMs:         500,
		ReturnScreenshot: true,
		DisableMedia:     true,
		Patterns:         []string{"example.com"},
		Viewport:         &Viewport{Width: 1280, Height: 720},
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}
	jsonStr := string(data)

	for _, field := range []string{
		`"cmd"`, `"url"`, `"html"`, `"host"`, `"maxTimeout"`, `"settleMs"`,
		`"returnScreenshot"`, `"disableMedia"`, `"patterns"`, `"viewport"`,
	} {
		if !strings.Contains(jsonStr, field) {
			t.Errorf("Expected field %s not found in JSON: %s", field, jsonStr)
		}
	}
}

func TestResponseOmitsEmptySections(t *testing.T) {
	resp := Response{Status: StatusOK, Message: "", Version: "1.0.0"}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Failed to marshal response: %v", err)
	}
	jsonStr := string(data)

	for _, field := range []string{`"solution"`, `"exclusions"`, `"check"`, `"stats"`} {
		if strings.Contains(jsonStr, field) {
			t.Errorf("Expected %s to be omitted, got %s", field, jsonStr)
		}
	}
	if !strings.Contains(jsonStr, `"startTimestamp"`) {
		t.Errorf("Expected startTimestamp in %s", jsonStr)
	}
}

func TestSolutionCarriesReport(t *testing.T) {
	sol := Solution{
		URL:  "https://example.com/",
		HTML: "<html></html>",
		Report: &engine.Report{
			Host:     "example.com",
			Removals: []engine.Removal{{Tag: "DIV", Reason: engine.ReasonText, Pattern: "we use cookies"}},
		},
	}

	data, err := json.Marshal(sol)
	if err != nil {
		t.Fatalf("Failed to marshal solution: %v", err)
	}
	if !strings.Contains(string(data), `"reason":"text"`) {
		t.Errorf("Expected removal reason in %s", data)
	}
	if strings.Contains(string(data), `"screenshot"`) {
		t.Errorf("Expected screenshot to be omitted in %s", data)
	}
}

func TestRequestValidate(t *testing.T) {
	long := strings.Repeat("a", MaxPatternLength+1)

	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"empty cmd", Request{}, true},
		{"unknown cmd", Request{Cmd: "request.get"}, true},
		{"page.clean without url", Request{Cmd: CmdPageClean}, true},
		{"page.clean", Request{Cmd: CmdPageClean, URL: "https://example.com"}, false},
		{"page.clean ftp", Request{Cmd: CmdPageClean, URL: "ftp://example.com"}, true},
		{"html.clean without html", Request{Cmd: CmdHTMLClean}, true},
		{"html.clean", Request{Cmd: CmdHTMLClean, HTML: "<p>x</p>"}, false},
		{"exclusions.get", Request{Cmd: CmdExclusionsGet}, false},
		{"exclusions.set empty", Request{Cmd: CmdExclusionsSet}, false},
		{"exclusions.set long pattern", Request{Cmd: CmdExclusionsSet, Patterns: []string{long}}, true},
		{"exclusions.check without host", Request{Cmd: CmdExclusionsCheck}, true},
		{"exclusions.check", Request{Cmd: CmdExclusionsCheck, Host: "example.com"}, false},
		{"stats.get", Request{Cmd: CmdStatsGet}, false},
		{"negative timeout", Request{Cmd: CmdStatsGet, MaxTimeout: -1}, true},
		{"huge timeout", Request{Cmd: CmdStatsGet, MaxTimeout: MaxTimeoutMs + 1}, true},
		{"negative settle", Request{Cmd: CmdStatsGet, SettleMs: -1}, true},
		{"huge settle", Request{Cmd: CmdStatsGet, SettleMs: MaxSettleMs + 1}, true},
		{"small viewport", Request{Cmd: CmdHTMLClean, HTML: "x", Viewport: &Viewport{Width: 10, Height: 10}}, true},
		{"valid viewport", Request{Cmd: CmdHTMLClean, HTML: "x", Viewport: &Viewport{Width: 1280, Height: 720}}, false},
		{"long host", Request{Cmd: CmdExclusionsCheck, Host: strings.Repeat("h", MaxHostLength+1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRequestValidateSentinels(t *testing.T) {
	if err := (&Request{Cmd: CmdPageClean}).Validate(); !errors.Is(err, ErrURLRequired) {
		t.Errorf("Expected ErrURLRequired, got %v", err)
	}
	if err := (&Request{Cmd: CmdHTMLClean}).Validate(); !errors.Is(err, ErrHTMLRequired) {
		t.Errorf("Expected ErrHTMLRequired, got %v", err)
	}
}

func TestUnknownCommandQuoted(t *testing.T) {
	err := (&Request{Cmd: "bad\ncmd"}).Validate()
	if err == nil {
		t.Fatal("Expected error for unknown command")
	}
	if strings.Contains(err.Error(), "\n") {
		t.Errorf("Expected command to be quoted, got %q", err.Error())
	}
}
