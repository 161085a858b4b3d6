package settings

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Rorqualx/darkpattern-remover/internal/store"
)

type failingStore struct{ store.Store }

func (failingStore) Set(context.Context, string, []string) error {
	return errors.New("disk full")
}

func runCmd(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		t.Fatal("Expected a command")
	}
	next, _ := m.Update(cmd())
	return next.(Model)
}

func typeText(m Model, s string) Model {
	for _, r := range s {
		var msg tea.KeyMsg
		switch r {
		case '\n':
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case ' ':
			msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
		}
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestLoadShowsOnePatternPerLine(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	_ = s.Set(ctx, store.KeyExcludedHosts, []string{"example.com", ".ads.net"})

	m := New(ctx, s)
	m = runCmd(t, m, m.Init())

	if m.Text() != "example.com\n.ads.net" {
		t.Errorf("Expected loaded text, got %q", m.Text())
	}
}

func TestLoadFailsOpen(t *testing.T) {
	m := New(context.Background(), nil)
	m = runCmd(t, m, m.Init())

	if m.Text() != "" {
		t.Errorf("Expected empty buffer, got %q", m.Text())
	}
	if !m.loaded {
		t.Error("Expected editor to be loaded")
	}
}

func TestEditAndSave(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	m := New(ctx, s)
	m = runCmd(t, m, m.Init())
	m = typeText(m, "  example.com \n\n.tracker.io\n")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	m = runCmd(t, next.(Model), cmd)

	got, ok, err := s.Get(ctx, store.KeyExcludedHosts)
	if err != nil || !ok {
		t.Fatalf("Expected stored list, got ok=%v err=%v", ok, err)
	}
	if len(got) != 2 || got[0] != "example.com" || got[1] != ".tracker.io" {
		t.Errorf("Expected trimmed non-blank lines, got %v", got)
	}
	if m.Status() != "Saved" {
		t.Errorf("Expected status 'Saved', got %q", m.Status())
	}
}

func TestSaveError(t *testing.T) {
	ctx := context.Background()
	m := New(ctx, failingStore{store.NewMemoryStore()})
	m = runCmd(t, m, m.Init())
	m = typeText(m, "example.com")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	m = runCmd(t, next.(Model), cmd)

	if m.Status() != "Error saving settings" {
		t.Errorf("Expected error status, got %q", m.Status())
	}
}

func TestStatusClears(t *testing.T) {
	m := New(context.Background(), store.NewMemoryStore())
	m = runCmd(t, m, m.Init())

	next, _ := m.Update(savedMsg{})
	m = next.(Model)
	first := m.statusSeq

	next, _ = m.Update(savedMsg{})
	m = next.(Model)

	// The first timer must not clear the newer status.
	next, _ = m.Update(clearStatusMsg{seq: first})
	m = next.(Model)
	if m.Status() != "Saved" {
		t.Errorf("Expected status to survive stale clear, got %q", m.Status())
	}

	next, _ = m.Update(clearStatusMsg{seq: m.statusSeq})
	m = next.(Model)
	if m.Status() != "" {
		t.Errorf("Expected status to be cleared, got %q", m.Status())
	}
}

func TestBackspaceJoinsLines(t *testing.T) {
	m := New(context.Background(), store.NewMemoryStore())
	m = runCmd(t, m, m.Init())
	m = typeText(m, "ab\ncd")

	// Move to the start of the second line and join.
	for i := 0; i < 2; i++ {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyLeft})
		m = next.(Model)
	}
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyBackspace})
	m = next.(Model)

	if m.Text() != "abcd" {
		t.Errorf("Expected joined line, got %q", m.Text())
	}
	if m.input.Line() != 0 {
		t.Errorf("Expected cursor on first line, got %d", m.input.Line())
	}
}

func TestQuit(t *testing.T) {
	m := New(context.Background(), store.NewMemoryStore())
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil {
		t.Fatal("Expected quit command")
	}
	if next.(Model).View() != "" {
		t.Error("Expected empty view after quit")
	}
}

func TestHintMatchesPatternSyntax(t *testing.T) {
	m := New(context.Background(), store.NewMemoryStore())
	m = runCmd(t, m, m.Init())

	view := m.View()
	if strings.Contains(view, "*.") {
		t.Errorf("Expected no wildcard syntax in hint, got %q", view)
	}
	if !strings.Contains(view, ".example.com") {
		t.Errorf("Expected leading-dot example in hint, got %q", view)
	}
}

func TestMultiLineEditing(t *testing.T) {
	m := New(context.Background(), store.NewMemoryStore())
	m = runCmd(t, m, m.Init())
	m = typeText(m, "one\ntwo\nthree")

	if m.input.LineCount() != 3 {
		t.Errorf("Expected 3 lines, got %d", m.input.LineCount())
	}

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = next.(Model)
	m = typeText(m, "!")

	if m.Text() != "one\ntwo!\nthree" {
		t.Errorf("Expected edit on second line, got %q", m.Text())
	}
}
