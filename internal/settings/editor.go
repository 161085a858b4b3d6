// Package settings implements the terminal editor for the excluded-host
// list. It only talks to the settings store; running engines pick up the
// change on their next run.
package settings

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Rorqualx/darkpattern-remover/internal/exclusion"
	"github.com/Rorqualx/darkpattern-remover/internal/store"
)

// StatusTimeout is how long a status message stays visible.
const StatusTimeout = 1500 * time.Millisecond

const (
	statusSaved     = "Saved"
	statusSaveError = "Error saving settings"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

type loadedMsg struct{ patterns []string }

type savedMsg struct {
	patterns []string
	err      error
}

type clearStatusMsg struct{ seq int }

// Model is the bubbletea model of the editor.
type Model struct {
	ctx   context.Context
	store store.Store

	input textarea.Model

	status    string
	statusErr bool
	statusSeq int

	loaded   bool
	quitting bool
}

// New returns an editor bound to s.
func New(ctx context.Context, s store.Store) Model {
	input := textarea.New()
	input.Placeholder = "example.com"
	input.ShowLineNumbers = false
	input.CharLimit = 0
	input.MaxHeight = 0
	input.SetHeight(12)
	input.Focus()

	return Model{
		ctx:   ctx,
		store: s,
		input: input,
	}
}

// Init loads the stored list.
func (m Model) Init() tea.Cmd {
	ctx, s := m.ctx, m.store
	return func() tea.Msg {
		return loadedMsg{patterns: store.ReadExcludedHosts(ctx, s)}
	}
}

// Text returns the buffer contents.
func (m Model) Text() string {
	return m.input.Value()
}

// Status returns the current status line.
func (m Model) Status() string {
	return m.status
}

func (m Model) save() tea.Cmd {
	ctx, s, text := m.ctx, m.store, m.Text()
	return func() tea.Msg {
		patterns := exclusion.ParseLines(text)
		return savedMsg{patterns: patterns, err: s.Set(ctx, store.KeyExcludedHosts, patterns)}
	}
}

func (m *Model) setStatus(msg string, isErr bool) tea.Cmd {
	m.status = msg
	m.statusErr = isErr
	m.statusSeq++
	seq := m.statusSeq
	return tea.Tick(StatusTimeout, func(time.Time) tea.Msg {
		return clearStatusMsg{seq: seq}
	})
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadedMsg:
		m.input.SetValue(exclusion.FormatLines(msg.patterns))
		m.loaded = true
		return m, textarea.Blink

	case savedMsg:
		if msg.err != nil {
			return m, m.setStatus(statusSaveError, true)
		}
		return m, m.setStatus(statusSaved, false)

	case clearStatusMsg:
		// A newer status resets the timer.
		if msg.seq == m.statusSeq {
			m.status = ""
			m.statusErr = false
		}
		return m, nil

	case tea.WindowSizeMsg:
		if msg.Width > 6 {
			m.input.SetWidth(msg.Width - 6)
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyCtrlS:
			return m, m.save()
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Excluded hosts"))
	b.WriteString("\n")
	b.WriteString(hintStyle.Render("One pattern per line: example.com (with subdomains) or .example.com (subdomains only)"))
	b.WriteString("\n")

	if !m.loaded {
		b.WriteString("Loading...\n")
		return b.String()
	}

	b.WriteString(boxStyle.Render(m.input.View()))
	b.WriteString("\n")

	switch {
	case m.status == "":
		b.WriteString("\n")
	case m.statusErr:
		b.WriteString(errStyle.Render(m.status) + "\n")
	default:
		b.WriteString(okStyle.Render(m.status) + "\n")
	}
	b.WriteString(hintStyle.Render("ctrl+s save • esc quit"))
	return b.String()
}

// Run starts the editor on the terminal and blocks until it exits.
func Run(ctx context.Context, s store.Store, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, opts...)
	_, err := tea.NewProgram(New(ctx, s), opts...).Run()
	return err
}
