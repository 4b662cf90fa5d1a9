package sessionwatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	warnBox      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("214")).Padding(1, 2)
	warnTitle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type sessionView struct {
	User *struct {
		ID    string   `json:"id"`
		Name  string   `json:"name"`
		Email string   `json:"email"`
		Roles []string `json:"roles"`
	} `json:"user"`
	IsAuthenticated bool   `json:"is_authenticated"`
	IsLoading       bool   `json:"is_loading"`
	Error           string `json:"error"`
	Timeout         struct {
		StateName       string `json:"state"`
		WarningVisible  bool   `json:"warning_visible"`
		MillisRemaining int64  `json:"milliseconds_remaining"`
	} `json:"timeout"`
}

type pollMsg struct {
	view sessionView
	err  error
}

type actionMsg struct{ err error }

type tickMsg time.Time

// Model is a live terminal view of the gateway's session state.
type Model struct {
	baseURL string
	client  *http.Client

	view    sessionView
	pollErr error
	lastErr error
}

func New(baseURL string) Model {
	return Model{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.poll(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) poll() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/session", nil)
		if err != nil {
			return pollMsg{err: err}
		}
		req.Header.Set("Accept", "application/json")
		resp, err := m.client.Do(req)
		if err != nil {
			return pollMsg{err: err}
		}
		defer func() { _ = resp.Body.Close() }()
		var envelope struct {
			Data sessionView `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return pollMsg{err: err}
		}
		return pollMsg{view: envelope.Data}
	}
}

func (m Model) post(path string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, nil)
		if err != nil {
			return actionMsg{err: err}
		}
		req.Header.Set("Accept", "application/json")
		resp, err := m.client.Do(req)
		if err != nil {
			return actionMsg{err: err}
		}
		_ = resp.Body.Close()
		if resp.StatusCode >= 400 {
			return actionMsg{err: fmt.Errorf("%s: %s", path, resp.Status)}
		}
		return actionMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, tea.Batch(m.poll(), tick())
	case pollMsg:
		if msg.err != nil {
			m.pollErr = msg.err
			return m, nil
		}
		m.pollErr = nil
		m.view = msg.view
		return m, nil
	case actionMsg:
		m.lastErr = msg.err
		return m, m.poll()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "s":
			return m, m.post("/session/stay")
		case "l":
			return m, m.post("/session/logout")
		case "a":
			return m, m.post("/session/activity")
		}
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("console session") + "\n\n")

	if m.pollErr != nil {
		b.WriteString(offlineStyle.Render("gateway unreachable: "+m.pollErr.Error()) + "\n")
		b.WriteString(helpStyle.Render("q quit") + "\n")
		return b.String()
	}

	if m.view.User != nil {
		b.WriteString(row("user", m.view.User.Name+" <"+m.view.User.Email+">"))
		b.WriteString(row("roles", strings.Join(m.view.User.Roles, ", ")))
	} else {
		b.WriteString(row("user", "signed out"))
	}
	b.WriteString(row("authenticated", fmt.Sprintf("%v", m.view.IsAuthenticated)))
	if m.view.IsLoading {
		b.WriteString(row("status", "request in flight"))
	}
	if m.view.Error != "" {
		b.WriteString(row("error", m.view.Error))
	}
	b.WriteString(row("timeout state", m.view.Timeout.StateName))
	if m.view.IsAuthenticated {
		b.WriteString(row("remaining", formatRemaining(m.view.Timeout.MillisRemaining)))
	}

	if m.view.Timeout.WarningVisible {
		b.WriteString("\n" + warnBox.Render(
			warnTitle.Render("Session expiring")+"\n"+
				valueStyle.Render("Signing out in "+formatRemaining(m.view.Timeout.MillisRemaining))+"\n"+
				helpStyle.Render("s stay signed in · l sign out now"),
		) + "\n")
	}

	if m.lastErr != nil {
		b.WriteString("\n" + offlineStyle.Render(m.lastErr.Error()) + "\n")
	}
	b.WriteString("\n" + helpStyle.Render("a activity · s stay · l logout · q quit") + "\n")
	return b.String()
}

func row(label, value string) string {
	return labelStyle.Render(fmt.Sprintf("%-14s", label)) + " " + valueStyle.Render(value) + "\n"
}

func formatRemaining(millis int64) string {
	if millis < 0 {
		millis = 0
	}
	d := time.Duration(millis) * time.Millisecond
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", mins, secs)
}

// Run blocks until the watcher exits.
func Run(baseURL string) error {
	_, err := tea.NewProgram(New(baseURL)).Run()
	return err
}
