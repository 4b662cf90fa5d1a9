package sessionwatch

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestFormatRemaining(t *testing.T) {
	cases := map[int64]string{
		0:      "00:00",
		-500:   "00:00",
		90000:  "01:30",
		299000: "04:59",
	}
	for millis, want := range cases {
		if got := formatRemaining(millis); got != want {
			t.Fatalf("formatRemaining(%d)=%q want %q", millis, got, want)
		}
	}
}

func TestViewShowsWarningOverlay(t *testing.T) {
	m := New("http://127.0.0.1:4600")
	view := sessionView{IsAuthenticated: true}
	view.Timeout.StateName = "warning"
	view.Timeout.WarningVisible = true
	view.Timeout.MillisRemaining = 120000

	updated, _ := m.Update(pollMsg{view: view})
	out := updated.(Model).View()
	if !strings.Contains(out, "Session expiring") {
		t.Fatalf("expected warning overlay, got:\n%s", out)
	}
	if !strings.Contains(out, "02:00") {
		t.Fatalf("expected countdown in overlay, got:\n%s", out)
	}
}

func TestViewSignedOut(t *testing.T) {
	m := New("http://127.0.0.1:4600")
	updated, _ := m.Update(pollMsg{view: sessionView{}})
	out := updated.(Model).View()
	if !strings.Contains(out, "signed out") {
		t.Fatalf("expected signed out view, got:\n%s", out)
	}
}

func TestQuitKey(t *testing.T) {
	m := New("http://127.0.0.1:4600")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if msg := cmd(); msg != tea.Quit() {
		t.Fatalf("expected tea.Quit, got %T", msg)
	}
}
