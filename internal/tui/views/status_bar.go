package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/haptalk/internal/status"
	"github.com/matheus3301/haptalk/internal/tui/ui"
	"github.com/rivo/tview"
)

// StatusBar displays the profile, session id, connection state and flash line.
type StatusBar struct {
	*tview.TextView
	profile   string
	sessionID string
	state     status.State
	failed    int
	hints     []string
	flash     string
}

// NewStatusBar creates a new status bar.
func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, state: status.Disconnected}
}

// SetIdentity sets the profile name and session id.
func (sb *StatusBar) SetIdentity(profile, sessionID string) {
	sb.profile = profile
	sb.sessionID = sessionID
	sb.render()
}

// SetState updates the connection state display.
func (sb *StatusBar) SetState(s status.State) {
	sb.state = s
	sb.render()
}

// SetFailed updates the failed message counter.
func (sb *StatusBar) SetFailed(n int) {
	sb.failed = n
	sb.render()
}

// SetHints sets the key hints.
func (sb *StatusBar) SetHints(hints []string) {
	sb.hints = hints
	sb.render()
}

// SetFlash sets a temporary message.
func (sb *StatusBar) SetFlash(msg string) {
	sb.flash = msg
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()
	_, _ = fmt.Fprint(sb, sb.line(time.Now()))
}

func (sb *StatusBar) line(now time.Time) string {
	line := fmt.Sprintf(" [::b]%s[-:-:-] %s | [%s]%s[-] | %s",
		tview.Escape(sb.profile), sb.sessionID, ui.StateColor(sb.state), sb.state, now.Format("15:04"))
	if sb.failed > 0 {
		line += fmt.Sprintf(" | [red]%d failed[-]", sb.failed)
	}
	if len(sb.hints) > 0 {
		line += " | " + strings.Join(sb.hints, " ")
	}
	if sb.flash != "" {
		line += fmt.Sprintf(" | [yellow]%s[-]", tview.Escape(sb.flash))
	}
	return line
}
