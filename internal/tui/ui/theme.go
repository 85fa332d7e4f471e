package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/haptalk/internal/status"
)

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor      tcell.Color
	FgColor      tcell.Color
	BorderColor  tcell.Color
	TitleColor   tcell.Color
	MenuKeyColor tcell.Color
	MineColor    tcell.Color
	PeerColor    tcell.Color
	FlashColor   tcell.Color
}

// DefaultTheme returns a k9s-inspired dark theme.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:      tcell.ColorBlack,
		FgColor:      tcell.ColorCadetBlue,
		BorderColor:  tcell.ColorDodgerBlue,
		TitleColor:   tcell.ColorFuchsia,
		MenuKeyColor: tcell.ColorDodgerBlue,
		MineColor:    tcell.ColorAqua,
		PeerColor:    tcell.ColorOrange,
		FlashColor:   tcell.ColorNavajoWhite,
	}
}

// StateColor returns the tview color tag name for a connection state.
func StateColor(s status.State) string {
	switch s {
	case status.Connected:
		return "green"
	case status.Connecting:
		return "yellow"
	default:
		return "red"
	}
}
