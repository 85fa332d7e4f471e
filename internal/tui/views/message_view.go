package views

import (
	"fmt"
	"time"

	"github.com/matheus3301/haptalk/internal/store"
	"github.com/matheus3301/haptalk/internal/tui/model"
	"github.com/matheus3301/haptalk/internal/tui/ui"
	"github.com/rivo/tview"
)

// MessageView displays the whole conversation, oldest first.
type MessageView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewMessageView creates a new message view.
func NewMessageView(theme *ui.Theme) *MessageView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" HapTalk ")
	tv.SetBorderColor(theme.BorderColor)
	tv.SetTitleColor(theme.TitleColor)

	return &MessageView{TextView: tv, theme: theme}
}

// Update refreshes the message view with msgs, already in display order.
func (mv *MessageView) Update(msgs []store.Message) {
	mv.Clear()
	now := time.Now()
	for _, m := range msgs {
		_, _ = fmt.Fprint(mv, FormatMessage(m, now))
	}
	mv.ScrollToEnd()
}

// FormatMessage renders m with tview color tags. Sender and text are escaped.
func FormatMessage(m store.Message, now time.Time) string {
	color := "orange"
	mark := ""
	if m.IsMine {
		color = "aqua"
		mark = " " + statusTag(m.Status)
	}
	return fmt.Sprintf("[%s::b]%s[-:-:-] [::d]%s[-:-:-]%s\n%s\n\n",
		color, tview.Escape(sanitizeForTerminal(model.Label(m))),
		model.Clock(m.Timestamp, now), mark,
		tview.Escape(sanitizeForTerminal(m.Text)))
}

func statusTag(s store.Status) string {
	switch s {
	case store.StatusSent:
		return "[green]" + model.Mark(s) + "[-]"
	case store.StatusFailed:
		return "[red::b]" + model.Mark(s) + "[-:-:-]"
	default:
		return "[yellow]" + model.Mark(s) + "[-]"
	}
}
