package model

import (
	"fmt"
	"time"

	"github.com/matheus3301/haptalk/internal/store"
)

// Mark returns the delivery indicator shown next to a message.
func Mark(s store.Status) string {
	switch s {
	case store.StatusPending:
		return "…"
	case store.StatusSent:
		return "✓"
	case store.StatusFailed:
		return "!"
	default:
		return "?"
	}
}

// Label returns the display name of a message's author.
func Label(m store.Message) string {
	if m.IsMine {
		return "You"
	}
	return m.SenderID
}

// Clock formats a millisecond timestamp as HH:MM today, or MM/DD otherwise.
func Clock(ms int64, now time.Time) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms).In(now.Location())
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}

// CountFailed returns how many of msgs are FAILED.
func CountFailed(msgs []store.Message) int {
	n := 0
	for _, m := range msgs {
		if m.Status == store.StatusFailed {
			n++
		}
	}
	return n
}

// Plain renders m as one line without color tags.
func Plain(m store.Message, now time.Time) string {
	line := fmt.Sprintf("[%s] %s: %s", Clock(m.Timestamp, now), Label(m), m.Text)
	if m.IsMine {
		line += " " + Mark(m.Status)
	}
	return line
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
