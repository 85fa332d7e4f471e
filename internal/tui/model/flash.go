package model

import (
	"sync"
	"time"
)

// Flash is a one-line notice shown in the status bar until it expires.
type Flash struct {
	mu      sync.Mutex
	text    string
	expires time.Time
	now     func() time.Time
}

func (f *Flash) clock() time.Time {
	if f.now != nil {
		return f.now()
	}
	return time.Now()
}

// Set replaces the notice with text, visible for d.
func (f *Flash) Set(text string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text = text
	f.expires = f.clock().Add(d)
}

// Get returns the notice, or "" once expired.
func (f *Flash) Get() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.clock().Before(f.expires) {
		return ""
	}
	return f.text
}

// Take returns the live notice and clears it.
func (f *Flash) Take() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	text := f.text
	live := f.clock().Before(f.expires)
	f.text, f.expires = "", time.Time{}
	if !live {
		return ""
	}
	return text
}
