package guard

import (
	"log/slog"
	"sync"
	"time"
)

// Clipboard is the platform clipboard primitive. Implementations live in the
// presentation layer; the guard only sequences writes and timed clears.
type Clipboard interface {
	Write(content string) error
	Read() (string, error)
	Clear() error
}

// ClipboardGuard writes content to the clipboard and clears it after a
// timeout. The clear is best-effort and conditional: if something else
// overwrote the clipboard in the meantime, the guard leaves it alone.
type ClipboardGuard struct {
	clip Clipboard

	mu      sync.Mutex
	timer   *time.Timer
	lastSet string
}

// NewClipboardGuard wraps a platform clipboard.
func NewClipboardGuard(clip Clipboard) *ClipboardGuard {
	return &ClipboardGuard{clip: clip}
}

// Protect writes content to the clipboard and schedules a clear after
// timeout. Sensitive content always gets a clear timer; non-sensitive
// content with a zero timeout is left as a plain write. A second Protect
// call supersedes any pending clear.
func (g *ClipboardGuard) Protect(content string, timeout time.Duration, isSensitive bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.clip.Write(content); err != nil {
		return err
	}

	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.lastSet = content

	if timeout <= 0 && !isSensitive {
		return nil
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	g.timer = time.AfterFunc(timeout, func() {
		g.clearIfUnchanged(content)
	})
	return nil
}

// clearIfUnchanged clears the clipboard only when its current content is
// still what Protect set. The timer fires regardless of application
// foreground state.
func (g *ClipboardGuard) clearIfUnchanged(expected string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	current, err := g.clip.Read()
	if err != nil {
		slog.Warn("clipboard read failed during scheduled clear", "error", err)
		return
	}
	if current != expected {
		return
	}
	if err := g.clip.Clear(); err != nil {
		slog.Warn("clipboard clear failed", "error", err)
		return
	}
	g.lastSet = ""
}

// GetContent returns the current clipboard content, or empty when the
// clipboard is empty or unreadable.
func (g *ClipboardGuard) GetContent() string {
	content, err := g.clip.Read()
	if err != nil {
		return ""
	}
	return content
}
