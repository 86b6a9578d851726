package session

import "time"

// Clipboard is the narrow surface the session manager needs to implement
// the clipboard-clear timer — spec §4.7 "Clipboard clear". The actual
// clipboard belongs to the host UI/browser (out of scope per spec §1); the
// keeper only owns the timer and the best-effort Set("") call on expiry.
type Clipboard interface {
	Set(text string) error
}

// SetClipboard wires the concrete clipboard implementation. Safe to leave
// unset — CopyToClipboard and CheckClipboard degrade to timer-only no-ops.
func (m *Manager) SetClipboard(c Clipboard) { m.clipboard = c }

// CopyToClipboard writes text to the clipboard (best-effort) and arms the
// auto-clear timer — spec §4.8 "COPY_TO_CLIPBOARD".
func (m *Manager) CopyToClipboard(text string, now time.Time) {
	if m.clipboard != nil {
		_ = m.clipboard.Set(text)
	}
	m.TouchClipboard(now)
}
