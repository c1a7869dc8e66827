// Package notify carries transient user notifications from the session and queue services to
// whatever presents them.
package notify

// Notifier shows a short message to the user.
type Notifier interface {
	Success(text string)
	Error(text string)
}

// Func adapts a function taking a level and a text to a Notifier.
type Func func(level, text string)

// Success calls f with LevelSuccess.
func (f Func) Success(text string) { f(LevelSuccess, text) }

// Error calls f with LevelError.
func (f Func) Error(text string) { f(LevelError, text) }

const (
	LevelSuccess = "SUCCESS"
	LevelError   = "ERROR"
)

// Discard drops every notification.
var Discard Notifier = Func(func(string, string) {})
