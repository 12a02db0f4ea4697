// Package escape implements the operator escape hatches: single-use
// allow-once tokens, session and global pauses, and tool trust. Every store is
// keyed by session id and safe for concurrent use.
package escape

// Error is a comparable reason code. Use errors.Is to match.
type Error string

func (e Error) Error() string { return string(e) }

// State errors: the request was well formed but the current state refuses it.
const (
	ErrNoToken        Error = "no_token"
	ErrExpired        Error = "expired"
	ErrWrongScope     Error = "wrong_scope"
	ErrAlreadyUsed    Error = "already_used"
	ErrAlreadyPaused  Error = "already_paused"
	ErrNotPaused      Error = "not_paused"
	ErrAlreadyTrusted Error = "already_trusted"
	ErrNotTrusted     Error = "not_trusted"
)

// Policy errors: the request itself is invalid.
const (
	ErrInvalidScope    Error = "invalid_scope"
	ErrInvalidDuration Error = "invalid_duration"
	ErrInvalidToolName Error = "invalid_tool_name"
	ErrPatternTooBroad Error = "pattern_too_broad"
	ErrInvalidSession  Error = "invalid_session"
)

// GlobalSessionID is the reserved id for records that apply to every session.
const GlobalSessionID = "__global__"
