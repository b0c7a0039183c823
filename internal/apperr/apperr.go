// Package apperr defines the typed errors shared by the queue, vote and
// membership engines, plus their HTTP status mapping.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindAuthRequired Kind = iota
	KindNotMember
	KindNotAuthorized
	KindAlreadyBanned
	KindAlreadyMember
	KindSongBanned
	KindInvalidVote
	KindNotFound
	KindConflict
	KindStore
)

// Error carries a kind for dispatch and an optional wrapped cause.
// Store errors always keep the original persistence failure attached.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Msg + ": " + e.Cause.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func AuthRequired() *Error {
	return &Error{Kind: KindAuthRequired, Msg: "authentication required"}
}

func NotMember(playlistID string) *Error {
	return &Error{Kind: KindNotMember, Msg: "not a member of playlist " + playlistID}
}

func NotAuthorized(msg string) *Error {
	return &Error{Kind: KindNotAuthorized, Msg: msg}
}

func AlreadyBanned(userID string) *Error {
	return &Error{Kind: KindAlreadyBanned, Msg: "user " + userID + " is already banned"}
}

func AlreadyMember(userID string) *Error {
	return &Error{Kind: KindAlreadyMember, Msg: "user " + userID + " is already a member"}
}

func SongBanned(url string) *Error {
	return &Error{Kind: KindSongBanned, Msg: "song url is banned: " + url}
}

func InvalidVote(value int) *Error {
	return &Error{Kind: KindInvalidVote, Msg: fmt.Sprintf("vote value must be +1 or -1, got %d", value)}
}

func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Msg: what + " not found"}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Msg: msg}
}

// Store wraps a persistence failure. The engine never masks a write
// failure as success; retryable-vs-fatal is the caller's call.
func Store(op string, cause error) *Error {
	return &Error{Kind: KindStore, Msg: op, Cause: cause}
}

// KindOf returns the kind of err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return 0, false
}

// HTTPStatus maps an error to the status the HTTP layer should write.
func HTTPStatus(err error) int {
	kind, ok := KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case KindAuthRequired:
		return http.StatusUnauthorized
	case KindNotMember, KindNotAuthorized:
		return http.StatusForbidden
	case KindAlreadyBanned, KindAlreadyMember, KindConflict:
		return http.StatusConflict
	case KindSongBanned:
		return http.StatusUnprocessableEntity
	case KindInvalidVote:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
