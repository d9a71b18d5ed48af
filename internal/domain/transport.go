package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RawItem is one unit of remote activity exactly as the platform returned it.
// Never mutated; consumed once by the normalizer.
type RawItem struct {
	ID        string
	AuthorID  string
	Timestamp time.Time
	Type      string
	Text      string
	Payload   json.RawMessage
}

// InboxThread is one conversation thread with its pending items, newest last.
type InboxThread struct {
	ID      string
	IsGroup bool
	Items   []RawItem
}

// Inbox is a snapshot of the remote inbox.
type Inbox struct {
	Threads []InboxThread
}

// UserProfile is the remote platform's public view of a user.
type UserProfile struct {
	ID       string
	Username string
	FullName string
	PicURL   string
}

// Transport performs network calls against the remote messaging platform.
// The core only cares about the success/failure/error-kind shape of results.
type Transport interface {
	// SelfID returns the authenticated account's own user ID, used to
	// filter self-authored events.
	SelfID() string

	FetchInbox(ctx context.Context) (*Inbox, error)
	SendMessage(ctx context.Context, threadID, text string) (string, error)
	GetUserInfo(ctx context.Context, userID string) (*UserProfile, error)

	// Best-effort operations: callers swallow failures.
	MarkRead(ctx context.Context, threadID, itemID string) error
	SetTyping(ctx context.Context, threadID string, active bool) error
	React(ctx context.Context, threadID, itemID, emoji string) error
}

// ErrorKind classifies a transport failure for the poller's reaction policy.
type ErrorKind int

const (
	// ErrKindTransient covers timeouts, resets and 5xx responses.
	// Retried with backoff, never surfaced to users.
	ErrKindTransient ErrorKind = iota
	// ErrKindRateLimited is platform-signaled throttling; the poller
	// saturates its backoff for one cycle.
	ErrKindRateLimited
	// ErrKindAuthInvalid means the session is expired or revoked. Fatal
	// for the account's poller; requires operator re-authentication.
	ErrKindAuthInvalid
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindRateLimited:
		return "rate-limited"
	case ErrKindAuthInvalid:
		return "auth-invalid"
	default:
		return "transient"
	}
}

// TransportError wraps a failed platform call with its classification.
type TransportError struct {
	Kind       ErrorKind
	HTTPStatus int
	Op         string
	Err        error
}

func (e *TransportError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Op, e.Kind, e.HTTPStatus)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ClassifyError extracts the error kind from any error returned by a
// Transport. Unclassified errors count as transient.
func ClassifyError(err error) ErrorKind {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ErrKindTransient
}

// ClassifyStatus maps an HTTP status code to an error kind.
func ClassifyStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return ErrKindAuthInvalid
	case status == 429:
		return ErrKindRateLimited
	default:
		return ErrKindTransient
	}
}
