package quizgen

import (
	"errors"
	"fmt"
)

// Kind tags a generation failure.
type Kind string

const (
	KindTransport        Kind = "transport_failure"
	KindQuota            Kind = "quota_exceeded"
	KindMalformed        Kind = "malformed_response"
	KindInvalidSchema    Kind = "invalid_schema"
	KindNoValidQuestions Kind = "no_valid_questions"
	KindAllKeysExhausted Kind = "all_keys_exhausted"
)

// Error is the error returned by Generate. Attempts is the number of
// remote calls made before the failure.
type Error struct {
	Kind     Kind
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	msg := kindMessages[e.Kind]
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind, so errors.Is(err, ErrInvalidSchema) holds
// for any *Error of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Err == nil && t.Kind == e.Kind
}

var kindMessages = map[Kind]string{
	KindTransport:        "provider request failed",
	KindQuota:            "provider quota exceeded",
	KindMalformed:        "model reply is not valid JSON",
	KindInvalidSchema:    "model reply has no questions array",
	KindNoValidQuestions: "model reply has no valid questions",
	KindAllKeysExhausted: "all keys exhausted, try again later",
}

// Message is the user facing text for k.
func (k Kind) Message() string { return kindMessages[k] }

var (
	ErrTransportFailure  = &Error{Kind: KindTransport}
	ErrQuotaExceeded     = &Error{Kind: KindQuota}
	ErrMalformedResponse = &Error{Kind: KindMalformed}
	ErrInvalidSchema     = &Error{Kind: KindInvalidSchema}
	ErrNoValidQuestions  = &Error{Kind: KindNoValidQuestions}
	ErrAllKeysExhausted  = &Error{Kind: KindAllKeysExhausted}

	// ErrNoKeys is returned when no credential slot is configured.
	ErrNoKeys = errors.New("quizgen: key pool is empty")
)

// KindOf returns the kind of a generation error, or "" for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
