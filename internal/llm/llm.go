// Package llm provides access to hosted language models.
//
// Every provider implements Client. Provider errors are returned as *Error so
// callers can branch on Kind instead of inspecting message text. The
// ResilientClient wraps a provider Factory with a CredentialPool and rotates
// upstream credentials when, and only when, a call fails with KindQuota.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Client is a language model capability: one prompt in, generated text out.
// Implementations must be safe for concurrent use.
type Client interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, prompt string) (string, error)

// Invoke calls f.
func (f ClientFunc) Invoke(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Factory builds a provider Client bound to a single upstream credential.
type Factory func(credential string) (Client, error)

// Kind classifies a model invocation failure.
type Kind int

const (
	// KindFatal failures will not succeed on retry (bad request, auth, malformed response).
	KindFatal Kind = iota
	// KindTransient failures may succeed later with the same credential (network, 5xx, timeout).
	KindTransient
	// KindQuota failures are specific to the credential's usage allowance.
	KindQuota
)

func (k Kind) String() string {
	switch k {
	case KindQuota:
		return "quota_exceeded"
	case KindTransient:
		return "transient"
	default:
		return "fatal"
	}
}

// ErrAllCredentialsExhausted is returned when every credential in the pool is
// marked as quota-failed.
var ErrAllCredentialsExhausted = errors.New("llm: all credentials exhausted")

// Error is a classified model invocation failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm: %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// quotaPatterns are matched case-insensitively against untyped error text.
var quotaPatterns = []string{
	"quota",
	"rate limit",
	"resource_exhausted",
	"too many requests",
}

// ClassifyMessage maps free-form upstream error text to a Kind. Only quota
// patterns are recognised; everything else is fatal.
func ClassifyMessage(msg string) Kind {
	lower := strings.ToLower(msg)
	for _, p := range quotaPatterns {
		if strings.Contains(lower, p) {
			return KindQuota
		}
	}
	return KindFatal
}

// Classify returns the Kind of err. Typed *Error values keep their kind,
// context cancellation and network errors are transient, and anything else
// falls back to ClassifyMessage.
func Classify(err error) Kind {
	if err == nil {
		return KindFatal
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransient
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return KindTransient
	}
	return ClassifyMessage(err.Error())
}

// IsQuota reports whether err is a quota failure.
func IsQuota(err error) bool {
	return err != nil && Classify(err) == KindQuota
}

// wrap returns err as an *Error, preserving an existing classification.
func wrap(op string, err error) error {
	var le *Error
	if errors.As(err, &le) {
		return err
	}
	return &Error{Kind: Classify(err), Op: op, Err: err}
}
