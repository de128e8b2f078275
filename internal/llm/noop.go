package llm

import (
	"context"
	"errors"
)

// ErrDisabled is returned by NoopClient.
var ErrDisabled = errors.New("language model disabled")

// NoopClient fails every call with a transient error. The debate engine
// degrades to its deterministic fallback content when it is in use.
type NoopClient struct{}

// Invoke always fails.
func (NoopClient) Invoke(context.Context, string) (string, error) {
	return "", &Error{Kind: KindTransient, Op: "noop", Err: ErrDisabled}
}
