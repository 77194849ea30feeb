package upstream

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies why an upstream call failed.
type Kind string

const (
	KindAuth        Kind = "auth_failure"
	KindRateLimited Kind = "rate_limited"
	KindNetwork     Kind = "network_error"
	KindTimeout     Kind = "timeout"
	KindExhausted   Kind = "exhausted"
	KindPageLimit   Kind = "page_limit_exceeded"
	KindData        Kind = "data_error"
)

// Retryable reports whether a failure of this kind is transient.
func (k Kind) Retryable() bool {
	switch k {
	case KindRateLimited, KindNetwork, KindTimeout:
		return true
	default:
		return false
	}
}

// Failure is the error type returned by everything that talks to an upstream.
type Failure struct {
	Kind       Kind
	Endpoint   string
	StatusCode int
	Attempts   int
	Err        error
}

func (f *Failure) Error() string {
	var b strings.Builder
	b.WriteString("upstream ")
	b.WriteString(string(f.Kind))
	if f.Endpoint != "" {
		fmt.Fprintf(&b, " [%s]", f.Endpoint)
	}
	if f.StatusCode != 0 {
		fmt.Fprintf(&b, " status %d", f.StatusCode)
	}
	if f.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", f.Attempts)
	}
	if f.Err != nil {
		b.WriteString(": ")
		b.WriteString(f.Err.Error())
	}
	return b.String()
}

func (f *Failure) Unwrap() error { return f.Err }

// KindOf returns the kind of the outermost Failure in err's chain, or "" when there is none.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// DataErrorf builds a non-retryable failure for a response that does not match the upstream contract.
func DataErrorf(endpoint, format string, args ...any) *Failure {
	return &Failure{Kind: KindData, Endpoint: endpoint, Err: fmt.Errorf(format, args...)}
}
