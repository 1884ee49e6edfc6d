package gateway

import "fmt"

// ErrorKind is the closed set of upstream failure causes. The orchestrator
// stores the kind verbatim so operators can tell "upstream is down" from
// "verse truly absent".
type ErrorKind string

const (
	KindNotFound          ErrorKind = "not_found"
	KindTimeout           ErrorKind = "timeout"
	KindRateLimited       ErrorKind = "rate_limited"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindUnavailable       ErrorKind = "unavailable"
)

// UpstreamError wraps a failed call to one of the external data sources.
type UpstreamError struct {
	Kind ErrorKind
	Op   string // verse_data, translation, audio
	Ref  string // verse key or audio URL
	Err  error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s (%s): %v", e.Op, e.Ref, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s (%s)", e.Op, e.Ref, e.Kind)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
