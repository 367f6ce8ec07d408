package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// HeaderReqID is the AMQP header callers use to propagate a request id across
// services. When present on an incoming delivery it is reused, so logs from a
// chain of services share one id.
const HeaderReqID = "req_id"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewRequestID returns a time-sortable ULID encoded as a 26-character string.
func NewRequestID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// RequestIDFromHeaders returns the propagated req_id header if the caller set
// one, or a freshly generated ULID otherwise.
func RequestIDFromHeaders(headers map[string]any) string {
	if raw, ok := headers[HeaderReqID]; ok {
		switch v := raw.(type) {
		case string:
			if v != "" {
				return v
			}
		case []byte:
			if len(v) > 0 {
				return string(v)
			}
		}
	}
	return NewRequestID()
}
