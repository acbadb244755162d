package reliability

import "time"

// IsRetryableHTTPStatus classifies upstream HTTP status codes that indicate
// a transient condition rather than a bad request.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRetryableSynthesisEvent classifies transient error events on the
// synthesis websocket.
func IsRetryableSynthesisEvent(event string) bool {
	switch event {
	case "rate_limited", "resource_exhausted", "queue_overflow", "error":
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
