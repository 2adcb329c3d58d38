package completion

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MaxBackoff caps every sleep between attempts.
const MaxBackoff = 30 * time.Second

// outcome is what one upstream attempt produced. Exactly one of err, status
// (non-2xx), malformed or content is meaningful.
type outcome struct {
	content    string
	hasContent bool
	tokens     int

	status     int
	retryAfter string
	body       string

	malformed bool
	err       error
}

type stepKind int

const (
	stepSuccess stepKind = iota
	stepRetry
	stepTerminal
)

func (k stepKind) String() string {
	switch k {
	case stepSuccess:
		return "success"
	case stepRetry:
		return "retry"
	default:
		return "terminal"
	}
}

// step is the transition taken after attempt n.
type step struct {
	kind   stepKind
	delay  time.Duration
	err    string
	status int
}

// next decides the transition after attempt n of limit (1-based). Only rate
// limiting and transport errors are retried, and never past limit.
func next(n, limit int, o outcome) step {
	last := n >= limit
	switch {
	case o.err != nil:
		if last {
			return step{kind: stepTerminal, err: o.err.Error()}
		}
		return step{kind: stepRetry, delay: backoff(n)}

	case o.status == http.StatusTooManyRequests:
		if last {
			return step{kind: stepTerminal, status: o.status, err: fmt.Sprintf("Rate limited after %d retries", limit)}
		}
		return step{kind: stepRetry, status: o.status, delay: retryAfter(o.retryAfter, n)}

	case o.status != 0:
		return step{kind: stepTerminal, status: o.status, err: fmt.Sprintf("completion API returned status %d: %s", o.status, o.body)}

	case o.malformed || !o.hasContent:
		return step{kind: stepTerminal, err: "invalid completion API response format"}
	}
	return step{kind: stepSuccess}
}

// backoff is 2^n seconds, capped at MaxBackoff.
func backoff(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	if n >= 5 {
		return MaxBackoff
	}
	return time.Duration(1<<n) * time.Second
}

// retryAfter honours a Retry-After header given in whole seconds and falls
// back to backoff(n) otherwise.
func retryAfter(header string, n int) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs < 0 {
		return backoff(n)
	}
	d := time.Duration(secs) * time.Second
	if d > MaxBackoff {
		return MaxBackoff
	}
	return d
}
