package executor

import (
	"errors"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// protocolPenalty is added to the backoff after a stream was cut mid-response
const protocolPenalty = 3 * time.Second

// Policy computes the wait before the next attempt
type Policy struct {
	Multiplier float64
	MaxWait    time.Duration
	Now        func() time.Time
	Rand       func() float64 // uniform in [0, 1)
}

// NewPolicy returns a policy using the wall clock and math/rand
func NewPolicy(multiplier float64, maxWait time.Duration) Policy {
	return Policy{Multiplier: multiplier, MaxWait: maxWait, Now: time.Now, Rand: rand.Float64}
}

// Wait returns the delay after failed attempt number attempt (1-based).
// A 429 with a usable Retry-After is honored exactly; a cut stream adds
// protocolPenalty to the backoff; anything else gets full-jitter
// exponential backoff capped at MaxWait.
func (p Policy) Wait(attempt int, failure error) time.Duration {
	var se *StatusError
	if errors.As(failure, &se) && se.Code == http.StatusTooManyRequests {
		if d, ok := p.retryAfter(se.RetryAfter); ok {
			return d
		}
	}
	var pe *ProtocolError
	if errors.As(failure, &pe) {
		return p.backoff(attempt) + protocolPenalty
	}
	return p.backoff(attempt)
}

func (p Policy) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	high := p.Multiplier * math.Pow(2, float64(attempt-1)) * float64(time.Second)
	if ceiling := float64(p.MaxWait); high > ceiling {
		high = ceiling
	}
	if high <= 0 {
		return 0
	}
	r := 0.5
	if p.Rand != nil {
		r = p.Rand()
	}
	return time.Duration(r * high)
}

func (p Policy) retryAfter(header string) (time.Duration, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, false
	}
	if isDigits(header) {
		secs, err := strconv.ParseInt(header, 10, 64)
		if err != nil {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	at, err := http.ParseTime(header)
	if err != nil {
		return 0, false
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	d := at.Sub(now())
	if d < 0 {
		d = 0
	}
	return d, true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
