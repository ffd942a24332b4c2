package reconnect

import (
	"math"
	"strings"
	"time"
)

// Class is a failure class with its own backoff bucket.
type Class int

const (
	TransportLost Class = iota
	SinkAuth
	SinkTimeout
	SinkGeneric
)

func (c Class) String() string {
	switch c {
	case TransportLost:
		return "transport_lost"
	case SinkAuth:
		return "sink_auth"
	case SinkTimeout:
		return "sink_timeout"
	case SinkGeneric:
		return "sink_generic"
	default:
		return "unknown"
	}
}

// SinkOnly reports whether a retry of this class only reconnects the sink, keeping the host.
func (c Class) SinkOnly() bool {
	return c != TransportLost
}

// Policy is an exponential backoff bucket. It is immutable after construction.
type Policy struct {
	Base       time.Duration
	Multiplier float64
	Cap        time.Duration
}

// Delay returns the delay before retry attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.Base) * math.Pow(p.Multiplier, float64(attempt-1))
	if d >= float64(p.Cap) || math.IsInf(d, 1) {
		return p.Cap
	}
	return time.Duration(d)
}

// Policies maps each class to its bucket.
type Policies map[Class]Policy

// DefaultPolicies returns the canonical buckets.
func DefaultPolicies() Policies {
	return Policies{
		TransportLost: {Base: 5 * time.Second, Multiplier: 2, Cap: 180 * time.Second},
		SinkAuth:      {Base: 10 * time.Second, Multiplier: 2, Cap: 360 * time.Second},
		SinkTimeout:   {Base: 2 * time.Second, Multiplier: 1.5, Cap: 60 * time.Second},
		SinkGeneric:   {Base: 5 * time.Second, Multiplier: 2, Cap: 180 * time.Second},
	}
}

// Delay returns the delay for class at attempt, falling back to the generic bucket.
func (ps Policies) Delay(class Class, attempt int) time.Duration {
	p, ok := ps[class]
	if !ok {
		p = DefaultPolicies()[SinkGeneric]
	}
	return p.Delay(attempt)
}

var (
	authKeywords    = []string{"auth", "unauthorized", "invalid client", "401", "403"}
	timeoutKeywords = []string{"timeout", "timed out"}
)

// Classify maps a sink error payload to a failure class.
//
// errorType wins when it names a known class; otherwise the message is searched for keywords.
func Classify(errorType, message string) Class {
	for _, s := range []string{errorType, message} {
		s = strings.ToLower(s)
		if s == "" {
			continue
		}
		if containsAny(s, authKeywords) {
			return SinkAuth
		}
		if containsAny(s, timeoutKeywords) {
			return SinkTimeout
		}
	}
	return SinkGeneric
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
