package routing

import (
	"net/http"
	"strings"

	"github.com/upb/llm-failover-router/services/providers"
)

// Class is the routing-relevant category of a failed attempt.
type Class string

const (
	// ClassRateLimit means the credential is exhausted for now; rotate within the provider.
	ClassRateLimit Class = "rate_limit"

	// ClassTerminal means the provider cannot serve this request; move to the next provider.
	ClassTerminal Class = "terminal"
)

// attempt outcome label used for metrics only
const classSuccess = "success"

var rateLimitMarkers = []string{"quota", "rate limit", "too many requests"}

// Classify maps an invocation error to a Class. It is a pure function of the
// error's status code and message.
func Classify(err error) Class {
	if err == nil {
		return ClassTerminal
	}
	if providers.StatusCode(err) == http.StatusTooManyRequests {
		return ClassRateLimit
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return ClassRateLimit
		}
	}
	return ClassTerminal
}
