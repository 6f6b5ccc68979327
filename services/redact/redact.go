// Package redact masks credentials that users paste into prompts so they
// never reach the ai_logs previews.
package redact

import (
	"regexp"
	"sort"
	"strings"
)

// Kind names the credential family a match belongs to.
type Kind string

const (
	KindGroqKey     Kind = "groq_key"
	KindOpenAIKey   Kind = "openai_key"
	KindGoogleKey   Kind = "google_key"
	KindAWSKey      Kind = "aws_key"
	KindJWT         Kind = "jwt"
	KindBearer      Kind = "bearer_token"
	KindPrivateKey  Kind = "private_key"
	KindGitHubToken Kind = "github_token"
	KindSlackToken  Kind = "slack_token"
	KindStripeKey   Kind = "stripe_key"
	KindDatabaseURL Kind = "database_url"
	KindAssignment  Kind = "secret_assignment"
)

// Match is one detected credential.
type Match struct {
	Kind  Kind
	Start int
	End   int
}

type rule struct {
	kind    Kind
	pattern *regexp.Regexp
	// group selects the submatch to mask; 0 masks the whole match.
	group int
}

var rules = []rule{
	{KindPrivateKey, regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?(?:-----END [A-Z ]*PRIVATE KEY-----|$)`), 0},
	{KindGroqKey, regexp.MustCompile(`\bgsk_[A-Za-z0-9]{20,}\b`), 0},
	{KindOpenAIKey, regexp.MustCompile(`\bsk-(?:proj-|ant-)?[A-Za-z0-9_\-]{20,}`), 0},
	{KindGoogleKey, regexp.MustCompile(`\bAIza[0-9A-Za-z\-_]{35}\b`), 0},
	{KindAWSKey, regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`), 0},
	{KindJWT, regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]+\.eyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+`), 0},
	{KindGitHubToken, regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`), 0},
	{KindSlackToken, regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9\-]{10,}`), 0},
	{KindStripeKey, regexp.MustCompile(`\b[sr]k_(?:live|test)_[0-9a-zA-Z]{24,}\b`), 0},
	{KindDatabaseURL, regexp.MustCompile(`(?i)\b(?:postgres|postgresql|mysql|mongodb(?:\+srv)?|redis|rediss)://[^\s:/@]+:([^\s@]+)@`), 1},
	{KindBearer, regexp.MustCompile(`(?i)\bbearer\s+([A-Za-z0-9_\-\.=]{20,})`), 1},
	{KindAssignment, regexp.MustCompile(`(?i)\b(?:api[_\-]?key|secret|token|password|passwd)\s*[:=]\s*['"]?([^\s'"]{8,})`), 1},
}

// Find returns the non-overlapping credential spans in text, in order.
func Find(text string) []Match {
	var found []Match
	for _, r := range rules {
		for _, loc := range r.pattern.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[2*r.group], loc[2*r.group+1]
			if start < 0 {
				continue
			}
			found = append(found, Match{Kind: r.kind, Start: start, End: end})
		}
	}
	if len(found) == 0 {
		return nil
	}

	// earliest first, longest first on ties
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Start != found[j].Start {
			return found[i].Start < found[j].Start
		}
		return found[i].End > found[j].End
	})

	merged := found[:1]
	for _, m := range found[1:] {
		last := &merged[len(merged)-1]
		if m.Start < last.End {
			if m.End > last.End {
				last.End = m.End
			}
			continue
		}
		merged = append(merged, m)
	}
	return merged
}

// String replaces every credential span with a [REDACTED:kind] marker.
func String(text string) string {
	matches := Find(text)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	prev := 0
	for _, m := range matches {
		b.WriteString(text[prev:m.Start])
		b.WriteString("[REDACTED:")
		b.WriteString(string(m.Kind))
		b.WriteString("]")
		prev = m.End
	}
	b.WriteString(text[prev:])
	return b.String()
}

// Contains reports whether text holds anything String would mask.
func Contains(text string) bool {
	return len(Find(text)) > 0
}
