package cooldown

import "strings"

// dnsFailureMarkers, timeoutMarkers and connectionErrorMarkers are checked in
// that order against an error's message text, per spec.md §4.2's classifier.
var (
	dnsFailureMarkers = []string{"ENOTFOUND", "EHOSTUNREACH"}
	timeoutMarkers    = []string{"timeout", "ETIMEDOUT"}
	connectionErrorMarkers = []string{
		"socket disconnected", "socket hang up",
		"ECONNRESET", "ECONNREFUSED",
		"certificate", "SSL", "TLS",
	}
)

// classifyError maps a raw error message to one of the three cooldown-worthy
// kinds, or reports it as not cooldown-worthy. Markers are matched with
// spec.md §4.2's literal substring semantics, not case-folded: folding would
// over-match short tokens like "TLS"/"SSL" against unrelated message text.
func classifyError(message string) (ErrorKind, bool) {
	for _, marker := range dnsFailureMarkers {
		if strings.Contains(message, marker) {
			return ErrorKindDNSFailure, true
		}
	}
	for _, marker := range timeoutMarkers {
		if strings.Contains(message, marker) {
			return ErrorKindTimeout, true
		}
	}
	for _, marker := range connectionErrorMarkers {
		if strings.Contains(message, marker) {
			return ErrorKindConnectionError, true
		}
	}
	return "", false
}
