package cooldown

import "strings"

// Endpoint identifies one of the closed set of upstream surfaces the
// controller tracks cooldowns for.
type Endpoint string

const (
	EndpointFriends               Endpoint = "friends"
	EndpointInventory             Endpoint = "inventory"
	EndpointSteamLevel            Endpoint = "steam_level"
	EndpointAnimatedAvatar        Endpoint = "animated_avatar"
	EndpointAvatarFrame           Endpoint = "avatar_frame"
	EndpointMiniProfileBackground Endpoint = "mini_profile_background"
	EndpointProfileBackground     Endpoint = "profile_background"
	// EndpointOther is the fall-through bucket for any request URL that
	// matches none of the named endpoints above.
	EndpointOther Endpoint = "other"
)

// endpointMatchOrder is the fixed substring-match precedence spec.md §4.2/§6
// requires: the first URL substring match wins, EndpointOther otherwise.
var endpointMatchOrder = []struct {
	substring string
	endpoint  Endpoint
}{
	{"GetFriendList", EndpointFriends},
	{"inventory", EndpointInventory},
	{"GetSteamLevel", EndpointSteamLevel},
	{"GetAnimatedAvatar", EndpointAnimatedAvatar},
	{"GetAvatarFrame", EndpointAvatarFrame},
	{"GetMiniProfileBackground", EndpointMiniProfileBackground},
	{"GetProfileBackground", EndpointProfileBackground},
}

// EndpointForURL classifies a request URL into one of the closed endpoint
// names by substring match, in fixed precedence order.
func EndpointForURL(url string) Endpoint {
	for _, m := range endpointMatchOrder {
		if strings.Contains(url, m.substring) {
			return m.endpoint
		}
	}
	return EndpointOther
}

// ErrorKind is one of the closed reasons a cooldown can be applied for.
type ErrorKind string

const (
	ErrorKindRateLimit       ErrorKind = "429"
	ErrorKindConnectionError ErrorKind = "connection_error"
	ErrorKindTimeout         ErrorKind = "timeout"
	ErrorKindDNSFailure      ErrorKind = "dns_failure"
)

// EndpointCooldown is one active cooldown record, as persisted to disk.
type EndpointCooldown struct {
	CooldownUntil int64     `json:"cooldown_until"`
	Reason        ErrorKind `json:"reason"`

	// Populated only when Reason == ErrorKindRateLimit.
	BackoffLevel *int    `json:"backoff_level,omitempty"`
	DurationMin  *int    `json:"duration_minutes,omitempty"`
	AppliedAt    *int64  `json:"applied_at,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`

	// Populated only for fixed-duration (non-429) cooldowns.
	DurationUsedMS *int64 `json:"duration_used,omitempty"`
}

// document is the on-disk shape: a single top-level key mapping endpoint
// name to its cooldown record.
type document struct {
	EndpointCooldowns map[Endpoint]EndpointCooldown `json:"endpoint_cooldowns"`
}

// Durations configures the fixed-duration cooldowns for non-429 errors, all
// in milliseconds.
type Durations struct {
	ConnectionResetMS int64
	TimeoutMS         int64
	DNSFailureMS      int64
}

// DefaultBackoffSequenceMinutes is substituted whenever the configured
// sequence is empty or invalid.
var DefaultBackoffSequenceMinutes = []int{1, 2, 4, 8, 16, 32, 60, 120, 240, 480}

// RequestOutcome is HandleRequestError's structured result.
type RequestOutcome struct {
	Kind     ErrorKind
	Endpoint Endpoint
	// Cooldownworthy is false when the error was not classifiable as one of
	// the three cooldown-triggering kinds; the caller handles it itself.
	Cooldownworthy bool
}

// EndpointStatus is one line of ConnectionStatus's per-endpoint report.
type EndpointStatus struct {
	Endpoint      Endpoint  `json:"endpoint"`
	Available     bool      `json:"available"`
	Reason        ErrorKind `json:"reason,omitempty"`
	RemainingMS   int64     `json:"remaining_ms,omitempty"`
	Until         int64     `json:"until,omitempty"`
}

// ConnectionSummary aggregates EndpointStatus across the tracked set.
type ConnectionSummary struct {
	AvailableConnections int   `json:"available_connections"`
	TotalConnections     int   `json:"total_connections"`
	NextAvailableInMS    int64 `json:"next_available_in_ms"`
}

// ConnectionStatusReport is ConnectionStatus's full return value.
type ConnectionStatusReport struct {
	Endpoints []EndpointStatus  `json:"endpoints"`
	Summary   ConnectionSummary `json:"summary"`
}

// TrackedEndpoints is the closed set of named endpoints the controller
// reports on in ConnectionStatus (EndpointOther is excluded: it is a
// fall-through bucket, not a distinct upstream surface with its own limit).
var TrackedEndpoints = []Endpoint{
	EndpointFriends,
	EndpointInventory,
	EndpointSteamLevel,
	EndpointAnimatedAvatar,
	EndpointAvatarFrame,
	EndpointMiniProfileBackground,
	EndpointProfileBackground,
}
