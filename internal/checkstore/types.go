package checkstore

import "fmt"

// CheckName identifies one of the fixed battery of per-profile checks.
type CheckName string

// The closed set of check names. Order here is the display/iteration order
// used whenever checks are rendered or walked deterministically; the set is
// otherwise semantically unordered.
const (
	CheckAnimatedAvatar        CheckName = "animated_avatar"
	CheckAvatarFrame           CheckName = "avatar_frame"
	CheckMiniProfileBackground CheckName = "mini_profile_background"
	CheckProfileBackground     CheckName = "profile_background"
	CheckSteamLevel            CheckName = "steam_level"
	CheckFriends               CheckName = "friends"
	CheckCSGOInventory         CheckName = "csgo_inventory"
)

// CheckNames is the closed, ordered set of check names every Profile's
// Checks map must contain exactly.
var CheckNames = []CheckName{
	CheckAnimatedAvatar,
	CheckAvatarFrame,
	CheckMiniProfileBackground,
	CheckProfileBackground,
	CheckSteamLevel,
	CheckFriends,
	CheckCSGOInventory,
}

// CheckStatus is one of the four terminal/non-terminal states a check can be in.
type CheckStatus string

const (
	// StatusToCheck is the initial state: work outstanding.
	StatusToCheck CheckStatus = "to_check"
	// StatusPassed is terminal success.
	StatusPassed CheckStatus = "passed"
	// StatusFailed is terminal failure.
	StatusFailed CheckStatus = "failed"
	// StatusDeferred is temporarily suspended, usually due to endpoint
	// cooldown; equivalent to StatusToCheck but flagged for separate sweeping.
	StatusDeferred CheckStatus = "deferred"
)

// validStatuses is the closed set writers validate against.
var validStatuses = map[CheckStatus]struct{}{
	StatusToCheck:  {},
	StatusPassed:   {},
	StatusFailed:   {},
	StatusDeferred: {},
}

// IsValidStatus reports whether status is one of the four closed values.
func IsValidStatus(status CheckStatus) bool {
	_, ok := validStatuses[status]
	return ok
}

// IsTerminal reports whether status is a terminal outcome (passed or failed).
func (s CheckStatus) IsTerminal() bool {
	return s == StatusPassed || s == StatusFailed
}

// DefaultUsername is substituted for a missing or blank username on insert.
const DefaultUsername = "Professor"

// Profile is the unit of tracked work: an identifier paired with the status
// of every check in the closed check-name set.
type Profile struct {
	SteamID   string                    `json:"steam_id"`
	Username  string                    `json:"username"`
	Timestamp int64                     `json:"timestamp"`
	Checks    map[CheckName]CheckStatus `json:"checks"`
}

// newProfile builds a Profile with every check initialized to StatusToCheck,
// rewriting a blank username to DefaultUsername and stamping the timestamp.
func newProfile(steamID, username string, nowMS int64) Profile {
	if username == "" {
		username = DefaultUsername
	}
	checks := make(map[CheckName]CheckStatus, len(CheckNames))
	for _, name := range CheckNames {
		checks[name] = StatusToCheck
	}
	return Profile{
		SteamID:   steamID,
		Username:  username,
		Timestamp: nowMS,
		Checks:    checks,
	}
}

// hasCompleteCheckSet reports whether p.Checks contains exactly CheckNames,
// no more and no fewer, all with valid statuses. Used to validate documents
// read back from disk.
func (p Profile) hasCompleteCheckSet() bool {
	if len(p.Checks) != len(CheckNames) {
		return false
	}
	for _, name := range CheckNames {
		status, ok := p.Checks[name]
		if !ok || !isValidStatusTag(status) {
			return false
		}
	}
	return true
}

// Completion reports whether every check on the profile is terminal, and
// whether every terminal check passed.
type Completion struct {
	AllComplete bool
	AllPassed   bool
}

func completionOf(p Profile) Completion {
	allComplete := true
	allPassed := true
	for _, name := range CheckNames {
		status := p.Checks[name]
		if !status.IsTerminal() {
			allComplete = false
		}
		if status != StatusPassed {
			allPassed = false
		}
	}
	return Completion{AllComplete: allComplete, AllPassed: allPassed}
}

// Stats summarizes the store's contents.
type Stats struct {
	TotalProfiles int                 `json:"total_profiles"`
	ByUsername    map[string]int      `json:"by_username"`
	ByStatus      map[CheckStatus]int `json:"by_status"`
}

// DeferredStats summarizes how much work is currently deferred.
type DeferredStats struct {
	TotalDeferred        int `json:"total_deferred"`
	ProfilesWithDeferred int `json:"profiles_with_deferred"`
	TotalProfiles        int `json:"total_profiles"`
}

// DeferredCheck names one deferred check on one profile.
type DeferredCheck struct {
	SteamID   string    `json:"steam_id"`
	CheckName CheckName `json:"check_name"`
}

// SweepResult is the outcome of ConvertDeferredToToCheck.
type SweepResult struct {
	Conversions      int
	ProfilesAffected int
}

// AddOutcome distinguishes the three ways AddProfile can resolve without
// erroring.
type AddOutcome int

const (
	// AddOutcomeInserted means a brand-new profile was created.
	AddOutcomeInserted AddOutcome = iota
	// AddOutcomeAlreadyPresent means the steam_id already existed in the
	// store; the existing profile is returned unchanged.
	AddOutcomeAlreadyPresent
	// AddOutcomeSuppressedByProbe means an ExistenceProbe reported the
	// identifier already exists downstream, so it was not inserted.
	AddOutcomeSuppressedByProbe
)

func (o AddOutcome) String() string {
	switch o {
	case AddOutcomeInserted:
		return "inserted"
	case AddOutcomeAlreadyPresent:
		return "already_present"
	case AddOutcomeSuppressedByProbe:
		return "suppressed_by_probe"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

// AddResult is the return value of AddProfile.
type AddResult struct {
	Profile Profile
	Outcome AddOutcome
}
