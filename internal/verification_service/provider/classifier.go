package provider

import "strings"

// Outcome is the business interpretation of a platform call. The same
// classifier is used for every gateway call so the keyword sets and
// code/subcode rules live in exactly one place.
type Outcome int

const (
	// OutcomeSuccess: the call did what was asked.
	OutcomeSuccess Outcome = iota
	// OutcomeFailureHard: a genuine platform failure; the attempt is dead
	// unless the caller explicitly retries.
	OutcomeFailureHard
	// OutcomeAlreadyLinked: the platform reports the desired end state
	// already holds (already registered/linked). Treated as success.
	OutcomeAlreadyLinked
	// OutcomeAlreadyVerifiedNeedsPin: ownership was verified previously and
	// the platform will not resend a code; the flow must finish with a
	// user-chosen PIN instead.
	OutcomeAlreadyVerifiedNeedsPin
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailureHard:
		return "failure"
	case OutcomeAlreadyLinked:
		return "already_linked"
	case OutcomeAlreadyVerifiedNeedsPin:
		return "already_verified_needs_pin"
	}
	return "unknown"
}

// Classification pairs the outcome with the most specific human-readable
// message the platform supplied.
type Classification struct {
	Outcome Outcome
	Message string
}

// Platform code/subcode pair for "ownership of this number was already
// verified"; the code alone is the generic parameter error.
const (
	codeInvalidParameter     = 100
	subcodeOwnershipVerified = 2388093
)

var ownershipVerifiedKeywords = []string{
	"already verified",
	"ownership of this phone number",
	"verified ownership",
}

var alreadyLinkedKeywords = []string{
	"already registered",
	"already linked",
	"already exists",
	"duplicate",
}

// Classify interprets one platform call result. Rules are applied in order:
// needs-pin first, then idempotent already-linked, then hard failure (an
// embedded error object counts as failure even under HTTP 200), then success.
func Classify(res *CallResult) Classification {
	if res == nil {
		return Classification{Outcome: OutcomeFailureHard, Message: "no response from platform"}
	}

	perr := res.PlatformErr
	if perr != nil {
		msg := strings.ToLower(perr.Message + " " + perr.UserMessage)

		if perr.Code == codeInvalidParameter && perr.Subcode == subcodeOwnershipVerified {
			return Classification{Outcome: OutcomeAlreadyVerifiedNeedsPin, Message: perr.BestMessage()}
		}
		if perr.Subcode == 0 && containsAny(msg, ownershipVerifiedKeywords) {
			return Classification{Outcome: OutcomeAlreadyVerifiedNeedsPin, Message: perr.BestMessage()}
		}

		if containsAny(msg, alreadyLinkedKeywords) {
			return Classification{Outcome: OutcomeAlreadyLinked, Message: perr.BestMessage()}
		}
		// "Invalid parameter" on a phone-number operation is how the platform
		// reports re-registration of a number it already knows.
		if strings.Contains(msg, "invalid parameter") && (strings.Contains(msg, "phone") || strings.Contains(msg, "number")) {
			return Classification{Outcome: OutcomeAlreadyLinked, Message: perr.BestMessage()}
		}

		return Classification{Outcome: OutcomeFailureHard, Message: perr.BestMessage()}
	}

	if res.StatusCode >= 400 {
		return Classification{Outcome: OutcomeFailureHard, Message: failureMessage(res)}
	}

	return Classification{Outcome: OutcomeSuccess}
}

func failureMessage(res *CallResult) string {
	if len(res.RawBody) > 0 && len(res.RawBody) < 512 {
		return string(res.RawBody)
	}
	return "platform request failed"
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
