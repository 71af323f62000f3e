package processor

import (
	"strconv"
	"time"
)

// Kind is how processing of one account ended.
type Kind int

const (
	KindError Kind = iota
	KindSuccess
	KindSuccessAfterRetry
	KindSuccessAlternate
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindSuccessAfterRetry:
		return "success_after_retry"
	case KindSuccessAlternate:
		return "success_random_profile"
	default:
		return "error"
	}
}

// Outcome is the terminal record of one account's run.
type Outcome struct {
	Email string
	Kind  Kind
	// Alternate is the 1-based draw index of the borrowed identity that
	// succeeded; zero unless Kind is KindSuccessAlternate.
	Alternate int
	// Token is the identity token of the last attempt.
	Token string
	// Attempt counts attempts made, 1-based.
	Attempt int
}

// Keyword is the outcome as written to the results file.
func (o Outcome) Keyword() string {
	if o.Kind == KindSuccessAlternate {
		return "success_random_profile_" + strconv.Itoa(o.Alternate)
	}
	return o.Kind.String()
}

func (o Outcome) Succeeded() bool { return o.Kind != KindError }

// OutcomeLog receives one line per processed account.
type OutcomeLog interface {
	Append(email, keyword string) error
}

// FailureLog receives accounts that could not be processed.
type FailureLog interface {
	Exhausted(at time.Time, email string) error
	Crashed(at time.Time, email string, cause error) error
}
