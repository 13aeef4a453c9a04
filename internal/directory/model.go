package directory

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a user, post, payee account or application is unknown.
var ErrNotFound = errors.New("directory record not found")

// Application statuses written by the escrow flow.
const (
	ApplicationAccepted   = "ACCEPTED"
	ApplicationInProgress = "IN_PROGRESS"
)

// User is the subset of a platform user the money flows depend on.
type User struct {
	ID          string
	DisplayName string
	CreatedAt   time.Time
}

// Post is a creator's post that can receive tips.
type Post struct {
	ID       string
	AuthorID string
}

// PayeeAccount is the connected gateway account a creator is paid out to.
type PayeeAccount struct {
	UserID             string
	AccountID          string
	OnboardingComplete bool
	PayoutsEnabled     bool
	UpdatedAt          time.Time
}

// CanReceivePayouts reports whether the gateway will accept transfers to this account.
func (a PayeeAccount) CanReceivePayouts() bool {
	return a.AccountID != "" && a.OnboardingComplete && a.PayoutsEnabled
}

// Application is an accepted gig application backing an escrow.
type Application struct {
	ID        string
	GigID     string
	PayeeID   string
	Status    string
	UpdatedAt time.Time
}
