package escrow

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when an escrow or milestone does not exist.
	ErrNotFound = errors.New("escrow not found")

	// ErrDuplicateApplication enforces one escrow per gig application.
	ErrDuplicateApplication = errors.New("escrow already exists for application")

	// ErrStatusConflict means the row no longer had the expected status when it was updated.
	ErrStatusConflict = errors.New("escrow status changed concurrently")
)

// Status is the lifecycle of the money held for a gig application.
type Status string

const (
	StatusCreated  Status = "CREATED"
	StatusFunded   Status = "FUNDED"
	StatusReleased Status = "RELEASED"
	StatusRefunded Status = "REFUNDED"
	StatusDisputed Status = "DISPUTED"
)

var escrowTransitions = map[Status][]Status{
	StatusCreated:  {StatusFunded},
	StatusFunded:   {StatusReleased, StatusRefunded, StatusDisputed},
	StatusDisputed: {StatusRefunded},
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range escrowTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// MilestoneStatus is the approval state of a deliverable.
type MilestoneStatus string

const (
	MilestonePending    MilestoneStatus = "PENDING"
	MilestoneInProgress MilestoneStatus = "IN_PROGRESS"
	MilestoneSubmitted  MilestoneStatus = "SUBMITTED"
	MilestoneApproved   MilestoneStatus = "APPROVED"
	MilestoneRejected   MilestoneStatus = "REJECTED"
)

var milestoneTransitions = map[MilestoneStatus][]MilestoneStatus{
	MilestonePending:   {MilestoneSubmitted},
	MilestoneRejected:  {MilestoneSubmitted},
	MilestoneSubmitted: {MilestoneApproved, MilestoneRejected},
}

func (s MilestoneStatus) CanTransitionTo(next MilestoneStatus) bool {
	for _, allowed := range milestoneTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Escrow holds a payer's authorized funds for one accepted gig application.
type Escrow struct {
	ID              string          `json:"id"`
	GigID           string          `json:"gig_id"`
	ApplicationID   string          `json:"application_id"`
	PayerID         string          `json:"payer_id"`
	PayeeID         string          `json:"payee_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Status          Status          `json:"status"`
	GatewayChargeID string          `json:"gateway_charge_id,omitempty"`
	FundedAt        *time.Time      `json:"funded_at,omitempty"`
	ReleasedAt      *time.Time      `json:"released_at,omitempty"`
	RefundedAt      *time.Time      `json:"refunded_at,omitempty"`
	DisputedAt      *time.Time      `json:"disputed_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// IsParty reports whether userID is the payer or payee.
func (e Escrow) IsParty(userID string) bool {
	return userID != "" && (userID == e.PayerID || userID == e.PayeeID)
}

// Milestone is a deliverable released by a partial capture of the escrow hold.
type Milestone struct {
	ID            string          `json:"id"`
	ApplicationID string          `json:"application_id"`
	Title         string          `json:"title"`
	Description   string          `json:"description,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	DueDate       *time.Time      `json:"due_date,omitempty"`
	Order         int             `json:"order"`
	Status        MilestoneStatus `json:"status"`
	SubmittedAt   *time.Time      `json:"submitted_at,omitempty"`
	ApprovedAt    *time.Time      `json:"approved_at,omitempty"`
	RejectedAt    *time.Time      `json:"rejected_at,omitempty"`
	Feedback      string          `json:"feedback,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// MilestoneInput describes a milestone supplied at escrow creation.
type MilestoneInput struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     *time.Time      `json:"due_date"`
	Order       int             `json:"order"`
}

// CreateInput carries the accepted application the escrow is opened for.
type CreateInput struct {
	GigID         string           `json:"gig_id"`
	ApplicationID string           `json:"application_id"`
	PayerID       string           `json:"payer_id"`
	PayeeID       string           `json:"payee_id"`
	Amount        decimal.Decimal  `json:"amount"`
	Currency      string           `json:"currency"`
	Milestones    []MilestoneInput `json:"milestones"`
}
