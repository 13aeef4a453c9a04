package notification

import (
	"context"
	"log/slog"
	"sync"
)

// Notification types emitted by the money flows.
const (
	TypeEscrowFunded      = "escrow_funded"
	TypeEscrowReleased    = "escrow_released"
	TypeEscrowRefunded    = "escrow_refunded"
	TypeEscrowDisputed    = "escrow_disputed"
	TypeMilestoneSubmit   = "milestone_submitted"
	TypeMilestoneApproved = "milestone_approved"
	TypeMilestoneRejected = "milestone_rejected"
	TypeTipReceived       = "tip_received"
	TypeTipRefunded       = "tip_refunded"
	TypePayoutRequested   = "payout_requested"
	TypePayoutApproved    = "payout_approved"
	TypePayoutRejected    = "payout_rejected"
	TypePayoutCompleted   = "payout_completed"
	TypePayoutFailed      = "payout_failed"
)

// AdminRecipient addresses the operator queue instead of a single user.
const AdminRecipient = "admins"

// Message describes a notification payload.
type Message struct {
	UserID   string            `json:"user_id"`
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Notifier delivers notifications to downstream systems. Delivery is fire-and-forget:
// callers log failures and carry on.
type Notifier interface {
	Notify(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger. Used in dev mode.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

func (n *LoggerNotifier) Notify(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		slog.String("user_id", message.UserID),
		slog.String("type", message.Type),
		slog.String("title", message.Title),
		slog.String("body", message.Body),
	)
	return nil
}

// Recorder keeps every message in memory. Tests use it to assert on side effects.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Notify(_ context.Context, message Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return nil
}

// Messages returns the recorded messages of the given type, or all when typ is empty.
func (r *Recorder) Messages(typ string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.messages {
		if typ == "" || m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}
