package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SeedCredit is a test helper that funds a wallet through a manual credit adjustment,
// keeping the wallet reconcilable against its transactions.
func SeedCredit(ctx context.Context, s Store, userID string, amount decimal.Decimal) error {
	_, err := s.PostTransaction(ctx, Entry{
		UserID:        userID,
		Type:          TypeCreditAdjustment,
		Amount:        amount,
		Description:   "seed balance",
		ReferenceID:   uuid.NewString(),
		ReferenceType: RefManual,
	})
	return err
}
