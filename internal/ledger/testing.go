package ledger

import "context"

// SeedAccount is a test helper that creates an account and funds it through a
// regular append, so seeded state still satisfies the ledger invariants.
// Client accounts are funded with a recharge, provider accounts with a reward
// (which also raises TotalEarned).
func SeedAccount(ctx context.Context, s Store, ownerID string, kind OwnerKind, amount int64) error {
	if _, err := s.CreateAccount(ctx, ownerID, kind); err != nil {
		return err
	}
	if amount <= 0 {
		return nil
	}
	typ := TypeRecharge
	if kind == OwnerProvider {
		typ = TypeReward
	}
	_, err := s.Append(ctx, AppendInput{
		OwnerID:   ownerID,
		Type:      typ,
		Amount:    amount,
		Reference: "seed:" + ownerID,
	})
	return err
}
