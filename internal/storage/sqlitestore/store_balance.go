package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// EnsureUser creates a user row with a starting balance if none
// exists. Existing rows are untouched.
func (s *Store) EnsureUser(ctx context.Context, userID string, startingBalance int64) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO users (user_id, balance, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, startingBalance, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

// GetBalance returns the user's current consumable balance.
func (s *Store) GetBalance(ctx context.Context, userID string) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	var balance int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT balance FROM users WHERE user_id = ?`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// DebitBalance atomically decrements the user's balance by amount.
//
// The decrement and the minimum-balance check are one conditional
// UPDATE, so two concurrent turns can never both succeed when only one
// turn's worth of balance remains. Returns ErrInsufficientFunds (with
// no decrement performed) when the balance is below amount, and the
// remaining balance on success.
func (s *Store) DebitBalance(ctx context.Context, userID string, amount int64) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, fmt.Errorf("debit amount must be positive, got %d", amount)
	}

	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE users SET balance = balance - ? WHERE user_id = ? AND balance >= ?`,
		amount, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("debit balance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("debit balance: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing user from a short balance for error
		// reporting; neither decrements anything.
		balance, getErr := s.GetBalance(ctx, userID)
		if getErr != nil {
			return 0, getErr
		}
		return balance, ErrInsufficientFunds
	}

	return s.GetBalance(ctx, userID)
}

// CreditBalance increments the user's balance by amount. Used both by
// the external top-up surface and by pipeline refunds.
func (s *Store) CreditBalance(ctx context.Context, userID string, amount int64) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive, got %d", amount)
	}

	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE users SET balance = balance + ? WHERE user_id = ?`,
		amount, userID)
	if err != nil {
		return 0, fmt.Errorf("credit balance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("credit balance: %w", err)
	}
	if affected == 0 {
		return 0, ErrNotFound
	}

	return s.GetBalance(ctx, userID)
}
