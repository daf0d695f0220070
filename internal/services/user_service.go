// internal/services/user_service.go
package services

import (
	"context"
	"errors"

	apperrors "github.com/Corphon/ChatNovelEngine/internal/errors"
	"github.com/Corphon/ChatNovelEngine/internal/storage/sqlitestore"
)

// DefaultStartingBalance 新用户的初始余额
const DefaultStartingBalance = 10

// UserService 处理用户账户与消耗性余额
// Balance mutation lives in the store so the debit stays atomic; this
// service only wraps the read and top-up surfaces.
type UserService struct {
	store           *sqlitestore.Store
	startingBalance int64
}

// NewUserService 创建用户服务
func NewUserService(store *sqlitestore.Store) *UserService {
	return &UserService{store: store, startingBalance: DefaultStartingBalance}
}

// EnsureUser creates the account row on first sight of a user id.
func (s *UserService) EnsureUser(ctx context.Context, userID string) error {
	if userID == "" {
		return apperrors.NewValidationError("user id is required", nil)
	}
	return s.store.EnsureUser(ctx, userID, s.startingBalance)
}

// GetBalance returns the user's current consumable balance.
func (s *UserService) GetBalance(ctx context.Context, userID string) (int64, error) {
	balance, err := s.store.GetBalance(ctx, userID)
	if errors.Is(err, sqlitestore.ErrNotFound) {
		return 0, apperrors.NewNotFoundError("user not found", err)
	}
	return balance, err
}

// TopUp credits the balance from the external billing surface. The
// engine does not care how the credits were acquired.
func (s *UserService) TopUp(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, apperrors.NewValidationError("top-up amount must be positive", nil)
	}
	balance, err := s.store.CreditBalance(ctx, userID, amount)
	if errors.Is(err, sqlitestore.ErrNotFound) {
		return 0, apperrors.NewNotFoundError("user not found", err)
	}
	return balance, err
}
