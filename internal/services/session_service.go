// internal/services/session_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/Corphon/ChatNovelEngine/internal/errors"
	"github.com/Corphon/ChatNovelEngine/internal/models"
	"github.com/Corphon/ChatNovelEngine/internal/storage/sqlitestore"
)

// SessionService 管理用户与角色之间的会话连续性
// Structural invariant: at most one active session per (user,
// character) pair; the store enforces supersede atomically.
type SessionService struct {
	store *sqlitestore.Store
}

// NewSessionService 创建会话服务
func NewSessionService(store *sqlitestore.Store) *SessionService {
	return &SessionService{store: store}
}

// ResolveOrCreate finds the active session for a pair or creates a
// free-form one.
func (s *SessionService) ResolveOrCreate(ctx context.Context, userID, characterID string) (*models.ConversationSession, error) {
	sess, err := s.store.GetActiveSession(ctx, userID, characterID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, sqlitestore.ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	sess = &models.ConversationSession{
		ID:            models.NewSessionID(),
		UserID:        userID,
		CharacterID:   characterID,
		Status:        models.SessionActive,
		CreatedAt:     now,
		LastMessageAt: now,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// Validate re-checks an externally supplied session id against the
// claimed user and character. An empty characterID skips the persona
// check. Mismatches are caller errors, never retried.
func (s *SessionService) Validate(ctx context.Context, sessionID, userID, characterID string) (*models.ConversationSession, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, sqlitestore.ErrNotFound) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("session %s not found", sessionID), err)
	}
	if err != nil {
		return nil, err
	}

	if sess.UserID != userID {
		appErr := apperrors.NewForbiddenError("session belongs to another user", nil)
		appErr.Code = "SESSION_OWNERSHIP"
		return nil, appErr
	}
	if characterID != "" && sess.CharacterID != characterID {
		appErr := apperrors.NewForbiddenError("session is bound to another character", nil)
		appErr.Code = "SESSION_PERSONA_MISMATCH"
		return nil, appErr
	}
	if sess.Status != models.SessionActive {
		return nil, apperrors.NewConflictError("session has already ended", nil)
	}
	return sess, nil
}

// StartScenario ends any active session for the pair and creates a new
// one positioned at the scenario's first scene. Ending the prior
// session and creating the new one is one logical operation.
func (s *SessionService) StartScenario(ctx context.Context, userID, characterID string, scenario *models.Scenario) (*models.ConversationSession, error) {
	if scenario.StartSceneID() == "" {
		return nil, apperrors.NewValidationError("scenario has no start scene", nil)
	}

	now := time.Now()
	sess := &models.ConversationSession{
		ID:            models.NewSessionID(),
		UserID:        userID,
		CharacterID:   characterID,
		Status:        models.SessionActive,
		ScenarioID:    scenario.ID,
		SceneID:       scenario.StartSceneID(),
		CreatedAt:     now,
		LastMessageAt: now,
	}
	if err := s.store.SupersedeSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("start scenario session: %w", err)
	}
	return sess, nil
}

// End marks a session ended.
func (s *SessionService) End(ctx context.Context, sessionID string) error {
	return s.store.EndSession(ctx, sessionID)
}

// History returns the session's recent dialogue window in
// chronological order.
func (s *SessionService) History(ctx context.Context, sessionID string, limit int) ([]models.DialogueTurn, error) {
	return s.store.RecentDialogue(ctx, sessionID, limit)
}
