package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Corphon/ChatNovelEngine/internal/models"
)

func scanSession(row *sql.Row) (*models.ConversationSession, error) {
	var sess models.ConversationSession
	var createdAt, lastMessageAt, endedAt int64
	err := row.Scan(&sess.ID, &sess.UserID, &sess.CharacterID, &sess.Status,
		&sess.ScenarioID, &sess.SceneID, &createdAt, &lastMessageAt, &endedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.CreatedAt = time.UnixMilli(createdAt)
	sess.LastMessageAt = time.UnixMilli(lastMessageAt)
	if endedAt > 0 {
		sess.EndedAt = time.UnixMilli(endedAt)
	}
	return &sess, nil
}

const sessionColumns = `id, user_id, character_id, status, scenario_id, scene_id, created_at, last_message_at, ended_at`

// GetSession loads a session by id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*models.ConversationSession, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, sessionID)
	return scanSession(row)
}

// GetActiveSession returns the active session for a pair, if any.
// When recovery has left more than one nominally-active row, the most
// recently touched one wins.
func (s *Store) GetActiveSession(ctx context.Context, userID, characterID string) (*models.ConversationSession, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = ? AND character_id = ? AND status = ?
		 ORDER BY last_message_at DESC LIMIT 1`,
		userID, characterID, models.SessionActive)
	return scanSession(row)
}

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, sess *models.ConversationSession) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.CharacterID, sess.Status,
		sess.ScenarioID, sess.SceneID,
		sess.CreatedAt.UnixMilli(), sess.LastMessageAt.UnixMilli(), int64(0))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// SupersedeSession ends every active session for the pair and creates
// the new one in a single transaction, preserving the at-most-one-
// active-session invariant even across a crash.
func (s *Store) SupersedeSession(ctx context.Context, sess *models.ConversationSession) error {
	if err := s.ready(); err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions SET status = ?, ended_at = ?
			 WHERE user_id = ? AND character_id = ? AND status = ?`,
			models.SessionEnded, now, sess.UserID, sess.CharacterID, models.SessionActive); err != nil {
			return fmt.Errorf("end prior sessions: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, sess.UserID, sess.CharacterID, sess.Status,
			sess.ScenarioID, sess.SceneID,
			sess.CreatedAt.UnixMilli(), sess.LastMessageAt.UnixMilli(), int64(0)); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		return nil
	})
}

// EndSession marks a session ended.
func (s *Store) EndSession(ctx context.Context, sessionID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`UPDATE sessions SET status = ?, ended_at = ? WHERE id = ? AND status = ?`,
		models.SessionEnded, time.Now().UnixMilli(), sessionID, models.SessionActive)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// TouchSession updates the session's scene position and last-message
// timestamp after a committed turn.
func (s *Store) TouchSession(ctx context.Context, sessionID, sceneID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`UPDATE sessions SET scene_id = ?, last_message_at = ? WHERE id = ?`,
		sceneID, time.Now().UnixMilli(), sessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// AppendDialogue records one message of session history.
func (s *Store) AppendDialogue(ctx context.Context, turn *models.DialogueTurn) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO dialogue_turns (session_id, role, text, emotion, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		turn.SessionID, turn.Role, turn.Text, turn.Emotion, turn.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("append dialogue: %w", err)
	}
	return nil
}

// RecentDialogue returns up to limit most recent turns for a session
// in chronological order.
func (s *Store) RecentDialogue(ctx context.Context, sessionID string, limit int) ([]models.DialogueTurn, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT session_id, role, text, emotion, created_at FROM (
			SELECT id, session_id, role, text, emotion, created_at
			FROM dialogue_turns WHERE session_id = ?
			ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent dialogue: %w", err)
	}
	defer rows.Close()

	var turns []models.DialogueTurn
	for rows.Next() {
		var t models.DialogueTurn
		var createdAt int64
		if err := rows.Scan(&t.SessionID, &t.Role, &t.Text, &t.Emotion, &createdAt); err != nil {
			return nil, fmt.Errorf("scan dialogue turn: %w", err)
		}
		t.CreatedAt = time.UnixMilli(createdAt)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}
