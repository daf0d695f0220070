package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Corphon/ChatNovelEngine/internal/models"
)

func scanProgress(row *sql.Row) (*models.ScenarioProgress, error) {
	var prog models.ScenarioProgress
	var choicesJSON string
	var startedAt, completedAt int64
	err := row.Scan(&prog.UserID, &prog.CharacterID, &prog.ScenarioID, &prog.Status,
		&prog.SceneID, &choicesJSON, &startedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan progress: %w", err)
	}
	if err := json.Unmarshal([]byte(choicesJSON), &prog.ChoicesMade); err != nil {
		return nil, fmt.Errorf("parse choices made: %w", err)
	}
	prog.StartedAt = time.UnixMilli(startedAt)
	if completedAt > 0 {
		prog.CompletedAt = time.UnixMilli(completedAt)
	}
	return &prog, nil
}

// GetProgress loads one progress record.
func (s *Store) GetProgress(ctx context.Context, userID, characterID, scenarioID string) (*models.ScenarioProgress, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT user_id, character_id, scenario_id, status, scene_id, choices_made, started_at, completed_at
		 FROM scenario_progress
		 WHERE user_id = ? AND character_id = ? AND scenario_id = ?`,
		userID, characterID, scenarioID)
	return scanProgress(row)
}

// ListProgress returns all progress records for a pair.
func (s *Store) ListProgress(ctx context.Context, userID, characterID string) ([]models.ScenarioProgress, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT user_id, character_id, scenario_id, status, scene_id, choices_made, started_at, completed_at
		 FROM scenario_progress
		 WHERE user_id = ? AND character_id = ?
		 ORDER BY started_at ASC`,
		userID, characterID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var records []models.ScenarioProgress
	for rows.Next() {
		var prog models.ScenarioProgress
		var choicesJSON string
		var startedAt, completedAt int64
		if err := rows.Scan(&prog.UserID, &prog.CharacterID, &prog.ScenarioID, &prog.Status,
			&prog.SceneID, &choicesJSON, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		if err := json.Unmarshal([]byte(choicesJSON), &prog.ChoicesMade); err != nil {
			return nil, fmt.Errorf("parse choices made: %w", err)
		}
		prog.StartedAt = time.UnixMilli(startedAt)
		if completedAt > 0 {
			prog.CompletedAt = time.UnixMilli(completedAt)
		}
		records = append(records, prog)
	}
	return records, rows.Err()
}

// SaveProgress upserts a progress record.
func (s *Store) SaveProgress(ctx context.Context, prog *models.ScenarioProgress) error {
	if err := s.ready(); err != nil {
		return err
	}
	choices := prog.ChoicesMade
	if choices == nil {
		choices = []string{}
	}
	choicesJSON, err := json.Marshal(choices)
	if err != nil {
		return fmt.Errorf("serialize choices made: %w", err)
	}
	var completedAt int64
	if !prog.CompletedAt.IsZero() {
		completedAt = prog.CompletedAt.UnixMilli()
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO scenario_progress
		   (user_id, character_id, scenario_id, status, scene_id, choices_made, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, character_id, scenario_id) DO UPDATE SET
		   status = excluded.status,
		   scene_id = excluded.scene_id,
		   choices_made = excluded.choices_made,
		   completed_at = excluded.completed_at`,
		prog.UserID, prog.CharacterID, prog.ScenarioID, prog.Status, prog.SceneID,
		string(choicesJSON), prog.StartedAt.UnixMilli(), completedAt)
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// MarkProgressCompleted transitions a progress record from in-progress
// to completed. Returns true only for the call that performed the
// transition, so one-time completion effects run exactly once even
// under retried or duplicate pipeline calls.
func (s *Store) MarkProgressCompleted(ctx context.Context, userID, characterID, scenarioID string) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE scenario_progress SET status = ?, completed_at = ?
		 WHERE user_id = ? AND character_id = ? AND scenario_id = ? AND status = ?`,
		models.ProgressCompleted, time.Now().UnixMilli(),
		userID, characterID, scenarioID, models.ProgressInProgress)
	if err != nil {
		return false, fmt.Errorf("mark progress completed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark progress completed: %w", err)
	}
	return affected > 0, nil
}
