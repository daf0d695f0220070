// internal/models/progress.go
package models

import "time"

// ProgressStatus 表示剧本进度状态
type ProgressStatus string

const (
	ProgressNotStarted ProgressStatus = "not_started"
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressCompleted  ProgressStatus = "completed"
)

// ScenarioProgress 记录用户在某个角色剧本中的推进情况
// Transitions to completed exactly once; duplicate completion attempts
// are no-ops.
type ScenarioProgress struct {
	UserID      string         `json:"user_id"`
	CharacterID string         `json:"character_id"`
	ScenarioID  string         `json:"scenario_id"`
	Status      ProgressStatus `json:"status"`
	SceneID     string         `json:"scene_id,omitempty"`
	ChoicesMade []string       `json:"choices_made,omitempty"`
	StartedAt   time.Time      `json:"started_at,omitempty"`
	CompletedAt time.Time      `json:"completed_at,omitempty"`
}

// MemoryRecord 表示剧本完成时写入的一条回忆
type MemoryRecord struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	CharacterID string    `json:"character_id"`
	ScenarioID  string    `json:"scenario_id,omitempty"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
