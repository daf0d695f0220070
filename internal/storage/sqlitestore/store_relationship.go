package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Corphon/ChatNovelEngine/internal/models"
)

// GetRelationship loads the relationship record for a pair.
func (s *Store) GetRelationship(ctx context.Context, userID, characterID string) (*models.RelationshipRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT user_id, character_id, affection_level, trust_level, intimacy_level,
		        stage, total_interactions, story_flags, unlocked_memories,
		        created_at, last_updated
		 FROM relationships WHERE user_id = ? AND character_id = ?`,
		userID, characterID)

	var rec models.RelationshipRecord
	var flagsJSON, memoriesJSON string
	var createdAt, lastUpdated int64
	err := row.Scan(&rec.UserID, &rec.CharacterID, &rec.AffectionLevel, &rec.TrustLevel,
		&rec.IntimacyLevel, &rec.Stage, &rec.TotalInteractions, &flagsJSON, &memoriesJSON,
		&createdAt, &lastUpdated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get relationship: %w", err)
	}

	if err := json.Unmarshal([]byte(flagsJSON), &rec.StoryFlags); err != nil {
		return nil, fmt.Errorf("parse story flags: %w", err)
	}
	if err := json.Unmarshal([]byte(memoriesJSON), &rec.UnlockedMemories); err != nil {
		return nil, fmt.Errorf("parse unlocked memories: %w", err)
	}
	rec.CreatedAt = time.UnixMilli(createdAt)
	rec.LastUpdated = time.UnixMilli(lastUpdated)
	return &rec, nil
}

// SaveRelationship upserts a relationship record.
func (s *Store) SaveRelationship(ctx context.Context, rec *models.RelationshipRecord) error {
	if err := s.ready(); err != nil {
		return err
	}

	flagsJSON, err := json.Marshal(rec.StoryFlags)
	if err != nil {
		return fmt.Errorf("serialize story flags: %w", err)
	}
	memories := rec.UnlockedMemories
	if memories == nil {
		memories = []string{}
	}
	memoriesJSON, err := json.Marshal(memories)
	if err != nil {
		return fmt.Errorf("serialize unlocked memories: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO relationships
		   (user_id, character_id, affection_level, trust_level, intimacy_level,
		    stage, total_interactions, story_flags, unlocked_memories, created_at, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, character_id) DO UPDATE SET
		   affection_level = excluded.affection_level,
		   trust_level = excluded.trust_level,
		   intimacy_level = excluded.intimacy_level,
		   stage = excluded.stage,
		   total_interactions = excluded.total_interactions,
		   story_flags = excluded.story_flags,
		   unlocked_memories = excluded.unlocked_memories,
		   last_updated = excluded.last_updated`,
		rec.UserID, rec.CharacterID, rec.AffectionLevel, rec.TrustLevel, rec.IntimacyLevel,
		rec.Stage, rec.TotalInteractions, string(flagsJSON), string(memoriesJSON),
		rec.CreatedAt.UnixMilli(), rec.LastUpdated.UnixMilli())
	if err != nil {
		return fmt.Errorf("save relationship: %w", err)
	}
	return nil
}

// AddMemory inserts a memory record. Duplicate ids are ignored so a
// retried completion cannot double-write.
func (s *Store) AddMemory(ctx context.Context, mem *models.MemoryRecord) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO memories (id, user_id, character_id, scenario_id, title, summary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		mem.ID, mem.UserID, mem.CharacterID, mem.ScenarioID, mem.Title, mem.Summary,
		mem.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("add memory: %w", err)
	}
	return nil
}

// ListMemories returns all memories for a pair in creation order.
func (s *Store) ListMemories(ctx context.Context, userID, characterID string) ([]models.MemoryRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, user_id, character_id, scenario_id, title, summary, created_at
		 FROM memories WHERE user_id = ? AND character_id = ?
		 ORDER BY created_at ASC`,
		userID, characterID)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var memories []models.MemoryRecord
	for rows.Next() {
		var mem models.MemoryRecord
		var createdAt int64
		if err := rows.Scan(&mem.ID, &mem.UserID, &mem.CharacterID, &mem.ScenarioID,
			&mem.Title, &mem.Summary, &createdAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		mem.CreatedAt = time.UnixMilli(createdAt)
		memories = append(memories, mem)
	}
	return memories, rows.Err()
}
