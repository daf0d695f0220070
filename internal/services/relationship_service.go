// internal/services/relationship_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Corphon/ChatNovelEngine/internal/models"
	"github.com/Corphon/ChatNovelEngine/internal/storage/sqlitestore"
)

// RelationshipService 维护用户与角色之间的关系账本
// All mutation goes through Apply so the clamp, counter, and stage
// derivation rules hold at every call site.
type RelationshipService struct {
	store *sqlitestore.Store
}

// NewRelationshipService 创建关系账本服务
func NewRelationshipService(store *sqlitestore.Store) *RelationshipService {
	return &RelationshipService{store: store}
}

// GetOrCreate returns the relationship record for a pair, creating the
// initial record on first interaction.
func (s *RelationshipService) GetOrCreate(ctx context.Context, userID, characterID string) (*models.RelationshipRecord, error) {
	rec, err := s.store.GetRelationship(ctx, userID, characterID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, sqlitestore.ErrNotFound) {
		return nil, err
	}

	rec = models.NewRelationshipRecord(userID, characterID)
	if err := s.store.SaveRelationship(ctx, rec); err != nil {
		return nil, fmt.Errorf("create relationship record: %w", err)
	}
	return rec, nil
}

// Apply runs one interaction's delta through the ledger and persists
// the result. An optional story flag is set in the same application.
// The returned transition is non-nil only when the derived stage
// changed.
func (s *RelationshipService) Apply(ctx context.Context, userID, characterID string, delta models.RelationshipDelta, setFlag string) (*models.RelationshipRecord, *models.StageTransition, error) {
	rec, err := s.GetOrCreate(ctx, userID, characterID)
	if err != nil {
		return nil, nil, err
	}

	if setFlag != "" {
		rec.SetFlag(setFlag)
	}
	transition := rec.ApplyDelta(delta)

	if err := s.store.SaveRelationship(ctx, rec); err != nil {
		return nil, nil, fmt.Errorf("persist relationship record: %w", err)
	}
	return rec, transition, nil
}

// PromoteToStage raises the record's scores so the derived stage is at
// least the given stage. Stage stays a pure derived value; a scenario
// ending "sets" a stage by lifting the underlying scores to that
// stage's floor.
func (s *RelationshipService) PromoteToStage(ctx context.Context, userID, characterID string, stage models.RelationshipStage) (*models.RelationshipRecord, error) {
	rec, err := s.GetOrCreate(ctx, userID, characterID)
	if err != nil {
		return nil, err
	}

	if models.StageRank(rec.Stage) >= models.StageRank(stage) {
		return rec, nil // promotions never demote
	}

	floor := stageFloor(stage)
	if rec.AffectionLevel < floor {
		rec.AffectionLevel = floor
	}
	if rec.TrustLevel < floor {
		rec.TrustLevel = floor
	}
	if rec.IntimacyLevel < floor {
		rec.IntimacyLevel = floor
	}
	rec.Stage = models.StageForScores(rec.AffectionLevel, rec.TrustLevel, rec.IntimacyLevel)

	if err := s.store.SaveRelationship(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist relationship record: %w", err)
	}
	return rec, nil
}

// stageFloor is the lowest score average that maps to the stage.
func stageFloor(stage models.RelationshipStage) int {
	switch stage {
	case models.StageAcquaintance:
		return 20
	case models.StageClose:
		return 40
	case models.StageIntimate:
		return 60
	case models.StageLover:
		return 80
	default:
		return 0
	}
}

// SeedAffection raises the pair's affection to at least the given
// value. Scenario endings use this to hand a branch-specific starting
// point to the follow-up chat; an earned score is never lowered.
func (s *RelationshipService) SeedAffection(ctx context.Context, userID, characterID string, floor int) (*models.RelationshipRecord, error) {
	rec, err := s.GetOrCreate(ctx, userID, characterID)
	if err != nil {
		return nil, err
	}

	if floor > 100 {
		floor = 100
	}
	if rec.AffectionLevel >= floor {
		return rec, nil
	}
	rec.AffectionLevel = floor
	rec.Stage = models.StageForScores(rec.AffectionLevel, rec.TrustLevel, rec.IntimacyLevel)

	if err := s.store.SaveRelationship(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist relationship record: %w", err)
	}
	return rec, nil
}

// UnlockMemory appends a memory id to the record's append-only set.
func (s *RelationshipService) UnlockMemory(ctx context.Context, userID, characterID, memoryID string) error {
	rec, err := s.GetOrCreate(ctx, userID, characterID)
	if err != nil {
		return err
	}
	rec.UnlockMemory(memoryID)
	return s.store.SaveRelationship(ctx, rec)
}

// ListMemories returns the pair's unlocked memory records in creation
// order.
func (s *RelationshipService) ListMemories(ctx context.Context, userID, characterID string) ([]models.MemoryRecord, error) {
	return s.store.ListMemories(ctx, userID, characterID)
}
