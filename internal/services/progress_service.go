// internal/services/progress_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/Corphon/ChatNovelEngine/internal/errors"
	"github.com/Corphon/ChatNovelEngine/internal/models"
	"github.com/Corphon/ChatNovelEngine/internal/storage/sqlitestore"
	"github.com/Corphon/ChatNovelEngine/internal/utils"
)

// ProgressService 跟踪用户在分支剧本中的推进与完成
type ProgressService struct {
	store         *sqlitestore.Store
	scenarios     *ScenarioService
	relationships *RelationshipService
}

// CompletionResult 描述一次剧本完成的结果
type CompletionResult struct {
	Progress          *models.ScenarioProgress `json:"progress"`
	BonusApplied      int                      `json:"bonus_applied,omitempty"`
	StageSet          models.RelationshipStage `json:"stage_set,omitempty"`
	AffectionSeeded   int                      `json:"affection_seeded,omitempty"`
	MemoryID          string                   `json:"memory_id,omitempty"`
	UnlockedScenarios []string                 `json:"unlocked_scenarios,omitempty"`
	AlreadyCompleted  bool                     `json:"already_completed,omitempty"`
}

// NewProgressService 创建剧本进度服务
func NewProgressService(store *sqlitestore.Store, scenarios *ScenarioService, relationships *RelationshipService) *ProgressService {
	return &ProgressService{store: store, scenarios: scenarios, relationships: relationships}
}

// Start creates a progress record at the scenario's start scene.
// Fails with a conflict when a non-terminal record already exists and
// with a forbidden error when the unlock prerequisites do not pass.
func (s *ProgressService) Start(ctx context.Context, userID, characterID, scenarioID string) (*models.ScenarioProgress, error) {
	scenario, err := s.scenarios.GetScenario(scenarioID)
	if err != nil {
		return nil, err
	}

	rec, err := s.relationships.GetOrCreate(ctx, userID, characterID)
	if err != nil {
		return nil, err
	}
	if !Unlocked(scenario, rec) {
		return nil, apperrors.NewForbiddenError(
			fmt.Sprintf("scenario %s is locked at the current relationship stage", scenarioID), nil)
	}

	existing, err := s.store.GetProgress(ctx, userID, characterID, scenarioID)
	if err != nil && !errors.Is(err, sqlitestore.ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.Status == models.ProgressInProgress {
		return nil, apperrors.NewConflictError(
			fmt.Sprintf("scenario %s is already in progress", scenarioID), nil)
	}
	if existing != nil && existing.Status == models.ProgressCompleted {
		return nil, apperrors.NewConflictError(
			fmt.Sprintf("scenario %s is already completed", scenarioID), nil)
	}

	prog := &models.ScenarioProgress{
		UserID:      userID,
		CharacterID: characterID,
		ScenarioID:  scenarioID,
		Status:      models.ProgressInProgress,
		SceneID:     scenario.StartSceneID(),
		StartedAt:   time.Now(),
	}
	if err := s.store.SaveProgress(ctx, prog); err != nil {
		return nil, err
	}
	return prog, nil
}

// RecordAdvance persists the new position after a graph advance and
// appends the choice made, if any.
func (s *ProgressService) RecordAdvance(ctx context.Context, userID, characterID, scenarioID, sceneID, choiceID string) error {
	prog, err := s.store.GetProgress(ctx, userID, characterID, scenarioID)
	if errors.Is(err, sqlitestore.ErrNotFound) {
		// A session can be started directly into a scenario without an
		// explicit Start call; create the record in passing.
		prog = &models.ScenarioProgress{
			UserID:      userID,
			CharacterID: characterID,
			ScenarioID:  scenarioID,
			Status:      models.ProgressInProgress,
			StartedAt:   time.Now(),
		}
	} else if err != nil {
		return err
	}

	if prog.Status == models.ProgressCompleted {
		return nil // completed records never move backwards
	}
	prog.SceneID = sceneID
	if choiceID != "" {
		prog.ChoicesMade = append(prog.ChoicesMade, choiceID)
	}
	return s.store.SaveProgress(ctx, prog)
}

// Complete transitions the progress record to completed and applies
// the one-time effects exactly once. Re-invocation on an already
// completed scenario is a silent no-op returning the completed state.
func (s *ProgressService) Complete(ctx context.Context, userID, characterID, scenarioID string) (*CompletionResult, error) {
	transitioned, err := s.store.MarkProgressCompleted(ctx, userID, characterID, scenarioID)
	if err != nil {
		return nil, err
	}

	prog, err := s.store.GetProgress(ctx, userID, characterID, scenarioID)
	if err != nil {
		return nil, err
	}

	if !transitioned {
		if prog.Status != models.ProgressCompleted {
			return nil, apperrors.NewConflictError(
				fmt.Sprintf("scenario %s was never started", scenarioID), nil)
		}
		return &CompletionResult{Progress: prog, AlreadyCompleted: true}, nil
	}

	scenario, err := s.scenarios.GetScenario(scenarioID)
	if err != nil {
		return nil, err
	}

	result := &CompletionResult{Progress: prog}

	// One-time effects, guarded by the status transition above.
	if scenario.Ending.CompletionBonus != 0 {
		if _, _, err := s.relationships.Apply(ctx, userID, characterID,
			models.UniformDelta(scenario.Ending.CompletionBonus), ""); err != nil {
			return nil, err
		}
		result.BonusApplied = scenario.Ending.CompletionBonus
	}

	if scenario.Ending.SetsStage != "" {
		if _, err := s.relationships.PromoteToStage(ctx, userID, characterID, scenario.Ending.SetsStage); err != nil {
			return nil, err
		}
		result.StageSet = scenario.Ending.SetsStage
	}

	// Branch-specific affection seed, keyed by the final choice made.
	if seed, ok := scenario.Ending.InitialAffection[lastChoice(prog)]; ok {
		if _, err := s.relationships.SeedAffection(ctx, userID, characterID, seed); err != nil {
			return nil, err
		}
		result.AffectionSeeded = seed
	}

	memory := &models.MemoryRecord{
		ID:          fmt.Sprintf("memory_%s_%s_%s", userID, characterID, scenarioID),
		UserID:      userID,
		CharacterID: characterID,
		ScenarioID:  scenarioID,
		Title:       scenario.Ending.MemoryTitle,
		Summary:     scenario.Description,
		CreatedAt:   time.Now(),
	}
	if memory.Title == "" {
		memory.Title = scenario.Title
	}
	if err := s.store.AddMemory(ctx, memory); err != nil {
		return nil, err
	}
	if err := s.relationships.UnlockMemory(ctx, userID, characterID, memory.ID); err != nil {
		return nil, err
	}
	result.MemoryID = memory.ID

	// Newly unlocked scenarios, computed from the updated snapshot.
	unlocked, err := s.newlyUnlocked(ctx, userID, characterID, scenarioID)
	if err != nil {
		// The completion itself already happened; unlock listing is
		// advisory, so log and continue.
		utils.GetLogger().Warn("failed to compute unlocked scenarios", map[string]interface{}{
			"user_id": userID, "scenario_id": scenarioID, "error": err.Error(),
		})
	} else {
		result.UnlockedScenarios = unlocked
	}

	return result, nil
}

// lastChoice is the most recent choice recorded on the run.
func lastChoice(prog *models.ScenarioProgress) string {
	if len(prog.ChoicesMade) == 0 {
		return ""
	}
	return prog.ChoicesMade[len(prog.ChoicesMade)-1]
}

// newlyUnlocked lists scenarios that pass the unlock predicates now
// and have not been started yet.
func (s *ProgressService) newlyUnlocked(ctx context.Context, userID, characterID, completedID string) ([]string, error) {
	rec, err := s.relationships.GetOrCreate(ctx, userID, characterID)
	if err != nil {
		return nil, err
	}
	catalog, err := s.scenarios.ListScenarios(characterID)
	if err != nil {
		return nil, err
	}
	started, err := s.store.ListProgress(ctx, userID, characterID)
	if err != nil {
		return nil, err
	}
	startedSet := make(map[string]bool, len(started))
	for _, p := range started {
		startedSet[p.ScenarioID] = true
	}

	var unlocked []string
	for i := range catalog {
		sc := &catalog[i]
		if sc.ID == completedID || startedSet[sc.ID] {
			continue
		}
		if Unlocked(sc, rec) {
			unlocked = append(unlocked, sc.ID)
		}
	}
	return unlocked, nil
}

// AvailableScenarios filters the authored catalog by the two monotone
// unlock predicates, returning passing scenarios in authoring order.
func (s *ProgressService) AvailableScenarios(ctx context.Context, userID, characterID string) ([]models.Scenario, error) {
	rec, err := s.relationships.GetOrCreate(ctx, userID, characterID)
	if err != nil {
		return nil, err
	}
	catalog, err := s.scenarios.ListScenarios(characterID)
	if err != nil {
		return nil, err
	}

	var available []models.Scenario
	for i := range catalog {
		if Unlocked(&catalog[i], rec) {
			available = append(available, catalog[i])
		}
	}
	return available, nil
}

// GetProgress returns one progress record for the read surface.
func (s *ProgressService) GetProgress(ctx context.Context, userID, characterID, scenarioID string) (*models.ScenarioProgress, error) {
	prog, err := s.store.GetProgress(ctx, userID, characterID, scenarioID)
	if errors.Is(err, sqlitestore.ErrNotFound) {
		return &models.ScenarioProgress{
			UserID:      userID,
			CharacterID: characterID,
			ScenarioID:  scenarioID,
			Status:      models.ProgressNotStarted,
		}, nil
	}
	return prog, err
}

// ListProgress returns all progress records for a pair.
func (s *ProgressService) ListProgress(ctx context.Context, userID, characterID string) ([]models.ScenarioProgress, error) {
	return s.store.ListProgress(ctx, userID, characterID)
}
