// internal/services/scenario_service.go
package services

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	apperrors "github.com/Corphon/ChatNovelEngine/internal/errors"
	"github.com/Corphon/ChatNovelEngine/internal/models"
	"github.com/Corphon/ChatNovelEngine/internal/storage"
)

const scenarioDir = "scenarios"

// ScenarioService 提供授权剧本目录的读取与发布
// Scenarios are authored out-of-band and validated at publish time, so
// the engine never meets a dangling scene reference during traversal.
type ScenarioService struct {
	storage *storage.FileStorage
}

// NewScenarioService 创建剧本目录服务
func NewScenarioService(fileStorage *storage.FileStorage) *ScenarioService {
	return &ScenarioService{storage: fileStorage}
}

// GetScenario loads an active scenario by id.
func (s *ScenarioService) GetScenario(scenarioID string) (*models.Scenario, error) {
	var scenario models.Scenario
	if err := s.storage.LoadJSON(scenarioDir, scenarioID+".json", &scenario); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("scenario %s not found", scenarioID), err)
		}
		return nil, fmt.Errorf("load scenario %s: %w", scenarioID, err)
	}
	if !scenario.Active {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("scenario %s is not active", scenarioID), nil)
	}
	return &scenario, nil
}

// ListScenarios returns all active scenarios for a character in
// authoring order.
func (s *ScenarioService) ListScenarios(characterID string) ([]models.Scenario, error) {
	names, err := s.storage.ListJSON(scenarioDir)
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}

	var scenarios []models.Scenario
	for _, name := range names {
		var scenario models.Scenario
		if err := s.storage.LoadJSON(scenarioDir, name+".json", &scenario); err != nil {
			return nil, fmt.Errorf("load scenario %s: %w", name, err)
		}
		if !scenario.Active || scenario.CharacterID != characterID {
			continue
		}
		scenarios = append(scenarios, scenario)
	}

	sort.SliceStable(scenarios, func(i, j int) bool {
		return scenarios[i].Order < scenarios[j].Order
	})
	return scenarios, nil
}

// SaveScenario validates and persists an authored scenario document.
// Graph errors reject the content; reachability warnings are returned
// to the author but the content is accepted.
func (s *ScenarioService) SaveScenario(scenario *models.Scenario) (*models.ValidationResult, error) {
	if scenario.ID == "" {
		return nil, apperrors.NewValidationError("scenario id is required", nil)
	}
	if scenario.CharacterID == "" {
		return nil, apperrors.NewValidationError("scenario character id is required", nil)
	}

	result := scenario.Validate()
	if !result.Valid {
		appErr := apperrors.NewValidationError("scenario failed graph validation", nil)
		appErr.WithDetail("errors", result.Errors)
		return &result, appErr
	}

	now := time.Now()
	if scenario.CreatedAt.IsZero() {
		scenario.CreatedAt = now
	}
	scenario.LastUpdated = now

	if err := s.storage.SaveJSON(scenarioDir, scenario.ID+".json", scenario); err != nil {
		return &result, fmt.Errorf("save scenario %s: %w", scenario.ID, err)
	}
	return &result, nil
}

// Deactivate unpublishes a scenario without deleting the document.
func (s *ScenarioService) Deactivate(scenarioID string) error {
	var scenario models.Scenario
	if err := s.storage.LoadJSON(scenarioDir, scenarioID+".json", &scenario); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperrors.NewNotFoundError(fmt.Sprintf("scenario %s not found", scenarioID), err)
		}
		return err
	}
	scenario.Active = false
	scenario.LastUpdated = time.Now()
	return s.storage.SaveJSON(scenarioDir, scenarioID+".json", &scenario)
}

// Unlocked reports whether a scenario's prerequisites pass for the
// given relationship snapshot. Both predicates are monotone: stage
// rank and affection only unlock more content as they grow.
func Unlocked(scenario *models.Scenario, rec *models.RelationshipRecord) bool {
	if scenario.MinStage != "" && models.StageRank(rec.Stage) < models.StageRank(scenario.MinStage) {
		return false
	}
	return rec.AffectionLevel >= scenario.MinAffection
}
