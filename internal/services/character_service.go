// internal/services/character_service.go
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

const characterDir = "characters"

// CharacterService 提供角色定义的读取
// Character documents are authored content: read-only to the engine.
type CharacterService struct {
	storage *storage.FileStorage
}

// NewCharacterService 创建角色目录服务
func NewCharacterService(fileStorage *storage.FileStorage) *CharacterService {
	return &CharacterService{storage: fileStorage}
}

// GetCharacter loads a character definition by id.
func (s *CharacterService) GetCharacter(characterID string) (*models.Character, error) {
	var character models.Character
	if err := s.storage.LoadJSON(characterDir, characterID+".json", &character); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("character %s not found", characterID), err)
		}
		return nil, fmt.Errorf("load character %s: %w", characterID, err)
	}
	return &character, nil
}

// ListCharacters returns all character definitions sorted by name.
func (s *CharacterService) ListCharacters() ([]models.Character, error) {
	names, err := s.storage.ListJSON(characterDir)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}

	var characters []models.Character
	for _, name := range names {
		var character models.Character
		if err := s.storage.LoadJSON(characterDir, name+".json", &character); err != nil {
			return nil, fmt.Errorf("load character %s: %w", name, err)
		}
		characters = append(characters, character)
	}

	sort.SliceStable(characters, func(i, j int) bool {
		return characters[i].Name < characters[j].Name
	})
	return characters, nil
}

// SaveCharacter persists a character document (authoring surface).
func (s *CharacterService) SaveCharacter(character *models.Character) error {
	if character.ID == "" {
		return apperrors.NewValidationError("character id is required", nil)
	}
	if character.Name == "" {
		return apperrors.NewValidationError("character name is required", nil)
	}

	now := time.Now()
	if character.CreatedAt.IsZero() {
		character.CreatedAt = now
	}
	character.LastUpdated = now

	return s.storage.SaveJSON(characterDir, character.ID+".json", character)
}
