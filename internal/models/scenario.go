// internal/models/scenario.go
package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned by Advance when the current scene or
// submitted choice cannot be resolved within the scenario graph.
var ErrInvalidTransition = errors.New("invalid scene transition")

// SceneKind 表示场景节点的类型
type SceneKind string

const (
	// SceneNarration is plain narrator text with no speaker.
	SceneNarration SceneKind = "narration"
	// SceneDialogue is a line spoken by the scenario's character.
	SceneDialogue SceneKind = "dialogue"
	// SceneChoice presents player-selectable choices.
	SceneChoice SceneKind = "choice"
	// SceneCharacterEntry introduces the character on screen.
	SceneCharacterEntry SceneKind = "character_entry"
	// SceneTransition is a location/time transition card.
	SceneTransition SceneKind = "transition"
)

// knownSceneKinds 用于加载时的封闭类型校验
var knownSceneKinds = map[SceneKind]bool{
	SceneNarration:      true,
	SceneDialogue:       true,
	SceneChoice:         true,
	SceneCharacterEntry: true,
	SceneTransition:     true,
}

// MaxChoiceAffectionChange bounds the per-choice relationship delta
// accepted at authoring time.
const MaxChoiceAffectionChange = 20

// Choice 表示场景中的一个玩家选项
type Choice struct {
	ID              string `json:"id"`
	Text            string `json:"text"`
	NextSceneID     string `json:"next_scene_id"`
	AffectionChange int    `json:"affection_change"`
	SetsFlag        string `json:"sets_flag,omitempty"`
	Premium         bool   `json:"premium,omitempty"` // costs one extra balance unit
}

// Scene 表示剧本中的一个节点
type Scene struct {
	ID         string    `json:"id"`
	Kind       SceneKind `json:"kind"`
	Speaker    string    `json:"speaker,omitempty"`
	Expression string    `json:"expression,omitempty"`
	Text       string    `json:"text,omitempty"`
	Choices    []Choice  `json:"choices,omitempty"`
}

// ScenarioEnding 描述剧本完成时的一次性效果
type ScenarioEnding struct {
	UnlocksFreeChat  bool              `json:"unlocks_free_chat"`
	SetsStage        RelationshipStage `json:"sets_stage,omitempty"`
	CompletionBonus  int               `json:"completion_bonus,omitempty"`
	InitialAffection map[string]int    `json:"initial_affection,omitempty"` // choice id -> affection seed
	MemoryTitle      string            `json:"memory_title,omitempty"`
}

// Scenario 表示一个完整的分支剧本
// Authored out-of-band and consumed read-only by the engine.
// Versioned by replacement, never mutated in place.
type Scenario struct {
	ID           string            `json:"id"`
	CharacterID  string            `json:"character_id"`
	Title        string            `json:"title"`
	Description  string            `json:"description,omitempty"`
	Order        int               `json:"order"` // authoring order within the catalog
	Scenes       []Scene           `json:"scenes"`
	Ending       ScenarioEnding    `json:"ending"`
	MinStage     RelationshipStage `json:"min_stage,omitempty"`
	MinAffection int               `json:"min_affection,omitempty"`
	Active       bool              `json:"active"`
	CreatedAt    time.Time         `json:"created_at"`
	LastUpdated  time.Time         `json:"last_updated"`
}

// ValidationResult 表示剧本图校验的结果
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// StartSceneID returns the id of the first scene in authoring order.
func (s *Scenario) StartSceneID() string {
	if len(s.Scenes) == 0 {
		return ""
	}
	return s.Scenes[0].ID
}

// sceneIndex maps scene ids to positions in authoring order.
func (s *Scenario) sceneIndex() map[string]int {
	idx := make(map[string]int, len(s.Scenes))
	for i, scene := range s.Scenes {
		if _, dup := idx[scene.ID]; dup {
			continue // duplicates reported by Validate
		}
		idx[scene.ID] = i
	}
	return idx
}

// Validate checks the scenario graph for structural problems.
//
// Errors reject the content: missing or duplicate scene ids, choice
// destinations that resolve to no scene, out-of-range choice deltas,
// unknown scene kinds. Warnings flag scenes unreachable from the start
// scene but still accept the content.
func (s *Scenario) Validate() ValidationResult {
	result := ValidationResult{Valid: true}

	if len(s.Scenes) == 0 {
		result.Valid = false
		result.Errors = append(result.Errors, "scenario has no scenes")
		return result
	}

	seen := make(map[string]bool, len(s.Scenes))
	for i, scene := range s.Scenes {
		if scene.ID == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("scene at position %d is missing an id", i))
			continue
		}
		if seen[scene.ID] {
			result.Errors = append(result.Errors, fmt.Sprintf("duplicate scene id %q", scene.ID))
		}
		seen[scene.ID] = true

		if !knownSceneKinds[scene.Kind] {
			result.Errors = append(result.Errors, fmt.Sprintf("scene %q has unknown kind %q", scene.ID, scene.Kind))
		}
	}

	// Referential integrity: every destination must resolve within this
	// scenario. Rejected at load time, never at traversal time.
	for _, scene := range s.Scenes {
		for _, choice := range scene.Choices {
			if choice.NextSceneID == "" || !seen[choice.NextSceneID] {
				result.Errors = append(result.Errors,
					fmt.Sprintf("scene %q choice %q points to unknown scene %q", scene.ID, choice.ID, choice.NextSceneID))
			}
			if choice.AffectionChange > MaxChoiceAffectionChange || choice.AffectionChange < -MaxChoiceAffectionChange {
				result.Errors = append(result.Errors,
					fmt.Sprintf("scene %q choice %q affection change %d out of range", scene.ID, choice.ID, choice.AffectionChange))
			}
		}
	}

	if len(result.Errors) > 0 {
		result.Valid = false
		return result
	}

	result.Warnings = s.unreachableScenes()
	return result
}

// unreachableScenes computes forward reachability from the start scene
// to a fixed point: choice destinations plus linear fallthrough for
// scenes without choices.
func (s *Scenario) unreachableScenes() []string {
	idx := s.sceneIndex()
	reachable := map[string]bool{s.StartSceneID(): true}

	for changed := true; changed; {
		changed = false
		for _, scene := range s.Scenes {
			if !reachable[scene.ID] {
				continue
			}
			if len(scene.Choices) == 0 {
				// Linear fallthrough to the next scene in authoring order.
				if pos, ok := idx[scene.ID]; ok && pos+1 < len(s.Scenes) {
					next := s.Scenes[pos+1].ID
					if !reachable[next] {
						reachable[next] = true
						changed = true
					}
				}
				continue
			}
			for _, choice := range scene.Choices {
				if !reachable[choice.NextSceneID] {
					reachable[choice.NextSceneID] = true
					changed = true
				}
			}
		}
	}

	var orphans []string
	for _, scene := range s.Scenes {
		if !reachable[scene.ID] {
			orphans = append(orphans, fmt.Sprintf("scene %q is unreachable from the start scene", scene.ID))
		}
	}
	return orphans
}

// Scene returns the scene with the given id.
func (s *Scenario) Scene(sceneID string) (*Scene, bool) {
	for i := range s.Scenes {
		if s.Scenes[i].ID == sceneID {
			return &s.Scenes[i], true
		}
	}
	return nil, false
}

// FindChoice resolves a choice id within a scene.
func (sc *Scene) FindChoice(choiceID string) (*Choice, bool) {
	for i := range sc.Choices {
		if sc.Choices[i].ID == choiceID {
			return &sc.Choices[i], true
		}
	}
	return nil, false
}

// Advance resolves the next scene id from the current position.
//
// With a choice id the matching choice's destination is used; without
// one the scenario falls through linearly to the next scene in
// authoring order. Returns ErrInvalidTransition when the position or
// choice cannot be resolved.
func (s *Scenario) Advance(fromSceneID, choiceID string) (string, error) {
	scene, ok := s.Scene(fromSceneID)
	if !ok {
		return "", fmt.Errorf("%w: scene %q not found in scenario %q", ErrInvalidTransition, fromSceneID, s.ID)
	}

	if choiceID != "" {
		choice, ok := scene.FindChoice(choiceID)
		if !ok {
			return "", fmt.Errorf("%w: choice %q not found in scene %q", ErrInvalidTransition, choiceID, fromSceneID)
		}
		return choice.NextSceneID, nil
	}

	if len(scene.Choices) > 0 {
		return "", fmt.Errorf("%w: scene %q requires a choice", ErrInvalidTransition, fromSceneID)
	}

	idx := s.sceneIndex()
	pos := idx[fromSceneID]
	if pos+1 >= len(s.Scenes) {
		return "", fmt.Errorf("%w: scene %q has no successor", ErrInvalidTransition, fromSceneID)
	}
	return s.Scenes[pos+1].ID, nil
}

// IsEnding reports whether a scene terminates the scenario: no outgoing
// choices and no linear successor.
func (s *Scenario) IsEnding(sceneID string) bool {
	scene, ok := s.Scene(sceneID)
	if !ok {
		return false
	}
	if len(scene.Choices) > 0 {
		return false
	}
	idx := s.sceneIndex()
	return idx[sceneID]+1 >= len(s.Scenes)
}
