// internal/models/character.go
package models

import "time"

// StagePersona 表示角色在某个关系阶段下的言行参数
type StagePersona struct {
	SpeechStyle  string  `json:"speech_style"`
	Tone         string  `json:"tone,omitempty"`
	Formality    string  `json:"formality,omitempty"` // distant, casual, affectionate
	Openness     float32 `json:"openness,omitempty"`  // 0.0-1.0, how much the character volunteers
	FallbackLine string  `json:"fallback_line,omitempty"`
	Emotion      string  `json:"emotion,omitempty"` // default emotion at this stage
}

// Character 表示一个可对话的虚拟角色
// Owned by content authors; read-only to the engine.
type Character struct {
	ID          string                             `json:"id"`
	Name        string                             `json:"name"`
	Description string                             `json:"description,omitempty"`
	Personality string                             `json:"personality,omitempty"`
	Background  string                             `json:"background,omitempty"`
	ImageURL    string                             `json:"image_url,omitempty"`
	Personas    map[RelationshipStage]StagePersona `json:"personas,omitempty"`
	CreatedAt   time.Time                          `json:"created_at"`
	LastUpdated time.Time                          `json:"last_updated"`
}

// PersonaFor returns the speech parameters for a stage, falling back
// to the stranger persona and then to a zero value.
func (c *Character) PersonaFor(stage RelationshipStage) StagePersona {
	if p, ok := c.Personas[stage]; ok {
		return p
	}
	if p, ok := c.Personas[StageStranger]; ok {
		return p
	}
	return StagePersona{}
}
