// internal/models/session.go
package models

import (
	"fmt"
	"time"
)

// SessionStatus 表示会话状态
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// ConversationSession 表示用户与角色之间进行中的对话
// At most one active session may exist per (user, character) pair;
// starting a new one ends the prior one.
type ConversationSession struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	CharacterID   string        `json:"character_id"`
	Status        SessionStatus `json:"status"`
	ScenarioID    string        `json:"scenario_id,omitempty"` // empty = free-form dialogue
	SceneID       string        `json:"scene_id,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	LastMessageAt time.Time     `json:"last_message_at"`
	EndedAt       time.Time     `json:"ended_at,omitempty"`
}

// NewSessionID generates a session identifier.
func NewSessionID() string {
	return fmt.Sprintf("session_%d", time.Now().UnixNano())
}

// InScenario reports whether the session is bound to a branching
// scenario rather than free-form dialogue.
func (s *ConversationSession) InScenario() bool {
	return s.ScenarioID != ""
}

// DialogueRole 表示会话历史中一条消息的发送方
type DialogueRole string

const (
	DialogueUser      DialogueRole = "user"
	DialogueCharacter DialogueRole = "character"
)

// DialogueTurn 表示会话历史中的一条消息
type DialogueTurn struct {
	SessionID string       `json:"session_id"`
	Role      DialogueRole `json:"role"`
	Text      string       `json:"text"`
	Emotion   string       `json:"emotion,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}
