// internal/models/relationship.go
package models

import "time"

// RelationshipStage 表示离散化的关系阶段
type RelationshipStage string

const (
	StageStranger     RelationshipStage = "stranger"
	StageAcquaintance RelationshipStage = "acquaintance"
	StageClose        RelationshipStage = "close"
	StageIntimate     RelationshipStage = "intimate"
	StageLover        RelationshipStage = "lover"
)

// stageRanks orders stages for unlock comparisons.
var stageRanks = map[RelationshipStage]int{
	StageStranger:     0,
	StageAcquaintance: 1,
	StageClose:        2,
	StageIntimate:     3,
	StageLover:        4,
}

// StageRank returns the ordinal rank of a stage. Unknown stages rank
// as stranger so a malformed record can never unlock gated content.
func StageRank(stage RelationshipStage) int {
	return stageRanks[stage]
}

// StageForScores derives the relationship stage from the average of the
// three scores. This is the single canonical threshold scheme; every
// call site derives the stage through here rather than persisting it
// separately.
func StageForScores(affection, trust, intimacy int) RelationshipStage {
	avg := (affection + trust + intimacy) / 3
	switch {
	case avg < 20:
		return StageStranger
	case avg < 40:
		return StageAcquaintance
	case avg < 60:
		return StageClose
	case avg < 80:
		return StageIntimate
	default:
		return StageLover
	}
}

// RelationshipDelta 表示一次互动对三项分值的调整
type RelationshipDelta struct {
	Affection int `json:"affection"`
	Trust     int `json:"trust"`
	Intimacy  int `json:"intimacy"`
}

// UniformDelta spreads a single interaction delta across all three
// scores, the shape produced by authored choices and backend beats.
func UniformDelta(n int) RelationshipDelta {
	return RelationshipDelta{Affection: n, Trust: n, Intimacy: n}
}

// IsZero reports whether the delta changes nothing.
func (d RelationshipDelta) IsZero() bool {
	return d.Affection == 0 && d.Trust == 0 && d.Intimacy == 0
}

// StageTransition 记录一次阶段变化
type StageTransition struct {
	From RelationshipStage `json:"from"`
	To   RelationshipStage `json:"to"`
}

// RelationshipRecord 表示用户与角色之间的关系状态
// Created on first interaction; mutated only through ApplyDelta;
// never deleted.
type RelationshipRecord struct {
	UserID            string            `json:"user_id"`
	CharacterID       string            `json:"character_id"`
	AffectionLevel    int               `json:"affection_level"`
	TrustLevel        int               `json:"trust_level"`
	IntimacyLevel     int               `json:"intimacy_level"`
	Stage             RelationshipStage `json:"stage"`
	TotalInteractions int               `json:"total_interactions"`
	StoryFlags        map[string]bool   `json:"story_flags,omitempty"`
	UnlockedMemories  []string          `json:"unlocked_memories,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	LastUpdated       time.Time         `json:"last_updated"`
}

// NewRelationshipRecord creates the initial record for a pair.
func NewRelationshipRecord(userID, characterID string) *RelationshipRecord {
	now := time.Now()
	return &RelationshipRecord{
		UserID:      userID,
		CharacterID: characterID,
		Stage:       StageStranger,
		StoryFlags:  map[string]bool{},
		CreatedAt:   now,
		LastUpdated: now,
	}
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// ApplyDelta applies one interaction's delta to the record in place and
// returns the stage transition, if any.
//
// Each score is clamped to [0,100], the interaction counter increments
// by exactly one per applied delta, and the stage is recomputed from
// the score average. Idempotency of the surrounding turn is the
// caller's responsibility.
func (r *RelationshipRecord) ApplyDelta(delta RelationshipDelta) *StageTransition {
	prior := r.Stage
	if prior == "" {
		prior = StageForScores(r.AffectionLevel, r.TrustLevel, r.IntimacyLevel)
	}

	r.AffectionLevel = clampScore(r.AffectionLevel + delta.Affection)
	r.TrustLevel = clampScore(r.TrustLevel + delta.Trust)
	r.IntimacyLevel = clampScore(r.IntimacyLevel + delta.Intimacy)
	r.TotalInteractions++
	r.Stage = StageForScores(r.AffectionLevel, r.TrustLevel, r.IntimacyLevel)
	r.LastUpdated = time.Now()

	if r.Stage != prior {
		return &StageTransition{From: prior, To: r.Stage}
	}
	return nil
}

// SetFlag sets a story flag. Setting an already-set flag is a no-op.
func (r *RelationshipRecord) SetFlag(key string) {
	if key == "" {
		return
	}
	if r.StoryFlags == nil {
		r.StoryFlags = map[string]bool{}
	}
	r.StoryFlags[key] = true
}

// HasFlag reports whether a story flag is set.
func (r *RelationshipRecord) HasFlag(key string) bool {
	return r.StoryFlags[key]
}

// UnlockMemory appends a memory id to the record. The set is
// append-only; duplicates are ignored.
func (r *RelationshipRecord) UnlockMemory(memoryID string) {
	for _, id := range r.UnlockedMemories {
		if id == memoryID {
			return
		}
	}
	r.UnlockedMemories = append(r.UnlockedMemories, memoryID)
}
