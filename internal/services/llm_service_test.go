// internal/services/llm_service_test.go
package services

import (
	"testing"

	"github.com/Corphon/ChatNovelEngine/internal/models"
)

func TestParseBeatPlainJSON(t *testing.T) {
	beat, err := parseBeat(`{"dialogue": "Hello!", "emotion": "happy", "suggested_delta": 2}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if beat.Dialogue != "Hello!" || beat.Emotion != "happy" || beat.SuggestedDelta != 2 {
		t.Fatalf("unexpected beat %+v", beat)
	}
}

func TestParseBeatStripsCodeFence(t *testing.T) {
	raw := "```json\n{\"dialogue\": \"Hi.\", \"suggested_delta\": 1}\n```"
	beat, err := parseBeat(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if beat.Dialogue != "Hi." {
		t.Fatalf("unexpected dialogue %q", beat.Dialogue)
	}
}

func TestParseBeatTolerantOfSurroundingProse(t *testing.T) {
	raw := `Sure! Here is the beat: {"dialogue": "Hey.", "suggested_delta": 0} Hope that helps.`
	beat, err := parseBeat(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if beat.Dialogue != "Hey." {
		t.Fatalf("unexpected dialogue %q", beat.Dialogue)
	}
}

func TestParseBeatClampsSuggestedDelta(t *testing.T) {
	beat, err := parseBeat(`{"dialogue": "Wow.", "suggested_delta": 50}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if beat.SuggestedDelta != maxSuggestedDelta {
		t.Fatalf("expected clamp to %d, got %d", maxSuggestedDelta, beat.SuggestedDelta)
	}

	beat, err = parseBeat(`{"dialogue": "Ugh.", "suggested_delta": -50}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if beat.SuggestedDelta != -maxSuggestedDelta {
		t.Fatalf("expected clamp to %d, got %d", -maxSuggestedDelta, beat.SuggestedDelta)
	}
}

func TestParseBeatRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "not json at all", `{"emotion": "happy"}`} {
		if _, err := parseBeat(raw); err == nil {
			t.Fatalf("expected parse error for %q", raw)
		}
	}
}

func TestFallbackBeatIsDeterministicPerStage(t *testing.T) {
	character := &models.Character{ID: "c1", Name: "Aria"}

	for _, stage := range []models.RelationshipStage{
		models.StageStranger, models.StageAcquaintance, models.StageClose,
		models.StageIntimate, models.StageLover,
	} {
		a := FallbackBeat(character, stage)
		b := FallbackBeat(character, stage)
		if a.Dialogue == "" {
			t.Fatalf("stage %s has no fallback line", stage)
		}
		if a.Dialogue != b.Dialogue {
			t.Fatalf("fallback must be deterministic for stage %s", stage)
		}
		if !a.Fallback {
			t.Fatal("fallback beat must be marked")
		}
		if a.SuggestedDelta != 0 {
			t.Fatal("fallback beat must not move the relationship")
		}
	}

	// Different stages produce different lines.
	stranger := FallbackBeat(character, models.StageStranger)
	lover := FallbackBeat(character, models.StageLover)
	if stranger.Dialogue == lover.Dialogue {
		t.Fatal("fallback lines should vary by stage")
	}
}

func TestFallbackBeatPersonaOverride(t *testing.T) {
	character := &models.Character{
		ID:   "c1",
		Name: "Aria",
		Personas: map[models.RelationshipStage]models.StagePersona{
			models.StageClose: {FallbackLine: "Lost you for a second there.", Emotion: "warm"},
		},
	}

	beat := FallbackBeat(character, models.StageClose)
	if beat.Dialogue != "Lost you for a second there." {
		t.Fatalf("persona fallback line should win, got %q", beat.Dialogue)
	}
	if beat.Emotion != "warm" {
		t.Fatalf("persona emotion should win, got %q", beat.Emotion)
	}
}
