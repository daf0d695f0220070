// internal/services/progress_service_test.go
package services

import (
	"context"
	"testing"

	apperrors "github.com/Corphon/ChatNovelEngine/internal/errors"
	"github.com/Corphon/ChatNovelEngine/internal/models"
)

func gatedScenario(id string, order int, minStage models.RelationshipStage, minAffection int) *models.Scenario {
	return &models.Scenario{
		ID:          id,
		CharacterID: "char_aria",
		Title:       id,
		Order:       order,
		Active:      true,
		MinStage:    minStage,
		MinAffection: minAffection,
		Scenes: []models.Scene{
			{ID: "s1", Kind: models.SceneNarration, Text: "An opening."},
			{ID: "s2", Kind: models.SceneDialogue, Speaker: "Aria", Text: "A closing."},
		},
	}
}

func TestStartRejectsLockedScenario(t *testing.T) {
	env := newTestEnv(t)
	env.saveScenario(t, gatedScenario("sc_gated", 1, models.StageClose, 0))
	ctx := context.Background()

	_, err := env.progress.Start(ctx, "u1", "char_aria", "sc_gated")
	if !apperrors.IsForbiddenError(err) {
		t.Fatalf("expected forbidden for locked scenario, got %v", err)
	}
}

func TestStartRejectsDuplicateRun(t *testing.T) {
	env := newTestEnv(t)
	env.saveScenario(t, gatedScenario("sc_open", 1, "", 0))
	ctx := context.Background()

	if _, err := env.progress.Start(ctx, "u1", "char_aria", "sc_open"); err != nil {
		t.Fatalf("first start: %v", err)
	}
	_, err := env.progress.Start(ctx, "u1", "char_aria", "sc_open")
	if !apperrors.IsConflictError(err) {
		t.Fatalf("expected conflict for running scenario, got %v", err)
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	sc := gatedScenario("sc_once", 1, "", 0)
	sc.Ending.CompletionBonus = 10
	env.saveScenario(t, sc)
	ctx := context.Background()

	if _, err := env.progress.Start(ctx, "u1", "char_aria", "sc_once"); err != nil {
		t.Fatal(err)
	}

	first, err := env.progress.Complete(ctx, "u1", "char_aria", "sc_once")
	if err != nil {
		t.Fatal(err)
	}
	if first.AlreadyCompleted || first.BonusApplied != 10 {
		t.Fatalf("first completion should apply the bonus: %+v", first)
	}

	second, err := env.progress.Complete(ctx, "u1", "char_aria", "sc_once")
	if err != nil {
		t.Fatal(err)
	}
	if !second.AlreadyCompleted {
		t.Fatal("second completion should be a no-op")
	}

	// Bonus applied exactly once.
	rec, _ := env.relationships.GetOrCreate(ctx, "u1", "char_aria")
	if rec.AffectionLevel != 10 {
		t.Fatalf("expected affection 10, got %d", rec.AffectionLevel)
	}
}

func TestCompleteSeedsAffectionFromFinalChoice(t *testing.T) {
	env := newTestEnv(t)
	sc := gatedScenario("sc_branch", 1, "", 0)
	sc.Scenes[0].Kind = models.SceneChoice
	sc.Scenes[0].Choices = []models.Choice{
		{ID: "c_warm", Text: "Stay", NextSceneID: "s2", AffectionChange: 2},
		{ID: "c_cold", Text: "Leave", NextSceneID: "s2"},
	}
	sc.Ending.InitialAffection = map[string]int{"c_warm": 30, "c_cold": 5}
	env.saveScenario(t, sc)
	ctx := context.Background()

	if _, err := env.progress.Start(ctx, "u1", "char_aria", "sc_branch"); err != nil {
		t.Fatal(err)
	}
	if err := env.progress.RecordAdvance(ctx, "u1", "char_aria", "sc_branch", "s2", "c_warm"); err != nil {
		t.Fatal(err)
	}

	result, err := env.progress.Complete(ctx, "u1", "char_aria", "sc_branch")
	if err != nil {
		t.Fatal(err)
	}
	if result.AffectionSeeded != 30 {
		t.Fatalf("expected seed 30 for c_warm, got %d", result.AffectionSeeded)
	}

	rec, _ := env.relationships.GetOrCreate(ctx, "u1", "char_aria")
	if rec.AffectionLevel != 30 {
		t.Fatalf("expected affection lifted to 30, got %d", rec.AffectionLevel)
	}

	// The seed is a floor: a pair already past it is untouched.
	if _, err := env.relationships.SeedAffection(ctx, "u1", "char_aria", 10); err != nil {
		t.Fatal(err)
	}
	rec, _ = env.relationships.GetOrCreate(ctx, "u1", "char_aria")
	if rec.AffectionLevel != 30 {
		t.Fatalf("seed must never lower an earned score, got %d", rec.AffectionLevel)
	}
}

func TestCompleteNeverStartedConflicts(t *testing.T) {
	env := newTestEnv(t)
	env.saveScenario(t, gatedScenario("sc_open", 1, "", 0))

	_, err := env.progress.Complete(context.Background(), "u1", "char_aria", "sc_open")
	if err == nil {
		t.Fatal("expected error completing a never-started scenario")
	}
}

func TestCompletionUnlocksGatedScenarios(t *testing.T) {
	env := newTestEnv(t)
	env.saveScenario(t, gatedScenario("sc_intro", 1, "", 0))
	gated := gatedScenario("sc_deeper", 2, models.StageAcquaintance, 0)
	env.saveScenario(t, gated)
	ctx := context.Background()

	intro := gatedScenario("sc_intro", 1, "", 0)
	intro.Ending.SetsStage = models.StageAcquaintance
	env.saveScenario(t, intro)

	if _, err := env.progress.Start(ctx, "u1", "char_aria", "sc_intro"); err != nil {
		t.Fatal(err)
	}
	result, err := env.progress.Complete(ctx, "u1", "char_aria", "sc_intro")
	if err != nil {
		t.Fatal(err)
	}

	if len(result.UnlockedScenarios) != 1 || result.UnlockedScenarios[0] != "sc_deeper" {
		t.Fatalf("expected sc_deeper unlocked, got %v", result.UnlockedScenarios)
	}

	// The promotion lifted the derived stage, not just a label.
	rec, _ := env.relationships.GetOrCreate(ctx, "u1", "char_aria")
	if rec.Stage != models.StageAcquaintance {
		t.Fatalf("expected acquaintance stage, got %s", rec.Stage)
	}
}

func TestAvailableScenariosFiltersByAffection(t *testing.T) {
	env := newTestEnv(t)
	env.saveScenario(t, gatedScenario("sc_easy", 1, "", 0))
	env.saveScenario(t, gatedScenario("sc_hard", 2, "", 50))
	ctx := context.Background()

	available, err := env.progress.AvailableScenarios(ctx, "u1", "char_aria")
	if err != nil {
		t.Fatal(err)
	}
	if len(available) != 1 || available[0].ID != "sc_easy" {
		t.Fatalf("expected only sc_easy, got %v", available)
	}

	// Raise affection past the gate; the catalog grows monotonically.
	if _, _, err := env.relationships.Apply(ctx, "u1", "char_aria",
		models.UniformDelta(60), ""); err != nil {
		t.Fatal(err)
	}
	available, err = env.progress.AvailableScenarios(ctx, "u1", "char_aria")
	if err != nil {
		t.Fatal(err)
	}
	if len(available) != 2 {
		t.Fatalf("expected both scenarios, got %v", available)
	}
}
