// internal/services/session_service_test.go
package services

import (
	"context"
	"testing"

	apperrors "github.com/Corphon/ChatNovelEngine/internal/errors"
	"github.com/Corphon/ChatNovelEngine/internal/models"
)

func TestResolveOrCreateReturnsExistingSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.sessions.ResolveOrCreate(ctx, "u1", "char_aria")
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.sessions.ResolveOrCreate(ctx, "u1", "char_aria")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same session, got %s and %s", first.ID, second.ID)
	}

	// A different character pairs into a separate session.
	other, err := env.sessions.ResolveOrCreate(ctx, "u1", "char_other")
	if err != nil {
		t.Fatal(err)
	}
	if other.ID == first.ID {
		t.Fatal("sessions must be scoped per character")
	}
}

func TestStartScenarioSupersedesFreeForm(t *testing.T) {
	env := newTestEnv(t)
	env.saveScenario(t, cafeScenario())
	ctx := context.Background()

	freeForm, err := env.sessions.ResolveOrCreate(ctx, "u1", "char_aria")
	if err != nil {
		t.Fatal(err)
	}

	scenario, err := env.scenarios.GetScenario("sc_cafe")
	if err != nil {
		t.Fatal(err)
	}
	scenarioSess, err := env.sessions.StartScenario(ctx, "u1", "char_aria", scenario)
	if err != nil {
		t.Fatal(err)
	}

	if scenarioSess.SceneID != "s1" {
		t.Fatalf("expected start scene s1, got %s", scenarioSess.SceneID)
	}

	// The free-form session was ended by the supersede.
	ended, err := env.store.GetSession(ctx, freeForm.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ended.Status != models.SessionEnded {
		t.Fatalf("prior session should be ended, got %s", ended.Status)
	}

	active, err := env.store.GetActiveSession(ctx, "u1", "char_aria")
	if err != nil {
		t.Fatal(err)
	}
	if active.ID != scenarioSess.ID {
		t.Fatalf("expected scenario session active, got %s", active.ID)
	}
}

func TestValidateChecksBindingAndStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess, err := env.sessions.ResolveOrCreate(ctx, "u1", "char_aria")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := env.sessions.Validate(ctx, "session_unknown", "u1", "char_aria"); !apperrors.IsNotFoundError(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := env.sessions.Validate(ctx, sess.ID, "u2", "char_aria"); !apperrors.IsForbiddenError(err) {
		t.Fatalf("expected forbidden for wrong user, got %v", err)
	}
	if _, err := env.sessions.Validate(ctx, sess.ID, "u1", "char_other"); !apperrors.IsForbiddenError(err) {
		t.Fatalf("expected forbidden for wrong character, got %v", err)
	}

	if err := env.sessions.End(ctx, sess.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.sessions.Validate(ctx, sess.ID, "u1", "char_aria"); !apperrors.IsConflictError(err) {
		t.Fatalf("expected conflict for ended session, got %v", err)
	}
}
