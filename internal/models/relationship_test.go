// internal/models/relationship_test.go
package models

import "testing"

func TestStageForScores(t *testing.T) {
	cases := []struct {
		score int
		want  RelationshipStage
	}{
		{0, StageStranger},
		{19, StageStranger},
		{20, StageAcquaintance},
		{39, StageAcquaintance},
		{40, StageClose},
		{59, StageClose},
		{60, StageIntimate},
		{79, StageIntimate},
		{80, StageLover},
		{100, StageLover},
	}
	for _, tc := range cases {
		if got := StageForScores(tc.score, tc.score, tc.score); got != tc.want {
			t.Errorf("StageForScores(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestApplyDeltaClampsHigh(t *testing.T) {
	rec := NewRelationshipRecord("u1", "c1")
	rec.AffectionLevel, rec.TrustLevel, rec.IntimacyLevel = 95, 95, 95

	rec.ApplyDelta(UniformDelta(20))

	if rec.AffectionLevel != 100 || rec.TrustLevel != 100 || rec.IntimacyLevel != 100 {
		t.Fatalf("scores should clamp to 100, got %d/%d/%d",
			rec.AffectionLevel, rec.TrustLevel, rec.IntimacyLevel)
	}
}

func TestApplyDeltaClampsLow(t *testing.T) {
	rec := NewRelationshipRecord("u1", "c1")
	rec.AffectionLevel, rec.TrustLevel, rec.IntimacyLevel = 5, 5, 5

	rec.ApplyDelta(UniformDelta(-20))

	if rec.AffectionLevel != 0 || rec.TrustLevel != 0 || rec.IntimacyLevel != 0 {
		t.Fatalf("scores should clamp to 0, got %d/%d/%d",
			rec.AffectionLevel, rec.TrustLevel, rec.IntimacyLevel)
	}
}

func TestApplyDeltaCountsInteractionsAndTransitions(t *testing.T) {
	rec := NewRelationshipRecord("u1", "c1")
	rec.AffectionLevel, rec.TrustLevel, rec.IntimacyLevel = 18, 18, 18

	transition := rec.ApplyDelta(UniformDelta(5))
	if transition == nil {
		t.Fatal("expected a stage transition")
	}
	if transition.From != StageStranger || transition.To != StageAcquaintance {
		t.Fatalf("unexpected transition %s -> %s", transition.From, transition.To)
	}
	if rec.TotalInteractions != 1 {
		t.Fatalf("expected 1 interaction, got %d", rec.TotalInteractions)
	}

	// A second delta that changes nothing stage-wise.
	if transition := rec.ApplyDelta(UniformDelta(1)); transition != nil {
		t.Fatalf("unexpected transition %v", transition)
	}
	if rec.TotalInteractions != 2 {
		t.Fatalf("expected 2 interactions, got %d", rec.TotalInteractions)
	}
}

func TestApplyDeltaZeroStillCounts(t *testing.T) {
	rec := NewRelationshipRecord("u1", "c1")
	rec.ApplyDelta(RelationshipDelta{})
	if rec.TotalInteractions != 1 {
		t.Fatalf("zero delta must still count the interaction, got %d", rec.TotalInteractions)
	}
}

func TestSetFlagIdempotent(t *testing.T) {
	rec := NewRelationshipRecord("u1", "c1")
	rec.SetFlag("met_at_cafe")
	rec.SetFlag("met_at_cafe")

	if !rec.HasFlag("met_at_cafe") {
		t.Fatal("flag should be set")
	}
	if len(rec.StoryFlags) != 1 {
		t.Fatalf("expected 1 flag, got %d", len(rec.StoryFlags))
	}
}

func TestUnlockMemoryAppendOnly(t *testing.T) {
	rec := NewRelationshipRecord("u1", "c1")
	rec.UnlockMemory("m1")
	rec.UnlockMemory("m2")
	rec.UnlockMemory("m1")

	if len(rec.UnlockedMemories) != 2 {
		t.Fatalf("expected 2 memories, got %v", rec.UnlockedMemories)
	}
}

func TestStageRankUnknownRanksAsStranger(t *testing.T) {
	if StageRank("soulmate") != 0 {
		t.Fatal("unknown stage must rank lowest")
	}
	if StageRank(StageLover) <= StageRank(StageIntimate) {
		t.Fatal("lover must outrank intimate")
	}
}
