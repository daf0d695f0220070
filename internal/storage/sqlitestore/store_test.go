package sqlitestore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Corphon/ChatNovelEngine/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.EnsureUser(ctx, "u1", 10); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	// Second call with a different starting balance must not touch the row.
	if err := store.EnsureUser(ctx, "u1", 99); err != nil {
		t.Fatalf("ensure user again: %v", err)
	}

	balance, err := store.GetBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 10 {
		t.Fatalf("expected balance 10, got %d", balance)
	}
}

func TestDebitBalanceInsufficient(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.EnsureUser(ctx, "u1", 2); err != nil {
		t.Fatal(err)
	}

	if _, err := store.DebitBalance(ctx, "u1", 3); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// The failed debit must not have decremented anything.
	balance, _ := store.GetBalance(ctx, "u1")
	if balance != 2 {
		t.Fatalf("expected untouched balance 2, got %d", balance)
	}
}

func TestDebitBalanceConcurrentExactlyOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.EnsureUser(ctx, "u1", 1); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	successes := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.DebitBalance(ctx, "u1", 1); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	count := 0
	for range successes {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one successful debit, got %d", count)
	}

	balance, _ := store.GetBalance(ctx, "u1")
	if balance != 0 {
		t.Fatalf("expected final balance 0, got %d", balance)
	}
}

func TestSupersedeSessionKeepsSingleActive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	first := &models.ConversationSession{
		ID: "s_first", UserID: "u1", CharacterID: "c1",
		Status: models.SessionActive, CreatedAt: now, LastMessageAt: now,
	}
	if err := store.CreateSession(ctx, first); err != nil {
		t.Fatal(err)
	}

	second := &models.ConversationSession{
		ID: "s_second", UserID: "u1", CharacterID: "c1",
		Status: models.SessionActive, ScenarioID: "sc1", SceneID: "scene1",
		CreatedAt: now.Add(time.Second), LastMessageAt: now.Add(time.Second),
	}
	if err := store.SupersedeSession(ctx, second); err != nil {
		t.Fatal(err)
	}

	active, err := store.GetActiveSession(ctx, "u1", "c1")
	if err != nil {
		t.Fatalf("get active session: %v", err)
	}
	if active.ID != "s_second" {
		t.Fatalf("expected s_second active, got %s", active.ID)
	}

	old, err := store.GetSession(ctx, "s_first")
	if err != nil {
		t.Fatal(err)
	}
	if old.Status != models.SessionEnded {
		t.Fatalf("superseded session should be ended, got %s", old.Status)
	}
}

func TestRecentDialogueWindowChronological(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, text := range []string{"one", "two", "three", "four"} {
		turn := &models.DialogueTurn{
			SessionID: "s1",
			Role:      models.DialogueUser,
			Text:      text,
			CreatedAt: time.Now().Add(time.Duration(i) * time.Millisecond),
		}
		if err := store.AppendDialogue(ctx, turn); err != nil {
			t.Fatal(err)
		}
	}

	turns, err := store.RecentDialogue(ctx, "s1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Text != "three" || turns[1].Text != "four" {
		t.Fatalf("expected [three four], got [%s %s]", turns[0].Text, turns[1].Text)
	}
}

func TestRelationshipRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := models.NewRelationshipRecord("u1", "c1")
	rec.AffectionLevel = 42
	rec.SetFlag("shared_umbrella")
	rec.UnlockMemory("m1")

	if err := store.SaveRelationship(ctx, rec); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.GetRelationship(ctx, "u1", "c1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.AffectionLevel != 42 {
		t.Fatalf("expected affection 42, got %d", loaded.AffectionLevel)
	}
	if !loaded.HasFlag("shared_umbrella") {
		t.Fatal("story flag lost in round trip")
	}
	if len(loaded.UnlockedMemories) != 1 || loaded.UnlockedMemories[0] != "m1" {
		t.Fatalf("memories lost in round trip: %v", loaded.UnlockedMemories)
	}
}

func TestMarkProgressCompletedExactlyOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	prog := &models.ScenarioProgress{
		UserID: "u1", CharacterID: "c1", ScenarioID: "sc1",
		Status: models.ProgressInProgress, SceneID: "scene1", StartedAt: time.Now(),
	}
	if err := store.SaveProgress(ctx, prog); err != nil {
		t.Fatal(err)
	}

	first, err := store.MarkProgressCompleted(ctx, "u1", "c1", "sc1")
	if err != nil {
		t.Fatal(err)
	}
	if !first {
		t.Fatal("first completion should transition")
	}

	second, err := store.MarkProgressCompleted(ctx, "u1", "c1", "sc1")
	if err != nil {
		t.Fatal(err)
	}
	if second {
		t.Fatal("second completion must not transition again")
	}

	if transitioned, _ := store.MarkProgressCompleted(ctx, "u1", "c1", "never_started"); transitioned {
		t.Fatal("unknown scenario must not transition")
	}
}

func TestAddMemoryIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mem := &models.MemoryRecord{
		ID: "m1", UserID: "u1", CharacterID: "c1", ScenarioID: "sc1",
		Title: "First Meeting", CreatedAt: time.Now(),
	}
	if err := store.AddMemory(ctx, mem); err != nil {
		t.Fatal(err)
	}
	if err := store.AddMemory(ctx, mem); err != nil {
		t.Fatal(err)
	}

	memories, err := store.ListMemories(ctx, "u1", "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(memories) != 1 {
		t.Fatalf("expected 1 memory, got %d", len(memories))
	}
}
