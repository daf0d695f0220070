// internal/services/turn_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Corphon/ChatNovelEngine/internal/config"
	apperrors "github.com/Corphon/ChatNovelEngine/internal/errors"
	"github.com/Corphon/ChatNovelEngine/internal/models"
	"github.com/Corphon/ChatNovelEngine/internal/storage/sqlitestore"
	"github.com/Corphon/ChatNovelEngine/internal/utils"
)

// premiumChoiceCost is debited on top of the base turn cost when the
// player takes a choice authored as premium.
const premiumChoiceCost = 1

// historyWindow is how many prior turns the generation backend sees.
const historyWindow = 20

// BeatGenerator produces one beat of character dialogue for a turn.
type BeatGenerator interface {
	GenerateBeat(ctx context.Context, req BeatRequest) (*models.Beat, error)
}

// Notifier pushes a finished turn to any live client connection. Best
// effort; the turn result is returned synchronously regardless.
type Notifier interface {
	NotifyTurn(userID string, result *TurnResult)
}

// TurnRequest 表示一次对话回合的输入
type TurnRequest struct {
	UserID      string `json:"user_id"`
	CharacterID string `json:"character_id"`
	SessionID   string `json:"session_id,omitempty"` // empty = resolve or create
	Message     string `json:"message,omitempty"`
	ChoiceID    string `json:"choice_id,omitempty"`
}

// TurnResult 表示一次对话回合的产出
type TurnResult struct {
	SessionID         string                   `json:"session_id"`
	Dialogue          string                   `json:"dialogue"`
	Emotion           string                   `json:"emotion,omitempty"`
	Delta             models.RelationshipDelta `json:"delta"`
	Stage             models.RelationshipStage `json:"stage"`
	StageChanged      *models.StageTransition  `json:"stage_changed,omitempty"`
	Choices           []models.BeatChoice      `json:"choices,omitempty"`
	SceneID           string                   `json:"scene_id,omitempty"`
	ScenarioCompleted bool                     `json:"scenario_completed,omitempty"`
	UnlockedScenarios []string                 `json:"unlocked_scenarios,omitempty"`
	Balance           int64                    `json:"balance"`
	FallbackUsed      bool                     `json:"fallback_used,omitempty"`
}

// TurnService 执行计费对话回合管线
//
// Pipeline order: debit first, then resolve the session, produce the
// beat, apply the relationship delta, advance scenario progress, and
// commit. Any failure after the debit refunds exactly what was debited
// in this turn; the turn then either completed fully or left only the
// relationship/progress effects that had already committed.
type TurnService struct {
	store         *sqlitestore.Store
	users         *UserService
	sessions      *SessionService
	characters    *CharacterService
	scenarios     *ScenarioService
	relationships *RelationshipService
	progress      *ProgressService
	generator     BeatGenerator
	notifier      Notifier
	allowFallback bool
	logger        *utils.Logger
}

// NewTurnService 创建回合管线服务
func NewTurnService(
	store *sqlitestore.Store,
	users *UserService,
	sessions *SessionService,
	characters *CharacterService,
	scenarios *ScenarioService,
	relationships *RelationshipService,
	progress *ProgressService,
	generator BeatGenerator,
	notifier Notifier,
) *TurnService {
	return &TurnService{
		store:         store,
		users:         users,
		sessions:      sessions,
		characters:    characters,
		scenarios:     scenarios,
		relationships: relationships,
		progress:      progress,
		generator:     generator,
		notifier:      notifier,
		allowFallback: true,
		logger:        utils.GetLogger(),
	}
}

// SetAllowFallback toggles deterministic fallback beats. With fallback
// off, a backend failure refunds the turn instead.
func (s *TurnService) SetAllowFallback(allow bool) {
	s.allowFallback = allow
}

// ExecuteTurn runs one metered dialogue turn end to end.
func (s *TurnService) ExecuteTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	if req.UserID == "" || req.CharacterID == "" {
		return nil, apperrors.NewValidationError("user id and character id are required", nil)
	}
	if req.Message == "" && req.ChoiceID == "" {
		return nil, apperrors.NewValidationError("turn needs a message or a choice", nil)
	}

	cfg := config.GetCurrentConfig()
	if cfg == nil {
		return nil, apperrors.NewProcessingError("configuration not initialized", nil)
	}

	if err := s.users.EnsureUser(ctx, req.UserID); err != nil {
		return nil, err
	}

	// Debit before any side effect. The conditional UPDATE in the store
	// makes concurrent turns race safely over the same balance.
	if _, err := s.store.DebitBalance(ctx, req.UserID, cfg.TurnCost); err != nil {
		if errors.Is(err, sqlitestore.ErrInsufficientFunds) {
			balance, _ := s.store.GetBalance(ctx, req.UserID)
			return nil, apperrors.NewInsufficientBalanceError(balance, cfg.TurnCost)
		}
		return nil, err
	}
	debited := cfg.TurnCost

	// Once the user has paid, the turn must not die to a dropped client
	// connection; it runs to completion or to an explicit refund.
	ctx = context.WithoutCancel(ctx)

	result, err := s.runPaidTurn(ctx, cfg, req, &debited)
	if err != nil {
		s.refund(ctx, req.UserID, debited)
		return nil, err
	}

	if s.notifier != nil {
		go s.notifier.NotifyTurn(req.UserID, result)
	}
	return result, nil
}

// runPaidTurn is everything after the debit. On error the caller
// refunds the accumulated debit.
func (s *TurnService) runPaidTurn(ctx context.Context, cfg *config.AppConfig, req TurnRequest, debited *int64) (*TurnResult, error) {
	var sess *models.ConversationSession
	var err error
	if req.SessionID != "" {
		sess, err = s.sessions.Validate(ctx, req.SessionID, req.UserID, req.CharacterID)
	} else {
		sess, err = s.sessions.ResolveOrCreate(ctx, req.UserID, req.CharacterID)
	}
	if err != nil {
		return nil, err
	}

	character, err := s.characters.GetCharacter(req.CharacterID)
	if err != nil {
		return nil, err
	}

	rec, err := s.relationships.GetOrCreate(ctx, req.UserID, req.CharacterID)
	if err != nil {
		return nil, err
	}

	var beat *models.Beat
	var setFlag string
	var newSceneID string
	var completed *CompletionResult

	if sess.InScenario() {
		beat, setFlag, newSceneID, completed, err = s.scenarioBeat(ctx, cfg, req, sess, character, rec, debited)
	} else {
		beat, err = s.freeFormBeat(ctx, req, sess, character, rec)
	}
	if err != nil {
		return nil, err
	}

	delta := models.UniformDelta(beat.SuggestedDelta)
	rec, transition, err := s.relationships.Apply(ctx, req.UserID, req.CharacterID, delta, setFlag)
	if err != nil {
		return nil, err
	}

	if err := s.commitDialogue(ctx, sess, req, beat, newSceneID); err != nil {
		return nil, err
	}

	balance, err := s.store.GetBalance(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	result := &TurnResult{
		SessionID:    sess.ID,
		Dialogue:     beat.Dialogue,
		Emotion:      beat.Emotion,
		Delta:        delta,
		Stage:        rec.Stage,
		StageChanged: transition,
		Choices:      beat.SuggestedChoices,
		SceneID:      newSceneID,
		Balance:      balance,
		FallbackUsed: beat.Fallback,
	}
	if completed != nil {
		result.ScenarioCompleted = true
		result.UnlockedScenarios = completed.UnlockedScenarios
	}
	return result, nil
}

// scenarioBeat advances the authored scene graph by one step and
// renders the destination scene as the turn's beat.
func (s *TurnService) scenarioBeat(
	ctx context.Context,
	cfg *config.AppConfig,
	req TurnRequest,
	sess *models.ConversationSession,
	character *models.Character,
	rec *models.RelationshipRecord,
	debited *int64,
) (*models.Beat, string, string, *CompletionResult, error) {
	scenario, err := s.scenarios.GetScenario(sess.ScenarioID)
	if err != nil {
		return nil, "", "", nil, err
	}

	currentScene, ok := scenario.Scene(sess.SceneID)
	if !ok {
		// Authored content changed underneath a live session. Not the
		// player's fault: respond with a fallback beat and end the
		// session so the next turn starts clean.
		s.logger.Error("session positioned at missing scene", map[string]interface{}{
			"session_id": sess.ID, "scenario_id": scenario.ID, "scene_id": sess.SceneID,
		})
		if endErr := s.sessions.End(ctx, sess.ID); endErr != nil {
			return nil, "", "", nil, endErr
		}
		return FallbackBeat(character, rec.Stage), "", "", nil, nil
	}

	var setFlag string
	var choiceDelta int
	if req.ChoiceID != "" {
		choice, ok := currentScene.FindChoice(req.ChoiceID)
		if !ok {
			return nil, "", "", nil, apperrors.NewValidationError(
				fmt.Sprintf("choice %s does not exist in scene %s", req.ChoiceID, sess.SceneID), nil).
				WithCode("CHOICE_INVALID")
		}
		if choice.Premium {
			if _, err := s.store.DebitBalance(ctx, req.UserID, premiumChoiceCost); err != nil {
				if errors.Is(err, sqlitestore.ErrInsufficientFunds) {
					balance, _ := s.store.GetBalance(ctx, req.UserID)
					return nil, "", "", nil, apperrors.NewInsufficientBalanceError(
						balance, cfg.TurnCost+premiumChoiceCost)
				}
				return nil, "", "", nil, err
			}
			*debited += premiumChoiceCost
		}
		setFlag = choice.SetsFlag
		choiceDelta = choice.AffectionChange
	}

	nextSceneID, err := scenario.Advance(sess.SceneID, req.ChoiceID)
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			return nil, "", "", nil, apperrors.NewValidationError(err.Error(), err).WithCode("CHOICE_INVALID")
		}
		return nil, "", "", nil, err
	}

	nextScene, ok := scenario.Scene(nextSceneID)
	if !ok {
		// Validation guarantees this at publish time; treat it as a
		// content defect, not a player error.
		return nil, "", "", nil, apperrors.NewProcessingError(
			fmt.Sprintf("scenario %s references missing scene %s", scenario.ID, nextSceneID), nil)
	}

	beat := sceneBeat(nextScene, choiceDelta)

	if err := s.progress.RecordAdvance(ctx, req.UserID, req.CharacterID, scenario.ID, nextSceneID, req.ChoiceID); err != nil {
		return nil, "", "", nil, err
	}

	var completed *CompletionResult
	if scenario.IsEnding(nextSceneID) {
		completed, err = s.progress.Complete(ctx, req.UserID, req.CharacterID, scenario.ID)
		if err != nil {
			return nil, "", "", nil, err
		}
		if endErr := s.sessions.End(ctx, sess.ID); endErr != nil {
			return nil, "", "", nil, endErr
		}
	}

	return beat, setFlag, nextSceneID, completed, nil
}

// sceneBeat renders an authored scene as a beat.
func sceneBeat(scene *models.Scene, choiceDelta int) *models.Beat {
	beat := &models.Beat{
		Dialogue:       scene.Text,
		Emotion:        scene.Expression,
		SuggestedDelta: choiceDelta,
	}
	for _, c := range scene.Choices {
		beat.SuggestedChoices = append(beat.SuggestedChoices, models.BeatChoice{ID: c.ID, Text: c.Text})
	}
	return beat
}

// freeFormBeat asks the generation backend for a beat, substituting the
// deterministic fallback when the backend fails and fallback is
// enabled. Caller errors and non-backend failures propagate and trigger
// a refund upstream.
func (s *TurnService) freeFormBeat(
	ctx context.Context,
	req TurnRequest,
	sess *models.ConversationSession,
	character *models.Character,
	rec *models.RelationshipRecord,
) (*models.Beat, error) {
	if req.Message == "" {
		return nil, apperrors.NewValidationError("free-form turns need a message", nil)
	}

	history, err := s.sessions.History(ctx, sess.ID, historyWindow)
	if err != nil {
		return nil, err
	}

	beat, err := s.generator.GenerateBeat(ctx, BeatRequest{
		Character: character,
		Stage:     rec.Stage,
		History:   history,
		Message:   req.Message,
	})
	if err == nil {
		return beat, nil
	}

	if s.allowFallback && apperrors.IsBackendError(err) {
		s.logger.Warn("generation backend failed, using fallback beat", map[string]interface{}{
			"session_id": sess.ID, "character_id": character.ID, "error": err.Error(),
		})
		return FallbackBeat(character, rec.Stage), nil
	}
	return nil, err
}

// commitDialogue persists the turn's transcript and touches the
// session's activity markers.
func (s *TurnService) commitDialogue(ctx context.Context, sess *models.ConversationSession, req TurnRequest, beat *models.Beat, newSceneID string) error {
	now := time.Now()

	userText := req.Message
	if userText == "" && req.ChoiceID != "" {
		userText = fmt.Sprintf("[choice:%s]", req.ChoiceID)
	}
	if err := s.store.AppendDialogue(ctx, &models.DialogueTurn{
		SessionID: sess.ID,
		Role:      models.DialogueUser,
		Text:      userText,
		CreatedAt: now,
	}); err != nil {
		return err
	}
	if err := s.store.AppendDialogue(ctx, &models.DialogueTurn{
		SessionID: sess.ID,
		Role:      models.DialogueCharacter,
		Text:      beat.Dialogue,
		Emotion:   beat.Emotion,
		CreatedAt: now,
	}); err != nil {
		return err
	}

	return s.store.TouchSession(ctx, sess.ID, newSceneID)
}

// refund returns the turn's debit after a post-debit failure. A failed
// refund is logged loudly but the original error still wins.
func (s *TurnService) refund(ctx context.Context, userID string, amount int64) {
	if amount <= 0 {
		return
	}
	if _, err := s.store.CreditBalance(ctx, userID, amount); err != nil {
		s.logger.Error("turn refund failed", map[string]interface{}{
			"user_id": userID, "amount": amount, "error": err.Error(),
		})
	}
}
