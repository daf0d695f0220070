// internal/services/llm_service.go
package services

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Corphon/ChatNovelEngine/internal/config"
	apperrors "github.com/Corphon/ChatNovelEngine/internal/errors"
	"github.com/Corphon/ChatNovelEngine/internal/llm"
	"github.com/Corphon/ChatNovelEngine/internal/models"
	"github.com/Corphon/ChatNovelEngine/internal/utils"
)

const (
	replyCacheTTL     = 10 * time.Minute
	maxHistoryInPrompt = 12
	maxSuggestedDelta  = 5 // backend-suggested deltas are capped well below authored choices
)

// BeatRequest 描述一次生成请求的全部输入
type BeatRequest struct {
	Character *models.Character
	Stage     models.RelationshipStage
	History   []models.DialogueTurn
	Message   string
}

// LLMService 通过已注册的提供者生成叙事节拍
// The provider is resolved per call from the current configuration so a
// runtime reconfigure takes effect immediately.
type LLMService struct {
	cache  ReplyCache
	logger *utils.Logger
}

// NewLLMService 创建生成服务
func NewLLMService(cache ReplyCache) *LLMService {
	if cache == nil {
		cache = NewMemoryReplyCache()
	}
	return &LLMService{cache: cache, logger: utils.GetLogger()}
}

// GenerateBeat asks the generation backend for one beat of character
// dialogue. Backend failures surface as backend_unavailable or timeout
// errors; the caller decides between fallback and refund.
func (s *LLMService) GenerateBeat(ctx context.Context, req BeatRequest) (*models.Beat, error) {
	cfg := config.GetCurrentConfig()
	if cfg == nil {
		return nil, apperrors.NewProcessingError("configuration not initialized", nil)
	}

	cacheKey := s.cacheKey(req)
	if cached, ok := s.cache.Get(ctx, cacheKey); ok {
		var beat models.Beat
		if err := json.Unmarshal([]byte(cached), &beat); err == nil {
			return &beat, nil
		}
	}

	provider, err := llm.DefaultRegistry.GetProvider(cfg.LLMProvider, cfg.LLMConfig)
	if err != nil {
		return nil, apperrors.NewBackendError(
			fmt.Sprintf("llm provider %s unavailable", cfg.LLMProvider), err)
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.LLMTimeout)
	defer cancel()

	resp, err := provider.CompleteText(callCtx, llm.CompletionRequest{
		SystemPrompt: s.systemPrompt(req),
		Prompt:       s.userPrompt(req),
		Temperature:  0.8,
		MaxTokens:    600,
	})
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, apperrors.NewAppError(apperrors.ErrorTypeTimeout, "llm call timed out", err)
		}
		return nil, apperrors.NewBackendError("llm call failed", err)
	}

	beat, err := parseBeat(resp.Text)
	if err != nil {
		s.logger.Warn("unparseable llm response", map[string]interface{}{
			"provider": resp.ProviderName, "error": err.Error(),
		})
		return nil, apperrors.NewBackendError("llm returned malformed beat", err)
	}

	if data, err := json.Marshal(beat); err == nil {
		s.cache.Set(ctx, cacheKey, string(data), replyCacheTTL)
	}
	return beat, nil
}

// cacheKey fingerprints everything that influences the output.
func (s *LLMService) cacheKey(req BeatRequest) string {
	h := md5.New()
	fmt.Fprintf(h, "%s|%s|%s|", req.Character.ID, req.Stage, req.Message)
	for _, turn := range req.History {
		fmt.Fprintf(h, "%s:%s|", turn.Role, turn.Text)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

func (s *LLMService) systemPrompt(req BeatRequest) string {
	persona := req.Character.PersonaFor(req.Stage)

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a character in an interactive chat novel.\n", req.Character.Name)
	if req.Character.Personality != "" {
		fmt.Fprintf(&b, "Personality: %s\n", req.Character.Personality)
	}
	if req.Character.Background != "" {
		fmt.Fprintf(&b, "Background: %s\n", req.Character.Background)
	}
	fmt.Fprintf(&b, "Current relationship stage with the user: %s.\n", req.Stage)
	if persona.SpeechStyle != "" {
		fmt.Fprintf(&b, "Speech style at this stage: %s.\n", persona.SpeechStyle)
	}
	if persona.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s.\n", persona.Tone)
	}
	if persona.Formality != "" {
		fmt.Fprintf(&b, "Formality: %s.\n", persona.Formality)
	}
	b.WriteString(`Respond with a single JSON object, no other text:
{
  "dialogue": "your in-character reply",
  "emotion": "one word",
  "suggested_delta": <integer -5..5, how this exchange moved the relationship>,
  "suggested_choices": [{"id": "c1", "text": "..."}]
}`)
	return b.String()
}

func (s *LLMService) userPrompt(req BeatRequest) string {
	var b strings.Builder
	history := req.History
	if len(history) > maxHistoryInPrompt {
		history = history[len(history)-maxHistoryInPrompt:]
	}
	for _, turn := range history {
		switch turn.Role {
		case models.DialogueUser:
			fmt.Fprintf(&b, "User: %s\n", turn.Text)
		case models.DialogueCharacter:
			fmt.Fprintf(&b, "%s: %s\n", req.Character.Name, turn.Text)
		}
	}
	fmt.Fprintf(&b, "User: %s", req.Message)
	return b.String()
}

// parseBeat extracts the beat JSON from a completion, tolerating code
// fences and leading prose around the object.
func parseBeat(text string) (*models.Beat, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var beat models.Beat
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &beat); err != nil {
		return nil, fmt.Errorf("decode beat: %w", err)
	}
	if beat.Dialogue == "" {
		return nil, fmt.Errorf("beat has empty dialogue")
	}
	if beat.SuggestedDelta > maxSuggestedDelta {
		beat.SuggestedDelta = maxSuggestedDelta
	}
	if beat.SuggestedDelta < -maxSuggestedDelta {
		beat.SuggestedDelta = -maxSuggestedDelta
	}
	return &beat, nil
}

// defaultFallbackLines keys a deterministic substitute line by stage so
// a backend outage still produces stage-appropriate dialogue.
var defaultFallbackLines = map[models.RelationshipStage]string{
	models.StageStranger:     "...Sorry, I was lost in thought for a moment. What were you saying?",
	models.StageAcquaintance: "Hm? Sorry, my mind wandered. Tell me again?",
	models.StageClose:        "Sorry, I spaced out for a second there. You were saying?",
	models.StageIntimate:     "Ah, sorry... I got distracted thinking about something. Say that again?",
	models.StageLover:        "Sorry love, I drifted off for a moment. What was that?",
}

// FallbackBeat builds the deterministic substitute beat for a failed
// generation. The character's authored fallback line for the stage wins
// over the built-in one; the beat never moves the relationship.
func FallbackBeat(character *models.Character, stage models.RelationshipStage) *models.Beat {
	persona := character.PersonaFor(stage)

	line := persona.FallbackLine
	if line == "" {
		line = defaultFallbackLines[stage]
	}
	if line == "" {
		line = defaultFallbackLines[models.StageStranger]
	}

	emotion := persona.Emotion
	if emotion == "" {
		emotion = "neutral"
	}

	return &models.Beat{
		Dialogue: line,
		Emotion:  emotion,
		Fallback: true,
	}
}
