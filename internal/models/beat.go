// internal/models/beat.go
package models

// BeatChoice 表示生成后端建议的后续选项
type BeatChoice struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Beat 表示一轮对话产出的叙事节拍
// Produced either by advancing an authored scenario or by the
// generation backend; the pipeline treats both shapes identically.
type Beat struct {
	Dialogue         string       `json:"dialogue"`
	Emotion          string       `json:"emotion,omitempty"`
	SuggestedDelta   int          `json:"suggested_delta"`
	SuggestedChoices []BeatChoice `json:"suggested_choices,omitempty"`
	Fallback         bool         `json:"fallback,omitempty"` // deterministic substitute for a failed backend call
}
