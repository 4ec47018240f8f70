package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Voice model language classes.
const (
	LanguageEnglishOnly  = "english-only"
	LanguageMultilingual = "multilingual"
)

// VoiceLanguages lists the accepted mode voice_language codes.
var VoiceLanguages = []string{"auto", "en", "de", "fr", "it", "es", "pt", "hi", "th"}

func validVoiceLanguage(code string) bool {
	for _, l := range VoiceLanguages {
		if l == code {
			return true
		}
	}
	return false
}

type VoiceModel struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Language   string    `json:"language"`
	Speed      int       `json:"speed"`
	Accuracy   int       `json:"accuracy"`
	Size       int       `json:"size"`
	Parameters int64     `json:"parameters"`
}

type LanguageModel struct {
	Name string `json:"name"`
}

type Example struct {
	ID     uuid.UUID `json:"id"`
	Input  string    `json:"input"`
	Output string    `json:"output"`
}

type ExampleInput struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

type Prompt struct {
	ID                  uuid.UUID `json:"id"`
	SystemPrompt        string    `json:"system_prompt"`
	IncludeClipboard    bool      `json:"include_clipboard"`
	IncludeActiveWindow bool      `json:"include_active_window"`
	Examples            []Example `json:"examples"`
}

// PromptInput creates or updates the prompt of a mode. A nil Examples keeps
// the stored examples on update.
type PromptInput struct {
	SystemPrompt        string         `json:"system_prompt"`
	IncludeClipboard    bool           `json:"include_clipboard"`
	IncludeActiveWindow bool           `json:"include_active_window"`
	Examples            []ExampleInput `json:"examples"`
}

// TextReplacement is a literal substitution. A nil ModeID marks it global.
type TextReplacement struct {
	ID              uuid.UUID  `json:"id"`
	OriginalText    string     `json:"original_text"`
	ReplacementText string     `json:"replacement_text"`
	ModeID          *uuid.UUID `json:"mode_id"`
}

type TextReplacementInput struct {
	OriginalText    string `json:"original_text"`
	ReplacementText string `json:"replacement_text"`
}

type Mode struct {
	ID                 uuid.UUID         `json:"id"`
	Name               string            `json:"name"`
	Default            bool              `json:"default"`
	Active             bool              `json:"active"`
	VoiceLanguage      string            `json:"voice_language"`
	TranslateToEnglish bool              `json:"translate_to_english"`
	UseLanguageModel   bool              `json:"use_language_model"`
	RecordSystemAudio  bool              `json:"record_system_audio"`
	VoiceModel         VoiceModel        `json:"voice_model"`
	LanguageModel      *LanguageModel    `json:"language_model"`
	Prompt             *Prompt           `json:"prompt"`
	TextReplacements   []TextReplacement `json:"text_replacements"`
}

type ModeCreate struct {
	Name               string                 `json:"name"`
	Default            bool                   `json:"default"`
	Active             bool                   `json:"active"`
	VoiceLanguage      string                 `json:"voice_language"`
	TranslateToEnglish bool                   `json:"translate_to_english"`
	UseLanguageModel   bool                   `json:"use_language_model"`
	RecordSystemAudio  bool                   `json:"record_system_audio"`
	VoiceModelName     string                 `json:"voice_model_name"`
	LanguageModelName  *string                `json:"language_model_name"`
	Prompt             *PromptInput           `json:"prompt"`
	TextReplacements   []TextReplacementInput `json:"text_replacements"`
}

// ModeUpdate changes the fields that are set. An empty LanguageModelName
// detaches the language model; a non-nil TextReplacements replaces the
// mode-scoped set.
type ModeUpdate struct {
	ID                 uuid.UUID               `json:"id"`
	Name               *string                 `json:"name,omitempty"`
	Default            *bool                   `json:"default,omitempty"`
	Active             *bool                   `json:"active,omitempty"`
	VoiceLanguage      *string                 `json:"voice_language,omitempty"`
	TranslateToEnglish *bool                   `json:"translate_to_english,omitempty"`
	UseLanguageModel   *bool                   `json:"use_language_model,omitempty"`
	RecordSystemAudio  *bool                   `json:"record_system_audio,omitempty"`
	VoiceModelName     *string                 `json:"voice_model_name,omitempty"`
	LanguageModelName  *string                 `json:"language_model_name,omitempty"`
	Prompt             *PromptInput            `json:"prompt,omitempty"`
	TextReplacements   *[]TextReplacementInput `json:"text_replacements,omitempty"`
}

// Result is one completed dictation. Location is derived from the id.
type Result struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Transcription  string
	AIResult       *string
	Duration       time.Duration
	ProcessingTime time.Duration
	ModeID         *uuid.UUID
	Mode           *Mode
	Location       string
}

type resultJSON struct {
	ID             uuid.UUID `json:"id"`
	CreatedAt      float64   `json:"created_at"`
	Transcription  string    `json:"transcription"`
	AIResult       *string   `json:"ai_result"`
	Duration       float64   `json:"duration"`
	ProcessingTime float64   `json:"processing_time"`
	Mode           *Mode     `json:"mode"`
	Location       string    `json:"location"`
}

// MarshalJSON renders times as unix seconds and durations as seconds.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		ID:             r.ID,
		CreatedAt:      float64(r.CreatedAt.UnixNano()) / float64(time.Second),
		Transcription:  r.Transcription,
		AIResult:       r.AIResult,
		Duration:       r.Duration.Seconds(),
		ProcessingTime: r.ProcessingTime.Seconds(),
		Mode:           r.Mode,
		Location:       r.Location,
	})
}
