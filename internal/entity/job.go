package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobState string

const (
	StateQueued     JobState = "queued"
	StateProcessing JobState = "processing"
	StateCompleted  JobState = "completed"
	StateFailed     JobState = "failed"
	StateCancelled  JobState = "cancelled"
)

// Stage identifies which pipeline phase a failure is attributed to.
type Stage string

const (
	StageFetch         Stage = "fetch"
	StageAudioDownload Stage = "audio_download"
	StageAssembly      Stage = "assembly"
	StageRender        Stage = "render"
)

// IsTerminal reports whether a state has no outgoing transitions.
func (s JobState) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// CanTransition enforces the job state machine edges. Terminal states are
// immutable: no edge leaves completed, failed or cancelled.
func CanTransition(from, to JobState) bool {
	switch from {
	case StateQueued:
		return to == StateProcessing || to == StateFailed || to == StateCancelled
	case StateProcessing:
		return to == StateCompleted || to == StateFailed || to == StateCancelled
	default:
		return false
	}
}

// VerseRange is a validated consecutive verse selection within one chapter.
type VerseRange struct {
	Chapter    int `json:"chapter"`
	StartVerse int `json:"start_verse"`
	EndVerse   int `json:"end_verse"`
}

// GenerationRequest holds the caller-supplied parameters of one submission.
type GenerationRequest struct {
	Range       VerseRange `json:"range"`
	NarratorID  string     `json:"narrator"`
	Translation string     `json:"translation"`
	Background  string     `json:"background"`
	OutputName  string     `json:"output_name,omitempty"`
}

type Job struct {
	ID              uuid.UUID         `json:"id"`
	Request         GenerationRequest `json:"request"`
	State           JobState          `json:"state"`
	Detail          string            `json:"detail,omitempty"`
	OutputPath      string            `json:"output_path,omitempty"`
	FailureStage    Stage             `json:"failure_stage,omitempty"`
	FailureDetail   string            `json:"failure_detail,omitempty"`
	CancelRequested bool              `json:"cancel_requested,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	StartedAt       *time.Time        `json:"started_at,omitempty"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
}

// WordTiming is one recited token with its position on the narration
// track, in milliseconds.
type WordTiming struct {
	Token   string `json:"token"`
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
}

// VerseData is the fetched source material for a single verse.
type VerseData struct {
	VerseNumber    int          `json:"verse_number"`
	ArabicText     string       `json:"arabic_text"`
	Translation    string       `json:"translation"`
	WordTimings    []WordTiming `json:"word_timings"`
	AudioSourceRef string       `json:"audio_source_ref"`
}

// VerseOffset places one verse on the concatenated track. Offsets are
// cumulative durations of the preceding clips.
type VerseOffset struct {
	VerseNumber int   `json:"verse_number"`
	StartMs     int64 `json:"start_ms"`
	EndMs       int64 `json:"end_ms"`
}

type AssembledAudio struct {
	FilePath string        `json:"file_path"`
	Offsets  []VerseOffset `json:"offsets"`
}
