package store

import (
	"strings"
	"time"
)

// SourceType identifies the uploaded deck format.
type SourceType string

const (
	SourcePPTX SourceType = "pptx"
	SourcePDF  SourceType = "pdf"
)

// ParseSourceType converts a file extension or label into a SourceType.
func ParseSourceType(value string) (SourceType, bool) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(value), ".")) {
	case "pptx":
		return SourcePPTX, true
	case "pdf":
		return SourcePDF, true
	default:
		return "", false
	}
}

// DeckMode controls whether stages chain automatically.
type DeckMode string

const (
	ModeReview  DeckMode = "review"
	ModeOneShot DeckMode = "one_shot"
)

// ParseDeckMode converts a string into a known DeckMode.
func ParseDeckMode(value string) (DeckMode, bool) {
	switch DeckMode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeReview:
		return ModeReview, true
	case ModeOneShot:
		return ModeOneShot, true
	default:
		return "", false
	}
}

// DeckStatus represents the deck-level pipeline state.
type DeckStatus string

const (
	DeckIngesting      DeckStatus = "ingesting"
	DeckReadyForReview DeckStatus = "ready_for_review"
	DeckGenerating     DeckStatus = "generating"
	DeckComplete       DeckStatus = "complete"
	DeckFailed         DeckStatus = "failed"
)

// Deck is the uploaded slide source and its derived pipeline state.
type Deck struct {
	ID                 string
	OwnerID            string
	Title              string
	SourceType         SourceType
	Mode               DeckMode
	Status             DeckStatus
	SlideCount         int
	ScriptModel        string
	TTSModel           string
	Voice              string
	SourcePath         string
	FinalVideoPath     string
	FinalVideoDuration float64
	Warnings           []string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Slide is one extracted page with its own script/audio/video lifecycle.
type Slide struct {
	ID                int64
	DeckID            string
	Index             int
	Title             string
	Body              string
	Notes             string
	OCRText           string
	ImagePath         string
	NeedsImageContext bool
}

// CombinedText returns the text the script generator works from.
func (s Slide) CombinedText() string {
	parts := make([]string, 0, 3)
	for _, part := range []string{s.Body, s.Notes, s.OCRText} {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, "\n")
}

// ScriptStatus represents the narration script lifecycle for one slide.
type ScriptStatus string

const (
	ScriptPending      ScriptStatus = "pending"
	ScriptRegenerating ScriptStatus = "regenerating"
	ScriptReady        ScriptStatus = "ready"
	ScriptFailed       ScriptStatus = "failed"
)

// Script holds the narration text for one slide.
type Script struct {
	SlideID   int64
	Content   string
	Status    ScriptStatus
	UpdatedAt time.Time
}

// AssetStatus represents the audio/video asset lifecycle for one slide.
type AssetStatus string

const (
	AssetPending    AssetStatus = "pending"
	AssetProcessing AssetStatus = "processing"
	AssetReady      AssetStatus = "ready"
	AssetFailed     AssetStatus = "failed"
)

// AssetKind distinguishes the two per-slide media asset tables.
type AssetKind string

const (
	AssetAudio AssetKind = "audio"
	AssetVideo AssetKind = "video"
)

// Asset is a per-slide media file produced by a pipeline stage. Upserted per
// processing attempt, never duplicated.
type Asset struct {
	SlideID   int64
	Kind      AssetKind
	Path      string
	Status    AssetStatus
	Duration  float64
	UpdatedAt time.Time
}

// JobType enumerates the five pipeline stages a job can execute.
type JobType string

const (
	JobIngest          JobType = "ingest"
	JobGenerateScripts JobType = "generate-scripts"
	JobGenerateAudio   JobType = "generate-audio"
	JobGenerateVideo   JobType = "generate-video"
	JobAssembleFinal   JobType = "assemble-final"
)

var allJobTypes = []JobType{JobIngest, JobGenerateScripts, JobGenerateAudio, JobGenerateVideo, JobAssembleFinal}

// AllJobTypes returns the ordered list of known job types.
func AllJobTypes() []JobType {
	cp := make([]JobType, len(allJobTypes))
	copy(cp, allJobTypes)
	return cp
}

// ParseJobType converts a string into a known JobType.
func ParseJobType(value string) (JobType, bool) {
	normalized := JobType(strings.ToLower(strings.TrimSpace(value)))
	for _, jt := range allJobTypes {
		if jt == normalized {
			return jt, true
		}
	}
	return "", false
}

// JobStatus represents the lifecycle of a queued job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// IsActive reports whether a job status still occupies an admission slot.
func (s JobStatus) IsActive() bool {
	return s == JobQueued || s == JobRunning
}

// Job trigger reasons recorded in the payload for forensic visibility.
const (
	TriggerManual    = "manual"
	TriggerAutoChain = "auto_chain"
	TriggerRetry     = "retry"
)

// Job is one durable queue entry. Created once per invocation, never reused;
// the type field is immutable.
type Job struct {
	ID            string
	DeckID        string
	OwnerID       string
	Type          JobType
	Status        JobStatus
	Progress      float64
	SlideIDs      []int64
	Trigger       string
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
	LastHeartbeat *time.Time
}

// ServiceHealth is the per-provider circuit breaker record. Active means the
// breaker is tripped.
type ServiceHealth struct {
	Service   string
	Active    bool
	Message   string
	UpdatedAt time.Time
}

// Names of the external services tracked by the health table.
const (
	ServiceLLM = "llm"
	ServiceTTS = "tts"
)

// JobStats aggregates queue counts per lifecycle state.
type JobStats struct {
	Total     int
	Queued    int
	Running   int
	Succeeded int
	Failed    int
}
