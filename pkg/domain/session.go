package domain

import "time"

// FileState tracks whether the recording artifact has been fully written
// to local storage.
type FileState string

const (
	FileSaving FileState = "saving"
	FileSaved  FileState = "saved"
)

// AudioState is the lifecycle of the transcription sub-pipeline for a session.
type AudioState string

const (
	AudioNone         AudioState = "none"
	AudioTranscribing AudioState = "transcribing"
	AudioDone         AudioState = "done"
)

// SummaryState is the lifecycle of the summarization sub-pipeline.
type SummaryState string

const (
	SummaryNone           SummaryState = "none"
	SummaryWaitingNetwork SummaryState = "waiting_network"
	SummaryDone           SummaryState = "done"
)

// Session represents one recorded note: the audio artifact, user metadata,
// and the text derived from it by the pipeline.
//
// Exactly one of {transcript complete, transcribe error set, pending} holds
// at any time: AudioState == AudioDone implies a non-empty Transcript and a
// cleared TranscribeError. The session store enforces this by construction.
type Session struct {
	SessionID string `bson:"session_id" json:"sessionId"`

	// User-supplied metadata captured at recording time.
	Time     string   `bson:"time,omitempty" json:"time,omitempty"`
	Location string   `bson:"location,omitempty" json:"location,omitempty"`
	People   []string `bson:"people,omitempty" json:"people,omitempty"`
	Hashtags []string `bson:"hashtags,omitempty" json:"hashtags,omitempty"`
	Note     string   `bson:"note,omitempty" json:"note,omitempty"`

	// AudioURI is an opaque reference to the stored audio artifact.
	// Empty until the recording has been saved.
	AudioURI string `bson:"audio_uri,omitempty" json:"audioUri,omitempty"`

	Transcript       string     `bson:"transcript,omitempty" json:"transcript,omitempty"`
	TranscribeSource string     `bson:"transcribe_source,omitempty" json:"transcribeSource,omitempty"`
	TranscribeError  string     `bson:"transcribe_error,omitempty" json:"transcribeError,omitempty"`
	AudioState       AudioState `bson:"audio_state" json:"audioState"`

	Title        string       `bson:"title,omitempty" json:"title,omitempty"`
	Summary      string       `bson:"summary,omitempty" json:"summary,omitempty"`
	SummaryError string       `bson:"summary_error,omitempty" json:"summaryError,omitempty"`
	SummaryState SummaryState `bson:"summary_state" json:"summaryState"`

	FileState FileState `bson:"file_state" json:"fileState"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// NewSessionID derives a stable session identifier from the creation
// timestamp, e.g. "20250831142210".
func NewSessionID(t time.Time) string {
	return t.Format("20060102150405")
}

// StateLabel returns a best-effort human-readable state for list and detail
// views. A session with an error set always carries the reason.
func (s *Session) StateLabel() string {
	switch {
	case s.TranscribeError != "":
		return "failed: " + s.TranscribeError
	case s.AudioURI == "":
		return "no audio"
	case s.AudioState == AudioTranscribing:
		return "transcribing"
	case s.AudioState == AudioDone:
		return "done"
	default:
		return "pending"
	}
}
