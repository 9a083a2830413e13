package domain

// JobStatus is the lifecycle of a server-side transcription job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobDone       JobStatus = "done"
	JobError      JobStatus = "error"
)

// Job is the ephemeral server-side tracking record for a long-running
// transcribe(+summarize) request. Jobs live in process memory only; a server
// restart orphans them and clients must resubmit.
type Job struct {
	ID       string    `json:"jobId"`
	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"`
	Text     string    `json:"text,omitempty"`
	Title    string    `json:"title,omitempty"`
	Summary  string    `json:"summary,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// UploadTask describes one artifact to push to remote storage. Each task has
// an independent lifecycle in the sync dispatcher; tasks for the same session
// may complete out of order.
type UploadTask struct {
	// Basename groups the artifacts of one session, e.g. "20250831142210".
	Basename string
	// Name is the remote object name, e.g. "20250831142210.m4a".
	Name string
	// Mime is the artifact content type, e.g. "audio/mp4" or "text/plain".
	Mime string
	// URI references the local artifact bytes.
	URI string
}
