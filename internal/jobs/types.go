package jobs

import (
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Status values are stable strings visible to polling clients.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// Terminal reports whether a status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Record tracks one computation attempt for a job key. It is created when a
// lock is first acquired and mutated only by the lock owner.
type Record struct {
	ID           string     `json:"id"`
	JobKey       string     `json:"job_key"`
	Status       Status     `json:"status"`
	RequestedAt  time.Time  `json:"requested_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// ResultRecord is a durably persisted computation result. Records are
// append-only per job key; the newest one wins on retrieval.
type ResultRecord struct {
	JobKey      string
	VideoID     string
	Language    string
	Payload     []byte
	ContentHash string
	SizeBytes   int
	GeneratedAt time.Time
}

// Params is what the compute collaborator needs to produce subtitles for a
// job key. It is carried through unchanged; its meaning belongs to the
// pipeline, not to this package.
type Params struct {
	URL      string
	Language string
}

// Key builds the job key for a video and an optional target language.
// Subtitle generation is keyed by the video alone; a translation of the same
// video into another language is an independent job.
func Key(videoID string, lang language.Tag) string {
	if lang == language.Und {
		return videoID
	}
	return videoID + ":" + lang.String()
}

// SplitKey is the inverse of Key.
func SplitKey(jobKey string) (videoID, lang string) {
	if idx := strings.IndexByte(jobKey, ':'); idx >= 0 {
		return jobKey[:idx], jobKey[idx+1:]
	}
	return jobKey, ""
}

func lockKey(jobKey string) string {
	return "processing:" + jobKey
}

func statusKey(jobKey string) string {
	return "status:" + jobKey
}

func resultKey(jobKey string) string {
	return "subtitles:" + jobKey
}
