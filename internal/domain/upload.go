package domain

import "time"

// Upload records one worker photo submission for a step. Uploads form an
// append-only sequence per step: only the most recent one is subject to
// review, older entries are immutable history.
type Upload struct {
	ID           string
	StepID       string
	WorkerID     string
	FileName     string // opaque object-store key, never a filesystem path
	OriginalName string
	MimeType     string
	Size         int64
	CreatedAt    time.Time
}

// FileMeta describes the stored photo an upload points at. The workflow core
// only ever persists this metadata; the bytes live in the object store.
type FileMeta struct {
	FileName     string
	OriginalName string
	MimeType     string
	Size         int64
}
