package storage

import (
	"fmt"
	"time"
)

// Record is the outcome of processing one dedup key. It is written once and
// never updated by later scrapes.
type Record struct {
	Key          string
	DisplayTitle string
	// Rating is nil when the title was searched and nothing usable was found.
	Rating      *float64
	Notified    bool
	ProcessedAt time.Time
}

// Repository is the processed-title store.
type Repository interface {
	// Load reads the persisted document. An absent document yields an empty
	// mapping; a malformed one yields *CorruptStateError.
	Load() (map[string]Record, error)

	// Contains reports whether key has already been processed.
	Contains(key string) bool

	// Record stores rec under key and returns only after it is durable.
	Record(key string, rec Record) error

	// Get returns the record for key, if any.
	Get(key string) (Record, bool)

	// All returns a snapshot of every record.
	All() []Record

	Len() int
}

// CorruptStateError means the persisted document exists but cannot be read.
// History must never be discarded silently because of it.
type CorruptStateError struct {
	Path string
	Err  error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("corrupt state document %s: %v", e.Path, e.Err)
}

func (e *CorruptStateError) Unwrap() error {
	return e.Err
}
