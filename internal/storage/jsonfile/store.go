// Package jsonfile keeps the processed-title history in a single indented
// JSON document that is replaced atomically on every write.
package jsonfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"torrent-rating-notifier/internal/normalize"
	"torrent-rating-notifier/internal/storage"
)

const schemaVersion = 1

type document struct {
	Version int              `json:"version"`
	Titles  map[string]entry `json:"titles"`
}

type entry struct {
	Title       string    `json:"title"`
	Rating      *float64  `json:"rating"`
	Notified    bool      `json:"notified"`
	ProcessedAt time.Time `json:"processed_at"`
}

// rawDocument accepts both the current schema and the history file written
// by the earlier script ({"peliculas": {key: {titulo, nota, fecha, notificado}}}).
type rawDocument struct {
	Version   int                    `json:"version"`
	Titles    map[string]entry       `json:"titles"`
	Peliculas map[string]legacyEntry `json:"peliculas"`
}

type legacyEntry struct {
	Titulo     string   `json:"titulo"`
	Nota       *float64 `json:"nota"`
	Fecha      string   `json:"fecha"`
	Notificado bool     `json:"notificado"`
}

// Store implements storage.Repository. It assumes a single writer process.
type Store struct {
	path    string
	records map[string]storage.Record
	loaded  bool
}

var _ storage.Repository = (*Store)(nil)

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Load() (map[string]storage.Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.records = make(map[string]storage.Record)
		s.loaded = true
		return map[string]storage.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state document: %w", err)
	}

	records, err := decode(data)
	if err != nil {
		return nil, &storage.CorruptStateError{Path: s.path, Err: err}
	}

	s.records = records
	s.loaded = true
	return s.snapshot(), nil
}

func (s *Store) Contains(key string) bool {
	_, ok := s.records[key]
	return ok
}

func (s *Store) Get(key string) (storage.Record, bool) {
	rec, ok := s.records[key]
	return rec, ok
}

// Record inserts rec and rewrites the whole document before returning. If the
// write fails the in-memory mapping is rolled back so it never runs ahead of
// what is on disk.
func (s *Store) Record(key string, rec storage.Record) error {
	if !s.loaded {
		return errors.New("state document not loaded")
	}

	prev, existed := s.records[key]
	rec.Key = key
	s.records[key] = rec

	if err := s.flush(); err != nil {
		if existed {
			s.records[key] = prev
		} else {
			delete(s.records, key)
		}
		return fmt.Errorf("persist %q: %w", key, err)
	}
	return nil
}

// All returns every record ordered by processing time, then key.
func (s *Store) All() []storage.Record {
	out := make([]storage.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ProcessedAt.Equal(out[j].ProcessedAt) {
			return out[i].ProcessedAt.Before(out[j].ProcessedAt)
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func (s *Store) Len() int {
	return len(s.records)
}

func (s *Store) snapshot() map[string]storage.Record {
	out := make(map[string]storage.Record, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out
}

func (s *Store) flush() error {
	doc := document{
		Version: schemaVersion,
		Titles:  make(map[string]entry, len(s.records)),
	}
	for key, rec := range s.records {
		doc.Titles[key] = entry{
			Title:       rec.DisplayTitle,
			Rating:      rec.Rating,
			Notified:    rec.Notified,
			ProcessedAt: rec.ProcessedAt.UTC(),
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode state document: %w", err)
	}
	return writeFileAtomic(s.path, buf.Bytes(), 0o644)
}

func decode(data []byte) (map[string]storage.Record, error) {
	var raw rawDocument
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after document")
	}
	if raw.Version > schemaVersion {
		return nil, fmt.Errorf("unsupported schema version %d", raw.Version)
	}

	records := make(map[string]storage.Record, len(raw.Titles)+len(raw.Peliculas))
	for key, e := range raw.Peliculas {
		rec := fromLegacy(key, e)
		if prev, ok := records[rec.Key]; ok && prev.Notified {
			continue
		}
		records[rec.Key] = rec
	}
	for key, e := range raw.Titles {
		if key == "" {
			return nil, errors.New("record with empty key")
		}
		records[key] = storage.Record{
			Key:          key,
			DisplayTitle: e.Title,
			Rating:       e.Rating,
			Notified:     e.Notified,
			ProcessedAt:  e.ProcessedAt,
		}
	}
	return records, nil
}

// fromLegacy re-derives the key from the stored search title so old entries
// match the keys computed today. The old script stored 0 for titles it could
// not find.
func fromLegacy(key string, e legacyEntry) storage.Record {
	if derived := normalize.ToDedupKey(e.Titulo); derived != "" {
		key = derived
	}
	rec := storage.Record{
		Key:          key,
		DisplayTitle: e.Titulo,
		Notified:     e.Notificado,
	}
	if e.Nota != nil && *e.Nota > 0 {
		rating := *e.Nota
		rec.Rating = &rating
	}
	if t, err := time.Parse("2006-01-02", e.Fecha); err == nil {
		rec.ProcessedAt = t
	}
	return rec
}
