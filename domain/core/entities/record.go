package entities

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/VadimShubkin/ii/pkg/errors"
)

// Record is an audio recording that topics can annotate.
// Records are created by external importers; the graph only links to them.
type Record struct {
	uri         string
	code        string
	name        string
	audioURL    string
	altAudioGID string
	recordedAt  time.Time
	createdAt   time.Time
}

// RecordParams carries the fields of a new record
type RecordParams struct {
	Code        string
	Name        string
	AudioURL    string
	AltAudioGID string
	RecordedAt  time.Time
}

// NewRecord creates a record keyed by its code
func NewRecord(p RecordParams) (*Record, error) {
	code := strings.TrimSpace(p.Code)
	if code == "" {
		return nil, apperrors.NewValidationError("record code is required")
	}
	return &Record{
		uri:         RecordURI(code),
		code:        code,
		name:        p.Name,
		audioURL:    p.AudioURL,
		altAudioGID: p.AltAudioGID,
		recordedAt:  p.RecordedAt,
		createdAt:   time.Now().UTC(),
	}, nil
}

func recordFromSnapshot(s Snapshot) (*Record, error) {
	r := &Record{
		uri:         s.URI,
		code:        s.Fields["code"],
		name:        s.Name,
		audioURL:    s.Fields["audio_url"],
		altAudioGID: s.Fields["alt_audio_gid"],
		createdAt:   s.CreatedAt,
	}
	if v := s.Fields["recorded_at"]; v != "" {
		at, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("record %s: invalid recorded_at: %w", s.URI, err)
		}
		r.recordedAt = at
	}
	return r, nil
}

func (r *Record) URI() string           { return r.uri }
func (r *Record) Kind() Kind            { return KindRecord }
func (r *Record) Title() string         { return r.name }
func (r *Record) Code() string          { return r.code }
func (r *Record) AudioURL() string      { return r.audioURL }
func (r *Record) AltAudioGID() string   { return r.altAudioGID }
func (r *Record) RecordedAt() time.Time { return r.recordedAt }

// Snapshot implements UID
func (r *Record) Snapshot() Snapshot {
	fields := map[string]string{
		"code":          r.code,
		"audio_url":     r.audioURL,
		"alt_audio_gid": r.altAudioGID,
	}
	if !r.recordedAt.IsZero() {
		fields["recorded_at"] = r.recordedAt.UTC().Format(time.RFC3339)
	}
	return Snapshot{
		URI:       r.uri,
		Kind:      KindRecord,
		Name:      r.name,
		Fields:    fields,
		CreatedAt: r.createdAt,
		UpdatedAt: r.createdAt,
	}
}
