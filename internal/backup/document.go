// Package backup writes and restores portable JSON snapshots of the workout
// store.
package backup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mesh-intelligence/liftsync/internal/wire"
	"github.com/mesh-intelligence/liftsync/pkg/types"
)

// FormatVersion is written into every document. Restore accepts any
// version with the same major number.
const FormatVersion = "1.0"

// Document is the versioned backup file.
type Document struct {
	Version    string                `json:"version"`
	BackupDate time.Time             `json:"backupDate"`
	Sessions   []wire.SessionPayload `json:"sessions"`
	Exercises  []ExerciseRecord      `json:"exercises"`
}

// ExerciseRecord is the backup form of an exercise.
type ExerciseRecord struct {
	ExerciseID   string     `json:"exerciseID"`
	Name         string     `json:"name"`
	Category     *string    `json:"category,omitempty"`
	MuscleGroups *string    `json:"muscleGroups,omitempty"`
	Instructions *string    `json:"instructions,omitempty"`
	IsCustom     bool       `json:"isCustom"`
	CreatedAt    *time.Time `json:"createdAt,omitempty"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`
}

func exerciseRecord(e *types.Exercise) ExerciseRecord {
	created, updated := e.CreatedAt, e.UpdatedAt
	return ExerciseRecord{
		ExerciseID:   e.ExerciseID,
		Name:         e.Name,
		Category:     optional(e.Category),
		MuscleGroups: optional(e.MuscleGroups),
		Instructions: optional(e.Instructions),
		IsCustom:     e.IsCustom,
		CreatedAt:    &created,
		UpdatedAt:    &updated,
	}
}

func (r ExerciseRecord) toExercise(now time.Time) *types.Exercise {
	e := &types.Exercise{
		ExerciseID: r.ExerciseID,
		Name:       strings.TrimSpace(r.Name),
		IsCustom:   r.IsCustom,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if r.Category != nil {
		e.Category = *r.Category
	}
	if r.MuscleGroups != nil {
		e.MuscleGroups = *r.MuscleGroups
	}
	if r.Instructions != nil {
		e.Instructions = *r.Instructions
	}
	if r.CreatedAt != nil {
		e.CreatedAt = r.CreatedAt.UTC()
	}
	if r.UpdatedAt != nil {
		e.UpdatedAt = r.UpdatedAt.UTC()
	}
	return e
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Encode writes doc as indented JSON.
func Encode(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(doc)
}

// Decode reads and validates a document. Anything that is not a JSON object
// with a sessions array, or that carries an unsupported major version, fails
// with an error matching types.ErrInvalidBackupFormat.
func Decode(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, types.NewOpError("backup.decode", types.ErrRestoreFailed, err)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil || top == nil {
		return nil, invalid("document is not a JSON object")
	}
	sessions, ok := top["sessions"]
	if !ok || !bytes.HasPrefix(bytes.TrimSpace(sessions), []byte("[")) {
		return nil, invalid("missing sessions array")
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, invalid(err.Error())
	}
	if doc.Version == "" {
		doc.Version = FormatVersion
	}
	if major(doc.Version) != major(FormatVersion) {
		return nil, invalid(fmt.Sprintf("unsupported version %q", doc.Version))
	}
	for _, s := range doc.Sessions {
		if err := s.Validate(); err != nil {
			return nil, invalid(err.Error())
		}
	}
	return &doc, nil
}

func invalid(reason string) error {
	return types.NewOpError("backup.decode", types.ErrInvalidBackupFormat, fmt.Errorf("%s", reason))
}

func major(version string) string {
	v, _, _ := strings.Cut(strings.TrimSpace(version), ".")
	return v
}
