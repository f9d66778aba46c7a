package wire

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/liftsync/pkg/types"
)

// SessionPayload is the transferable form of a session. The backup document
// uses the same shape.
type SessionPayload struct {
	SessionID     string       `json:"sessionID"`
	StartTime     *time.Time   `json:"startTime,omitempty"`
	EndTime       *time.Time   `json:"endTime,omitempty"`
	IsCompleted   bool         `json:"isCompleted"`
	Notes         *string      `json:"notes,omitempty"`
	TotalCalories float64      `json:"totalCalories"`
	CreatedAt     *time.Time   `json:"createdAt,omitempty"`
	UpdatedAt     *time.Time   `json:"updatedAt,omitempty"`
	WorkoutSets   []SetPayload `json:"workoutSets,omitempty"`
}

// SetPayload is the transferable form of a set. The exercise is carried by
// name and resolved on the receiving side.
type SetPayload struct {
	SetID        string     `json:"setID"`
	Weight       float64    `json:"weight"`
	Repetitions  int        `json:"repetitions"`
	SetNumber    int        `json:"setNumber"`
	IsCompleted  bool       `json:"isCompleted"`
	ExerciseName string     `json:"exerciseName"`
	CreatedAt    *time.Time `json:"createdAt,omitempty"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`
}

// Validate checks the numeric constraints of the payload and its sets.
func (p SessionPayload) Validate() error {
	if p.TotalCalories < 0 {
		return fmt.Errorf("session %s: negative totalCalories: %w", p.SessionID, types.ErrInvalidData)
	}
	for i, s := range p.WorkoutSets {
		if s.Weight < 0 || s.Repetitions <= 0 || s.SetNumber < 0 {
			return fmt.Errorf("session %s set %d: %w", p.SessionID, i, types.ErrInvalidData)
		}
	}
	return nil
}

// FromSession builds a payload from a stored session and its sets.
func FromSession(s *types.WorkoutSession, sets []SetPayload) SessionPayload {
	p := SessionPayload{
		SessionID:     s.SessionID,
		StartTime:     timePtr(s.StartTime),
		EndTime:       s.EndTime,
		IsCompleted:   s.IsCompleted,
		TotalCalories: s.TotalCalories,
		CreatedAt:     timePtr(s.CreatedAt),
		UpdatedAt:     timePtr(s.UpdatedAt),
		WorkoutSets:   sets,
	}
	if s.Notes != "" {
		notes := s.Notes
		p.Notes = &notes
	}
	return p
}

// FromSet builds a set payload for a stored set.
func FromSet(s *types.WorkoutSet, exerciseName string) SetPayload {
	return SetPayload{
		SetID:        s.SetID,
		Weight:       s.Weight,
		Repetitions:  s.Repetitions,
		SetNumber:    s.SetNumber,
		IsCompleted:  s.IsCompleted,
		ExerciseName: exerciseName,
		CreatedAt:    timePtr(s.CreatedAt),
		UpdatedAt:    timePtr(s.UpdatedAt),
	}
}

// ToSession returns a new unsaved session populated from the payload. An
// unparseable SessionID is replaced with a fresh one. Absent timestamps are
// derived from the present ones so that createdAt <= updatedAt and
// startTime <= endTime hold: createdAt falls back to the earliest present
// timestamp (or now), updatedAt to now, startTime to createdAt. A present
// endTime before startTime is moved to one default duration after the start.
func (p SessionPayload) ToSession(now time.Time) *types.WorkoutSession {
	s := &types.WorkoutSession{
		SessionID:     normalizeID(p.SessionID),
		EndTime:       timePtrUTC(p.EndTime),
		IsCompleted:   p.IsCompleted,
		TotalCalories: p.TotalCalories,
		SyncStatus:    types.SyncPending,
	}

	created, ok := present(p.CreatedAt)
	if !ok {
		created = earliest(now, p.UpdatedAt, p.StartTime, p.EndTime)
	}
	updated, ok := present(p.UpdatedAt)
	if !ok {
		updated = now
	}
	s.CreatedAt, s.UpdatedAt = created, latest(created, updated)

	start, ok := present(p.StartTime)
	if !ok {
		start = created
		if s.EndTime != nil && s.EndTime.Before(start) {
			start = *s.EndTime
		}
	}
	s.StartTime = start
	if s.EndTime != nil && start.After(*s.EndTime) {
		end := start.Add(types.DefaultSessionDuration)
		s.EndTime = &end
	}

	if p.Notes != nil {
		s.Notes = *p.Notes
	}
	return s
}

// ToSet returns a new unsaved set populated from the payload. References
// are left for the caller to fill.
func (p SetPayload) ToSet(now time.Time) *types.WorkoutSet {
	n := p.SetNumber
	if n <= 0 {
		n = 1
	}
	created, ok := present(p.CreatedAt)
	if !ok {
		created = earliest(now, p.UpdatedAt)
	}
	return &types.WorkoutSet{
		SetID:       normalizeID(p.SetID),
		Weight:      p.Weight,
		Repetitions: p.Repetitions,
		SetNumber:   n,
		IsCompleted: p.IsCompleted,
		CreatedAt:   created,
		UpdatedAt:   latest(created, orNow(p.UpdatedAt, now)),
	}
}

// normalizeID returns id in canonical form, or a new v7 id when id does not
// parse as a UUID.
func normalizeID(id string) string {
	if u, err := uuid.Parse(strings.TrimSpace(id)); err == nil {
		return u.String()
	}
	u, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return u.String()
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func present(t *time.Time) (time.Time, bool) {
	if t == nil || t.IsZero() {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func timePtrUTC(t *time.Time) *time.Time {
	v, ok := present(t)
	if !ok {
		return nil
	}
	return &v
}

// earliest returns the earliest of fallback and the present times.
func earliest(fallback time.Time, ts ...*time.Time) time.Time {
	out := fallback
	for _, t := range ts {
		if v, ok := present(t); ok && v.Before(out) {
			out = v
		}
	}
	return out
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func orNow(t *time.Time, now time.Time) time.Time {
	if t == nil || t.IsZero() {
		return now
	}
	return t.UTC()
}
