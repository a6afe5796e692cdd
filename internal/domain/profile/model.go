package profile

import "time"

// Record is one row of the profiles table.
type Record struct {
	ID         string
	Email      string
	FullName   string
	Role       string
	Department string
	Position   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Fields are the non-key attributes supplied by the caller.
type Fields struct {
	Email      string
	FullName   string
	Role       string
	Department string
	Position   string
}

// NewRecord merges id and fields with a single creation instant.
func NewRecord(id string, fields Fields, now time.Time) Record {
	now = now.UTC()
	return Record{
		ID:         id,
		Email:      fields.Email,
		FullName:   fields.FullName,
		Role:       fields.Role,
		Department: fields.Department,
		Position:   fields.Position,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (r Record) Fields() Fields {
	return Fields{
		Email:      r.Email,
		FullName:   r.FullName,
		Role:       r.Role,
		Department: r.Department,
		Position:   r.Position,
	}
}

// InsertMode selects how a store handles an insert whose id already exists.
type InsertMode string

const (
	// InsertModeStrict issues a plain insert; a duplicate id is an error.
	InsertModeStrict InsertMode = "strict"
	// InsertModeIgnoreDuplicates uses the store's insert-if-not-exists primitive.
	// A duplicate id yields no echoed row instead of an error.
	InsertModeIgnoreDuplicates InsertMode = "ignore_duplicates"
)

func (m InsertMode) Valid() bool {
	return m == InsertModeStrict || m == InsertModeIgnoreDuplicates
}

// Outcome reports which branch produced the returned record.
type Outcome string

const (
	OutcomeNone              Outcome = ""
	OutcomeExisting          Outcome = "existing"
	OutcomeCreated           Outcome = "created"
	OutcomeExistingAfterRace Outcome = "existing_after_race"
)
