package domain

import (
	"strings"
	"time"
)

// Status identifies one of the board's fixed columns.
type Status string

const (
	StatusTodo  Status = "TODO"
	StatusDoing Status = "DOING"
	StatusDone  Status = "DONE"
)

// Statuses lists the board columns in display order.
var Statuses = []Status{StatusTodo, StatusDoing, StatusDone}

// Valid reports whether s names one of the board columns.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusDoing, StatusDone:
		return true
	}
	return false
}

// Card represents a single unit of work on the board. Order is unique
// within a status and the orders of a column always form a dense
// 0-based sequence.
type Card struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	Order       int       `json:"order"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CardFields carries caller-supplied values for a new card.
type CardFields struct {
	Title       string
	Description string
	Status      Status
}

// Validate rejects fields that must not reach the store.
func (f CardFields) Validate() error {
	if strings.TrimSpace(f.Title) == "" {
		return ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if !f.Status.Valid() {
		return ValidationError{Field: "status", Reason: "unknown column"}
	}
	return nil
}

// CardUpdate carries optional field changes for an existing card. Nil
// pointers leave the field untouched.
type CardUpdate struct {
	Title       *string
	Description *string
}

// Validate rejects updates that must not reach the store.
func (u CardUpdate) Validate() error {
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return ValidationError{Field: "title", Reason: "must not be empty"}
	}
	return nil
}
