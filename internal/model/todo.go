// Package model holds the task tree types shared by the HTTP layer, the
// lifecycle managers and the backend encoders.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxTextLength matches the size of the text attribute in the todos collection.
const MaxTextLength = 1000

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type Todo struct {
	ID          string       `json:"id"`
	Text        string       `json:"text"`
	Completed   bool         `json:"completed"`
	Children    []string     `json:"children"`
	Expanded    bool         `json:"expanded"`
	Priority    Priority     `json:"priority"`
	DueDate     *time.Time   `json:"dueDate"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	CreatedBy   string       `json:"createdBy"`
	Attachments []Attachment `json:"attachments"`
}

// OwnerID satisfies the ownership guard.
func (t Todo) OwnerID() string {
	return t.CreatedBy
}

// FindAttachment returns the index of fileID in the attachment list or -1.
func (t Todo) FindAttachment(fileID string) int {
	for i, attachment := range t.Attachments {
		if attachment.FileID == fileID {
			return i
		}
	}
	return -1
}

// ValidationError is returned for caller input that can never succeed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// NewTodo is the create payload. Absent fields take their defaults.
type NewTodo struct {
	Text      string   `json:"text"`
	Completed *bool    `json:"completed"`
	Children  []string `json:"children"`
	Expanded  *bool    `json:"expanded"`
	Priority  Priority `json:"priority"`
	DueDate   *string  `json:"dueDate"`
}

// Build validates the payload and returns the task it describes, owned by
// ownerID and stamped with now.
func (n NewTodo) Build(ownerID string, now time.Time) (Todo, error) {
	if err := validateText(n.Text); err != nil {
		return Todo{}, err
	}
	todo := Todo{
		Text:        n.Text,
		Children:    []string{},
		Priority:    PriorityLow,
		CreatedAt:   now,
		UpdatedAt:   now,
		CreatedBy:   ownerID,
		Attachments: []Attachment{},
	}
	if n.Completed != nil {
		todo.Completed = *n.Completed
	}
	if n.Expanded != nil {
		todo.Expanded = *n.Expanded
	}
	if n.Children != nil {
		todo.Children = append([]string{}, n.Children...)
	}
	if n.Priority != "" {
		if !n.Priority.Valid() {
			return Todo{}, invalid("priority", "must be one of low, medium, high")
		}
		todo.Priority = n.Priority
	}
	if n.DueDate != nil {
		due, err := ParseDueDate(*n.DueDate)
		if err != nil {
			return Todo{}, err
		}
		todo.DueDate = due
	}
	return todo, nil
}

// TodoPatch is a partial update. Only fields present in the request body are
// applied; identity and ownership fields are not patchable.
type TodoPatch struct {
	Text      Optional[string]   `json:"text"`
	Completed Optional[bool]     `json:"completed"`
	Children  Optional[[]string] `json:"children"`
	Expanded  Optional[bool]     `json:"expanded"`
	Priority  Optional[Priority] `json:"priority"`
	DueDate   Optional[string]   `json:"dueDate"`
}

// Apply merges the present fields into todo and stamps UpdatedAt.
// todo is left untouched when the patch is invalid.
func (p TodoPatch) Apply(todo Todo, now time.Time) (Todo, error) {
	next := todo
	if p.Text.Set {
		if p.Text.Null {
			return todo, invalid("text", "must not be null")
		}
		if err := validateText(p.Text.Value); err != nil {
			return todo, err
		}
		next.Text = p.Text.Value
	}
	if p.Completed.Set {
		if p.Completed.Null {
			return todo, invalid("completed", "must not be null")
		}
		next.Completed = p.Completed.Value
	}
	if p.Children.Set {
		next.Children = []string{}
		if !p.Children.Null {
			next.Children = append(next.Children, p.Children.Value...)
		}
	}
	if p.Expanded.Set {
		if p.Expanded.Null {
			return todo, invalid("expanded", "must not be null")
		}
		next.Expanded = p.Expanded.Value
	}
	if p.Priority.Set {
		if p.Priority.Null || !p.Priority.Value.Valid() {
			return todo, invalid("priority", "must be one of low, medium, high")
		}
		next.Priority = p.Priority.Value
	}
	if p.DueDate.Set {
		next.DueDate = nil
		if !p.DueDate.Null {
			due, err := ParseDueDate(p.DueDate.Value)
			if err != nil {
				return todo, err
			}
			next.DueDate = due
		}
	}
	next.UpdatedAt = now
	return next, nil
}

// ParseDueDate accepts RFC 3339 timestamps and plain dates. An empty value
// clears the due date.
func ParseDueDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000", "2006-01-02"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			parsed = parsed.UTC()
			return &parsed, nil
		}
	}
	return nil, invalid("dueDate", "must be an ISO 8601 date")
}

func validateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return invalid("text", "Todo text is required")
	}
	if len([]rune(text)) > MaxTextLength {
		return invalid("text", fmt.Sprintf("must be at most %d characters", MaxTextLength))
	}
	return nil
}
