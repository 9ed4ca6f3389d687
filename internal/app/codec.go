package app

import (
	"time"

	"tasktree/api/internal/backend"
	"tasktree/api/internal/model"
)

// todoData is the document representation of a todo. Attachments are stored
// as a serialized string attribute.
func todoData(todo model.Todo) (map[string]any, error) {
	attachments, err := model.EncodeAttachments(todo.Attachments)
	if err != nil {
		return nil, err
	}
	children := todo.Children
	if children == nil {
		children = []string{}
	}
	return map[string]any{
		"text":        todo.Text,
		"completed":   todo.Completed,
		"children":    children,
		"expanded":    todo.Expanded,
		"priority":    string(todo.Priority),
		"dueDate":     formatTime(todo.DueDate),
		"createdAt":   todo.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updatedAt":   todo.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"createdBy":   todo.CreatedBy,
		"attachments": attachments,
	}, nil
}

// patchData holds only the attributes a patch touched, plus updatedAt.
func patchData(patch model.TodoPatch, next model.Todo) map[string]any {
	data := map[string]any{
		"updatedAt": next.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if patch.Text.Set {
		data["text"] = next.Text
	}
	if patch.Completed.Set {
		data["completed"] = next.Completed
	}
	if patch.Children.Set {
		data["children"] = next.Children
	}
	if patch.Expanded.Set {
		data["expanded"] = next.Expanded
	}
	if patch.Priority.Set {
		data["priority"] = string(next.Priority)
	}
	if patch.DueDate.Set {
		data["dueDate"] = formatTime(next.DueDate)
	}
	return data
}

func todoFromDocument(doc backend.Document) model.Todo {
	data := doc.Data
	todo := model.Todo{
		ID:          doc.ID,
		Text:        stringField(data, "text"),
		Completed:   boolField(data, "completed"),
		Children:    stringsField(data, "children"),
		Expanded:    boolField(data, "expanded"),
		Priority:    model.Priority(stringField(data, "priority")),
		DueDate:     timeField(data, "dueDate"),
		CreatedBy:   stringField(data, "createdBy"),
		Attachments: model.DecodeAttachments(stringField(data, "attachments")),
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
	if !todo.Priority.Valid() {
		todo.Priority = model.PriorityLow
	}
	if created := timeField(data, "createdAt"); created != nil {
		todo.CreatedAt = *created
	}
	if updated := timeField(data, "updatedAt"); updated != nil {
		todo.UpdatedAt = *updated
	}
	return todo
}

func formatTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func stringField(data map[string]any, key string) string {
	value, _ := data[key].(string)
	return value
}

func boolField(data map[string]any, key string) bool {
	value, _ := data[key].(bool)
	return value
}

func stringsField(data map[string]any, key string) []string {
	out := []string{}
	switch values := data[key].(type) {
	case []string:
		out = append(out, values...)
	case []any:
		for _, value := range values {
			if s, ok := value.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

func timeField(data map[string]any, key string) *time.Time {
	raw := stringField(data, key)
	if raw == "" {
		return nil
	}
	parsed, err := model.ParseDueDate(raw)
	if err != nil {
		return nil
	}
	return parsed
}
