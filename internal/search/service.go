package search

import (
	"log"

	"tasktree/api/internal/model"
)

// Service is the facade that tries Meilisearch first and falls back to
// matching the caller's own todos in process.
type Service struct {
	engine Engine
}

// NewService creates a search service. engine may be nil if Meilisearch is
// not configured.
func NewService(engine Engine) *Service {
	return &Service{engine: engine}
}

// Search narrows candidates, which must already be filtered to q.OwnerID, to
// the todos matching q.Text. Engine hits outside candidates are dropped.
func (s *Service) Search(q Query, candidates []model.Todo) []model.Todo {
	if s.engine != nil && s.engine.Healthy() {
		ids, err := s.engine.Search(q)
		if err == nil {
			return pick(candidates, ids)
		}
		log.Printf("search: meilisearch error, falling back to local match: %v", err)
	}

	results := make([]model.Todo, 0, len(candidates))
	for _, todo := range candidates {
		if matchText(todo.Text, q.Text) {
			results = append(results, todo)
		}
	}
	return results
}

func pick(candidates []model.Todo, ids []string) []model.Todo {
	byID := make(map[string]model.Todo, len(candidates))
	for _, todo := range candidates {
		byID[todo.ID] = todo
	}
	results := make([]model.Todo, 0, len(ids))
	for _, id := range ids {
		if todo, ok := byID[id]; ok {
			results = append(results, todo)
			delete(byID, id)
		}
	}
	return results
}

// IndexTodo indexes a todo (fire-and-forget).
func (s *Service) IndexTodo(todo model.Todo) {
	if s.engine == nil || !s.engine.Healthy() {
		return
	}
	record := RecordFromTodo(todo)
	go func() {
		if err := s.engine.IndexTodo(record); err != nil {
			log.Printf("search: index todo %s: %v", record.ID, err)
		}
	}()
}

// DeleteTodo removes a todo from the search index (fire-and-forget).
func (s *Service) DeleteTodo(id string) {
	if s.engine == nil || !s.engine.Healthy() {
		return
	}
	go func() {
		if err := s.engine.DeleteTodo(id); err != nil {
			log.Printf("search: delete todo %s: %v", id, err)
		}
	}()
}
