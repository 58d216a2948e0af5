package rules

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ModelStore manages decision model persistence and retrieval
type ModelStore interface {
	// Add a new model
	Add(model *DecisionModel) error

	// Get a model by ID
	Get(id string) (*DecisionModel, error)

	// List all models ordered by ID
	List() ([]*DecisionModel, error)

	// Update an existing model
	Update(model *DecisionModel) error

	// Delete a model
	Delete(id string) error
}

// Errors wrapped by stores and the engine for model IDs
var (
	ErrModelNotFound = errors.New("model not found")
	ErrModelExists   = errors.New("model already exists")
)

// InMemoryModelStore implements ModelStore using an in-memory map
type InMemoryModelStore struct {
	models map[string]*DecisionModel
	mu     sync.RWMutex
}

// NewInMemoryModelStore creates a new in-memory model store
func NewInMemoryModelStore() *InMemoryModelStore {
	return &InMemoryModelStore{
		models: make(map[string]*DecisionModel),
	}
}

// Add adds a new model to the store and stamps CreatedAt and UpdatedAt
func (s *InMemoryModelStore) Add(model *DecisionModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.models[model.ID]; exists {
		return fmt.Errorf("model with ID %s: %w", model.ID, ErrModelExists)
	}

	now := time.Now()
	model.CreatedAt = now
	model.UpdatedAt = now
	s.models[model.ID] = model
	return nil
}

// Get retrieves a model by ID
func (s *InMemoryModelStore) Get(id string) (*DecisionModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	model, exists := s.models[id]
	if !exists {
		return nil, fmt.Errorf("model with ID %s: %w", id, ErrModelNotFound)
	}
	return model, nil
}

func (s *InMemoryModelStore) List() ([]*DecisionModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	models := make([]*DecisionModel, 0, len(s.models))
	for _, m := range s.models {
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// Update replaces an existing model, preserving its CreatedAt timestamp
func (s *InMemoryModelStore) Update(model *DecisionModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.models[model.ID]
	if !exists {
		return fmt.Errorf("model with ID %s: %w", model.ID, ErrModelNotFound)
	}

	model.CreatedAt = existing.CreatedAt
	model.UpdatedAt = time.Now()
	s.models[model.ID] = model
	return nil
}

// Delete removes a model from the store
func (s *InMemoryModelStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.models[id]; !exists {
		return fmt.Errorf("model with ID %s: %w", id, ErrModelNotFound)
	}

	delete(s.models, id)
	return nil
}
