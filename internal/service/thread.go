// Package service provides business logic for the AI twin.
package service

import (
	"maps"

	"go.uber.org/zap"

	"github.com/capitalize-ai/ai-twin/internal/model"
	"github.com/capitalize-ai/ai-twin/internal/transcript"
	"github.com/capitalize-ai/ai-twin/pkg/logger"
)

// ThreadService handles thread and item operations.
type ThreadService struct {
	store  *transcript.Store
	logger *logger.Logger
}

// NewThreadService creates a new thread service.
func NewThreadService(store *transcript.Store, log *logger.Logger) *ThreadService {
	return &ThreadService{store: store, logger: log}
}

// List returns one page of threads.
func (s *ThreadService) List(limit int, after string, order model.Order) model.Page[model.Thread] {
	return s.store.ListThreads(limit, after, order)
}

// Get returns a thread, creating it on first access.
func (s *ThreadService) Get(threadID string) model.Thread {
	return s.store.GetThread(threadID)
}

// Update replaces a thread's metadata.
func (s *ThreadService) Update(threadID string, req model.UpdateThreadRequest) model.Thread {
	thread := s.store.GetThread(threadID)
	thread.Metadata = maps.Clone(req.Metadata)
	s.store.PutThread(thread)

	s.logger.Info("Thread updated", zap.String("thread_id", threadID), zap.Int("metadata_keys", len(req.Metadata)))
	return s.store.GetThread(threadID)
}

// Delete removes a thread and its items.
func (s *ThreadService) Delete(threadID string) {
	s.store.DeleteThread(threadID)
	s.logger.Info("Thread deleted", zap.String("thread_id", threadID))
}

// ListItems returns one page of a thread's items.
func (s *ThreadService) ListItems(threadID string, limit int, after string, order model.Order) model.Page[model.Item] {
	return s.store.ListItems(threadID, limit, after, order)
}

// GetItem returns one item or an error wrapping transcript.ErrNotFound.
func (s *ThreadService) GetItem(threadID, itemID string) (model.Item, error) {
	return s.store.GetItem(threadID, itemID)
}

// DeleteItem removes one item.
func (s *ThreadService) DeleteItem(threadID, itemID string) {
	s.store.DeleteItem(threadID, itemID)
}
