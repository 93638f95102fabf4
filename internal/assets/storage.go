// Package assets holds the image binary store backing image messages.
package assets

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/exchange-chat-service/internal/config"
	"github.com/spec-kit/exchange-chat-service/internal/service"
)

// MemoryStorage keeps uploaded binaries in process memory. It stands in for
// the object-store client in development and tests; the service layer only
// sees the AssetStorage interface.
type MemoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	baseURL string
	logger  *zap.Logger
}

// NewMemoryStorage constructs the store.
func NewMemoryStorage(cfg config.AssetsConfig, logger *zap.Logger) *MemoryStorage {
	return &MemoryStorage{
		objects: make(map[string][]byte),
		baseURL: cfg.BaseURL,
		logger:  logger,
	}
}

// Upload stores the binary and returns its descriptor.
func (s *MemoryStorage) Upload(ctx context.Context, data []byte, mimeType string) (*service.Asset, error) {
	id := uuid.NewString()

	s.mu.Lock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.objects[id] = buf
	s.mu.Unlock()

	s.logger.Debug("asset stored", zap.String("asset_id", id), zap.Int("bytes", len(data)))
	return &service.Asset{
		ID:       id,
		URL:      s.baseURL + "/" + id,
		MimeType: mimeType,
		Size:     int64(len(data)),
	}, nil
}

// Delete removes the binary. Deleting an unknown id is a no-op.
func (s *MemoryStorage) Delete(ctx context.Context, assetID string) error {
	s.mu.Lock()
	delete(s.objects, assetID)
	s.mu.Unlock()

	s.logger.Debug("asset deleted", zap.String("asset_id", assetID))
	return nil
}
