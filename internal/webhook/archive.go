package webhook

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"leadflow_backend/internal/adapters/storage"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

// Archive copies raw webhook bodies to object storage. A nil *Archive is a no-op.
type Archive struct {
	store  storage.StorageService
	bucket string
	log    *logger.Logger
}

// NewArchive returns nil when store is nil so callers can skip the nil check.
func NewArchive(store storage.StorageService, bucket string, log *logger.Logger) *Archive {
	if store == nil {
		return nil
	}
	return &Archive{store: store, bucket: bucket, log: log}
}

// ObjectKey is <source>/<yyyy-mm-dd>/<event id>.json.
func ObjectKey(sourceKey string, receivedAt time.Time, eventID uuid.UUID) string {
	return fmt.Sprintf("%s/%s/%s.json", sourceKey, receivedAt.UTC().Format("2006-01-02"), eventID)
}

// Save stores body. Failures are logged and never returned.
func (a *Archive) Save(ctx context.Context, sourceKey string, receivedAt time.Time, eventID uuid.UUID, body []byte) {
	if a == nil {
		return
	}
	key := ObjectKey(sourceKey, receivedAt, eventID)
	if err := a.store.PutObject(ctx, a.bucket, key, "application/json", bytes.NewReader(body), int64(len(body))); err != nil {
		a.log.Warn("webhook: failed to archive raw payload", "source", sourceKey, "key", key, "error", err)
	}
}
