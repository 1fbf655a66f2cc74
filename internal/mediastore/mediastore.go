// Package mediastore uploads learner audio to the external media host and
// hands back durable URLs for persistence.
package mediastore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Uploader stores an audio payload and returns a URL that stays valid for
// history listings.
type Uploader interface {
	UploadAudio(ctx context.Context, data []byte, contentType string) (string, error)
}

// RandomObjectKey builds a date-partitioned key so buckets stay browsable.
func RandomObjectKey(ext string) string {
	d := time.Now().UTC()
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("audio/%d/%02d/%02d/%s.%s", d.Year(), d.Month(), d.Day(), uuid.NewString(), ext)
}

// MemoryUploader keeps payloads in-process. Used in dev mode (no S3
// credentials configured) and in tests.
type MemoryUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemoryUploader() *MemoryUploader {
	return &MemoryUploader{objects: make(map[string][]byte)}
}

func (u *MemoryUploader) UploadAudio(_ context.Context, data []byte, _ string) (string, error) {
	key := RandomObjectKey("bin")
	u.mu.Lock()
	defer u.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	u.objects[key] = buf
	return "memory://" + key, nil
}

// Stored reports how many payloads the uploader holds.
func (u *MemoryUploader) Stored() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.objects)
}
