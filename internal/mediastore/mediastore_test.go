package mediastore

import (
	"context"
	"strings"
	"testing"
)

func TestRandomObjectKey(t *testing.T) {
	key := RandomObjectKey("wav")
	if !strings.HasPrefix(key, "audio/") {
		t.Fatalf("key = %q, want audio/ prefix", key)
	}
	if !strings.HasSuffix(key, ".wav") {
		t.Fatalf("key = %q, want .wav suffix", key)
	}
	// audio/yyyy/mm/dd/<uuid>.<ext>
	if parts := strings.Split(key, "/"); len(parts) != 5 {
		t.Fatalf("key = %q, want 5 path segments", key)
	}

	if key == RandomObjectKey("wav") {
		t.Fatalf("two keys collided")
	}

	if !strings.HasSuffix(RandomObjectKey(""), ".bin") {
		t.Fatalf("empty extension did not default to .bin")
	}
}

func TestMemoryUploader(t *testing.T) {
	up := NewMemoryUploader()

	url, err := up.UploadAudio(context.Background(), []byte("payload"), "audio/wav")
	if err != nil {
		t.Fatalf("UploadAudio: %v", err)
	}
	if !strings.HasPrefix(url, "memory://audio/") {
		t.Fatalf("url = %q", url)
	}
	if up.Stored() != 1 {
		t.Fatalf("Stored = %d, want 1", up.Stored())
	}

	if _, err := up.UploadAudio(context.Background(), nil, "audio/wav"); err != nil {
		t.Fatalf("UploadAudio empty payload: %v", err)
	}
	if up.Stored() != 2 {
		t.Fatalf("Stored = %d, want 2", up.Stored())
	}
}
