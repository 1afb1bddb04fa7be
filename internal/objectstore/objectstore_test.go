package objectstore

import (
	"strings"
	"testing"
)

func TestObjectKey(t *testing.T) {
	t.Parallel()

	key := ObjectKey("https://www.example.com/", "https://example.com/items/1")

	if !strings.HasPrefix(key, "example.com/") {
		t.Errorf("ObjectKey() = %q, want normalized site prefix", key)
	}
	if !strings.HasSuffix(key, ".json") {
		t.Errorf("ObjectKey() = %q, want .json suffix", key)
	}

	// Stable for the same ID, distinct for different IDs.
	if again := ObjectKey("example.com", "https://example.com/items/1"); again != key {
		t.Errorf("ObjectKey() not stable across site URL spellings: %q != %q", again, key)
	}
	if other := ObjectKey("example.com", "https://example.com/items/2"); other == key {
		t.Error("ObjectKey() collided for distinct content IDs")
	}
}
