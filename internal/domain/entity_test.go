package domain

import (
	"strings"
	"testing"
)

func TestDeriveContentID(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"name":"Widget"}`)
	id := DeriveContentID("https://example.com/feed.json", payload)

	if !strings.HasPrefix(id, "https://example.com/feed.json#") {
		t.Fatalf("DeriveContentID() = %q, want file URL prefix", id)
	}
	fragment := strings.TrimPrefix(id, "https://example.com/feed.json#")
	if len(fragment) != contentHashLen {
		t.Errorf("fragment length = %d, want %d", len(fragment), contentHashLen)
	}

	// Same payload, same ID.
	if again := DeriveContentID("https://example.com/feed.json", payload); again != id {
		t.Errorf("DeriveContentID() not stable: %q != %q", again, id)
	}

	// Different payload, different ID.
	other := DeriveContentID("https://example.com/feed.json", []byte(`{"name":"Gadget"}`))
	if other == id {
		t.Error("DeriveContentID() collided for distinct payloads")
	}

	// Same payload in a different file is a different ID: the content
	// address is scoped to the source file.
	elsewhere := DeriveContentID("https://example.com/other.json", payload)
	if elsewhere == id {
		t.Error("DeriveContentID() collided across files")
	}
}

func TestEntityIDs(t *testing.T) {
	t.Parallel()

	entities := []Entity{
		{ID: "a"},
		{ID: "b"},
		{ID: "a"},
		{ID: "c"},
	}

	ids := EntityIDs(entities)
	want := []string{"a", "b", "c"}
	if len(ids) != len(want) {
		t.Fatalf("EntityIDs() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("EntityIDs()[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestJobValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		job     Job
		wantErr bool
	}{
		{
			name: "valid ingest",
			job:  Job{Type: JobTypeIngestFile, SiteURL: "example.com", FileURL: "https://example.com/feed.json"},
		},
		{
			name: "valid removal",
			job:  Job{Type: JobTypeRemoveFile, SiteURL: "example.com", FileURL: "https://example.com/feed.json"},
		},
		{
			name:    "unknown type",
			job:     Job{Type: "compact", SiteURL: "example.com", FileURL: "https://example.com/feed.json"},
			wantErr: true,
		},
		{
			name:    "missing file url",
			job:     Job{Type: JobTypeIngestFile, SiteURL: "example.com"},
			wantErr: true,
		},
		{
			name:    "missing site",
			job:     Job{Type: JobTypeIngestFile, FileURL: "https://example.com/feed.json"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.job.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
