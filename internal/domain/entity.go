package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// contentHashLen is the number of hex characters of the payload hash
// used when deriving a ContentID fragment.
const contentHashLen = 16

// Entity is one extracted content entity, keyed by its ContentID.
// The payload is the raw entity document as extracted from the source
// file; the object store holds it verbatim.
type Entity struct {
	ID      string          `json:"id"`
	SiteURL string          `json:"site_url"`
	Payload json.RawMessage `json:"payload"`
}

// DeriveContentID returns a stable content address for an entity payload
// that carries no identifier of its own: the source file URL with a
// fragment derived from the payload hash. Payloads that already carry an
// "@id" or "url" field should use that value instead; this function is
// the fallback of last resort.
func DeriveContentID(fileURL string, payload json.RawMessage) string {
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%s#%s", fileURL, hex.EncodeToString(sum[:])[:contentHashLen])
}

// EntityIDs returns the ContentIDs of the given entities, preserving
// order and dropping duplicates (first occurrence wins).
func EntityIDs(entities []Entity) []string {
	seen := make(map[string]struct{}, len(entities))
	ids := make([]string, 0, len(entities))

	for i := range entities {
		id := entities[i].ID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	return ids
}
