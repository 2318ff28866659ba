package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"relicforge/internal/types"
)

// keyPayload is the canonical form hashed into a cache key. Field order is
// fixed by the struct; the context is already canonical JSON with sorted
// keys, so equal inputs always hash equal.
type keyPayload struct {
	RelicIDs []string        `json:"relic_ids"`
	Context  json.RawMessage `json:"context"`
	Version  string          `json:"version"`
}

// CacheKey derives the memoization key for a selection and context:
// sha256 over the canonical JSON of sorted relic ids, normalized context,
// and engine version. The canonical context JSON is returned as well so
// callers can snapshot it into cache entries without re-encoding.
func CacheKey(ids []string, cctx *types.CombatContext, version string) (string, json.RawMessage, error) {
	ctxJSON, err := cctx.CanonicalJSON()
	if err != nil {
		return "", nil, err
	}
	payload := keyPayload{
		RelicIDs: sortedIDs(ids),
		Context:  ctxJSON,
		Version:  version,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", nil, types.Internal("encode cache key payload", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), ctxJSON, nil
}
