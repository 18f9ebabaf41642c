package resolver

import (
	"time"

	"trustcore/pkg/did"
)

// DistCache is the optional distributed cache tier behind the same
// contract as the in-memory Cache: exact-DID keys, explicit per-entry
// TTL, identical positive/negative semantics (spec §4.5).
type DistCache interface {
	Get(didStr string) (*did.ResolutionResult, bool, error)
	Set(didStr string, result *did.ResolutionResult, ttl time.Duration) error
}
