// Package stores holds the engine's shared mutable state: the revocation
// denylist, the per-user session registry, durable token-set records, and the
// in-flight refresh gate. Redis (or miniredis in tests) backs everything
// except the gate, which is a per-process mutex-guarded map.
//
// Expiry is lazy: redis key TTLs retire denylist entries and token-set
// records without a sweep; the gate is swept by the engine's ticker.
package stores
