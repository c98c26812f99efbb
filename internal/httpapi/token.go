package httpapi

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/rosteleset/falprs-go/internal/cache"
)

// SGroupCacheAuth adapts *cache.SpecialGroupCache to the SGroupAuth
// interface the router needs (the cache is keyed by token -> full group
// config; the router only needs the two resolved ids).
type SGroupCacheAuth struct {
	Cache *cache.SpecialGroupCache
}

func (a SGroupCacheAuth) ByTokenIDs(token string) (idGroup, idSGroup int32, ok bool) {
	sg, ok := a.Cache.ByToken(token)
	if !ok {
		return 0, 0, false
	}
	return sg.IDGroup, sg.IDSpecialGroup, true
}

// NoSGroupAuth rejects every sg-namespace request; used by services (LPRS)
// that have no special-group concept at all.
type NoSGroupAuth struct{}

func (NoSGroupAuth) ByTokenIDs(string) (int32, int32, bool) { return 0, 0, false }

// newRandomHex mints an n-byte crypto/rand token rendered as hex, the same
// fixed-size-buffer-then-rand.Read shape the teacher uses for nonce
// generation (infrastructure/crypto/envelope.go), reused here for sg API
// tokens since both are "opaque random credential" problems.
func newRandomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand failing means the OS entropy source is broken
	}
	return hex.EncodeToString(buf)
}
