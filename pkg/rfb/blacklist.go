package rfb

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Blacklist tracks failed-authentication counts per peer address and
// decides whether a new connection from that address should be
// short-circuit rejected. Marks decay on their own: a TTL cache backs
// the counters so a peer that stops misbehaving is eventually forgotten
// without the coordinator needing its own sweep timer.
type Blacklist struct {
	counts *gocache.Cache

	// Threshold is the number of failures within the TTL window before
	// IsBlackmarked starts returning true.
	Threshold int
}

// DefaultBlacklistTTL is how long a failure contributes to a peer's
// count before expiring, mirroring the "too many security failures in
// a short window" policy the reject banner text describes.
const DefaultBlacklistTTL = 10 * time.Minute

// NewBlacklist builds a Blacklist with the given failure threshold.
func NewBlacklist(threshold int) *Blacklist {
	if threshold <= 0 {
		threshold = 5
	}
	return &Blacklist{
		counts:    gocache.New(DefaultBlacklistTTL, DefaultBlacklistTTL/2),
		Threshold: threshold,
	}
}

// RecordFailure registers an authentication failure from address. The
// first failure starts the entry's TTL; later failures raise the count
// without extending it.
func (b *Blacklist) RecordFailure(address string) {
	if err := b.counts.Increment(address, 1); err != nil {
		// Not present yet.
		b.counts.SetDefault(address, 1)
	}
}

// IsBlackmarked reports whether address has accumulated enough recent
// failures to be rejected outright.
func (b *Blacklist) IsBlackmarked(address string) bool {
	v, found := b.counts.Get(address)
	if !found {
		return false
	}
	count, ok := v.(int)
	if !ok {
		return false
	}
	return count >= b.Threshold
}

// ClearBlackmark removes every recorded failure for address, e.g. after
// a successful authentication.
func (b *Blacklist) ClearBlackmark(address string) {
	b.counts.Delete(address)
}
