package fraud

import "sync"

// Blocklist is a concurrent-safe set of addresses that trigger the
// blocklist short-circuit in spec.md §4.2. Grounded on the teacher's
// AddressWatchlist (internal/heuristics/address_watchlist.go), which pairs
// a sync.RWMutex with a map[string]WatchedAddress for O(1) lookups;
// generalized here from a global singleton (GetGlobalAddressWatchlist) to
// an instance injected into each Analyzer, per spec.md §9's
// dependency-injection note.
type Blocklist struct {
	mu        sync.RWMutex
	addresses map[string]bool
}

func NewBlocklist() *Blocklist {
	return &Blocklist{addresses: make(map[string]bool)}
}

// Block adds an address to the blocklist.
func (b *Blocklist) Block(address string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addresses[address] = true
}

// Unblock removes an address from the blocklist.
func (b *Blocklist) Unblock(address string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.addresses, address)
}

// Contains reports whether the address is currently blocked.
func (b *Blocklist) Contains(address string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.addresses[address]
}
