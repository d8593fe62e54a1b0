package acmeconn

import "sync"

// NonceBox holds the single cached replay-nonce a Session shares across
// every Connection built from it (spec.md §5). The mutex guards only the
// read and write of the nonce field; it is not held across a request.
// Because Take empties the box, a concurrent signed request that finds it
// empty fetches its own fresh nonce from newNonce instead of reusing one.
type NonceBox struct {
	mu    sync.Mutex
	value string
}

// Take removes and returns the cached nonce, if any. Signed requests call
// this first so a nonce is never reused across two concurrent requests.
func (b *NonceBox) Take() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.value == "" {
		return "", false
	}
	v := b.value
	b.value = ""
	return v, true
}

// Set stores the most recently observed Replay-Nonce header value.
func (b *NonceBox) Set(nonce string) {
	if nonce == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.value = nonce
}
