package ledger

import (
	"sort"
	"strconv"
	"sync"
)

// keyLock hands out one mutex per aggregate key. Entries are dropped once no
// goroutine holds or waits for them.
type keyLock struct {
	mu    sync.Mutex
	locks map[string]*keyEntry
}

type keyEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[string]*keyEntry)}
}

func donationKey(id int64) string { return "donation:" + strconv.FormatInt(id, 10) }
func projectKey(id int64) string  { return "project:" + strconv.FormatInt(id, 10) }

// lock acquires every key in a fixed order and returns the release func.
// Donation keys sort before project keys.
func (k *keyLock) lock(keys ...string) func() {
	keys = dedupe(keys)
	sort.Strings(keys)
	held := make([]*keyEntry, 0, len(keys))
	for _, key := range keys {
		k.mu.Lock()
		e, ok := k.locks[key]
		if !ok {
			e = &keyEntry{}
			k.locks[key] = e
		}
		e.refs++
		k.mu.Unlock()

		e.mu.Lock()
		held = append(held, e)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			k.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(k.locks, keys[i])
			}
			k.mu.Unlock()
		}
	}
}

func (k *keyLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func dedupe(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out
}
