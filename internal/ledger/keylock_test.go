package ledger

import (
	"sync"
	"testing"
)

func TestKeyLockSerializesSameKey(t *testing.T) {
	kl := newKeyLock()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := kl.lock(donationKey(1), projectKey(7))
			v := counter
			v++
			counter = v
			release()
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Fatalf("counter = %d, want 50", counter)
	}
	if kl.size() != 0 {
		t.Fatalf("expected lock table to drain, %d entries left", kl.size())
	}
}

func TestKeyLockOverlappingKeysInAnyOrder(t *testing.T) {
	kl := newKeyLock()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			kl.lock(donationKey(1), projectKey(2))()
		}()
		go func() {
			defer wg.Done()
			kl.lock(projectKey(2), donationKey(1), donationKey(1))()
		}()
	}
	wg.Wait()
}
