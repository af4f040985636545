package locker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLocalAcquireAndRelease(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "slot:a", 50*time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	if _, err := l.Acquire(ctx, "slot:a", 20*time.Millisecond, time.Second); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired while held, got %v", err)
	}

	release()
	release2, err := l.Acquire(ctx, "slot:a", 20*time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
	release2()
}

func TestLocalIndependentKeys(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	r1, err := l.Acquire(ctx, "slot:a", 10*time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	defer r1()

	r2, err := l.Acquire(ctx, "slot:b", 10*time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("unrelated key should not contend: %v", err)
	}
	r2()
}

func TestLocalTTLExpiryEvictsHolder(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	if _, err := l.Acquire(ctx, "slot:a", 10*time.Millisecond, 20*time.Millisecond); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// Holder never releases; TTL must free the key.
	release, err := l.Acquire(ctx, "slot:a", 200*time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("expected acquisition after ttl expiry, got %v", err)
	}
	release()
}

func TestLocalReleaseIdempotent(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "slot:a", 10*time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	release()
	release() // second call must be a no-op

	r2, err := l.Acquire(ctx, "slot:a", 10*time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("acquire after double release: %v", err)
	}
	r2()
}

func TestLocalMutualExclusionUnderContention(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	var mu sync.Mutex
	var inSection int
	var maxInSection int

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, "slot:x", time.Second, time.Second)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			mu.Lock()
			inSection++
			if inSection > maxInSection {
				maxInSection = inSection
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			inSection--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if maxInSection != 1 {
		t.Fatalf("critical section breached: %d concurrent holders", maxInSection)
	}
}
