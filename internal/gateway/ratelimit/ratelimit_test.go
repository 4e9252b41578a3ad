package ratelimit_test

import (
	"testing"
	"time"

	"github.com/Aryannovice/metamorphosis/internal/gateway/ratelimit"
)

func TestLimiter_AllowsUpToLimit(t *testing.T) {
	const limit = 5
	rl := ratelimit.New(limit, time.Minute)

	for i := 0; i < limit; i++ {
		allowed, retry := rl.IsAllowed("10.0.0.1")
		if !allowed || retry != 0 {
			t.Fatalf("call %d/%d: IsAllowed = (%v, %d), want (true, 0)", i+1, limit, allowed, retry)
		}
		rl.Record("10.0.0.1")
	}
}

func TestLimiter_RejectsWhenLimitExceeded(t *testing.T) {
	const limit = 3
	rl := ratelimit.New(limit, time.Minute)

	for i := 0; i < limit; i++ {
		rl.Record("10.0.0.2")
	}

	allowed, retry := rl.IsAllowed("10.0.0.2")
	if allowed {
		t.Error("IsAllowed returned true after limit was exhausted; expected false")
	}
	if retry < 1 || retry > 60 {
		t.Errorf("retry hint = %d, want within [1, 60]", retry)
	}
}

func TestLimiter_ChecksDoNotConsumeQuota(t *testing.T) {
	const limit = 2
	rl := ratelimit.New(limit, time.Minute)

	// Probing admission many times must not count against the quota.
	for i := 0; i < 10; i++ {
		if allowed, _ := rl.IsAllowed("10.0.0.3"); !allowed {
			t.Fatalf("check %d consumed quota: only Record should count", i+1)
		}
	}

	rl.Record("10.0.0.3")
	rl.Record("10.0.0.3")
	if allowed, _ := rl.IsAllowed("10.0.0.3"); allowed {
		t.Error("client should be saturated after limit recordings")
	}
}

func TestLimiter_RejectionsDoNotExtendPenalty(t *testing.T) {
	const limit = 2
	window := 50 * time.Millisecond
	rl := ratelimit.New(limit, window)

	rl.Record("10.0.0.4")
	rl.Record("10.0.0.4")

	// Hammer while saturated: none of these should push recovery out.
	for i := 0; i < 10; i++ {
		rl.IsAllowed("10.0.0.4")
	}

	time.Sleep(window + 10*time.Millisecond)

	if allowed, _ := rl.IsAllowed("10.0.0.4"); !allowed {
		t.Error("client should recover once the original window expires, regardless of rejected attempts")
	}
}

func TestLimiter_IndependentPerClient(t *testing.T) {
	const limit = 2
	rl := ratelimit.New(limit, time.Minute)

	rl.Record("10.0.0.5")
	rl.Record("10.0.0.5")
	if allowed, _ := rl.IsAllowed("10.0.0.5"); allowed {
		t.Error("first client should be rate-limited")
	}

	if allowed, _ := rl.IsAllowed("10.0.0.6"); !allowed {
		t.Error("second client should not be rate-limited (independent quota)")
	}
}

func TestLimiter_WindowExpiry(t *testing.T) {
	const limit = 1
	window := 50 * time.Millisecond
	rl := ratelimit.New(limit, window)

	rl.Record("10.0.0.7")
	if allowed, _ := rl.IsAllowed("10.0.0.7"); allowed {
		t.Fatal("second request within window should be rejected")
	}

	time.Sleep(window + 10*time.Millisecond)

	if allowed, _ := rl.IsAllowed("10.0.0.7"); !allowed {
		t.Error("request after window expiry should be allowed again")
	}
}

func TestLimiter_Defaults(t *testing.T) {
	rl := ratelimit.New(0, 0)

	for i := 0; i < ratelimit.DefaultMaxRequests; i++ {
		if allowed, _ := rl.IsAllowed("10.0.0.8"); !allowed {
			t.Fatalf("IsAllowed returned false on call %d (default limit %d)", i+1, ratelimit.DefaultMaxRequests)
		}
		rl.Record("10.0.0.8")
	}
	if allowed, _ := rl.IsAllowed("10.0.0.8"); allowed {
		t.Errorf("IsAllowed returned true after default limit (%d) was exhausted", ratelimit.DefaultMaxRequests)
	}
}

func TestLimiter_Remaining(t *testing.T) {
	const limit = 5
	rl := ratelimit.New(limit, time.Minute)

	if got := rl.Remaining("10.0.0.9"); got != limit {
		t.Errorf("Remaining before any requests: got %d, want %d", got, limit)
	}

	rl.Record("10.0.0.9")
	rl.Record("10.0.0.9")

	if got := rl.Remaining("10.0.0.9"); got != limit-2 {
		t.Errorf("Remaining after 2 requests: got %d, want %d", got, limit-2)
	}
}

func TestLimiter_RetryHint(t *testing.T) {
	const limit = 2
	rl := ratelimit.New(limit, time.Minute)

	rl.Record("10.0.0.10")
	rl.Record("10.0.0.10")

	allowed, retry := rl.IsAllowed("10.0.0.10")
	if allowed {
		t.Fatal("client should be saturated")
	}
	// Both recordings happened just now, so almost the whole window remains.
	if retry < 59 || retry > 60 {
		t.Errorf("retry hint = %d, want 59 or 60 for a just-saturated minute window", retry)
	}
}

func TestLimiter_ConcurrentSafety(t *testing.T) {
	// Hammer the limiter from multiple goroutines to detect data races when
	// run with -race.
	const limit = 100
	rl := ratelimit.New(limit, time.Minute)

	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func() {
			for j := 0; j < 20; j++ {
				if allowed, _ := rl.IsAllowed("shared"); allowed {
					rl.Record("shared")
				}
				rl.Remaining("shared")
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 20; i++ {
		<-done
	}
}
