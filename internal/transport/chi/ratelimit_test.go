package chi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func nopLogger() *zap.Logger { return zap.NewNop() }

func TestRateLimiter_BurstThenReject(t *testing.T) {
	rl, stop := NewRateLimiter(1, 2, nopLogger())
	defer stop()

	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("ip:1.2.3.4") || !rl.Allow("ip:1.2.3.4") {
		t.Fatal("burst of 2 should be allowed")
	}
	if rl.Allow("ip:1.2.3.4") {
		t.Fatal("third request within the same instant should be rejected")
	}
	if !rl.Allow("ip:5.6.7.8") {
		t.Fatal("other clients have their own bucket")
	}

	now = now.Add(time.Second)
	if !rl.Allow("ip:1.2.3.4") {
		t.Fatal("bucket should refill after one second")
	}
}

func TestRateLimiter_Evict(t *testing.T) {
	rl, stop := NewRateLimiter(10, 10, nopLogger())
	defer stop()

	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	rl.Allow("ip:old")
	now = now.Add(4 * time.Minute)
	rl.Allow("ip:fresh")
	now = now.Add(2 * time.Minute)

	rl.evict()
	if rl.Len() != 1 {
		t.Fatalf("Len = %d, want 1", rl.Len())
	}
	if !rl.Allow("ip:fresh") {
		t.Error("fresh client should be kept")
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	_, stop := NewRateLimiter(1, 1, nopLogger())
	stop()
	stop()
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl, stop := NewRateLimiter(0.5, 1, nopLogger())
	defer stop()
	h := rl.Middleware(okHandler())

	first := do(t, h, "/v1/kb/docs/public/search")
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d", first.Code)
	}

	second := do(t, h, "/v1/kb/docs/public/search")
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", second.Code)
	}
	if got := second.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q, want 2", got)
	}
	if resp := decode[ErrorResponse](t, second); resp.Code != ErrorResponseCodeRateLimited {
		t.Errorf("code = %q", resp.Code)
	}

	if rr := do(t, h, "/health"); rr.Code != http.StatusOK {
		t.Errorf("health must bypass the limiter, got %d", rr.Code)
	}
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = "10.0.0.7:5555"
	if got := clientKey(req); got != "ip:10.0.0.7" {
		t.Errorf("clientKey = %q", got)
	}

	req.Header.Set("Authorization", "Bearer sk-abcdef")
	if got := clientKey(req); got != "key:sk-abcdef" {
		t.Errorf("clientKey = %q", got)
	}
}

func TestRedactClient(t *testing.T) {
	tests := map[string]string{
		"key:sk-abcdef": "key:sk-a...",
		"key:ab":        "key:ab...",
		"ip:10.0.0.7":   "ip:10.0.0.7",
	}
	for in, want := range tests {
		if got := redactClient(in); got != want {
			t.Errorf("redactClient(%q) = %q, want %q", in, got, want)
		}
	}
}
