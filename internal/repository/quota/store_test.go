package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/kbsearch/internal/db"
)

type mockStore struct {
	data      map[string][]byte
	counters  map[string]int64
	ttls      map[string]time.Duration
	getErr    error
	incrErr   error
	expireErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		data:     map[string][]byte{},
		counters: map[string]int64{},
		ttls:     map[string]time.Duration{},
	}
}

func (m *mockStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockStore) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	if m.incrErr != nil {
		return 0, m.incrErr
	}
	m.counters[key] += delta
	return m.counters[key], nil
}

func (m *mockStore) ExpireNX(_ context.Context, key string, ttl time.Duration) error {
	if m.expireErr != nil {
		return m.expireErr
	}
	if _, ok := m.ttls[key]; !ok {
		m.ttls[key] = ttl
	}
	return nil
}

func TestAdd_ReturnsTotalAndSetsTTLOnce(t *testing.T) {
	ms := newMockStore()
	s := New(ms)

	if _, err := s.Add(context.Background(), "k", 5, time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	total, err := s.Add(context.Background(), "k", 7, 2*time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 12 {
		t.Errorf("total = %d, want 12", total)
	}
	if ms.ttls["k"] != time.Hour {
		t.Errorf("ttl = %v, want first ttl kept", ms.ttls["k"])
	}
}

func TestAdd_NoTTL(t *testing.T) {
	ms := newMockStore()
	if _, err := New(ms).Add(context.Background(), "k", 1, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := ms.ttls["k"]; ok {
		t.Error("zero ttl must not set an expiry")
	}
}

func TestAdd_Errors(t *testing.T) {
	ms := newMockStore()
	ms.incrErr = errors.New("conn reset")
	if _, err := New(ms).Add(context.Background(), "k", 1, time.Hour); err == nil {
		t.Fatal("expected INCRBY error")
	}

	ms = newMockStore()
	ms.expireErr = errors.New("timeout")
	total, err := New(ms).Add(context.Background(), "k", 3, time.Hour)
	if err == nil {
		t.Fatal("expected EXPIRE error")
	}
	if total != 3 {
		t.Errorf("total = %d, want 3 even when EXPIRE fails", total)
	}
}

func TestGet(t *testing.T) {
	ms := newMockStore()
	ms.data["k"] = []byte("42")
	s := New(ms)

	v, err := s.Get(context.Background(), "k")
	if err != nil || v != 42 {
		t.Fatalf("Get = %d, %v", v, err)
	}

	v, err = s.Get(context.Background(), "missing")
	if err != nil || v != 0 {
		t.Fatalf("missing key: Get = %d, %v", v, err)
	}
}

func TestGet_Errors(t *testing.T) {
	ms := newMockStore()
	ms.data["k"] = []byte("not-a-number")
	if _, err := New(ms).Get(context.Background(), "k"); err == nil {
		t.Fatal("expected parse error")
	}

	ms = newMockStore()
	ms.getErr = errors.New("down")
	if _, err := New(ms).Get(context.Background(), "k"); err == nil {
		t.Fatal("expected store error")
	}
}
