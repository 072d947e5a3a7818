package candidate

import "context"

// mockStore implements the consumer interface for tests.
type mockStore struct {
	zrevrangeFn    func(ctx context.Context, key string, start, stop int64) ([]string, error)
	hgetAllMultiFn func(ctx context.Context, keys []string) ([]map[string]string, error)
}

func (m *mockStore) ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	if m.zrevrangeFn != nil {
		return m.zrevrangeFn(ctx, key, start, stop)
	}
	return nil, nil
}

func (m *mockStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if m.hgetAllMultiFn != nil {
		return m.hgetAllMultiFn(ctx, keys)
	}
	return make([]map[string]string, len(keys)), nil
}
