package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classtrack/classtrack-api/internal/models"
	appErrors "github.com/classtrack/classtrack-api/pkg/errors"
)

type mockCacheRepo struct {
	store    map[string][]byte
	getErr   error
	lastTTL  time.Duration
	patterns []string
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{store: map[string][]byte{}}
}

func (m *mockCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.store[key] = raw
	m.lastTTL = ttl
	return nil
}

func (m *mockCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	m.patterns = append(m.patterns, pattern)
	return nil
}

func TestCacheServiceHitAndMiss(t *testing.T) {
	repo := newMockCacheRepo()
	svc := NewCacheService(repo, NewMetricsService(), time.Minute, nil, true)

	var out models.ClassStatistics
	hit, err := svc.Get(context.Background(), "class:c1:stats", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	stats := models.ClassStatistics{TotalStudents: 7, AttendancePercentage: 80}
	require.NoError(t, svc.Set(context.Background(), "class:c1:stats", stats, 0))
	// Zero TTL falls back to the configured default.
	assert.Equal(t, time.Minute, repo.lastTTL)

	hit, err = svc.Get(context.Background(), "class:c1:stats", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, stats, out)
}

func TestCacheServiceGetFailure(t *testing.T) {
	repo := newMockCacheRepo()
	repo.getErr = errors.New("connection refused")
	svc := NewCacheService(repo, NewMetricsService(), time.Minute, nil, true)

	var out models.ClassStatistics
	hit, err := svc.Get(context.Background(), "class:c1:stats", &out)
	assert.Error(t, err)
	assert.False(t, hit)
}

func TestCacheServiceInvalidate(t *testing.T) {
	repo := newMockCacheRepo()
	svc := NewCacheService(repo, NewMetricsService(), time.Minute, nil, true)

	require.NoError(t, svc.Invalidate(context.Background(), "class:c1:*"))
	assert.Equal(t, []string{"class:c1:*"}, repo.patterns)
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := newMockCacheRepo()
	repo.store["class:c1:stats"] = []byte(`{"totalStudents":7}`)
	svc := NewCacheService(repo, NewMetricsService(), time.Minute, nil, false)

	var out models.ClassStatistics
	hit, err := svc.Get(context.Background(), "class:c1:stats", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(context.Background(), "k", "v", 0))
	require.NoError(t, svc.Invalidate(context.Background(), "class:c1:*"))
	assert.Empty(t, repo.patterns)
}

// Callers hold a nil *CacheService when Redis is unavailable; every method
// must behave as a no-op.
func TestCacheServiceNilSafe(t *testing.T) {
	var svc *CacheService

	assert.False(t, svc.Enabled())
	hit, err := svc.Get(context.Background(), "k", nil)
	require.NoError(t, err)
	assert.False(t, hit)
	require.NoError(t, svc.Set(context.Background(), "k", "v", 0))
	require.NoError(t, svc.Invalidate(context.Background(), "k:*"))
}
