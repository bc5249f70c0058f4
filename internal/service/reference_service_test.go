package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ops-audit-api/pkg/audittrail"
	appErrors "github.com/noah-isme/ops-audit-api/pkg/errors"
	"github.com/noah-isme/ops-audit-api/pkg/jobs"
)

func ptrID(v int64) *int64 { return &v }

func ptrStr(v string) *string { return &v }

type stubReferenceStore struct {
	mu    sync.Mutex
	lists map[audittrail.Domain][]audittrail.ReferenceItem
	err   map[audittrail.Domain]error
	calls map[audittrail.Domain]int
}

func newStubReferenceStore() *stubReferenceStore {
	return &stubReferenceStore{
		lists: map[audittrail.Domain][]audittrail.ReferenceItem{
			audittrail.DomainUser:   {{ID: ptrID(7), FullName: ptrStr("Omar Hassan")}},
			audittrail.DomainClient: {{ID: ptrID(3), Name: ptrStr("Acme Logistics")}},
			audittrail.DomainHub:    {{ID: ptrID(4), Name: ptrStr("Maadi Hub")}},
		},
		err:   map[audittrail.Domain]error{},
		calls: map[audittrail.Domain]int{},
	}
}

func (s *stubReferenceStore) List(_ context.Context, domain audittrail.Domain) ([]audittrail.ReferenceItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[domain]++
	if err := s.err[domain]; err != nil {
		return nil, err
	}
	return s.lists[domain], nil
}

func (s *stubReferenceStore) set(domain audittrail.Domain, items []audittrail.ReferenceItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[domain] = items
}

func (s *stubReferenceStore) fail(domain audittrail.Domain, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err[domain] = err
}

func (s *stubReferenceStore) callCount(domain audittrail.Domain) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[domain]
}

func TestReferenceServiceRefreshPublishesDirectory(t *testing.T) {
	store := newStubReferenceStore()
	svc := NewReferenceService(store, nil, NewMetricsService(), nil, ReferenceServiceConfig{})

	_, ok := svc.RefreshedAt()
	require.False(t, ok)

	outcome, err := svc.Refresh(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, RefreshRebuilt, outcome)

	label, ok := svc.Directory().Lookup(audittrail.DomainUser, 7)
	require.True(t, ok)
	assert.Equal(t, "Omar Hassan", label)

	summary := svc.Summary()
	assert.Equal(t, map[audittrail.Domain]int{
		audittrail.DomainUser: 1, audittrail.DomainClient: 1, audittrail.DomainHub: 1, audittrail.DomainZone: 0,
	}, summary.Sizes)
	assert.NotEmpty(t, summary.Fingerprint)
	require.NotNil(t, summary.RefreshedAt)
	assert.Empty(t, summary.LastError)
}

func TestReferenceServiceSkipsUnchangedLists(t *testing.T) {
	store := newStubReferenceStore()
	svc := NewReferenceService(store, nil, nil, nil, ReferenceServiceConfig{})

	_, err := svc.Refresh(context.Background(), false)
	require.NoError(t, err)
	first := svc.Directory()

	outcome, err := svc.Refresh(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, RefreshUnchanged, outcome)
	assert.Same(t, first, svc.Directory())

	outcome, err = svc.Refresh(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, RefreshRebuilt, outcome)
	assert.NotSame(t, first, svc.Directory())

	store.set(audittrail.DomainZone, []audittrail.ReferenceItem{{ID: ptrID(5), Name: ptrStr("South")}})
	outcome, err = svc.Refresh(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, RefreshRebuilt, outcome)
	label, ok := svc.Directory().Lookup(audittrail.DomainZone, 5)
	require.True(t, ok)
	assert.Equal(t, "South", label)
}

func TestReferenceServiceFailureKeepsPreviousDirectory(t *testing.T) {
	store := newStubReferenceStore()
	svc := NewReferenceService(store, nil, nil, nil, ReferenceServiceConfig{})
	_, err := svc.Refresh(context.Background(), false)
	require.NoError(t, err)

	store.fail(audittrail.DomainHub, errors.New("hubs table locked"))
	outcome, err := svc.Refresh(context.Background(), false)
	require.Error(t, err)
	assert.Equal(t, RefreshFailed, outcome)
	assert.Equal(t, appErrors.ErrUnavailable.Code, appErrors.FromError(err).Code)

	label, ok := svc.Directory().Lookup(audittrail.DomainHub, 4)
	require.True(t, ok)
	assert.Equal(t, "Maadi Hub", label)
	assert.Contains(t, svc.Summary().LastError, "hubs table locked")
}

func TestReferenceServiceServesListsFromCache(t *testing.T) {
	store := newStubReferenceStore()
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, nil, time.Minute, nil, true)
	svc := NewReferenceService(store, cache, nil, nil, ReferenceServiceConfig{CachePrefix: "refs"})

	_, err := svc.Refresh(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, 1, store.callCount(audittrail.DomainUser))
	assert.True(t, repo.has("refs:user"))

	store.set(audittrail.DomainUser, []audittrail.ReferenceItem{{ID: ptrID(7), FullName: ptrStr("Renamed")}})
	outcome, err := svc.Refresh(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, RefreshUnchanged, outcome, "cached lists hide the rename until the entry expires")
	assert.Equal(t, 1, store.callCount(audittrail.DomainUser))

	outcome, err = svc.Refresh(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, RefreshRebuilt, outcome)
	assert.Equal(t, 2, store.callCount(audittrail.DomainUser))
	label, _ := svc.Directory().Lookup(audittrail.DomainUser, 7)
	assert.Equal(t, "Renamed", label)
}

func TestReferenceServiceHandleRefreshJob(t *testing.T) {
	svc := NewReferenceService(newStubReferenceStore(), nil, nil, nil, ReferenceServiceConfig{})

	require.NoError(t, svc.HandleRefreshJob(context.Background(), NewRefreshJob(true)))
	_, ok := svc.RefreshedAt()
	assert.True(t, ok)

	require.Error(t, svc.HandleRefreshJob(context.Background(), jobs.Job{Type: "report"}))
}

func TestNewRefreshJob(t *testing.T) {
	job := NewRefreshJob(true)
	assert.Equal(t, RefreshJobType, job.Type)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, RefreshRequest{Force: true}, job.Payload)
}

func TestFingerprintDistinguishesNilFromEmpty(t *testing.T) {
	withNil := map[audittrail.Domain][]audittrail.ReferenceItem{
		audittrail.DomainUser: {{ID: ptrID(1), Name: ptrStr("a")}},
	}
	withEmpty := map[audittrail.Domain][]audittrail.ReferenceItem{
		audittrail.DomainUser: {{ID: ptrID(1), Name: ptrStr("a"), FullName: ptrStr("")}},
	}
	assert.NotEqual(t, fingerprint(withNil), fingerprint(withEmpty))
	assert.Equal(t, fingerprint(withNil), fingerprint(withNil))
	assert.NotEqual(t, fingerprint(nil), fingerprint(withNil))
}

type memoryCacheRepo struct {
	mu      sync.Mutex
	entries map[string][]byte
	pingErr error
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: map[string][]byte{}}
}

func (m *memoryCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	raw, ok := m.entries[key]
	m.mu.Unlock()
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

func (m *memoryCacheRepo) Ping(context.Context) error { return m.pingErr }

func (m *memoryCacheRepo) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}
