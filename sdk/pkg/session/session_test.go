package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ChenBigdata421/jxt-progress/sdk/config"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/notify"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/progress"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/tenant/directory"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/tenant/pool"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/tenant/tenanttest"
)

var t1 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu      sync.Mutex
	updates []notify.ProgressUpdate
}

func (p *recordingPublisher) Publish(_ context.Context, u notify.ProgressUpdate) error {
	p.mu.Lock()
	p.updates = append(p.updates, u)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type recordingObserver struct {
	mu       sync.Mutex
	binds    []error
	outcomes []progress.Outcome
}

func (o *recordingObserver) SessionBound(_ string, err error) {
	o.mu.Lock()
	o.binds = append(o.binds, err)
	o.mu.Unlock()
}

func (o *recordingObserver) UpdateProcessed(_ string, outcome progress.Outcome, err error) {
	o.mu.Lock()
	if err == nil {
		o.outcomes = append(o.outcomes, outcome)
	}
	o.mu.Unlock()
}

type fixture struct {
	dir       *gorm.DB
	tenant    *gorm.DB
	cache     *pool.Cache
	registry  *Registry
	publisher *recordingPublisher
	observer  *recordingObserver
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	tenant, blob := tenanttest.NewTenant(t)
	dir := tenanttest.NewDirectory(t, map[string]string{"school-a": blob})

	cache := pool.New(directory.NewClient(dir, nil),
		pool.WithDialector(tenanttest.Dialector),
		pool.WithPoolSettings(&config.Tenants{MaxOpenConns: 2, LeaseTimeout: 200 * time.Millisecond}))
	t.Cleanup(func() { _ = cache.Close() })

	f := &fixture{
		dir:       dir,
		tenant:    tenant,
		cache:     cache,
		publisher: &recordingPublisher{},
		observer:  &recordingObserver{},
	}
	all := append([]Option{WithPublisher(f.publisher), WithObserver(f.observer)}, opts...)
	f.registry = NewRegistry(cache, progress.NewProcessor(), all...)
	return f
}

func (f *fixture) leased(t *testing.T) int64 {
	t.Helper()
	p, ok := f.cache.Pool("school-a")
	require.True(t, ok)
	return p.Leased()
}

func event(module string, ts time.Time, current float64) progress.Event {
	return progress.Event{ModuleID: module, Timestamp: ts, CurrentProgress: current}
}

func TestSession_TracksTimeBetweenUpdates(t *testing.T) {
	f := newFixture(t)
	tenanttest.SeedProgress(t, f.tenant, "42", "m1", 0, 100)
	ctx := context.Background()

	s := f.registry.Open()
	assert.Equal(t, StateUnbound, s.State())
	require.NoError(t, s.Bind(ctx, "school-a", "42"))
	assert.Equal(t, StateBound, s.State())

	res, err := s.Update(ctx, event("m1", t1, 10))
	require.NoError(t, err)
	assert.Equal(t, progress.OutcomeApplied, res.Outcome)
	assert.Equal(t, StateTracking, s.State())
	current, spent := tenanttest.Progress(t, f.tenant, "42", "m1")
	assert.Equal(t, 10.0, current)
	assert.Equal(t, 100.0, spent, "first update in a session accounts no time")

	_, err = s.Update(ctx, event("m1", t1.Add(5*time.Second), 20))
	require.NoError(t, err)
	current, spent = tenanttest.Progress(t, f.tenant, "42", "m1")
	assert.Equal(t, 20.0, current)
	assert.Equal(t, 105.0, spent)

	last, ok := s.LastTimestamp()
	require.True(t, ok)
	assert.True(t, last.Equal(t1.Add(5*time.Second)))

	require.Len(t, f.publisher.updates, 2)
	assert.False(t, f.publisher.updates[0].TimeAccounted)
	assert.Equal(t, notify.ProgressUpdate{
		Domain: "school-a", User: "42", ModuleID: "m1",
		CurrentProgress: 20, DeltaSeconds: 5, TimeAccounted: true, Timestamp: t1.Add(5 * time.Second),
	}, f.publisher.updates[1])
}

func TestSession_UnknownDomainIsInert(t *testing.T) {
	f := newFixture(t)
	tenanttest.SeedProgress(t, f.tenant, "42", "m1", 0, 100)
	ctx := context.Background()

	s := f.registry.Open()
	err := s.Bind(ctx, "school-z", "42")
	assert.ErrorIs(t, err, pool.ErrTenantUnknown)
	assert.Equal(t, StateUnbound, s.State())
	assert.Equal(t, 0, f.cache.Len(), "no pool for an unknown domain")

	_, err = s.Update(ctx, event("m1", t1, 50))
	assert.ErrorIs(t, err, ErrNotBound)
	current, spent := tenanttest.Progress(t, f.tenant, "42", "m1")
	assert.Equal(t, 0.0, current)
	assert.Equal(t, 100.0, spent)
	assert.Empty(t, f.publisher.updates)
}

func TestSession_DirectoryUnavailable(t *testing.T) {
	f := newFixture(t)
	sqlDB, err := f.dir.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	s := f.registry.Open()
	err = s.Bind(context.Background(), "school-a", "42")
	assert.ErrorIs(t, err, directory.ErrDirectoryUnavailable)
	assert.Equal(t, StateUnbound, s.State())
	require.Len(t, f.observer.binds, 1)
	assert.Error(t, f.observer.binds[0])
}

func TestSession_SkippedUpdateAdvancesTimestamp(t *testing.T) {
	f := newFixture(t)
	tenanttest.SeedProgress(t, f.tenant, "42", "m1", 0, 100)
	tenanttest.SeedModule(t, f.tenant, "m2")
	ctx := context.Background()

	s := f.registry.Open()
	require.NoError(t, s.Bind(ctx, "school-a", "42"))

	res, err := s.Update(ctx, event("m2", t1, 30))
	require.NoError(t, err)
	assert.Equal(t, progress.OutcomeSkipped, res.Outcome)
	last, ok := s.LastTimestamp()
	require.True(t, ok)
	assert.True(t, last.Equal(t1))

	_, err = s.Update(ctx, event("m1", t1.Add(3*time.Second), 40))
	require.NoError(t, err)
	_, spent := tenanttest.Progress(t, f.tenant, "42", "m1")
	assert.Equal(t, 103.0, spent, "delta measured from the skipped event")

	assert.Len(t, f.publisher.updates, 1, "skipped updates are not published")
	assert.Equal(t, []progress.Outcome{progress.OutcomeSkipped, progress.OutcomeApplied}, f.observer.outcomes)
}

func TestSession_FailedUpdateKeepsTimestamp(t *testing.T) {
	f := newFixture(t)
	tenanttest.SeedProgress(t, f.tenant, "42", "m1", 0, 100)
	ctx := context.Background()

	s := f.registry.Open()
	require.NoError(t, s.Bind(ctx, "school-a", "42"))
	_, err := s.Update(ctx, event("m1", t1, 10))
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Update(cancelled, event("m1", t1.Add(time.Minute), 20))
	require.Error(t, err)

	last, ok := s.LastTimestamp()
	require.True(t, ok)
	assert.True(t, last.Equal(t1))
}

func TestSession_CloseReleasesConnection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := f.registry.Open()
	require.NoError(t, s.Bind(ctx, "school-a", "42"))
	assert.Equal(t, int64(1), f.leased(t))
	assert.Equal(t, 1, f.registry.Len())

	s.Close()
	s.Close()
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, int64(0), f.leased(t))
	assert.Equal(t, 0, f.registry.Len())
	_, ok := f.registry.Get(s.ID())
	assert.False(t, ok)

	assert.ErrorIs(t, s.Bind(ctx, "school-a", "42"), ErrClosed)
	_, err := s.Update(ctx, event("m1", t1, 1))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSession_RebindReleasesPreviousConnection(t *testing.T) {
	f := newFixture(t)
	tenanttest.SeedProgress(t, f.tenant, "42", "m1", 0, 100)
	tenanttest.SeedProgress(t, f.tenant, "43", "m1", 0, 100)
	ctx := context.Background()

	s := f.registry.Open()
	require.NoError(t, s.Bind(ctx, "school-a", "42"))
	_, err := s.Update(ctx, event("m1", t1, 10))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Bind(ctx, "school-a", "43"))
	}
	assert.Equal(t, int64(1), f.leased(t), "a session holds at most one connection")

	_, ok := s.LastTimestamp()
	assert.False(t, ok, "rebind starts without a last timestamp")

	_, err = s.Update(ctx, event("m1", t1.Add(time.Minute), 70))
	require.NoError(t, err)
	_, spent := tenanttest.Progress(t, f.tenant, "43", "m1")
	assert.Equal(t, 100.0, spent)

	domain, user, bound := s.Identity()
	assert.Equal(t, "school-a", domain)
	assert.Equal(t, "43", user)
	assert.True(t, bound)

	require.Error(t, s.Bind(ctx, "school-z", "43"))
	assert.Equal(t, int64(0), f.leased(t), "failed rebind leaves the session unbound")
	_, _, bound = s.Identity()
	assert.False(t, bound)
}

func TestSession_PoolExhausted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, f.registry.Open().Bind(ctx, "school-a", "42"))
	}
	err := f.registry.Open().Bind(ctx, "school-a", "42")
	assert.ErrorIs(t, err, pool.ErrPoolExhausted)

	f.registry.CloseAll()
	assert.Equal(t, 0, f.registry.Len())
	assert.Equal(t, int64(0), f.leased(t))
}

func TestSession_RateLimit(t *testing.T) {
	f := newFixture(t, WithTracking(&config.Tracking{MaxUpdatesPerSecond: 0.001, Burst: 2}))
	tenanttest.SeedProgress(t, f.tenant, "42", "m1", 0, 0)
	ctx := context.Background()

	s := f.registry.Open()
	require.NoError(t, s.Bind(ctx, "school-a", "42"))
	for i := 0; i < 2; i++ {
		_, err := s.Update(ctx, event("m1", t1.Add(time.Duration(i)*time.Second), float64(i)))
		require.NoError(t, err)
	}
	_, err := s.Update(ctx, event("m1", t1.Add(2*time.Second), 2))
	assert.True(t, errors.Is(err, ErrRateLimited))

	last, _ := s.LastTimestamp()
	assert.True(t, last.Equal(t1.Add(time.Second)))
}

func TestSession_ConcurrentSessions(t *testing.T) {
	f := newFixture(t)
	tenanttest.SeedProgress(t, f.tenant, "42", "m1", 0, 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := f.registry.Open()
			defer s.Close()
			if err := s.Bind(ctx, "school-a", "42"); err != nil {
				return
			}
			_, _ = s.Update(ctx, event("m1", t1, 1))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.cache.Len())
	assert.Equal(t, int64(0), f.leased(t))
	assert.Equal(t, 0, f.registry.Len())
}

type blockingPublisher struct {
	entered chan struct{}
	release chan struct{}
}

func (p *blockingPublisher) Publish(context.Context, notify.ProgressUpdate) error {
	p.entered <- struct{}{}
	<-p.release
	return nil
}

func (p *blockingPublisher) Close() error { return nil }

func TestSession_SlowPublisherDoesNotHoldSession(t *testing.T) {
	pub := &blockingPublisher{entered: make(chan struct{}, 1), release: make(chan struct{})}
	f := newFixture(t, WithPublisher(pub))
	tenanttest.SeedProgress(t, f.tenant, "42", "m1", 0, 100)
	ctx := context.Background()

	s := f.registry.Open()
	require.NoError(t, s.Bind(ctx, "school-a", "42"))

	done := make(chan error, 1)
	go func() {
		_, err := s.Update(ctx, event("m1", t1, 30))
		done <- err
	}()

	select {
	case <-pub.entered:
	case <-time.After(3 * time.Second):
		t.Fatal("publish was not reached")
	}

	// 发布阻塞期间会话仍可读状态并关闭
	last, ok := s.LastTimestamp()
	require.True(t, ok)
	assert.True(t, last.Equal(t1))

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close waited for the publisher")
	}
	assert.Equal(t, int64(0), f.leased(t))

	close(pub.release)
	require.NoError(t, <-done)
	current, _ := tenanttest.Progress(t, f.tenant, "42", "m1")
	assert.Equal(t, 30.0, current)
}
