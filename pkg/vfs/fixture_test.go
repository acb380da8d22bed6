package vfs

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/marmos91/homefs/pkg/audit"
	"github.com/marmos91/homefs/pkg/quota"
	"github.com/marmos91/homefs/pkg/session"
	"github.com/marmos91/homefs/pkg/store/account"
	accountmemory "github.com/marmos91/homefs/pkg/store/account/memory"
	"github.com/marmos91/homefs/pkg/store/content"
	contentmemory "github.com/marmos91/homefs/pkg/store/content/memory"
	"github.com/stretchr/testify/require"
)

var errInjected = errors.New("injected failure")

// faultyContent wraps a content store and fails selected operations on demand.
// Hooks registered with on run outside the wrapper's lock, so they may call
// back into the engine.
type faultyContent struct {
	content.Store

	mu    sync.Mutex
	fail  map[string]error
	hooks map[string]func(owner string)
}

func (f *faultyContent) on(op string, fn func(owner string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hooks == nil {
		f.hooks = make(map[string]func(owner string))
	}
	f.hooks[op] = fn
}

func (f *faultyContent) run(op, owner string) {
	f.mu.Lock()
	fn := f.hooks[op]
	f.mu.Unlock()
	if fn != nil {
		fn(owner)
	}
}

func (f *faultyContent) failOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail == nil {
		f.fail = make(map[string]error)
	}
	f.fail[op] = err
}

func (f *faultyContent) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = nil
	f.hooks = nil
}

func (f *faultyContent) injected(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail[op]
}

func (f *faultyContent) EnsureHome(ctx context.Context, owner string) error {
	if err := f.injected("EnsureHome"); err != nil {
		return err
	}
	f.run("EnsureHome", owner)
	return f.Store.EnsureHome(ctx, owner)
}

func (f *faultyContent) RemoveHome(ctx context.Context, owner string) error {
	if err := f.injected("RemoveHome"); err != nil {
		return err
	}
	return f.Store.RemoveHome(ctx, owner)
}

func (f *faultyContent) ListHome(ctx context.Context, owner string) ([]string, error) {
	if err := f.injected("ListHome"); err != nil {
		return nil, err
	}
	names, err := f.Store.ListHome(ctx, owner)
	f.run("ListHome", owner)
	return names, err
}

func (f *faultyContent) Create(ctx context.Context, id content.ID, data []byte) error {
	if err := f.injected("Create"); err != nil {
		return err
	}
	return f.Store.Create(ctx, id, data)
}

func (f *faultyContent) Delete(ctx context.Context, id content.ID) error {
	if err := f.injected("Delete"); err != nil {
		return err
	}
	return f.Store.Delete(ctx, id)
}

// faultyAccounts wraps an account store and fails UpdateAccount on demand.
type faultyAccounts struct {
	account.Store

	mu        sync.Mutex
	updateErr error
}

func (f *faultyAccounts) failUpdates(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateErr = err
}

func (f *faultyAccounts) UpdateAccount(ctx context.Context, id string, fn account.UpdateFunc) (*account.Account, error) {
	f.mu.Lock()
	err := f.updateErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.UpdateAccount(ctx, id, fn)
}

// recordingAuditor keeps every entry in memory.
type recordingAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordingAuditor) Record(_ context.Context, e audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recordingAuditor) Close() error { return nil }

func (r *recordingAuditor) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	engine   *Engine
	quota    *quota.Store
	accounts *faultyAccounts
	content  *faultyContent
	sessions *session.Manager
	auditor  *recordingAuditor

	adminToken string
}

type fixtureOption func(*Config, *session.Config)

func withSingleSeat() fixtureOption {
	return func(_ *Config, s *session.Config) { s.SingleSeat = true }
}

func withReleaseMissing() fixtureOption {
	return func(c *Config, _ *session.Config) { c.ReleaseMissing = true }
}

func withPruneOrphans() fixtureOption {
	return func(c *Config, _ *session.Config) { c.PruneOrphans = true }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	return newFixtureOn(t, accountmemory.NewMemoryAccountStore(), contentmemory.NewMemoryContentStore(), opts...)
}

// newFixtureOn builds an engine over existing stores, as a restarted process would.
func newFixtureOn(t *testing.T, accounts account.Store, store content.Store, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		accounts: &faultyAccounts{Store: accounts},
		content:  &faultyContent{Store: store},
		auditor:  &recordingAuditor{},
	}

	cfg := Config{Content: f.content, Auditor: f.auditor}
	scfg := session.Config{}
	for _, opt := range opts {
		opt(&cfg, &scfg)
	}

	f.quota = quota.New(f.accounts, quota.Config{})
	f.sessions = session.NewManager(scfg)
	cfg.Quota = f.quota
	cfg.Sessions = f.sessions

	engine, err := New(cfg, nil)
	require.NoError(t, err)
	f.engine = engine

	_, err = engine.Startup(f.ctx, "adminpw")
	require.NoError(t, err)

	if !scfg.SingleSeat {
		f.adminToken = f.login(quota.AdminID, "adminpw")
	}
	return f
}

func (f *fixture) login(id, pw string) string {
	f.t.Helper()
	s, err := f.engine.Login(f.ctx, id, pw)
	require.NoError(f.t, err)
	return s.Token
}

// user registers id through the admin with limitMB and returns a session token.
func (f *fixture) user(id string, limitMB float64) string {
	f.t.Helper()
	_, err := f.engine.Register(f.ctx, f.adminToken, id, id+"-pw", &limitMB)
	require.NoError(f.t, err)
	return f.login(id, id+"-pw")
}

func (f *fixture) usageMB(id string) float64 {
	f.t.Helper()
	u, err := f.quota.GetUsage(f.ctx, id)
	require.NoError(f.t, err)
	return u.UsageMB
}

func (f *fixture) files(token string) []string {
	f.t.Helper()
	list, err := f.engine.List(f.ctx, token)
	require.NoError(f.t, err)
	names := make([]string, 0, len(list))
	for _, fi := range list {
		names = append(names, fi.Name)
	}
	return names
}

func contentID(owner, name string) content.ID {
	return content.ID{Owner: owner, Name: name}
}
