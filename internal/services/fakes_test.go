package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rizonesoft/isotone-sub002/internal/models"
	"github.com/rizonesoft/isotone-sub002/internal/settings"
	"github.com/rizonesoft/isotone-sub002/pkg/logger"
)

var errStoreDown = errors.New("connection refused")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAudit() *logger.AuditLogger {
	return logger.NewAuditLogger(testLogger())
}

// fakeClock is a settable time source shared by every service under test
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func defaultSettings() settings.Settings {
	return settings.Settings{
		MaxLoginAttempts:       5,
		LockoutDuration:        900 * time.Second,
		ResetTime:              900 * time.Second,
		EnableIPDenylist:       true,
		EnableIPSafelist:       true,
		EnableUsernameDenylist: true,
		EnableUsernameSafelist: true,
		ShowRemainingAttempts:  true,
		LockoutMessage:         "Too many failed login attempts. Please try again in {minutes} minutes.",
	}
}

// fakeLocker serializes fn per process, standing in for the advisory lock
type fakeLocker struct {
	mu    sync.Mutex
	calls int
}

func (l *fakeLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return fn(ctx)
}

// blockingLocker never grants the lock and waits for ctx to end
type blockingLocker struct{}

func (blockingLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	<-ctx.Done()
	return ctx.Err()
}

type memAttemptRepo struct {
	mu       sync.Mutex
	attempts []*models.LoginAttempt
	err      error
}

func (r *memAttemptRepo) Create(ctx context.Context, a *models.LoginAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.attempts = append(r.attempts, a)
	return nil
}

func (r *memAttemptRepo) count(since time.Time, match func(*models.LoginAttempt) bool) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	n := 0
	for _, a := range r.attempts {
		if !a.Success && !a.AttemptTime.Before(since) && match(a) {
			n++
		}
	}
	return n, nil
}

func (r *memAttemptRepo) CountFailuresByIP(ctx context.Context, ip string, since time.Time) (int, error) {
	return r.count(since, func(a *models.LoginAttempt) bool { return a.IPAddress == ip })
}

func (r *memAttemptRepo) CountFailuresByIPAndUsername(ctx context.Context, ip, username string, since time.Time) (int, error) {
	return r.count(since, func(a *models.LoginAttempt) bool {
		return a.IPAddress == ip && a.Username != nil && *a.Username == username
	})
}

func (r *memAttemptRepo) CountFailuresByUsername(ctx context.Context, username string, since time.Time) (int, error) {
	return r.count(since, func(a *models.LoginAttempt) bool { return a.Username != nil && *a.Username == username })
}

func (r *memAttemptRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.attempts[:0]
	var removed int64
	for _, a := range r.attempts {
		if a.AttemptTime.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	r.attempts = kept
	return removed, nil
}

func (r *memAttemptRepo) ListFailed(ctx context.Context, limit, offset int) ([]*models.LoginAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var failed []*models.LoginAttempt
	for i := len(r.attempts) - 1; i >= 0; i-- {
		if !r.attempts[i].Success {
			failed = append(failed, r.attempts[i])
		}
	}
	if offset >= len(failed) {
		return []*models.LoginAttempt{}, nil
	}
	failed = failed[offset:]
	if len(failed) > limit {
		failed = failed[:limit]
	}
	return failed, nil
}

func (r *memAttemptRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attempts)
}

type memLockoutRepo struct {
	mu       sync.Mutex
	lockouts []*models.Lockout
	creates  int
	err      error
}

func (r *memLockoutRepo) Create(ctx context.Context, l *models.Lockout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.creates++
	l.ID = fmt.Sprintf("lockout-%d", r.creates)
	r.lockouts = append(r.lockouts, l)
	return nil
}

func matchesSubject(l *models.Lockout, ip, username string) bool {
	if ip != "" && l.SubjectIP != nil && *l.SubjectIP == ip {
		return true
	}
	return username != "" && l.SubjectUsername != nil && *l.SubjectUsername == username
}

func (r *memLockoutRepo) FindActive(ctx context.Context, ip, username string, now time.Time) (*models.Lockout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var found *models.Lockout
	for _, l := range r.lockouts {
		if l.IsEffective(now) && matchesSubject(l, ip, username) {
			if found == nil || l.UnlockAt.After(found.UnlockAt) {
				found = l
			}
		}
	}
	return found, nil
}

func (r *memLockoutRepo) Clear(ctx context.Context, ip, username string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, l := range r.lockouts {
		if l.Active && matchesSubject(l, ip, username) {
			l.Active = false
			n++
		}
	}
	return n, nil
}

func (r *memLockoutRepo) ListActive(ctx context.Context, now time.Time) ([]*models.Lockout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var active []*models.Lockout
	for _, l := range r.lockouts {
		if l.IsEffective(now) {
			active = append(active, l)
		}
	}
	return active, nil
}

type listKey struct {
	scope    models.ListScope
	subject  string
	listType models.ListType
}

type memListRepo struct {
	mu      sync.Mutex
	entries map[listKey]*models.ListEntry
	lookups int
	err     error
}

func newMemListRepo() *memListRepo {
	return &memListRepo{entries: make(map[listKey]*models.ListEntry)}
}

func (r *memListRepo) Upsert(ctx context.Context, e *models.ListEntry) (*models.ListEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	k := listKey{e.Scope, e.Subject, e.ListType}
	if existing, ok := r.entries[k]; ok {
		e.ID = existing.ID
	} else {
		e.ID = fmt.Sprintf("entry-%d", len(r.entries)+1)
	}
	e.Active = true
	r.entries[k] = e
	return e, nil
}

func (r *memListRepo) IsListed(ctx context.Context, scope models.ListScope, subject string, listType models.ListType) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	if r.err != nil {
		return false, r.err
	}
	e, ok := r.entries[listKey{scope, subject, listType}]
	return ok && e.Active, nil
}

func (r *memListRepo) Deactivate(ctx context.Context, scope models.ListScope, subject string, listType models.ListType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[listKey{scope, subject, listType}]
	if !ok || !e.Active {
		return models.ErrNotFound
	}
	e.Active = false
	return nil
}

func (r *memListRepo) List(ctx context.Context, listType models.ListType, scope models.ListScope) ([]*models.ListEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ListEntry
	for _, e := range r.entries {
		if e.Active && (listType == "" || e.ListType == listType) && (scope == "" || e.Scope == scope) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memRateWindowRepo struct {
	mu      sync.Mutex
	records []*models.RateWindowRecord
	err     error
}

func (r *memRateWindowRepo) CountSince(ctx context.Context, credentialID string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	n := 0
	for _, rec := range r.records {
		if rec.CredentialID == credentialID && !rec.RecordedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *memRateWindowRepo) Create(ctx context.Context, rec *models.RateWindowRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, rec)
	return nil
}

func (r *memRateWindowRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.records[:0]
	var removed int64
	for _, rec := range r.records {
		if rec.RecordedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	r.records = kept
	return removed, nil
}

func (r *memRateWindowRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

type memCredentialRepo struct {
	mu         sync.Mutex
	creds      []*models.APICredential
	listErr    error
	usageErr   error
	usageCalls int
}

func (r *memCredentialRepo) Create(ctx context.Context, c *models.APICredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = fmt.Sprintf("cred-%d", len(r.creds)+1)
	}
	r.creds = append(r.creds, c)
	return nil
}

func (r *memCredentialRepo) ListActive(ctx context.Context) ([]*models.APICredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var active []*models.APICredential
	for _, c := range r.creds {
		if c.IsActive {
			active = append(active, c)
		}
	}
	return active, nil
}

func (r *memCredentialRepo) GetByID(ctx context.Context, id string) (*models.APICredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.creds {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *memCredentialRepo) List(ctx context.Context, limit, offset int) ([]*models.APICredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]*models.APICredential(nil), r.creds...)
	if offset >= len(out) {
		return []*models.APICredential{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memCredentialRepo) RecordUsage(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usageCalls++
	if r.usageErr != nil {
		return r.usageErr
	}
	for _, c := range r.creds {
		if c.ID == id {
			c.LastUsedAt = &at
			c.UsageCount++
		}
	}
	return nil
}

func (r *memCredentialRepo) Revoke(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.creds {
		if c.ID == id && c.IsActive {
			c.IsActive = false
			return nil
		}
	}
	return models.ErrNotFound
}

type memAuthLogRepo struct {
	mu      sync.Mutex
	entries []*models.AuthLogEntry
	err     error
}

func (r *memAuthLogRepo) Create(ctx context.Context, e *models.AuthLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, e)
	return nil
}

func (r *memAuthLogRepo) List(ctx context.Context, success *bool, limit, offset int) ([]*models.AuthLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AuthLogEntry
	for i := len(r.entries) - 1; i >= 0; i-- {
		if success == nil || r.entries[i].Success == *success {
			out = append(out, r.entries[i])
		}
	}
	if offset >= len(out) {
		return []*models.AuthLogEntry{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memAuthLogRepo) last() *models.AuthLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return nil
	}
	return r.entries[len(r.entries)-1]
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []*models.Lockout
	err   error
}

func (n *recordingNotifier) NotifyLockout(ctx context.Context, l *models.Lockout, failures int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, l)
	return n.err
}
