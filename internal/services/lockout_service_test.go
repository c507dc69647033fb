package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rizonesoft/isotone-sub002/internal/models"
	"github.com/rizonesoft/isotone-sub002/internal/settings"
)

type lockoutHarness struct {
	clock    *fakeClock
	attempts *memAttemptRepo
	lockouts *memLockoutRepo
	lists    *memListRepo
	notifier *recordingNotifier
	ledger   *AttemptLedger
	access   *AccessListService
	svc      *LockoutService
}

func newLockoutHarness(cfg settings.Settings) *lockoutHarness {
	h := &lockoutHarness{
		clock:    newFakeClock(),
		attempts: &memAttemptRepo{},
		lockouts: &memLockoutRepo{},
		lists:    newMemListRepo(),
		notifier: &recordingNotifier{},
	}
	src := settings.Static(cfg)

	h.ledger = NewAttemptLedger(h.attempts, testAudit(), testLogger(), nil, time.Second)
	h.ledger.SetClock(h.clock.Now)
	h.access = NewAccessListService(h.lists, src, testLogger(), time.Second)
	h.access.SetClock(h.clock.Now)
	h.svc = NewLockoutService(LockoutDeps{
		Repo:     h.lockouts,
		Ledger:   h.ledger,
		Lists:    h.access,
		Locker:   &fakeLocker{},
		Settings: src,
		Notifier: h.notifier,
		Audit:    testAudit(),
		Logger:   testLogger(),
	}, time.Second)
	h.svc.SetClock(h.clock.Now)
	return h
}

func (h *lockoutHarness) fail(ip, username string, n int) {
	for i := 0; i < n; i++ {
		h.ledger.RecordAttempt(context.Background(), ip, username, false, "curl/8.0")
	}
}

func TestCheckBruteForce_AllowsFreshSubject(t *testing.T) {
	h := newLockoutHarness(defaultSettings())

	d := h.svc.CheckBruteForce(context.Background(), "203.0.113.7", "alice")

	assert.False(t, d.Blocked)
	require.NotNil(t, d.RemainingAttempts)
	assert.Equal(t, 5, *d.RemainingAttempts)
	assert.Nil(t, d.WaitTimeSeconds)
}

func TestCheckBruteForce_ThresholdCreatesLockout(t *testing.T) {
	h := newLockoutHarness(defaultSettings())
	ctx := context.Background()

	h.fail("203.0.113.7", "alice", 4)
	d := h.svc.CheckBruteForce(ctx, "203.0.113.7", "alice")
	assert.False(t, d.Blocked)
	require.NotNil(t, d.RemainingAttempts)
	assert.Equal(t, 1, *d.RemainingAttempts)

	h.fail("203.0.113.7", "alice", 1)
	d = h.svc.CheckBruteForce(ctx, "203.0.113.7", "alice")
	assert.True(t, d.Blocked)
	require.NotNil(t, d.WaitTimeSeconds)
	assert.Equal(t, 900, *d.WaitTimeSeconds)
	assert.Equal(t, "Too many failed login attempts. Please try again in 15 minutes.", d.Message)
	assert.Nil(t, d.RemainingAttempts)
	assert.Equal(t, 1, h.lockouts.creates)

	// A later check is answered by the stored lockout, not a second one
	h.clock.Advance(5 * time.Minute)
	d = h.svc.CheckBruteForce(ctx, "203.0.113.7", "alice")
	assert.True(t, d.Blocked)
	assert.Equal(t, 600, *d.WaitTimeSeconds)
	assert.Equal(t, 1, h.lockouts.creates)
}

func TestCheckBruteForce_LockoutCoversUsernameFromOtherIP(t *testing.T) {
	h := newLockoutHarness(defaultSettings())
	ctx := context.Background()

	h.fail("203.0.113.7", "alice", 5)
	require.True(t, h.svc.CheckBruteForce(ctx, "203.0.113.7", "alice").Blocked)

	d := h.svc.CheckBruteForce(ctx, "198.51.100.20", "alice")
	assert.True(t, d.Blocked)
}

func TestCheckBruteForce_WindowExpiry(t *testing.T) {
	cfg := defaultSettings()
	cfg.ResetTime = 10 * time.Minute
	cfg.LockoutDuration = 5 * time.Minute
	h := newLockoutHarness(cfg)
	ctx := context.Background()

	h.fail("203.0.113.7", "alice", 4)
	h.clock.Advance(11 * time.Minute)

	// The old failures left the window; four more do not reach the threshold
	h.fail("203.0.113.7", "alice", 4)
	d := h.svc.CheckBruteForce(ctx, "203.0.113.7", "alice")
	assert.False(t, d.Blocked)
	assert.Equal(t, 1, *d.RemainingAttempts)

	h.fail("203.0.113.7", "alice", 1)
	require.True(t, h.svc.CheckBruteForce(ctx, "203.0.113.7", "alice").Blocked)

	// Lockout expires lazily, then the failures age out of the window too
	h.clock.Advance(6 * time.Minute)
	assert.True(t, h.svc.CheckBruteForce(ctx, "203.0.113.7", "alice").Blocked, "failures still in window re-lock")

	h.clock.Advance(11 * time.Minute)
	d = h.svc.CheckBruteForce(ctx, "203.0.113.7", "alice")
	assert.False(t, d.Blocked)
	assert.Equal(t, 5, *d.RemainingAttempts)
}

func TestCheckBruteForce_MaxNotSum(t *testing.T) {
	h := newLockoutHarness(defaultSettings())

	// Three failures from the ip under other names, three for the name from other ips
	h.fail("203.0.113.7", "bob", 3)
	h.fail("198.51.100.1", "alice", 2)
	h.fail("198.51.100.2", "alice", 1)

	d := h.svc.CheckBruteForce(context.Background(), "203.0.113.7", "alice")
	assert.False(t, d.Blocked)
	require.NotNil(t, d.RemainingAttempts)
	assert.Equal(t, 2, *d.RemainingAttempts)
}

func TestCheckBruteForce_SharedIPDifferentUsernames(t *testing.T) {
	h := newLockoutHarness(defaultSettings())
	ctx := context.Background()

	// Six failures from one address, but no single subject reaches five
	h.fail("203.0.113.7", "alice", 3)
	h.fail("203.0.113.7", "bob", 3)

	for _, user := range []string{"alice", "bob"} {
		d := h.svc.CheckBruteForce(ctx, "203.0.113.7", user)
		assert.False(t, d.Blocked, user)
		require.NotNil(t, d.RemainingAttempts)
		assert.Equal(t, 2, *d.RemainingAttempts)
	}
	assert.Zero(t, h.lockouts.creates)

	// Five against the same username do lock
	h.fail("203.0.113.7", "alice", 2)
	d := h.svc.CheckBruteForce(ctx, "203.0.113.7", "alice")
	assert.True(t, d.Blocked)
	assert.Equal(t, 1, h.lockouts.creates)
}

func TestCheckBruteForce_AnonymousAttemptsCountWholeIP(t *testing.T) {
	h := newLockoutHarness(defaultSettings())

	h.fail("203.0.113.7", "alice", 3)
	h.fail("203.0.113.7", "bob", 2)

	d := h.svc.CheckBruteForce(context.Background(), "203.0.113.7", "")
	assert.True(t, d.Blocked)
}

func TestCheckBruteForce_LockWaitFailsOpen(t *testing.T) {
	h := newLockoutHarness(defaultSettings())
	h.svc.locker = blockingLocker{}
	h.svc.storeTimeout = 20 * time.Millisecond

	h.fail("203.0.113.7", "alice", 5)

	start := time.Now()
	d := h.svc.CheckBruteForce(context.Background(), "203.0.113.7", "alice")

	assert.False(t, d.Blocked)
	assert.Less(t, time.Since(start), time.Second)
	assert.Zero(t, h.lockouts.creates)
}

func TestCheckBruteForce_DenylistBlocksWithWaitHint(t *testing.T) {
	h := newLockoutHarness(defaultSettings())
	ctx := context.Background()

	_, err := h.access.AddToList(ctx, models.ScopeUsername, "mallory", models.ListTypeDeny, "abuse", "admin")
	require.NoError(t, err)

	d := h.svc.CheckBruteForce(ctx, "203.0.113.7", "mallory")
	assert.True(t, d.Blocked)
	require.NotNil(t, d.WaitTimeSeconds)
	assert.Equal(t, int(models.DeniedWaitHint.Seconds()), *d.WaitTimeSeconds)
	assert.Zero(t, h.lockouts.creates)
}

func TestCheckBruteForce_DenyBeatsSafe(t *testing.T) {
	tests := []struct {
		name      string
		denyFirst bool
	}{
		{"deny added first", true},
		{"safe added first", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newLockoutHarness(defaultSettings())
			ctx := context.Background()

			deny := func() {
				_, err := h.access.AddToList(ctx, models.ScopeIP, "203.0.113.7", models.ListTypeDeny, "", "admin")
				require.NoError(t, err)
			}
			safe := func() {
				_, err := h.access.AddToList(ctx, models.ScopeUsername, "alice", models.ListTypeAllow, "", "admin")
				require.NoError(t, err)
			}
			if tt.denyFirst {
				deny()
				safe()
			} else {
				safe()
				deny()
			}

			assert.True(t, h.svc.CheckBruteForce(ctx, "203.0.113.7", "alice").Blocked)
		})
	}
}

func TestCheckBruteForce_SafelistBypassesThreshold(t *testing.T) {
	h := newLockoutHarness(defaultSettings())
	ctx := context.Background()

	_, err := h.access.AddToList(ctx, models.ScopeIP, "10.0.0.5", models.ListTypeAllow, "office", "admin")
	require.NoError(t, err)
	h.fail("10.0.0.5", "alice", 10)

	d := h.svc.CheckBruteForce(ctx, "10.0.0.5", "alice")
	assert.False(t, d.Blocked)
	assert.Nil(t, d.RemainingAttempts)
	assert.Zero(t, h.lockouts.creates)
}

func TestCheckBruteForce_LockoutBeatsSafelist(t *testing.T) {
	h := newLockoutHarness(defaultSettings())
	ctx := context.Background()

	h.fail("203.0.113.7", "alice", 5)
	require.True(t, h.svc.CheckBruteForce(ctx, "203.0.113.7", "alice").Blocked)

	_, err := h.access.AddToList(ctx, models.ScopeUsername, "alice", models.ListTypeAllow, "", "admin")
	require.NoError(t, err)

	assert.True(t, h.svc.CheckBruteForce(ctx, "203.0.113.7", "alice").Blocked)
}

func TestCheckBruteForce_DisabledDenylistIsIgnored(t *testing.T) {
	cfg := defaultSettings()
	cfg.EnableIPDenylist = false
	h := newLockoutHarness(cfg)
	ctx := context.Background()

	_, err := h.access.AddToList(ctx, models.ScopeIP, "203.0.113.7", models.ListTypeDeny, "", "admin")
	require.NoError(t, err)

	assert.False(t, h.svc.CheckBruteForce(ctx, "203.0.113.7", "alice").Blocked)
}

func TestCheckBruteForce_HidesRemainingAttempts(t *testing.T) {
	cfg := defaultSettings()
	cfg.ShowRemainingAttempts = false
	h := newLockoutHarness(cfg)

	d := h.svc.CheckBruteForce(context.Background(), "203.0.113.7", "alice")
	assert.False(t, d.Blocked)
	assert.Nil(t, d.RemainingAttempts)
}

func TestCheckBruteForce_FailsOpenOnStoreError(t *testing.T) {
	h := newLockoutHarness(defaultSettings())
	h.fail("203.0.113.7", "alice", 5)
	h.lockouts.err = errStoreDown

	d := h.svc.CheckBruteForce(context.Background(), "203.0.113.7", "alice")
	assert.False(t, d.Blocked)
}

func TestCheckBruteForce_FailsOpenWhenCountFails(t *testing.T) {
	h := newLockoutHarness(defaultSettings())
	h.attempts.err = errStoreDown

	d := h.svc.CheckBruteForce(context.Background(), "203.0.113.7", "alice")
	assert.False(t, d.Blocked)
}

func TestCheckBruteForce_NotifiesAdministrator(t *testing.T) {
	cfg := defaultSettings()
	cfg.NotifyAdminLockout = true
	h := newLockoutHarness(cfg)
	h.notifier.err = errStoreDown // delivery failures never change the decision

	h.fail("203.0.113.7", "alice", 5)
	d := h.svc.CheckBruteForce(context.Background(), "203.0.113.7", "alice")

	assert.True(t, d.Blocked)
	require.Len(t, h.notifier.calls, 1)
	assert.Equal(t, "203.0.113.7", *h.notifier.calls[0].SubjectIP)
	assert.Equal(t, "alice", *h.notifier.calls[0].SubjectUsername)
}

func TestCheckBruteForce_ConcurrentChecksCreateOneLockout(t *testing.T) {
	h := newLockoutHarness(defaultSettings())
	h.fail("203.0.113.7", "alice", 5)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, h.svc.CheckBruteForce(context.Background(), "203.0.113.7", "alice").Blocked)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.lockouts.creates)
}

func TestClearLockout(t *testing.T) {
	h := newLockoutHarness(defaultSettings())
	ctx := context.Background()

	_, err := h.svc.ClearLockout(ctx, "", "")
	assert.ErrorIs(t, err, models.ErrBadRequest)

	h.fail("203.0.113.7", "alice", 5)
	require.True(t, h.svc.CheckBruteForce(ctx, "203.0.113.7", "alice").Blocked)

	cleared, err := h.svc.ClearLockout(ctx, "203.0.113.7", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleared)

	active, err := h.svc.GetActiveLockouts(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	// History is untouched so the next check locks again
	assert.Equal(t, 5, h.attempts.len())
	assert.True(t, h.svc.CheckBruteForce(ctx, "203.0.113.7", "alice").Blocked)
}

func TestGetDeniedAttemptsLog_ClampsLimit(t *testing.T) {
	h := newLockoutHarness(defaultSettings())
	h.fail("203.0.113.7", "alice", 120)
	h.ledger.RecordAttempt(context.Background(), "203.0.113.7", "alice", true, "")

	attempts, err := h.svc.GetDeniedAttemptsLog(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, attempts, 50)

	attempts, err = h.svc.GetDeniedAttemptsLog(context.Background(), 500, -3)
	require.NoError(t, err)
	assert.Len(t, attempts, 100)
	for _, a := range attempts {
		assert.False(t, a.Success)
	}
}

func TestRenderLockoutMessage(t *testing.T) {
	tests := []struct {
		tmpl    string
		seconds int
		want    string
	}{
		{"wait {minutes} minutes", 900, "wait 15 minutes"},
		{"wait {minutes} minutes", 61, "wait 2 minutes"},
		{"wait {seconds}s", 42, "wait 42s"},
		{"no placeholders", 10, "no placeholders"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, renderLockoutMessage(tt.tmpl, tt.seconds))
	}
}
