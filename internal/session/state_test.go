package session

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/portal-access/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func doctorUser() domain.User {
	return domain.User{
		UserID:   uuid.New(),
		Email:    "doc@example.com",
		Role:     domain.RoleDoctor,
		IsActive: true,
	}
}

func TestCheckValidClearsExpiredSessionAtomically(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	st := NewState(clock.Now)
	st.Set(doctorUser(), uuid.New(), clock.Now().Add(30*time.Minute))

	if !st.CheckValid() {
		t.Fatalf("fresh session should be valid")
	}

	clock.Advance(31 * time.Minute)
	if st.CheckValid() {
		t.Fatalf("expired session should report invalid")
	}
	snap := st.Snapshot()
	if snap.IsAuthenticated || snap.User != nil {
		t.Fatalf("expired session must be cleared in the same step, got %+v", snap)
	}
}

func TestSnapshotHasNoSideEffects(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	st := NewState(clock.Now)
	st.Set(doctorUser(), uuid.New(), clock.Now().Add(time.Minute))

	clock.Advance(2 * time.Minute)
	if snap := st.Snapshot(); !snap.IsAuthenticated {
		t.Fatalf("snapshot must not clear state, even past expiry")
	}
	// Only CheckValid performs the check-and-clear.
	if st.CheckValid() {
		t.Fatalf("expected invalid after expiry")
	}
}

func TestSnapshotReturnsCopy(t *testing.T) {
	t.Parallel()

	st := NewState(nil)
	st.Set(doctorUser(), uuid.New(), time.Now().Add(time.Hour))

	snap := st.Snapshot()
	snap.User.Role = domain.RoleAdmin

	if st.Snapshot().User.Role != domain.RoleDoctor {
		t.Fatalf("snapshot mutation leaked into shared state")
	}
}

func TestRoleAndPermissionQueries(t *testing.T) {
	t.Parallel()

	st := NewState(nil)

	// Unauthenticated: every concrete check is false.
	if st.HasAnyRole(domain.RoleDoctor) || st.HasAnyPermission(domain.PermViewPatientRecords) {
		t.Fatalf("unauthenticated state must fail role/permission checks")
	}

	user := doctorUser()
	user.ExtraGrants = []domain.Permission{domain.PermViewBilling}
	st.Set(user, uuid.New(), time.Now().Add(time.Hour))

	if !st.HasAnyRole() {
		t.Fatalf("empty role set means any authenticated role")
	}
	if !st.HasAnyRole(domain.RoleNurse, domain.RoleDoctor) {
		t.Fatalf("expected doctor role match")
	}
	if st.HasAnyRole(domain.RolePatient) {
		t.Fatalf("unexpected role match")
	}
	if !st.HasAnyPermission() || !st.HasAllPermissions() {
		t.Fatalf("empty permission sets are vacuously true")
	}
	if !st.HasAllPermissions(domain.PermViewPatientRecords, domain.PermViewBilling) {
		t.Fatalf("expected role permissions plus grant override to satisfy check")
	}
	if st.HasAllPermissions(domain.PermManageUsers) {
		t.Fatalf("doctor must not hold MANAGE_USERS")
	}
}

func TestStaleRefreshResultDiscardedAfterLogout(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	st := NewState(clock.Now)
	st.Set(doctorUser(), uuid.New(), clock.Now().Add(10*time.Minute))

	gen := st.Generation()
	st.Clear()

	if st.ExtendIfCurrent(gen, clock.Now().Add(time.Hour)) {
		t.Fatalf("refresh captured before logout must be discarded")
	}
	if st.Snapshot().IsAuthenticated {
		t.Fatalf("discarded refresh must not resurrect the session")
	}
}

func TestStaleRefreshResultDiscardedAfterRelogin(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	st := NewState(clock.Now)
	st.Set(doctorUser(), uuid.New(), clock.Now().Add(10*time.Minute))
	gen := st.Generation()

	// A new login replaces the session wholesale.
	replacement := clock.Now().Add(20 * time.Minute)
	st.Set(doctorUser(), uuid.New(), replacement)

	if st.ExtendIfCurrent(gen, clock.Now().Add(time.Hour)) {
		t.Fatalf("refresh for the previous login must be discarded")
	}
	if got := st.Snapshot().SessionExpiresAt; !got.Equal(replacement) {
		t.Fatalf("expiry changed by stale refresh: %v", got)
	}
}

func TestConcurrentReadersSeeConsistentSnapshots(t *testing.T) {
	t.Parallel()

	st := NewState(nil)
	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			st.Set(doctorUser(), uuid.New(), time.Now().Add(time.Hour))
			st.Clear()
		}
		close(stop)
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := st.Snapshot()
				if snap.IsAuthenticated && snap.User == nil {
					t.Errorf("observed authenticated session without user")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestRegistrySharesStateAcrossGuards(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	id := uuid.New()

	a := reg.GetOrCreate(id)
	b := reg.GetOrCreate(id)
	if a != b {
		t.Fatalf("expected one state container per session id")
	}

	a.Set(doctorUser(), id, time.Now().Add(time.Hour))
	if snap := b.Snapshot(); !snap.IsAuthenticated {
		t.Fatalf("mutation through one handle must be visible through the other")
	}

	reg.Remove(id)
	if _, ok := reg.Get(id); ok {
		t.Fatalf("expected session removed from registry")
	}
}
