package application

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/portal-access/internal/domain"
	"github.com/carebridge/portal-access/internal/ports"
	"github.com/carebridge/portal-access/internal/session"
)

type memUsers struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]domain.User
	byEml map[string]uuid.UUID
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[uuid.UUID]domain.User{}, byEml: map[string]uuid.UUID{}}
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEml[email]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return m.byID[id], nil
}

func (m *memUsers) GetByID(_ context.Context, userID uuid.UUID) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) Create(_ context.Context, params ports.CreateUserParams) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byEml[params.Email]; exists {
		return domain.User{}, domain.ErrConflict
	}
	u := domain.User{
		UserID:       uuid.New(),
		Email:        params.Email,
		PasswordHash: params.PasswordHash,
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		Role:         params.Role,
		ExtraGrants:  params.ExtraGrants,
		IsActive:     true,
		CreatedAt:    params.CreatedAtUTC,
		UpdatedAt:    params.CreatedAtUTC,
	}
	m.byID[u.UserID] = u
	m.byEml[u.Email] = u.UserID
	return u, nil
}

func (m *memUsers) UpdateRole(_ context.Context, userID uuid.UUID, role domain.Role, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.Role = role
	u.UpdatedAt = now
	m.byID[userID] = u
	return nil
}

func (m *memUsers) List(_ context.Context, _, _ int) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.User, 0, len(m.byID))
	for _, u := range m.byID {
		out = append(out, u)
	}
	return out, nil
}

type memSessions struct {
	mu   sync.Mutex
	rows map[uuid.UUID]domain.SessionRecord
}

func newMemSessions() *memSessions {
	return &memSessions{rows: map[uuid.UUID]domain.SessionRecord{}}
}

func (m *memSessions) Create(_ context.Context, params ports.SessionCreateParams) (domain.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := domain.SessionRecord{
		SessionID:      uuid.New(),
		UserID:         params.UserID,
		IPAddress:      params.IPAddress,
		UserAgent:      params.UserAgent,
		CreatedAt:      params.LastActivityAt,
		LastActivityAt: params.LastActivityAt,
		ExpiresAt:      params.ExpiresAt,
	}
	m.rows[rec.SessionID] = rec
	return rec, nil
}

func (m *memSessions) GetByID(_ context.Context, sessionID uuid.UUID) (domain.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[sessionID]
	if !ok {
		return domain.SessionRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (m *memSessions) TouchActivity(_ context.Context, sessionID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	rec.LastActivityAt = at
	m.rows[sessionID] = rec
	return nil
}

func (m *memSessions) Extend(_ context.Context, sessionID uuid.UUID, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[sessionID]
	if !ok || rec.RevokedAt != nil {
		return domain.ErrNotFound
	}
	rec.ExpiresAt = expiresAt
	m.rows[sessionID] = rec
	return nil
}

func (m *memSessions) RevokeByID(_ context.Context, sessionID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	if rec.RevokedAt == nil {
		rec.RevokedAt = &at
		m.rows[sessionID] = rec
	}
	return nil
}

func (m *memSessions) RevokeAllByUser(_ context.Context, userID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rec := range m.rows {
		if rec.UserID == userID && rec.RevokedAt == nil {
			rec.RevokedAt = &at
			m.rows[id] = rec
		}
	}
	return nil
}

func (m *memSessions) ListByUser(_ context.Context, userID uuid.UUID, _, _ int) ([]domain.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.SessionRecord, 0)
	for _, rec := range m.rows {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type memLockouts struct {
	mu     sync.Mutex
	states map[string]ports.LockoutState
}

func newMemLockouts() *memLockouts {
	return &memLockouts{states: map[string]ports.LockoutState{}}
}

func (m *memLockouts) Get(_ context.Context, key string) (ports.LockoutState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[key], nil
}

func (m *memLockouts) RecordFailure(_ context.Context, key string, now time.Time, threshold int, window time.Duration) (ports.LockoutState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.states[key]
	state.FailedCount++
	if state.FailedCount >= threshold {
		until := now.Add(window)
		state.LockedUntil = &until
	}
	m.states[key] = state
	return state, nil
}

func (m *memLockouts) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, key)
	return nil
}

type memRevocations struct {
	mu      sync.Mutex
	revoked map[uuid.UUID]bool
}

func newMemRevocations() *memRevocations {
	return &memRevocations{revoked: map[uuid.UUID]bool{}}
}

func (m *memRevocations) MarkRevoked(_ context.Context, sessionID uuid.UUID, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[sessionID] = true
	return nil
}

func (m *memRevocations) IsRevoked(_ context.Context, sessionID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revoked[sessionID], nil
}

// plainHasher trades bcrypt for string comparison to keep tests fast.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hash:" + password, nil }
func (plainHasher) Compare(hash, password string) error {
	if hash != "hash:"+password {
		return errors.New("mismatch")
	}
	return nil
}

// stubSigner hands out opaque tokens backed by an in-memory claim map.
type stubSigner struct {
	mu     sync.Mutex
	seq    int
	tokens map[string]ports.AuthClaims
}

func newStubSigner() *stubSigner {
	return &stubSigner{tokens: map[string]ports.AuthClaims{}}
}

func (s *stubSigner) Sign(claims ports.AuthClaims) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	token := "token-" + strconv.Itoa(s.seq)
	s.tokens[token] = claims
	return token, nil
}

func (s *stubSigner) ParseAndValidate(raw string) (ports.AuthClaims, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claims, ok := s.tokens[raw]
	if !ok {
		return ports.AuthClaims{}, errors.New("unknown token")
	}
	return claims, nil
}

func (s *stubSigner) PublicJWKs() ([]map[string]any, error) {
	return []map[string]any{{"kid": "test"}}, nil
}

type serviceFixture struct {
	svc      *Service
	users    *memUsers
	sessions *memSessions
	lockouts *memLockouts
	revoked  *memRevocations
	signer   *stubSigner
	registry *session.Registry
	now      time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		users:    newMemUsers(),
		sessions: newMemSessions(),
		lockouts: newMemLockouts(),
		revoked:  newMemRevocations(),
		signer:   newStubSigner(),
		registry: session.NewRegistry(nil),
		now:      time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(Dependencies{
		Config: Config{
			TokenTTL:             time.Hour,
			SessionTTL:           30 * time.Minute,
			SessionAbsoluteTTL:   12 * time.Hour,
			FailedLoginThreshold: 3,
			LockoutDuration:      15 * time.Minute,
		},
		Users:       f.users,
		Sessions:    f.sessions,
		Lockouts:    f.lockouts,
		Revocations: f.revoked,
		Hasher:      plainHasher{},
		TokenSigner: f.signer,
		Registry:    f.registry,
	})
	f.svc.nowFn = func() time.Time { return f.now }
	return f
}

func (f *serviceFixture) seedUser(t *testing.T, email string, role domain.Role) domain.User {
	t.Helper()
	u, err := f.users.Create(context.Background(), ports.CreateUserParams{
		Email:        email,
		PasswordHash: "hash:correct-horse",
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
		CreatedAtUTC: f.now,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func (f *serviceFixture) login(t *testing.T, email string) LoginResponse {
	t.Helper()
	res, err := f.svc.Login(context.Background(), LoginRequest{
		Email:    email,
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return res
}

func TestLoginSeedsSharedSessionState(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	u := f.seedUser(t, "nurse@clinic.test", domain.RoleNurse)

	res := f.login(t, "nurse@clinic.test")
	if res.Token == "" || res.Role != string(domain.RoleNurse) {
		t.Fatalf("unexpected login response: %+v", res)
	}

	st, ok := f.registry.Get(res.SessionID)
	if !ok {
		t.Fatalf("login must register shared session state")
	}
	snap := st.Snapshot()
	if !snap.IsAuthenticated || snap.User.UserID != u.UserID {
		t.Fatalf("unexpected session snapshot: %+v", snap)
	}
	if got := snap.SessionExpiresAt; !got.Equal(f.now.Add(30 * time.Minute)) {
		t.Fatalf("unexpected session expiry %v", got)
	}
}

func TestLoginLocksAfterRepeatedFailures(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	f.seedUser(t, "doc@clinic.test", domain.RoleDoctor)

	for i := 0; i < 3; i++ {
		_, err := f.svc.Login(context.Background(), LoginRequest{Email: "doc@clinic.test", Password: "wrong"})
		if !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i, err)
		}
	}

	_, err := f.svc.Login(context.Background(), LoginRequest{Email: "doc@clinic.test", Password: "correct-horse"})
	if !errors.Is(err, domain.ErrAccountLocked) {
		t.Fatalf("expected lockout after threshold, got %v", err)
	}
}

func TestLoginRejectsDeactivatedAccount(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	u := f.seedUser(t, "gone@clinic.test", domain.RolePatient)
	f.users.mu.Lock()
	rec := f.users.byID[u.UserID]
	rec.IsActive = false
	f.users.byID[u.UserID] = rec
	f.users.mu.Unlock()

	_, err := f.svc.Login(context.Background(), LoginRequest{Email: "gone@clinic.test", Password: "correct-horse"})
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for inactive account, got %v", err)
	}
}

func TestLogoutRevokesEverywhere(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	f.seedUser(t, "billing@clinic.test", domain.RoleBillingStaff)
	res := f.login(t, "billing@clinic.test")

	if err := f.svc.Logout(context.Background(), res.Token); err != nil {
		t.Fatalf("logout: %v", err)
	}

	if _, ok := f.registry.Get(res.SessionID); ok {
		t.Fatalf("logout must unregister session state")
	}
	rec, _ := f.sessions.GetByID(context.Background(), res.SessionID)
	if rec.RevokedAt == nil {
		t.Fatalf("logout must revoke the persisted row")
	}
	if _, err := f.svc.ValidateToken(context.Background(), res.Token); !errors.Is(err, domain.ErrSessionRevoked) {
		t.Fatalf("expected revoked token rejection, got %v", err)
	}
}

func TestRefreshExtendsSessionAndRotatesToken(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	f.seedUser(t, "recept@clinic.test", domain.RoleReceptionist)
	res := f.login(t, "recept@clinic.test")

	f.now = f.now.Add(20 * time.Minute)
	refreshed, err := f.svc.Refresh(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.Token == res.Token {
		t.Fatalf("refresh must rotate the token")
	}
	if want := f.now.Add(30 * time.Minute); !refreshed.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, refreshed.ExpiresAt)
	}

	st, ok := f.registry.Get(res.SessionID)
	if !ok {
		t.Fatalf("session state missing after refresh")
	}
	if got := st.Snapshot().SessionExpiresAt; !got.Equal(refreshed.ExpiresAt) {
		t.Fatalf("shared state expiry %v not extended to %v", got, refreshed.ExpiresAt)
	}
}

func TestRefreshAfterLogoutFails(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	f.seedUser(t, "admin@clinic.test", domain.RoleAdmin)
	res := f.login(t, "admin@clinic.test")

	if err := f.svc.Logout(context.Background(), res.Token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := f.svc.Refresh(context.Background(), res.Token); !errors.Is(err, domain.ErrSessionRevoked) {
		t.Fatalf("expected revoked refresh rejection, got %v", err)
	}
	if _, ok := f.registry.Get(res.SessionID); ok {
		t.Fatalf("failed refresh must not resurrect session state")
	}
}

func TestValidateTokenExpiredSession(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	f.seedUser(t, "pt@clinic.test", domain.RolePatient)
	res := f.login(t, "pt@clinic.test")

	f.now = f.now.Add(31 * time.Minute)
	if _, err := f.svc.ValidateToken(context.Background(), res.Token); !errors.Is(err, domain.ErrSessionExpired) {
		t.Fatalf("expected expired rejection, got %v", err)
	}
}

func TestResolveStateRehydratesAfterRestart(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	u := f.seedUser(t, "dr@clinic.test", domain.RoleDoctor)
	res := f.login(t, "dr@clinic.test")

	// Simulate a process restart: the registry forgets everything but
	// the token and the session row survive.
	f.registry.Remove(res.SessionID)

	st, err := f.svc.ResolveState(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("resolve state: %v", err)
	}
	snap := st.Snapshot()
	if !snap.IsAuthenticated || snap.User.UserID != u.UserID || snap.User.Role != domain.RoleDoctor {
		t.Fatalf("rehydrated snapshot incomplete: %+v", snap)
	}
}

func TestUpdateUserRoleReachesLiveSessions(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	u := f.seedUser(t, "shift@clinic.test", domain.RoleNurse)
	res := f.login(t, "shift@clinic.test")

	if err := f.svc.UpdateUserRole(context.Background(), u.UserID, UpdateRoleRequest{Role: "RECEPTIONIST"}); err != nil {
		t.Fatalf("update role: %v", err)
	}

	st, ok := f.registry.Get(res.SessionID)
	if !ok {
		t.Fatalf("session state missing")
	}
	if got := st.Snapshot().User.Role; got != domain.RoleReceptionist {
		t.Fatalf("live session still sees role %s", got)
	}
}

func TestCreateUserValidation(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)

	_, err := f.svc.CreateUser(context.Background(), CreateUserRequest{
		Email: "x@clinic.test", Password: "long-enough-password", Role: "SUPERUSER",
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected unknown role rejection, got %v", err)
	}

	_, err = f.svc.CreateUser(context.Background(), CreateUserRequest{
		Email: "x@clinic.test", Password: "short", Role: "NURSE",
	})
	if !errors.Is(err, domain.ErrInvalidInput) || !strings.Contains(err.Error(), "password") {
		t.Fatalf("expected short password rejection, got %v", err)
	}

	res, err := f.svc.CreateUser(context.Background(), CreateUserRequest{
		Email: "x@clinic.test", Password: "long-enough-password", Role: "nurse",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	created, _ := f.users.GetByID(context.Background(), res.UserID)
	if created.Role != domain.RoleNurse {
		t.Fatalf("role not normalized: %s", created.Role)
	}
}

func TestRevokeSessionOwnershipCheck(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	f.seedUser(t, "a@clinic.test", domain.RoleDoctor)
	f.seedUser(t, "b@clinic.test", domain.RoleDoctor)
	resA := f.login(t, "a@clinic.test")
	resB := f.login(t, "b@clinic.test")

	err := f.svc.RevokeSession(context.Background(), resA.Token, resB.SessionID)
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected cross-user revoke rejection, got %v", err)
	}

	if err := f.svc.RevokeSession(context.Background(), resA.Token, resA.SessionID); err != nil {
		t.Fatalf("self revoke: %v", err)
	}
	if _, ok := f.registry.Get(resA.SessionID); ok {
		t.Fatalf("revoked session must be unregistered")
	}
}
