package application

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/portal-access/internal/domain"
	"github.com/carebridge/portal-access/internal/ports"
	"github.com/carebridge/portal-access/internal/session"
)

// Service owns the portal auth use-cases: login, refresh, logout,
// token validation, session resolution for the route guard, and the
// administrative user-management surface.
type Service struct {
	cfg         Config
	users       ports.UserRepository
	sessions    ports.SessionRepository
	lockouts    ports.LockoutStore
	revocations ports.SessionRevocationStore
	hasher      ports.PasswordHasher
	tokenSigner ports.TokenSigner
	registry    *session.Registry
	nowFn       func() time.Time
}

type Dependencies struct {
	Config      Config
	Users       ports.UserRepository
	Sessions    ports.SessionRepository
	Lockouts    ports.LockoutStore
	Revocations ports.SessionRevocationStore
	Hasher      ports.PasswordHasher
	TokenSigner ports.TokenSigner
	Registry    *session.Registry
}

func NewService(deps Dependencies) *Service {
	return &Service{
		cfg:         deps.Config,
		users:       deps.Users,
		sessions:    deps.Sessions,
		lockouts:    deps.Lockouts,
		revocations: deps.Revocations,
		hasher:      deps.Hasher,
		tokenSigner: deps.TokenSigner,
		registry:    deps.Registry,
		nowFn:       func() time.Time { return time.Now().UTC() },
	}
}

// Registry exposes the shared session registry to the guard and the
// timeout monitor.
func (s *Service) Registry() *session.Registry {
	return s.registry
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return LoginResponse{}, err
	}

	lockKey := "login:" + email
	lockState, err := s.lockouts.Get(ctx, lockKey)
	if err == nil && lockState.LockedUntil != nil && lockState.LockedUntil.After(s.nowFn()) {
		return LoginResponse{}, domain.ErrAccountLocked
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return LoginResponse{}, domain.ErrInvalidCredentials
	}
	if !user.IsActive || user.DeletedAt != nil {
		return LoginResponse{}, domain.ErrInvalidCredentials
	}

	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		_, _ = s.lockouts.RecordFailure(ctx, lockKey, s.nowFn(), s.cfg.FailedLoginThreshold, s.cfg.LockoutDuration)
		return LoginResponse{}, domain.ErrInvalidCredentials
	}
	_ = s.lockouts.Clear(ctx, lockKey)

	if _, ok := domain.ParseRole(string(user.Role)); !ok {
		return LoginResponse{}, domain.ErrRoleResolutionFailed
	}

	now := s.nowFn()
	record, err := s.sessions.Create(ctx, ports.SessionCreateParams{
		UserID:         user.UserID,
		IPAddress:      req.IPAddress,
		UserAgent:      req.UserAgent,
		ExpiresAt:      now.Add(s.cfg.SessionTTL),
		LastActivityAt: now,
	})
	if err != nil {
		return LoginResponse{}, fmt.Errorf("create session: %w", err)
	}

	token, err := s.tokenSigner.Sign(ports.AuthClaims{
		UserID:    user.UserID,
		Email:     user.Email,
		Role:      user.Role,
		SessionID: record.SessionID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.TokenTTL),
	})
	if err != nil {
		return LoginResponse{}, fmt.Errorf("sign token: %w", err)
	}

	s.registry.GetOrCreate(record.SessionID).Set(user, record.SessionID, record.ExpiresAt)

	return LoginResponse{
		Token:     token,
		SessionID: record.SessionID,
		ExpiresIn: int64(s.cfg.TokenTTL.Seconds()),
		Role:      string(user.Role),
	}, nil
}

func (s *Service) Refresh(ctx context.Context, jwtToken string) (RefreshResponse, error) {
	claims, err := s.ValidateToken(ctx, jwtToken)
	if err != nil {
		return RefreshResponse{}, err
	}

	expiresAt, err := s.ExtendSession(ctx, claims.SessionID)
	if err != nil {
		return RefreshResponse{}, err
	}
	if st, ok := s.registry.Get(claims.SessionID); ok {
		st.ExtendIfCurrent(st.Generation(), expiresAt)
	}

	now := s.nowFn()
	newToken, err := s.tokenSigner.Sign(ports.AuthClaims{
		UserID:    claims.UserID,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: claims.SessionID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.TokenTTL),
	})
	if err != nil {
		return RefreshResponse{}, fmt.Errorf("sign refreshed token: %w", err)
	}

	return RefreshResponse{
		Token:     newToken,
		ExpiresAt: expiresAt,
		ExpiresIn: int64(s.cfg.TokenTTL.Seconds()),
	}, nil
}

// ExtendSession pushes the persisted expiry forward. It implements the
// timeout monitor's Extender collaborator; registry state is applied by
// the caller under its generation check.
func (s *Service) ExtendSession(ctx context.Context, sessionID uuid.UUID) (time.Time, error) {
	record, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return time.Time{}, domain.ErrUnauthorized
	}
	if record.RevokedAt != nil {
		return time.Time{}, domain.ErrSessionRevoked
	}
	now := s.nowFn()
	if record.ExpiresAt.Before(now) {
		return time.Time{}, domain.ErrSessionExpired
	}
	if s.cfg.SessionAbsoluteTTL > 0 && record.CreatedAt.Add(s.cfg.SessionAbsoluteTTL).Before(now) {
		return time.Time{}, domain.ErrSessionExpired
	}
	if revoked, _ := s.revocations.IsRevoked(ctx, sessionID); revoked {
		return time.Time{}, domain.ErrSessionRevoked
	}

	expiresAt := now.Add(s.cfg.SessionTTL)
	if err := s.sessions.Extend(ctx, sessionID, expiresAt); err != nil {
		return time.Time{}, err
	}
	_ = s.sessions.TouchActivity(ctx, sessionID, now)
	return expiresAt, nil
}

func (s *Service) Logout(ctx context.Context, jwtToken string) error {
	claims, err := s.tokenSigner.ParseAndValidate(jwtToken)
	if err != nil {
		return domain.ErrUnauthorized
	}
	now := s.nowFn()
	if err := s.sessions.RevokeByID(ctx, claims.SessionID, now); err != nil {
		return err
	}
	_ = s.revocations.MarkRevoked(ctx, claims.SessionID, now.Add(s.cfg.TokenTTL))

	if st, ok := s.registry.Get(claims.SessionID); ok {
		st.Clear()
	}
	s.registry.Remove(claims.SessionID)
	return nil
}

// ValidateToken verifies signature, revocation markers and the
// persisted session row. 401-class failures here are final; callers
// clear client state rather than retry.
func (s *Service) ValidateToken(ctx context.Context, token string) (ports.AuthClaims, error) {
	claims, err := s.tokenSigner.ParseAndValidate(token)
	if err != nil {
		return ports.AuthClaims{}, domain.ErrUnauthorized
	}
	if revoked, _ := s.revocations.IsRevoked(ctx, claims.SessionID); revoked {
		return ports.AuthClaims{}, domain.ErrSessionRevoked
	}
	record, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		return ports.AuthClaims{}, domain.ErrUnauthorized
	}
	if record.UserID != claims.UserID {
		return ports.AuthClaims{}, domain.ErrUnauthorized
	}
	if record.RevokedAt != nil {
		return ports.AuthClaims{}, domain.ErrSessionRevoked
	}
	if record.ExpiresAt.Before(s.nowFn()) {
		return ports.AuthClaims{}, domain.ErrSessionExpired
	}
	if s.cfg.SessionAbsoluteTTL > 0 && record.CreatedAt.Add(s.cfg.SessionAbsoluteTTL).Before(s.nowFn()) {
		return ports.AuthClaims{}, domain.ErrSessionExpired
	}
	return claims, nil
}

// ResolveState maps a raw portal token to the shared state container
// for its session, rehydrating from storage when the process has not
// seen the session yet. Any failure leaves the caller unauthenticated.
func (s *Service) ResolveState(ctx context.Context, rawToken string) (*session.State, error) {
	claims, err := s.ValidateToken(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	st := s.registry.GetOrCreate(claims.SessionID)
	if st.Snapshot().IsAuthenticated {
		return st, nil
	}

	// Fresh container: load the user so role and permission data is
	// current, then seed the session from the persisted record.
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		s.registry.Remove(claims.SessionID)
		return nil, domain.ErrUnauthorized
	}
	if !user.IsActive || user.DeletedAt != nil {
		s.registry.Remove(claims.SessionID)
		return nil, domain.ErrUnauthorized
	}
	record, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		s.registry.Remove(claims.SessionID)
		return nil, domain.ErrUnauthorized
	}
	st.Set(user, claims.SessionID, record.ExpiresAt)
	return st, nil
}

func (s *Service) CurrentUser(ctx context.Context, jwtToken string) (MeResponse, error) {
	claims, err := s.ValidateToken(ctx, jwtToken)
	if err != nil {
		return MeResponse{}, err
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return MeResponse{}, domain.ErrUnauthorized
	}

	perms := user.Permissions()
	names := make([]string, 0, len(perms))
	for p := range perms {
		names = append(names, string(p))
	}

	phase := session.PhaseUnauthenticated
	var expiresAt time.Time
	if st, ok := s.registry.Get(claims.SessionID); ok {
		phase = st.Phase()
		expiresAt = st.Snapshot().SessionExpiresAt
	}

	return MeResponse{
		UserID:      user.UserID,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Role:        string(user.Role),
		Permissions: names,
		SessionID:   claims.SessionID,
		ExpiresAt:   expiresAt,
		Phase:       phase.String(),
	}, nil
}

func (s *Service) ListSessions(ctx context.Context, jwtToken string) ([]SessionItem, error) {
	claims, err := s.ValidateToken(ctx, jwtToken)
	if err != nil {
		return nil, err
	}
	records, err := s.sessions.ListByUser(ctx, claims.UserID, 100, 0)
	if err != nil {
		return nil, err
	}
	result := make([]SessionItem, 0, len(records))
	for _, rec := range records {
		result = append(result, toSessionItem(rec, claims.SessionID))
	}
	return result, nil
}

// RevokeSession revokes one of the caller's own sessions, for example
// logging out another device from the sessions page.
func (s *Service) RevokeSession(ctx context.Context, jwtToken string, sessionID uuid.UUID) error {
	claims, err := s.ValidateToken(ctx, jwtToken)
	if err != nil {
		return err
	}
	target, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return domain.ErrNotFound
	}
	if target.UserID != claims.UserID {
		return domain.ErrUnauthorized
	}

	now := s.nowFn()
	if err := s.sessions.RevokeByID(ctx, sessionID, now); err != nil {
		return err
	}
	_ = s.revocations.MarkRevoked(ctx, sessionID, now.Add(s.cfg.TokenTTL))
	if st, ok := s.registry.Get(sessionID); ok {
		st.Clear()
	}
	s.registry.Remove(sessionID)
	return nil
}

func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (CreateUserResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return CreateUserResponse{}, err
	}
	role, ok := domain.ParseRole(req.Role)
	if !ok {
		return CreateUserResponse{}, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, req.Role)
	}
	if len(req.Password) < 12 {
		return CreateUserResponse{}, fmt.Errorf("%w: password must be at least 12 characters", domain.ErrInvalidInput)
	}

	grants := make([]domain.Permission, 0, len(req.ExtraGrants))
	for _, g := range req.ExtraGrants {
		grants = append(grants, domain.Permission(strings.ToUpper(strings.TrimSpace(g))))
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return CreateUserResponse{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, ports.CreateUserParams{
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Role:         role,
		ExtraGrants:  grants,
		CreatedAtUTC: s.nowFn(),
	})
	if err != nil {
		return CreateUserResponse{}, err
	}
	return CreateUserResponse{UserID: user.UserID}, nil
}

// UpdateUserRole reassigns a user's role and pushes the change into any
// live session state for that user, so the next navigation evaluates
// against the new role.
func (s *Service) UpdateUserRole(ctx context.Context, userID uuid.UUID, req UpdateRoleRequest) error {
	role, ok := domain.ParseRole(req.Role)
	if !ok {
		return fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, req.Role)
	}
	if err := s.users.UpdateRole(ctx, userID, role, s.nowFn()); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	records, err := s.sessions.ListByUser(ctx, userID, 100, 0)
	if err != nil {
		return nil
	}
	for _, rec := range records {
		if rec.RevokedAt != nil {
			continue
		}
		st, ok := s.registry.Get(rec.SessionID)
		if !ok {
			continue
		}
		if snap := st.Snapshot(); snap.IsAuthenticated {
			st.Set(user, rec.SessionID, snap.SessionExpiresAt)
		}
	}
	return nil
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]UserItem, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	users, err := s.users.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	result := make([]UserItem, 0, len(users))
	for _, u := range users {
		result = append(result, toUserItem(u))
	}
	return result, nil
}

func (s *Service) PublicJWKs() ([]map[string]any, error) {
	return s.tokenSigner.PublicJWKs()
}

func normalizeEmail(email string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(email))
	if trimmed == "" {
		return "", fmt.Errorf("%w: email is required", domain.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(trimmed); err != nil {
		return "", fmt.Errorf("%w: invalid email", domain.ErrInvalidInput)
	}
	return trimmed, nil
}
