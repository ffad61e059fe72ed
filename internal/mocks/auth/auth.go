// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.
package auth

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	domainauth "github.com/wallmag/wallmag-api/internal/domain/auth"
	"github.com/wallmag/wallmag-api/internal/domain/model"
	apperrors "github.com/wallmag/wallmag-api/internal/errors"
	"github.com/wallmag/wallmag-api/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthProvider    = (*MockAuthProvider)(nil)
	_ ports.KeyValueStore   = (*MemoryStore)(nil)
	_ ports.CredentialStore = (*MemoryCredentialStore)(nil)
)

// MockAuthProvider simulates an IdP for tests with deterministic state/nonce handling.
type MockAuthProvider struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error)

	// Deterministic values for predictable testing
	AuthURL     string
	StatePrefix string
	NoncePrefix string
	DefaultUser domainauth.Identity

	mu        sync.Mutex
	callCount int
}

// NewMockAuthProvider creates a MockAuthProvider with sensible defaults.
func NewMockAuthProvider() *MockAuthProvider {
	return &MockAuthProvider{
		AuthURL:     "https://mock-idp/auth",
		StatePrefix: "state",
		NoncePrefix: "nonce",
		DefaultUser: defaultIdentity(),
	}
}

func defaultIdentity() domainauth.Identity {
	return domainauth.Identity{
		Subject:       "mock-sub-1",
		Email:         "mock.user@example.com",
		EmailVerified: true,
		Name:          "Mock User",
	}
}

func (m *MockAuthProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}

	m.mu.Lock()
	m.callCount++
	n := m.callCount
	m.mu.Unlock()

	authURL := m.AuthURL
	if authURL == "" {
		authURL = "https://mock-idp/auth"
	}
	statePrefix := m.StatePrefix
	if statePrefix == "" {
		statePrefix = "state"
	}
	noncePrefix := m.NoncePrefix
	if noncePrefix == "" {
		noncePrefix = "nonce"
	}

	return authURL, fmt.Sprintf("%s-%d", statePrefix, n), fmt.Sprintf("%s-%d", noncePrefix, n), nil
}

func (m *MockAuthProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}
	if m.DefaultUser.Subject == "" {
		return defaultIdentity(), nil
	}
	return m.DefaultUser, nil
}

type memEntry struct {
	value   string
	expires time.Time
}

// MemoryStore is an in-memory ports.KeyValueStore with TTL support driven by
// an adjustable clock. Setting Err makes every call fail with it.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]memEntry
	now  time.Time
	Err  error
}

// NewMemoryStore creates an empty store whose clock starts at the current time.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]memEntry), now: time.Now()}
}

// Advance moves the store clock forward, expiring keys as a real store would.
func (m *MemoryStore) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// TTL returns the remaining lifetime of key, or zero when absent.
func (m *MemoryStore) TTL(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok {
		return 0
	}
	return e.expires.Sub(m.now)
}

// Keys returns the live keys with the given prefix, sorted.
func (m *MemoryStore) Keys(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.data {
		if _, ok := m.live(k); ok && strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

func (m *MemoryStore) live(key string) (memEntry, bool) {
	e, ok := m.data[key]
	if !ok {
		return memEntry{}, false
	}
	if !m.now.Before(e.expires) {
		delete(m.data, key)
		return memEntry{}, false
	}
	return e, true
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	if err := m.fail(ctx); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok {
		return "", ports.ErrKeyNotFound
	}
	return e.value, nil
}

func (m *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := m.fail(ctx); err != nil {
		return err
	}
	if ttl <= 0 {
		return fmt.Errorf("set %s: ttl must be positive", key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = memEntry{value: value, expires: m.now.Add(ttl)}
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	if err := m.fail(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *MemoryStore) IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := m.fail(ctx); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	var n int64
	if ok {
		if _, err := fmt.Sscan(e.value, &n); err != nil {
			return 0, fmt.Errorf("incr %s: value is not an integer", key)
		}
	} else {
		e.expires = m.now.Add(ttl)
	}
	n++
	e.value = fmt.Sprint(n)
	m.data[key] = e
	return n, nil
}

func (m *MemoryStore) Scan(ctx context.Context, prefix string, fn func(key string) error) error {
	if err := m.fail(ctx); err != nil {
		return err
	}
	for _, k := range m.Keys(prefix) {
		if err := fn(k); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) fail(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Err
}

// MemoryCredentialStore is an in-memory ports.CredentialStore.
// Setting Err makes every call fail with it.
type MemoryCredentialStore struct {
	mu    sync.Mutex
	users map[string]*model.User
	Err   error
}

// NewMemoryCredentialStore creates a store seeded with users.
func NewMemoryCredentialStore(users ...*model.User) *MemoryCredentialStore {
	s := &MemoryCredentialStore{users: make(map[string]*model.User)}
	for _, u := range users {
		s.Put(u)
	}
	return s
}

// Put inserts or replaces a user, assigning an id when empty.
func (s *MemoryCredentialStore) Put(u *model.User) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneUser(u)
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
		cp.UpdatedAt = cp.CreatedAt
	}
	s.users[cp.ID] = cp
	return cloneUser(cp)
}

// Remove deletes a user.
func (s *MemoryCredentialStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

func cloneUser(u *model.User) *model.User {
	cp := *u
	cp.Roles = slices.Clone(u.Roles)
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		cp.LastLoginAt = &t
	}
	return &cp
}

func (s *MemoryCredentialStore) lookup(id string) (*model.User, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, apperrors.NotFoundf("user %s not found", id)
	}
	return u, nil
}

func (s *MemoryCredentialStore) GetByID(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return cloneUser(u), nil
}

func (s *MemoryCredentialStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, apperrors.NotFoundf("user %s not found", email)
}

func (s *MemoryCredentialStore) FindOrCreateFromProvider(
	_ context.Context,
	ident domainauth.Identity,
) (*model.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, false, s.Err
	}
	email, err := model.NormalizeEmail(ident.Email)
	if err != nil {
		return nil, false, apperrors.ValidationField("email", err.Error())
	}
	for _, u := range s.users {
		if u.GoogleID == ident.Subject {
			return cloneUser(u), false, nil
		}
	}
	for _, u := range s.users {
		if u.Email == email {
			u.GoogleID = ident.Subject
			return cloneUser(u), false, nil
		}
	}
	now := time.Now().UTC()
	u := &model.User{
		ID:         uuid.NewString(),
		Email:      email,
		Name:       ident.Name,
		PictureURL: ident.PictureURL,
		GoogleID:   ident.Subject,
		Roles:      []domainauth.Role{domainauth.RoleUser},
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.users[u.ID] = u
	return cloneUser(u), true, nil
}

func (s *MemoryCredentialStore) Create(_ context.Context, req model.CreateUserRequest) (*model.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid user")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, u := range s.users {
		if u.Email == req.Email {
			return nil, apperrors.Conflict("email already exists")
		}
	}
	now := time.Now().UTC()
	u := &model.User{
		ID:        uuid.NewString(),
		Email:     req.Email,
		Name:      req.Name,
		Roles:     slices.Clone(req.Roles),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.users[u.ID] = u
	return cloneUser(u), nil
}

func (s *MemoryCredentialStore) UpdateRoles(_ context.Context, id string, roles []domainauth.Role) (*model.User, error) {
	if err := domainauth.ValidateRoleSet(roles); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid role set")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	u.Roles = slices.Clone(roles)
	u.UpdatedAt = time.Now().UTC()
	return cloneUser(u), nil
}

func (s *MemoryCredentialStore) SetActive(_ context.Context, id string, active bool) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	u.Active = active
	u.UpdatedAt = time.Now().UTC()
	return cloneUser(u), nil
}

func (s *MemoryCredentialStore) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.lookup(id)
	if err != nil {
		return err
	}
	at = at.UTC()
	u.LastLoginAt = &at
	return nil
}

func (s *MemoryCredentialStore) List(_ context.Context, opts model.UserListOptions) ([]*model.User, error) {
	opts.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]*model.User, 0)
	for _, u := range s.users {
		if !opts.IncludeInactive && !u.Active {
			continue
		}
		if len(opts.Roles) > 0 && !slices.ContainsFunc(u.Roles, func(r domainauth.Role) bool {
			return slices.Contains(opts.Roles, r)
		}) {
			continue
		}
		out = append(out, cloneUser(u))
	}
	slices.SortFunc(out, func(a, b *model.User) int { return strings.Compare(a.Email, b.Email) })
	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *MemoryCredentialStore) Search(_ context.Context, query string, limit int) ([]*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if limit <= 0 {
		limit = 10
	}
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]*model.User, 0)
	for _, u := range s.users {
		if !u.Active {
			continue
		}
		if strings.Contains(u.Email, q) || strings.Contains(strings.ToLower(u.Name), q) {
			out = append(out, cloneUser(u))
		}
	}
	slices.SortFunc(out, func(a, b *model.User) int { return strings.Compare(a.Email, b.Email) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
