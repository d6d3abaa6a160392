package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"fmt"
	"sync"

	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	"github.com/culturemaker/cmk-api/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthFlow           = (*MockAuthFlow)(nil)
	_ ports.CredentialVerifier = (*StaticVerifier)(nil)
	_ ports.Directory          = (*MemoryDirectory)(nil)
	_ ports.SessionStore       = (*MemorySessionStore)(nil)
	_ ports.PrincipalStore     = (*MemoryPrincipalStore)(nil)
)

// MockAuthFlow simulates an IdP redirect with deterministic state/nonce handling.
type MockAuthFlow struct {
	BeginFunc func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)

	AuthURL     string
	StatePrefix string
	NoncePrefix string

	mu        sync.Mutex
	callCount int
}

// NewMockAuthFlow creates a MockAuthFlow with sensible defaults.
func NewMockAuthFlow() *MockAuthFlow {
	return &MockAuthFlow{
		AuthURL:     "https://mock-idp/auth",
		StatePrefix: "state",
		NoncePrefix: "nonce",
	}
}

func (m *MockAuthFlow) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
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

// StaticVerifier accepts a fixed set of email/password pairs, or the Code of an
// OIDC-style callback when Codes is populated.
type StaticVerifier struct {
	VerifyFunc func(ctx context.Context, creds domainauth.Credentials) (domainauth.Principal, error)

	mu        sync.Mutex
	passwords map[string]string
	accounts  map[string]domainauth.Principal
	codes     map[string]domainauth.Principal
	calls     int
}

// NewStaticVerifier creates an empty StaticVerifier.
func NewStaticVerifier() *StaticVerifier {
	return &StaticVerifier{
		passwords: make(map[string]string),
		accounts:  make(map[string]domainauth.Principal),
		codes:     make(map[string]domainauth.Principal),
	}
}

// AddAccount registers a password login for p.
func (v *StaticVerifier) AddAccount(p domainauth.Principal, password string) *StaticVerifier {
	v.mu.Lock()
	defer v.mu.Unlock()
	key := domainauth.NormalizeEmail(p.Email)
	v.passwords[key] = password
	v.accounts[key] = p
	return v
}

// AddCode registers an authorization code that logs p in.
func (v *StaticVerifier) AddCode(code string, p domainauth.Principal) *StaticVerifier {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.codes[code] = p
	return v
}

// Calls returns how many times Verify ran.
func (v *StaticVerifier) Calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

func (v *StaticVerifier) Verify(ctx context.Context, creds domainauth.Credentials) (domainauth.Principal, error) {
	v.mu.Lock()
	v.calls++
	v.mu.Unlock()
	if v.VerifyFunc != nil {
		return v.VerifyFunc(ctx, creds)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if creds.Code != "" {
		if p, ok := v.codes[creds.Code]; ok {
			return p, nil
		}
		return domainauth.Principal{}, domainauth.ErrInvalidCredentials
	}
	key := domainauth.NormalizeEmail(creds.Email)
	if pw, ok := v.passwords[key]; ok && pw == creds.Password {
		return v.accounts[key], nil
	}
	return domainauth.Principal{}, domainauth.ErrInvalidCredentials
}

// DirectoryCall records one lookup made against a MemoryDirectory.
type DirectoryCall struct {
	Kind    domainauth.DirectoryKind
	Key     string
	ByEmail bool
}

// MemoryDirectory is an in-memory role directory with failure injection.
type MemoryDirectory struct {
	mu      sync.Mutex
	records map[domainauth.DirectoryKind]map[string]domainauth.RoleRecord
	emails  map[string]domainauth.RoleRecord
	fail    map[domainauth.DirectoryKind]error
	calls   []DirectoryCall

	// Gate, when set, is called before every lookup; tests use it to hold a probe open.
	Gate func(ctx context.Context, call DirectoryCall) error
}

// NewMemoryDirectory creates an empty MemoryDirectory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		records: make(map[domainauth.DirectoryKind]map[string]domainauth.RoleRecord),
		emails:  make(map[string]domainauth.RoleRecord),
		fail:    make(map[domainauth.DirectoryKind]error),
	}
}

// Put stores rec under its Kind and ID. Sub-admin records are also indexed by email.
func (d *MemoryDirectory) Put(rec domainauth.RoleRecord) *MemoryDirectory {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.records[rec.Kind] == nil {
		d.records[rec.Kind] = make(map[string]domainauth.RoleRecord)
	}
	if rec.ID != "" {
		d.records[rec.Kind][rec.ID] = rec
	}
	if rec.Kind == domainauth.DirectorySubAdmins && rec.Email != "" {
		d.emails[domainauth.NormalizeEmail(rec.Email)] = rec
	}
	return d
}

// Remove deletes a record by kind and id.
func (d *MemoryDirectory) Remove(kind domainauth.DirectoryKind, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rec, ok := d.records[kind][id]; ok && kind == domainauth.DirectorySubAdmins {
		delete(d.emails, domainauth.NormalizeEmail(rec.Email))
	}
	delete(d.records[kind], id)
}

// Fail makes every lookup in kind return err; a nil err clears the failure.
func (d *MemoryDirectory) Fail(kind domainauth.DirectoryKind, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.fail, kind)
		return
	}
	d.fail[kind] = err
}

// Calls returns a copy of the lookups made so far.
func (d *MemoryDirectory) Calls() []DirectoryCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DirectoryCall(nil), d.calls...)
}

func (d *MemoryDirectory) Lookup(ctx context.Context, kind domainauth.DirectoryKind, id string) (domainauth.RoleRecord, error) {
	call := DirectoryCall{Kind: kind, Key: id}
	if err := d.before(ctx, call); err != nil {
		return domainauth.RoleRecord{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.records[kind][id]
	if !ok {
		return domainauth.RoleRecord{}, domainauth.ErrRecordNotFound
	}
	return rec, nil
}

func (d *MemoryDirectory) SubAdminByEmail(ctx context.Context, email string) (domainauth.RoleRecord, error) {
	call := DirectoryCall{Kind: domainauth.DirectorySubAdmins, Key: email, ByEmail: true}
	if err := d.before(ctx, call); err != nil {
		return domainauth.RoleRecord{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.emails[domainauth.NormalizeEmail(email)]
	if !ok {
		return domainauth.RoleRecord{}, domainauth.ErrRecordNotFound
	}
	return rec, nil
}

func (d *MemoryDirectory) before(ctx context.Context, call DirectoryCall) error {
	d.mu.Lock()
	d.calls = append(d.calls, call)
	failErr := d.fail[call.Kind]
	gate := d.Gate
	d.mu.Unlock()

	if gate != nil {
		if err := gate(ctx, call); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return failErr
}

// MemorySessionStore is an in-memory durable slot for unit tests.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session

	// SaveErr and DeleteErr, when set, are returned by the matching calls.
	SaveErr   error
	DeleteErr error
	GetErr    error
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]domainauth.Session)}
}

func (m *MemorySessionStore) Save(_ context.Context, clientID string, sess domainauth.Session) error {
	if clientID == "" {
		return errors.New("client ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.sessions[clientID] = sess
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, clientID string) (*domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	sess, ok := m.sessions[clientID]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.sessions, clientID)
	return nil
}

// MemoryPrincipalStore is an in-memory principal store for unit tests.
type MemoryPrincipalStore struct {
	mu         sync.Mutex
	principals map[string]domainauth.Principal
}

// NewMemoryPrincipalStore creates a new in-memory principal store.
func NewMemoryPrincipalStore() *MemoryPrincipalStore {
	return &MemoryPrincipalStore{principals: make(map[string]domainauth.Principal)}
}

func (m *MemoryPrincipalStore) Save(_ context.Context, clientID string, p domainauth.Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.principals[clientID] = p
	return nil
}

func (m *MemoryPrincipalStore) Load(_ context.Context, clientID string) (*domainauth.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[clientID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MemoryPrincipalStore) Delete(_ context.Context, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.principals, clientID)
	return nil
}

// FakeGateway is an in-memory ports.AuthGateway that counts sign-outs. Login accepts
// any credentials whose Email matches a principal registered with Allow.
type FakeGateway struct {
	mu        sync.Mutex
	current   *domainauth.Principal
	allowed   map[string]domainauth.Principal
	listeners map[int]ports.PrincipalListener
	nextID    int
	logouts   int
	LogoutErr error
}

var _ ports.AuthGateway = (*FakeGateway)(nil)

// NewFakeGateway creates a FakeGateway with no principal signed in.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		allowed:   make(map[string]domainauth.Principal),
		listeners: make(map[int]ports.PrincipalListener),
	}
}

// Allow lets p log in with its email and any password.
func (g *FakeGateway) Allow(p domainauth.Principal) *FakeGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.allowed[domainauth.NormalizeEmail(p.Email)] = p
	return g
}

// Logouts returns how many times Logout was called.
func (g *FakeGateway) Logouts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.logouts
}

// Emit makes p current and notifies listeners, as if the provider pushed a change.
func (g *FakeGateway) Emit(p *domainauth.Principal) {
	g.mu.Lock()
	g.current = p
	ls := make([]ports.PrincipalListener, 0, len(g.listeners))
	for _, fn := range g.listeners {
		ls = append(ls, fn)
	}
	g.mu.Unlock()
	for _, fn := range ls {
		fn(p)
	}
}

func (g *FakeGateway) Login(_ context.Context, creds domainauth.Credentials) (domainauth.Principal, error) {
	g.mu.Lock()
	p, ok := g.allowed[domainauth.NormalizeEmail(creds.Email)]
	g.mu.Unlock()
	if !ok {
		return domainauth.Principal{}, domainauth.ErrInvalidCredentials
	}
	g.Emit(&p)
	return p, nil
}

func (g *FakeGateway) Logout(_ context.Context) error {
	g.mu.Lock()
	g.logouts++
	err := g.LogoutErr
	g.mu.Unlock()
	g.Emit(nil)
	return err
}

func (g *FakeGateway) Current() *domainauth.Principal {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return nil
	}
	cp := *g.current
	return &cp
}

func (g *FakeGateway) Subscribe(fn ports.PrincipalListener) func() {
	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.listeners[id] = fn
	cur := g.current
	g.mu.Unlock()
	fn(cur)

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.listeners, id)
			g.mu.Unlock()
		})
	}
}

func (g *FakeGateway) Restore(context.Context) error { return nil }
