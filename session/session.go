// Package session keeps track of who is signed in on a connection. Accounts live with the identity
// provider; the role is kept in a profile record keyed by the account's subject id.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	log "queueserver/cloudlog"
	"queueserver/collections"
	"queueserver/notify"
)

const (
	// DefaultRole is used when a profile has no role or doesn't exist.
	DefaultRole = "user"
	// Admin and Staff are the other roles offered at sign-up.
	Admin = "admin"
	Staff = "staff"
)

var (
	// ErrMissingFields is given when sign-up or sign-in is missing a required field.
	ErrMissingFields = errors.New("missing required fields")
	// ErrInvalidRole is given when sign-up asks for a role that isn't offered.
	ErrInvalidRole = errors.New("role is not one of the offered roles")
)

// Roles returns the roles that can be chosen at sign-up.
func Roles() []string {
	return []string{DefaultRole, Admin, Staff}
}

// Identity is the signed-in user as seen by the rest of the server.
type Identity struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL"`
	Role        string `json:"role"`
}

// Account is what the identity provider knows about a user.
type Account struct {
	UID         string
	Email       string
	DisplayName string
	PhotoURL    string
	// IDToken is set when the provider issued a token (sign-in and sign-up).
	IDToken string
}

// ProviderError is a failure reported by the identity provider. Message is meant for the user.
type ProviderError struct {
	Code    string
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IdentityProvider signs users in and up and verifies tokens it issued.
type IdentityProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Account, error)
	SignUpWithPassword(ctx context.Context, email, password, displayName string) (*Account, error)
	VerifyToken(ctx context.Context, idToken string) (*Account, error)
}

// ProfileStore persists the profile written at sign-up.
type ProfileStore interface {
	CreateProfile(ctx context.Context, uid string, entry collections.ProfileEntry) error
	// Profile returns nil without an error when the profile doesn't exist.
	Profile(ctx context.Context, uid string) (*collections.ProfileEntry, error)
}

// Session is the identity state of one connection. It is safe for concurrent use.
type Session struct {
	provider IdentityProvider
	profiles ProfileStore
	notifier notify.Notifier
	now      func() time.Time

	mu        sync.Mutex
	current   *Identity
	idToken   string
	loading   bool
	observers []func(*Identity)
}

// New returns a signed-out Session.
func New(provider IdentityProvider, profiles ProfileStore, notifier notify.Notifier) *Session {
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Session{
		provider: provider,
		profiles: profiles,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// OnChange registers fn to be called with the new identity (nil when signed out) every time it changes.
func (s *Session) OnChange(fn func(*Identity)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Current returns a copy of the signed-in identity, or nil.
func (s *Session) Current() *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	identity := *s.current
	return &identity
}

// IDToken gives the token issued at the last sign-in, sign-up or resume.
func (s *Session) IDToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idToken
}

// Loading reports whether a sign-in, sign-up or resume is in flight.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// SignIn verifies the credentials with the identity provider and loads the user's role.
func (s *Session) SignIn(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		s.notifier.Error("Please fill in all fields")
		return ErrMissingFields
	}
	s.setLoading(true)
	defer s.setLoading(false)

	account, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		log.Printf("Error signing in %s: %v", email, err)
		s.notifyFailure(err, "Failed to sign in. Please try again.")
		return err
	}
	s.setIdentity(s.identityFor(ctx, account), account.IDToken)
	s.notifier.Success("Successfully signed in!")
	return nil
}

// SignUp creates an account with the identity provider and stores its profile with the chosen role.
func (s *Session) SignUp(ctx context.Context, email, password, name, role string) error {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if email == "" || password == "" || name == "" {
		s.notifier.Error("Please fill in all required fields")
		return ErrMissingFields
	}
	if role == "" {
		role = DefaultRole
	}
	if !validRole(role) {
		s.notifier.Error("Please select a valid role")
		return ErrInvalidRole
	}
	s.setLoading(true)
	defer s.setLoading(false)

	account, err := s.provider.SignUpWithPassword(ctx, email, password, name)
	if err != nil {
		log.Printf("Error signing up %s: %v", email, err)
		s.notifyFailure(err, "Failed to create account. Please try again.")
		return err
	}
	// The account exists from here on, so the user is signed in even if the profile write fails;
	// without a profile the role falls back to the default on the next resume.
	identity := accountIdentity(account)
	identity.DisplayName = name
	err = s.profiles.CreateProfile(ctx, account.UID, collections.ProfileEntry{
		Email:     email,
		Name:      name,
		Role:      role,
		CreatedAt: s.now(),
	})
	if err != nil {
		log.Printf("Error storing profile for %s: %v", account.UID, err)
		identity.Role = DefaultRole
		s.setIdentity(identity, account.IDToken)
		s.notifyFailure(err, "Failed to create account. Please try again.")
		return err
	}
	identity.Role = role
	s.setIdentity(identity, account.IDToken)
	s.notifier.Success("Account created successfully!")
	return nil
}

// Resume restores a session from an ID token issued by an earlier sign-in.
func (s *Session) Resume(ctx context.Context, idToken string) error {
	if idToken == "" {
		s.notifier.Error("Your session has expired. Please sign in again.")
		return ErrMissingFields
	}
	s.setLoading(true)
	defer s.setLoading(false)

	account, err := s.provider.VerifyToken(ctx, idToken)
	if err != nil {
		log.Printf("Error resuming session: %v", err)
		s.notifyFailure(err, "Your session has expired. Please sign in again.")
		return err
	}
	s.setIdentity(s.identityFor(ctx, account), idToken)
	return nil
}

// SignOut forgets the signed-in identity. It never fails; signing out while signed out is a no-op
// apart from the notification.
func (s *Session) SignOut(_ context.Context) {
	s.setIdentity(nil, "")
	s.notifier.Success("Successfully signed out!")
}

// identityFor builds the identity for account, reading the role from its profile.
func (s *Session) identityFor(ctx context.Context, account *Account) *Identity {
	identity := accountIdentity(account)
	profile, err := s.profiles.Profile(ctx, account.UID)
	if err != nil {
		log.Printf("Error reading profile for %s: %v", account.UID, err)
	}
	if profile != nil && profile.Role != "" {
		identity.Role = profile.Role
	}
	return identity
}

func accountIdentity(account *Account) *Identity {
	return &Identity{
		UID:         account.UID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
		PhotoURL:    account.PhotoURL,
		Role:        DefaultRole,
	}
}

func (s *Session) setLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = loading
}

func (s *Session) setIdentity(identity *Identity, idToken string) {
	s.mu.Lock()
	s.current = identity
	s.idToken = idToken
	observers := make([]func(*Identity), len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, fn := range observers {
		if identity == nil {
			fn(nil)
			continue
		}
		copied := *identity
		fn(&copied)
	}
}

func (s *Session) notifyFailure(err error, fallback string) {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) && providerErr.Message != "" {
		s.notifier.Error(providerErr.Message)
		return
	}
	s.notifier.Error(fallback)
}

func validRole(role string) bool {
	for _, r := range Roles() {
		if r == role {
			return true
		}
	}
	return false
}
