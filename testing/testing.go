// Package testing holds in-memory stand-ins for Firestore, the identity provider, Pub/Sub and the
// notification channel, so services can be tested without the emulators.
package testing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"queueserver/collections"
	"queueserver/notify"
	"queueserver/remotejob"
	"queueserver/session"

	"cloud.google.com/go/firestore"
)

// NewFirestoreTestClient creates a new client for testing. It requires a local Firestore emulator
// (FIRESTORE_EMULATOR_HOST) to be running on the user's machine.
func NewFirestoreTestClient(ctx context.Context) (*firestore.Client, error) {
	return firestore.NewClient(ctx, "test")
}

// FakeStore is an in-memory queue and profile store. Join times are assigned from a fake clock
// that advances one second per insert, so insertion order is join order.
type FakeStore struct {
	mu sync.Mutex

	entries  []collections.QueueEntry
	profiles map[string]collections.ProfileEntry
	nextID   int
	clock    time.Time
	watchers map[*watcher]bool

	// Errors returned by the matching methods when set.
	ExistsErr        error
	AddErr           error
	DeleteErr        error
	ProfileErr       error
	CreateProfileErr error

	// Call counters.
	ExistsCalls int
	AddCalls    int
	DeleteCalls int
}

type watcher struct {
	changed chan struct{}
	failed  chan error
}

// NewFakeStore returns an empty store.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		profiles: map[string]collections.ProfileEntry{},
		clock:    time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		watchers: map[*watcher]bool{},
	}
}

// Seed inserts records directly, as if another client had joined. It returns their ids.
func (fs *FakeStore) Seed(entries ...collections.QueueEntry) []string {
	fs.mu.Lock()
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, fs.insertLocked(e))
	}
	fs.mu.Unlock()
	fs.changed()
	return ids
}

// Entries returns the stored records ordered by join time.
func (fs *FakeStore) Entries() []collections.QueueEntry {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.snapshotLocked()
}

// SetProfile stores a profile without going through sign-up.
func (fs *FakeStore) SetProfile(uid string, entry collections.ProfileEntry) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.profiles[uid] = entry
}

// StoredProfile returns the profile stored for uid.
func (fs *FakeStore) StoredProfile(uid string) (collections.ProfileEntry, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	p, ok := fs.profiles[uid]
	return p, ok
}

// FailWatch ends every running WatchQueue with err.
func (fs *FakeStore) FailWatch(err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for w := range fs.watchers {
		select {
		case w.failed <- err:
		default:
		}
	}
}

// Watchers gives the number of running WatchQueue calls.
func (fs *FakeStore) Watchers() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.watchers)
}

// CreateProfile implements session.ProfileStore.
func (fs *FakeStore) CreateProfile(ctx context.Context, uid string, entry collections.ProfileEntry) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.CreateProfileErr != nil {
		return fs.CreateProfileErr
	}
	fs.profiles[uid] = entry
	return nil
}

// Profile implements session.ProfileStore.
func (fs *FakeStore) Profile(ctx context.Context, uid string) (*collections.ProfileEntry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.ProfileErr != nil {
		return nil, fs.ProfileErr
	}
	p, ok := fs.profiles[uid]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// MembershipExists implements queue.Datastore.
func (fs *FakeStore) MembershipExists(ctx context.Context, userID, queueType string) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.ExistsCalls++
	if fs.ExistsErr != nil {
		return false, fs.ExistsErr
	}
	for _, e := range fs.entries {
		if e.UserID == userID && e.QueueType == queueType {
			return true, nil
		}
	}
	return false, nil
}

// AddMembership implements queue.Datastore.
func (fs *FakeStore) AddMembership(ctx context.Context, entry collections.QueueEntry) (string, error) {
	fs.mu.Lock()
	fs.AddCalls++
	if fs.AddErr != nil {
		fs.mu.Unlock()
		return "", fs.AddErr
	}
	id := fs.insertLocked(entry)
	fs.mu.Unlock()
	fs.changed()
	return id, nil
}

// DeleteMembership implements queue.Datastore.
func (fs *FakeStore) DeleteMembership(ctx context.Context, id string) error {
	fs.mu.Lock()
	fs.DeleteCalls++
	if fs.DeleteErr != nil {
		fs.mu.Unlock()
		return fs.DeleteErr
	}
	kept := fs.entries[:0]
	for _, e := range fs.entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	fs.entries = kept
	fs.mu.Unlock()
	fs.changed()
	return nil
}

// WatchQueue calls fn with the current records and again after every change until ctx is done or
// FailWatch is called.
func (fs *FakeStore) WatchQueue(ctx context.Context, fn func([]collections.QueueEntry)) error {
	w := &watcher{
		changed: make(chan struct{}, 1),
		failed:  make(chan error, 1),
	}
	fs.mu.Lock()
	fs.watchers[w] = true
	fs.mu.Unlock()
	defer func() {
		fs.mu.Lock()
		delete(fs.watchers, w)
		fs.mu.Unlock()
	}()

	fn(fs.Entries())
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-w.failed:
			return err
		case <-w.changed:
			fn(fs.Entries())
		}
	}
}

func (fs *FakeStore) insertLocked(e collections.QueueEntry) string {
	fs.nextID++
	e.ID = fmt.Sprintf("rec-%03d", fs.nextID)
	if e.JoinedAt.IsZero() {
		fs.clock = fs.clock.Add(time.Second)
		e.JoinedAt = fs.clock
	}
	fs.entries = append(fs.entries, e)
	return e.ID
}

func (fs *FakeStore) snapshotLocked() []collections.QueueEntry {
	out := make([]collections.QueueEntry, len(fs.entries))
	copy(out, fs.entries)
	sort.SliceStable(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out
}

func (fs *FakeStore) changed() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for w := range fs.watchers {
		select {
		case w.changed <- struct{}{}:
		default:
		}
	}
}

type fakeAccount struct {
	account  session.Account
	password string
}

// FakeIdentityProvider implements session.IdentityProvider with accounts kept in memory. Tokens are
// "token-" followed by the uid.
type FakeIdentityProvider struct {
	mu       sync.Mutex
	accounts map[string]fakeAccount
	nextUID  int

	// SignInErr, when set, is returned by SignInWithPassword.
	SignInErr error
	// SignUpErr, when set, is returned by SignUpWithPassword.
	SignUpErr error
}

// NewFakeIdentityProvider returns a provider without accounts.
func NewFakeIdentityProvider() *FakeIdentityProvider {
	return &FakeIdentityProvider{accounts: map[string]fakeAccount{}}
}

// AddAccount registers an account and returns its token.
func (fp *FakeIdentityProvider) AddAccount(uid, email, password, displayName string) string {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.accounts[email] = fakeAccount{
		account: session.Account{
			UID:         uid,
			Email:       email,
			DisplayName: displayName,
			IDToken:     "token-" + uid,
		},
		password: password,
	}
	return "token-" + uid
}

// SignInWithPassword implements session.IdentityProvider.
func (fp *FakeIdentityProvider) SignInWithPassword(ctx context.Context, email, password string) (*session.Account, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	if fp.SignInErr != nil {
		return nil, fp.SignInErr
	}
	a, ok := fp.accounts[email]
	if !ok || a.password != password {
		return nil, &session.ProviderError{Code: "INVALID_PASSWORD", Message: "Invalid email or password."}
	}
	account := a.account
	return &account, nil
}

// SignUpWithPassword implements session.IdentityProvider.
func (fp *FakeIdentityProvider) SignUpWithPassword(ctx context.Context, email, password, displayName string) (*session.Account, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	if fp.SignUpErr != nil {
		return nil, fp.SignUpErr
	}
	if _, ok := fp.accounts[email]; ok {
		return nil, &session.ProviderError{Code: "EMAIL_EXISTS", Message: "An account with this email already exists."}
	}
	fp.nextUID++
	uid := fmt.Sprintf("uid-%d", fp.nextUID)
	a := fakeAccount{
		account: session.Account{
			UID:         uid,
			Email:       email,
			DisplayName: displayName,
			IDToken:     "token-" + uid,
		},
		password: password,
	}
	fp.accounts[email] = a
	account := a.account
	return &account, nil
}

// VerifyToken implements session.IdentityProvider.
func (fp *FakeIdentityProvider) VerifyToken(ctx context.Context, idToken string) (*session.Account, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	for _, a := range fp.accounts {
		if a.account.IDToken == idToken {
			account := a.account
			account.IDToken = ""
			return &account, nil
		}
	}
	return nil, &session.ProviderError{Code: "INVALID_ID_TOKEN", Message: "Your session has expired. Please sign in again."}
}

// Notice is one recorded notification.
type Notice struct {
	Level string
	Text  string
}

// RecordingNotifier keeps every notification it receives.
type RecordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

// Success implements notify.Notifier.
func (rn *RecordingNotifier) Success(text string) { rn.add(notify.LevelSuccess, text) }

// Error implements notify.Notifier.
func (rn *RecordingNotifier) Error(text string) { rn.add(notify.LevelError, text) }

func (rn *RecordingNotifier) add(level, text string) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	rn.notices = append(rn.notices, Notice{Level: level, Text: text})
}

// Notices returns everything recorded so far.
func (rn *RecordingNotifier) Notices() []Notice {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	out := make([]Notice, len(rn.notices))
	copy(out, rn.notices)
	return out
}

// Last returns the most recent notification.
func (rn *RecordingNotifier) Last() (Notice, bool) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	if len(rn.notices) == 0 {
		return Notice{}, false
	}
	return rn.notices[len(rn.notices)-1], true
}

// FakePublisher records queue events instead of sending them to Pub/Sub.
type FakePublisher struct {
	mu     sync.Mutex
	events []remotejob.QueueEvent
}

// PublishQueueEvent implements queue.Publisher.
func (fp *FakePublisher) PublishQueueEvent(event remotejob.QueueEvent) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.events = append(fp.events, event)
}

// Events returns the recorded events.
func (fp *FakePublisher) Events() []remotejob.QueueEvent {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	out := make([]remotejob.QueueEvent, len(fp.events))
	copy(out, fp.events)
	return out
}
