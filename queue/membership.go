package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "queueserver/cloudlog"
	"queueserver/collections"
	"queueserver/notify"
	"queueserver/remotejob"
	"queueserver/session"
)

var (
	// ErrNotSignedIn is given when joining or leaving without a signed-in identity.
	ErrNotSignedIn = errors.New("not signed in")
	// ErrAlreadyQueued is given when the user already has a record in the queue.
	ErrAlreadyQueued = errors.New("already in this queue")
	// ErrNotQueued is given when leaving a queue the user has no record in.
	ErrNotQueued = errors.New("not in this queue")
	// ErrUnknownQueue is given for a queue type that isn't configured.
	ErrUnknownQueue = errors.New("unknown queue")
)

const anonymousName = "Anonymous"

// Datastore is the subset of storage used to change memberships.
type Datastore interface {
	MembershipExists(ctx context.Context, userID, queueType string) (bool, error)
	AddMembership(ctx context.Context, entry collections.QueueEntry) (string, error)
	DeleteMembership(ctx context.Context, id string) error
}

// Publisher receives an event for every successful join and leave.
type Publisher interface {
	PublishQueueEvent(event remotejob.QueueEvent)
}

// Update is one delivery from the live membership subscription: either a new view or the error
// that ended the subscription.
type Update struct {
	View View
	Err  error
}

// Dashboard is what a signed-in user sees for the selected queue.
type Dashboard struct {
	Items             []Item   `json:"items"`
	SelectedQueueType string   `json:"selectedQueueType"`
	Position          int      `json:"position"`
	InQueue           bool     `json:"isInQueue"`
	QueueLength       int      `json:"queueLength"`
	Roster            []Member `json:"roster"`
	Loading           bool     `json:"isLoading"`
}

// Membership is one user's view of the queues: it folds live updates into local state and joins or
// leaves queues on the user's behalf. It is safe for concurrent use.
//
// The duplicate check before a join is best effort. Two joins racing from different connections
// of the same user can both pass it and both insert.
type Membership struct {
	db       Datastore
	events   Publisher
	notifier notify.Notifier

	mu       sync.Mutex
	identity *session.Identity
	view     View
	selected string
	loading  bool
}

// NewMembership returns a Membership with nobody attached and the default queue selected.
// events may be nil.
func NewMembership(db Datastore, events Publisher, notifier notify.Notifier) *Membership {
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Membership{
		db:       db,
		events:   events,
		notifier: notifier,
		selected: DefaultQueueType,
	}
}

// Attach binds the membership to a signed-in identity. It stays loading until the first update.
func (m *Membership) Attach(identity *session.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if identity == nil {
		m.resetLocked()
		return
	}
	copied := *identity
	m.identity = &copied
	m.view = View{}
	m.loading = true
}

// Reset drops the identity and every derived record.
func (m *Membership) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

func (m *Membership) resetLocked() {
	m.identity = nil
	m.view = View{}
	m.loading = false
}

// Apply folds an update from the live subscription. Updates arriving while nobody is attached are ignored.
// An error update keeps the current view unless it carries the last good view of the subscription.
func (m *Membership) Apply(update Update) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity == nil {
		return
	}
	m.loading = false
	if update.Err != nil {
		log.Printf("Error fetching queue: %v", update.Err)
		m.notifier.Error("Failed to load the queue.")
		if update.View.loaded() {
			m.view = update.View
		}
		return
	}
	m.view = update.View
}

// Select changes the queue that Leave and State refer to.
func (m *Membership) Select(queueType string) error {
	if _, ok := Lookup(queueType); !ok {
		return ErrUnknownQueue
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selected = queueType
	return nil
}

// Selected gives the selected queue type.
func (m *Membership) Selected() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selected
}

// Loading reports whether an operation or the first update is pending.
func (m *Membership) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// Join adds the signed-in user to queueType. On success the joined queue becomes the selected one; the
// new position shows up with the next update.
func (m *Membership) Join(ctx context.Context, queueType string) error {
	def, ok := Lookup(queueType)
	if !ok {
		m.notifier.Error("That queue does not exist.")
		return ErrUnknownQueue
	}

	m.mu.Lock()
	identity := m.identity
	if identity == nil {
		m.mu.Unlock()
		m.notifier.Error("You must be signed in to join the queue.")
		return ErrNotSignedIn
	}
	if _, found := m.view.Find(identity.UID, queueType); found {
		m.mu.Unlock()
		m.notifier.Error("You are already in this queue.")
		return ErrAlreadyQueued
	}
	m.loading = true
	m.mu.Unlock()
	defer m.setLoading(false)

	exists, err := m.db.MembershipExists(ctx, identity.UID, queueType)
	if err != nil {
		log.Printf("Error checking membership of %s in %s: %v", identity.UID, queueType, err)
		m.notifier.Error("Failed to join the queue. Please try again.")
		return err
	}
	if exists {
		m.notifier.Error("You are already in this queue.")
		return ErrAlreadyQueued
	}

	name := identity.DisplayName
	if name == "" {
		name = anonymousName
	}
	id, err := m.db.AddMembership(ctx, collections.QueueEntry{
		UserID:    identity.UID,
		UserName:  name,
		UserEmail: identity.Email,
		QueueType: queueType,
	})
	if err != nil {
		log.Printf("Error joining queue %s for %s: %v", queueType, identity.UID, err)
		m.notifier.Error("Failed to join the queue. Please try again.")
		return err
	}
	log.Printf("User %s joined queue %s as record %s", identity.UID, queueType, id)

	m.mu.Lock()
	m.selected = queueType
	m.mu.Unlock()
	m.publish(remotejob.EventJoined, queueType, identity.UID, id)
	m.notifier.Success(fmt.Sprintf("You have joined the %s!", def.Name))
	return nil
}

// Leave removes the signed-in user's record from the selected queue.
func (m *Membership) Leave(ctx context.Context) error {
	m.mu.Lock()
	identity := m.identity
	if identity == nil {
		m.mu.Unlock()
		m.notifier.Error("You must be signed in to leave the queue.")
		return ErrNotSignedIn
	}
	queueType := m.selected
	record, found := m.view.Find(identity.UID, queueType)
	if !found {
		m.mu.Unlock()
		m.notifier.Error("You are not in this queue.")
		return ErrNotQueued
	}
	m.loading = true
	m.mu.Unlock()
	defer m.setLoading(false)

	if err := m.db.DeleteMembership(ctx, record.ID); err != nil {
		log.Printf("Error leaving queue %s for %s: %v", queueType, identity.UID, err)
		m.notifier.Error("Failed to leave the queue. Please try again.")
		return err
	}
	log.Printf("User %s left queue %s, record %s", identity.UID, queueType, record.ID)

	m.publish(remotejob.EventLeft, queueType, identity.UID, record.ID)
	m.notifier.Success("You have left the queue.")
	return nil
}

// State returns the dashboard for the selected queue.
func (m *Membership) State() Dashboard {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := Dashboard{
		Items:             m.view.Items(),
		SelectedQueueType: m.selected,
		QueueLength:       m.view.Length(m.selected),
		Roster:            m.view.Roster(m.selected),
		Loading:           m.loading,
	}
	if m.identity != nil {
		d.Position = m.view.Position(m.identity.UID, m.selected)
		d.InQueue = d.Position > 0
	}
	return d
}

func (m *Membership) setLoading(loading bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading = loading
}

func (m *Membership) publish(eventType, queueType, userID, recordID string) {
	if m.events == nil {
		return
	}
	m.events.PublishQueueEvent(remotejob.QueueEvent{
		Type:      eventType,
		QueueType: queueType,
		UserID:    userID,
		RecordID:  recordID,
		At:        time.Now().UTC(),
	})
}
