package hub

import (
	"context"
	"net/http"

	log "queueserver/cloudlog"
	"queueserver/notify"
	"queueserver/queue"
	"queueserver/queuecodes"
	"queueserver/session"

	"github.com/google/uuid"
)

// Connector sets up every websocket connection with its own identity session and queue membership,
// wired to the shared Hub.
type Connector struct {
	hub      *Hub
	provider session.IdentityProvider
	profiles session.ProfileStore
	db       queue.Datastore
	events   queue.Publisher

	checkOrigin func(r *http.Request) bool
}

// NewConnector returns an instantiated Connector. checkOrigin may be nil to accept every origin.
func NewConnector(hub *Hub, provider session.IdentityProvider, profiles session.ProfileStore,
	db queue.Datastore, events queue.Publisher, checkOrigin func(r *http.Request) bool) *Connector {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Connector{
		hub:         hub,
		provider:    provider,
		profiles:    profiles,
		db:          db,
		events:      events,
		checkOrigin: checkOrigin,
	}
}

// ServeWs handles the websocket connection and responds to the client's messages until it disconnects.
func (hc *Connector) ServeWs(w http.ResponseWriter, r *http.Request) {
	upgrader := upgrader
	upgrader.CheckOrigin = hc.checkOrigin
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	client := NewClient(uuid.NewString(), conn)
	client.Start()
	go hc.serve(client)
}

// connection is the state of one client. It is only touched from the client's request loop.
type connection struct {
	hub        *Hub
	client     *Client
	session    *session.Session
	membership *queue.Membership

	// nil while signed out.
	sub *Subscriber
}

func (hc *Connector) newConnection(client *Client) *connection {
	notifier := notify.Func(func(level, text string) {
		client.sendMessage(&Message{
			Endpoint: endpointNotify,
			Status:   queuecodes.StatusSuccess,
			Level:    level,
			Text:     text,
		})
	})
	c := &connection{
		hub:        hc.hub,
		client:     client,
		session:    session.New(hc.provider, hc.profiles, notifier),
		membership: queue.NewMembership(hc.db, hc.events, notifier),
	}
	c.session.OnChange(c.identityChanged)
	return c
}

// serve runs the request loop of client until the peer goes away.
func (hc *Connector) serve(client *Client) {
	ctx, cancel := context.WithCancel(context.Background())
	c := hc.newConnection(client)
	log.Printf("client %s connected", client.ID())
	defer func() {
		cancel()
		c.hub.Unsubscribe(c.sub)
		client.stop()
		log.Printf("client %s disconnected", client.ID())
	}()
	for {
		select {
		case msg, ok := <-client.inbound:
			if !ok {
				return
			}
			client.sendMessage(c.process(ctx, msg))
		case update, ok := <-c.updates():
			if !ok {
				// The hub stopped.
				c.sub = nil
				continue
			}
			c.membership.Apply(update)
			c.pushDashboard()
		}
	}
}

// updates gives the channel of hub updates, or nil while signed out so the loop never selects it.
func (c *connection) updates() <-chan queue.Update {
	if c.sub == nil {
		return nil
	}
	return c.sub.Updates()
}

// identityChanged follows the session: a new identity gets a fresh membership state and a fresh
// subscription so the latest view arrives right away; signing out drops both.
func (c *connection) identityChanged(identity *session.Identity) {
	c.hub.Unsubscribe(c.sub)
	c.sub = nil
	if identity == nil {
		c.membership.Reset()
	} else {
		c.membership.Attach(identity)
		c.sub = c.hub.Subscribe()
	}
	c.client.sendMessage(&Message{
		Endpoint: endpointSession,
		Status:   queuecodes.StatusSuccess,
		Identity: identity,
	})
}

func (c *connection) pushDashboard() {
	dashboard := c.membership.State()
	c.client.sendMessage(&Message{
		Endpoint:  endpointDashboard,
		Status:    queuecodes.StatusSuccess,
		Dashboard: &dashboard,
	})
}
