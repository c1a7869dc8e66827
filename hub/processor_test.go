package hub

import (
	"context"
	"fmt"
	"testing"

	"queueserver/collections"
	"queueserver/notify"
	"queueserver/queue"
	"queueserver/queuecodes"
	"queueserver/session"
	testutils "queueserver/testing"
)

type processorFixture struct {
	store    *testutils.FakeStore
	provider *testutils.FakeIdentityProvider
	events   *testutils.FakePublisher
	client   *Client
	conn     *connection
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()
	// The client has no websocket behind it; pushed messages stay in its buffer.
	f := &processorFixture{
		store:    testutils.NewFakeStore(),
		provider: testutils.NewFakeIdentityProvider(),
		events:   &testutils.FakePublisher{},
		client:   &Client{id: "test", send: make(chan *Message, sendBufferSize)},
	}
	f.provider.AddAccount("alice", "alice@example.com", "secret1", "Alice")
	testHub, _ := startHub(t, f.store)
	connector := NewConnector(testHub, f.provider, f.store, f.store, f.events, nil)
	f.conn = connector.newConnection(f.client)
	return f
}

// pushed drains everything sent to the client so far.
func (f *processorFixture) pushed() []*Message {
	var out []*Message
	for {
		select {
		case m := <-f.client.send:
			out = append(out, m)
		default:
			return out
		}
	}
}

// sync applies the next update from the hub, like the request loop does.
func (f *processorFixture) sync(t *testing.T, match func(queue.Update) bool) {
	t.Helper()
	if f.conn.sub == nil {
		t.Fatal("connection is not subscribed")
	}
	f.conn.membership.Apply(waitForUpdate(t, f.conn.sub, match))
}

func (f *processorFixture) signIn(t *testing.T) {
	t.Helper()
	reply := f.conn.process(context.Background(), &Message{UID: "sign-in", Endpoint: endpointSignIn, Email: "alice@example.com", Password: "secret1"})
	if reply.Status != queuecodes.StatusSuccess {
		t.Fatalf("SIGN_IN replied %s: %s", reply.Status, reply.Text)
	}
}

func findPushed(messages []*Message, endpoint string) *Message {
	for _, m := range messages {
		if m.Endpoint == endpoint {
			return m
		}
	}
	return nil
}

func TestProcessUnknownEndpoint(t *testing.T) {
	f := newProcessorFixture(t)
	reply := f.conn.process(context.Background(), &Message{UID: "1", Endpoint: "FILE_UPDATE"})
	if reply.Status != queuecodes.StatusEndpointNotValid || reply.UID != "1" {
		t.Errorf("reply = %#v, want %s for uid 1", reply, queuecodes.StatusEndpointNotValid)
	}
}

func TestProcessSignIn(t *testing.T) {
	f := newProcessorFixture(t)
	reply := f.conn.process(context.Background(), &Message{UID: "1", Endpoint: endpointSignIn, Email: "alice@example.com", Password: "secret1"})
	if reply.Status != queuecodes.StatusSuccess {
		t.Fatalf("SIGN_IN replied %s: %s", reply.Status, reply.Text)
	}
	if reply.Identity == nil || reply.Identity.UID != "alice" || reply.IDToken != "token-alice" {
		t.Errorf("reply = %#v, want alice's identity and token", reply)
	}
	if f.conn.sub == nil {
		t.Fatal("signed-in connection is not subscribed to the hub")
	}

	pushed := f.pushed()
	if m := findPushed(pushed, endpointSession); m == nil || m.Identity == nil || m.Identity.UID != "alice" {
		t.Errorf("SESSION push = %#v, want alice", m)
	}
	if m := findPushed(pushed, endpointNotify); m == nil || m.Level != notify.LevelSuccess || m.Text != "Successfully signed in!" {
		t.Errorf("NOTIFY push = %#v", m)
	}

	reply = f.conn.process(context.Background(), &Message{UID: "2", Endpoint: endpointSignOut})
	if reply.Status != queuecodes.StatusSuccess {
		t.Errorf("SIGN_OUT replied %s", reply.Status)
	}
	if f.conn.sub != nil {
		t.Error("signed-out connection is still subscribed")
	}
	if m := findPushed(f.pushed(), endpointSession); m == nil || m.Identity != nil {
		t.Errorf("SESSION push after sign-out = %#v, want no identity", m)
	}
}

func TestProcessSignInFailure(t *testing.T) {
	f := newProcessorFixture(t)
	reply := f.conn.process(context.Background(), &Message{UID: "1", Endpoint: endpointSignIn, Email: "alice@example.com", Password: "wrong"})
	if reply.Status != queuecodes.StatusFailure || reply.Identity != nil {
		t.Errorf("reply = %#v, want a failure without identity", reply)
	}
	if m := findPushed(f.pushed(), endpointNotify); m == nil || m.Level != notify.LevelError || m.Text != "Invalid email or password." {
		t.Errorf("NOTIFY push = %#v", m)
	}
	if f.conn.sub != nil {
		t.Error("failed sign-in subscribed to the hub")
	}
}

func TestProcessSignUpAndResume(t *testing.T) {
	f := newProcessorFixture(t)
	reply := f.conn.process(context.Background(), &Message{
		UID: "1", Endpoint: endpointSignUp, Email: "bob@example.com", Password: "secret1", Name: "Bob", Role: session.Staff,
	})
	if reply.Status != queuecodes.StatusSuccess || reply.Identity == nil || reply.Identity.Role != session.Staff {
		t.Fatalf("SIGN_UP reply = %#v", reply)
	}

	connector := NewConnector(f.conn.hub, f.provider, f.store, f.store, nil, nil)
	resumed := connector.newConnection(&Client{id: "other", send: make(chan *Message, sendBufferSize)})
	reply = resumed.process(context.Background(), &Message{UID: "2", Endpoint: endpointResume, IDToken: reply.IDToken})
	if reply.Status != queuecodes.StatusSuccess || reply.Identity == nil || reply.Identity.Role != session.Staff {
		t.Errorf("RESUME reply = %#v, want Bob with the staff role", reply)
	}

	reply = resumed.process(context.Background(), &Message{UID: "3", Endpoint: endpointResume, IDToken: "token-nobody"})
	if reply.Status != queuecodes.StatusFailure {
		t.Errorf("RESUME with a bad token replied %s", reply.Status)
	}
}

func TestProcessRequiresSignIn(t *testing.T) {
	cases := []struct {
		endpoint   string
		queueType  string
		wantNotice string
	}{
		{endpoint: endpointJoinQueue, queueType: "sales", wantNotice: "You must be signed in to join the queue."},
		{endpoint: endpointLeaveQueue, wantNotice: "You must be signed in to leave the queue."},
	}
	for _, tc := range cases {
		t.Run(tc.endpoint, func(t *testing.T) {
			f := newProcessorFixture(t)
			reply := f.conn.process(context.Background(), &Message{UID: "1", Endpoint: tc.endpoint, QueueType: tc.queueType})
			if reply.Status != queuecodes.StatusUnauthorized {
				t.Errorf("%s replied %s, want %s", tc.endpoint, reply.Status, queuecodes.StatusUnauthorized)
			}
			if reply.Dashboard == nil {
				t.Error("reply carries no dashboard")
			}
			if m := findPushed(f.pushed(), endpointNotify); m == nil || m.Text != tc.wantNotice {
				t.Errorf("NOTIFY push = %#v, want %q", m, tc.wantNotice)
			}
		})
	}
}

func TestProcessJoinAndLeave(t *testing.T) {
	f := newProcessorFixture(t)
	f.store.Seed(collections.QueueEntry{UserID: "bob", UserName: "Bob", QueueType: "customer-service"})
	f.signIn(t)
	f.sync(t, func(u queue.Update) bool { return u.View.Length("customer-service") == 1 })

	reply := f.conn.process(context.Background(), &Message{UID: "1", Endpoint: endpointJoinQueue, QueueType: "customer-service"})
	if reply.Status != queuecodes.StatusSuccess {
		t.Fatalf("JOIN_QUEUE replied %s: %s", reply.Status, reply.Text)
	}
	f.sync(t, func(u queue.Update) bool { return u.View.Length("customer-service") == 2 })

	reply = f.conn.process(context.Background(), &Message{UID: "2", Endpoint: endpointDashboard})
	d := reply.Dashboard
	if d == nil || d.SelectedQueueType != "customer-service" || d.Position != 2 || !d.InQueue || d.QueueLength != 2 {
		t.Fatalf("dashboard after joining = %#v", d)
	}

	reply = f.conn.process(context.Background(), &Message{UID: "3", Endpoint: endpointJoinQueue, QueueType: "customer-service"})
	if reply.Status != queuecodes.StatusAlreadyInQueue {
		t.Errorf("second JOIN_QUEUE replied %s, want %s", reply.Status, queuecodes.StatusAlreadyInQueue)
	}

	reply = f.conn.process(context.Background(), &Message{UID: "4", Endpoint: endpointLeaveQueue})
	if reply.Status != queuecodes.StatusSuccess {
		t.Fatalf("LEAVE_QUEUE replied %s: %s", reply.Status, reply.Text)
	}
	f.sync(t, func(u queue.Update) bool { return u.View.Length("customer-service") == 1 })

	reply = f.conn.process(context.Background(), &Message{UID: "5", Endpoint: endpointLeaveQueue})
	if reply.Status != queuecodes.StatusNotInQueue {
		t.Errorf("LEAVE_QUEUE when not queued replied %s, want %s", reply.Status, queuecodes.StatusNotInQueue)
	}
	if events := f.events.Events(); len(events) != 2 {
		t.Errorf("published %d events, want 2", len(events))
	}
}

func TestProcessSelectAndList(t *testing.T) {
	f := newProcessorFixture(t)
	reply := f.conn.process(context.Background(), &Message{UID: "1", Endpoint: endpointSelectQueue, QueueType: "billing"})
	if reply.Status != queuecodes.StatusInvalidQueue {
		t.Errorf("SELECT_QUEUE billing replied %s, want %s", reply.Status, queuecodes.StatusInvalidQueue)
	}
	reply = f.conn.process(context.Background(), &Message{UID: "2", Endpoint: endpointSelectQueue, QueueType: "returns"})
	if reply.Status != queuecodes.StatusSuccess || reply.Dashboard == nil || reply.Dashboard.SelectedQueueType != "returns" {
		t.Errorf("SELECT_QUEUE returns reply = %#v", reply)
	}

	reply = f.conn.process(context.Background(), &Message{UID: "3", Endpoint: endpointListQueues})
	if len(reply.Queues) != len(queue.Definitions()) {
		t.Errorf("LIST_QUEUES gave %d queues, want %d", len(reply.Queues), len(queue.Definitions()))
	}
	for _, item := range reply.Queues {
		if item.UserCount != 0 {
			t.Errorf("queue %s has count %d while signed out", item.ID, item.UserCount)
		}
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err      error
		expected string
	}{
		{err: queue.ErrNotSignedIn, expected: queuecodes.StatusUnauthorized},
		{err: queue.ErrAlreadyQueued, expected: queuecodes.StatusAlreadyInQueue},
		{err: queue.ErrNotQueued, expected: queuecodes.StatusNotInQueue},
		{err: queue.ErrUnknownQueue, expected: queuecodes.StatusInvalidQueue},
		{err: session.ErrMissingFields, expected: queuecodes.StatusInvalidRequest},
		{err: fmt.Errorf("sign up: %w", session.ErrInvalidRole), expected: queuecodes.StatusInvalidRequest},
		{err: &session.ProviderError{Code: "EMAIL_EXISTS"}, expected: queuecodes.StatusFailure},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.expected {
			t.Errorf("statusFor(%v) = %s, want %s", tc.err, got, tc.expected)
		}
	}
}
