package hub

import (
	"context"
	"errors"

	log "queueserver/cloudlog"
	"queueserver/queue"
	"queueserver/queuecodes"
	"queueserver/session"
)

func (c *connection) process(ctx context.Context, message *Message) *Message {
	switch message.Endpoint {
	case endpointSignIn:
		return c.handleSignIn(ctx, message)
	case endpointSignUp:
		return c.handleSignUp(ctx, message)
	case endpointResume:
		return c.handleResume(ctx, message)
	case endpointSignOut:
		return c.handleSignOut(ctx, message)
	case endpointListQueues:
		return c.handleListQueues(message)
	case endpointSelectQueue:
		return c.handleSelectQueue(message)
	case endpointJoinQueue:
		return c.handleJoinQueue(ctx, message)
	case endpointLeaveQueue:
		return c.handleLeaveQueue(ctx, message)
	case endpointDashboard:
		return c.withDashboard(toOriginWithStatus(message, queuecodes.StatusSuccess, ""))
	default:
		log.Printf("Message endpoint: %s is not supported", message.Endpoint)
		return toOriginWithStatus(message, queuecodes.StatusEndpointNotValid, "")
	}
}

func (c *connection) handleSignIn(ctx context.Context, message *Message) *Message {
	if err := c.session.SignIn(ctx, message.Email, message.Password); err != nil {
		return toOriginWithError(message, err)
	}
	return c.withIdentity(toOriginWithStatus(message, queuecodes.StatusSuccess, ""))
}

func (c *connection) handleSignUp(ctx context.Context, message *Message) *Message {
	err := c.session.SignUp(ctx, message.Email, message.Password, message.Name, message.Role)
	if err != nil {
		// A failed profile write still leaves the account signed in.
		return c.withIdentity(toOriginWithError(message, err))
	}
	return c.withIdentity(toOriginWithStatus(message, queuecodes.StatusSuccess, ""))
}

func (c *connection) handleResume(ctx context.Context, message *Message) *Message {
	if err := c.session.Resume(ctx, message.IDToken); err != nil {
		return toOriginWithError(message, err)
	}
	return c.withIdentity(toOriginWithStatus(message, queuecodes.StatusSuccess, ""))
}

func (c *connection) handleSignOut(ctx context.Context, message *Message) *Message {
	c.session.SignOut(ctx)
	return toOriginWithStatus(message, queuecodes.StatusSuccess, "")
}

func (c *connection) handleListQueues(message *Message) *Message {
	returnMessage := toOriginWithStatus(message, queuecodes.StatusSuccess, "")
	returnMessage.Queues = c.membership.State().Items
	return returnMessage
}

func (c *connection) handleSelectQueue(message *Message) *Message {
	if err := c.membership.Select(message.QueueType); err != nil {
		return toOriginWithError(message, err)
	}
	return c.withDashboard(toOriginWithStatus(message, queuecodes.StatusSuccess, ""))
}

func (c *connection) handleJoinQueue(ctx context.Context, message *Message) *Message {
	if err := c.membership.Join(ctx, message.QueueType); err != nil {
		return c.withDashboard(toOriginWithError(message, err))
	}
	return c.withDashboard(toOriginWithStatus(message, queuecodes.StatusSuccess, ""))
}

func (c *connection) handleLeaveQueue(ctx context.Context, message *Message) *Message {
	if err := c.membership.Leave(ctx); err != nil {
		return c.withDashboard(toOriginWithError(message, err))
	}
	return c.withDashboard(toOriginWithStatus(message, queuecodes.StatusSuccess, ""))
}

func (c *connection) withIdentity(message *Message) *Message {
	message.Identity = c.session.Current()
	if message.Identity != nil {
		message.IDToken = c.session.IDToken()
	}
	return message
}

func (c *connection) withDashboard(message *Message) *Message {
	dashboard := c.membership.State()
	message.Dashboard = &dashboard
	return message
}

// statusFor maps the errors of the session and queue services to reply codes.
func statusFor(err error) string {
	switch {
	case errors.Is(err, queue.ErrNotSignedIn):
		return queuecodes.StatusUnauthorized
	case errors.Is(err, queue.ErrAlreadyQueued):
		return queuecodes.StatusAlreadyInQueue
	case errors.Is(err, queue.ErrNotQueued):
		return queuecodes.StatusNotInQueue
	case errors.Is(err, queue.ErrUnknownQueue):
		return queuecodes.StatusInvalidQueue
	case errors.Is(err, session.ErrMissingFields), errors.Is(err, session.ErrInvalidRole):
		return queuecodes.StatusInvalidRequest
	default:
		return queuecodes.StatusFailure
	}
}

func toOriginWithError(message *Message, err error) *Message {
	return toOriginWithStatus(message, statusFor(err), err.Error())
}

func toOriginWithStatus(message *Message, status string, text string) *Message {
	return &Message{
		UID:      message.UID,
		Status:   status,
		Text:     text,
		Endpoint: message.Endpoint,
	}
}
