package hub

import (
	"queueserver/queue"
	"queueserver/session"
)

const (
	endpointSignIn      = "SIGN_IN"
	endpointSignUp      = "SIGN_UP"
	endpointResume      = "RESUME"
	endpointSignOut     = "SIGN_OUT"
	endpointListQueues  = "LIST_QUEUES"
	endpointSelectQueue = "SELECT_QUEUE"
	endpointJoinQueue   = "JOIN_QUEUE"
	endpointLeaveQueue  = "LEAVE_QUEUE"
	endpointDashboard   = "DASHBOARD"

	// Sent by the server without a request.
	endpointNotify  = "NOTIFY"
	endpointSession = "SESSION"
)

// Message defines the Websocket message between browser and this queue server
type Message struct {
	UID      string `json:"uid"`
	Endpoint string `json:"endpoint"`
	Status   string `json:"status"`
	Text     string `json:"text"`

	// Notification level of NOTIFY messages.
	Level string `json:"level,omitempty"`

	Email     string `json:"email,omitempty"`
	Password  string `json:"password,omitempty"`
	Name      string `json:"name,omitempty"`
	Role      string `json:"role,omitempty"`
	IDToken   string `json:"idToken,omitempty"`
	QueueType string `json:"queueType,omitempty"`

	Identity  *session.Identity `json:"identity,omitempty"`
	Dashboard *queue.Dashboard  `json:"dashboard,omitempty"`
	Queues    []queue.Item      `json:"queues,omitempty"`
}
