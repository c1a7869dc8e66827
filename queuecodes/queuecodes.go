package queuecodes

const (
	// StatusSuccess is given when the request was carried out.
	StatusSuccess = "SUCCESS"

	// StatusFailure is given when the request failed for a reason not covered below (usually the
	// identity provider or the datastore).
	StatusFailure = "FAILURE"

	// StatusEndpointNotValid is given when the message is using an unsupported endpoint.
	StatusEndpointNotValid = "ENDPOINT_NOT_VALID"

	// StatusUnauthorized is given when the user must be signed in to perform an action.
	StatusUnauthorized = "UNAUTHORIZED"

	// StatusAlreadyInQueue is given when the user already has a membership in the requested queue.
	StatusAlreadyInQueue = "ALREADY_IN_QUEUE"

	// StatusNotInQueue is given when the user tries to leave a queue they are not in.
	StatusNotInQueue = "NOT_IN_QUEUE"

	// StatusInvalidQueue is given for a queue type that is not one of the configured queues.
	StatusInvalidQueue = "INVALID_QUEUE"

	// StatusInvalidRequest is given when required fields are missing or out of range.
	StatusInvalidRequest = "INVALID_REQUEST"
)
