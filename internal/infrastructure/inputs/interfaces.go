package inputs

import (
	"context"
	"net/http"
)

// MessageInput is implemented by all input types. Start must not block;
// long-running inputs run until ctx is cancelled or Stop is called.
type MessageInput interface {
	Start(ctx context.Context) error
	Stop() error
}

// HTTPEndpointInput is implemented by inputs that expose an HTTP endpoint
// to be mounted on the main server.
type HTTPEndpointInput interface {
	MessageInput
	Path() string
	Handler() http.Handler
}
