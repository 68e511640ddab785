package domain

import (
	"context"
	"encoding/json"
)

// RemoteAPI replays pending operations against the REST backend.
// endpoint is the module's path relative to the API base (e.g. "hr/employees").
type RemoteAPI interface {
	// Create submits payload and returns the created resource
	Create(ctx context.Context, endpoint string, payload json.RawMessage) (json.RawMessage, error)

	// Update submits payload against id and returns the updated resource
	Update(ctx context.Context, endpoint, id string, payload json.RawMessage) (json.RawMessage, error)

	// Delete removes the resource at id; no body is expected
	Delete(ctx context.Context, endpoint, id string) error
}

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}
