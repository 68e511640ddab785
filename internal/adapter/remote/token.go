package remote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// StaticToken is a fixed bearer token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// FileToken reads the bearer token from a file on every request,
// so a fresh login is picked up without a restart.
type FileToken struct {
	Path string
}

func (t FileToken) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(t.Path)
	if errors.Is(err, os.ErrNotExist) {
		// Not logged in yet
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
