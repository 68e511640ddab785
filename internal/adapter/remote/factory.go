package remote

import (
	"fmt"
	"log/slog"
	"net/url"

	"github.com/hum-tech/tsoam/internal/adapter"
	"github.com/hum-tech/tsoam/internal/domain"
)

// NewTokenSource picks the token source the config asks for.
// A token file wins over an inline token.
func NewTokenSource(cfg *adapter.APIConfig) domain.TokenSource {
	if cfg.TokenFile != "" {
		return FileToken{Path: cfg.TokenFile}
	}
	return StaticToken(cfg.Token)
}

// NewClientFromConfig creates the REST client from the application config
func NewClientFromConfig(cfg *adapter.APIConfig, logger *slog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("api config is nil")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("api base URL is required")
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported api URL scheme: %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("api base URL has no host: %q", cfg.BaseURL)
	}

	return NewClient(cfg.BaseURL, NewTokenSource(cfg), cfg.Timeout, logger), nil
}
