// Package store implements the persistence boundary over HTTP: SaveRequests
// are posted to the planning backend, which applies them atomically and
// answers with the conflict taxonomy the session controller understands.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/groundctl/passplan/core/logger"
	"github.com/groundctl/passplan/core/model"
	corestore "github.com/groundctl/passplan/core/store"
	infralogger "github.com/groundctl/passplan/infra/logger"
)

// Config defines the HTTP saver settings.
type Config struct {
	// BaseURL is the backend root, e.g. "https://plan.example.com/api".
	BaseURL string `json:"base_url"`
	// TimeoutSeconds bounds each save call.
	TimeoutSeconds int `json:"timeout_seconds"`
	// Token, when set, is sent as a bearer token.
	Token string `json:"token"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 10
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("store base_url is required")
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("store timeout cannot be negative")
	}
	return nil
}

// HTTPSaver posts SaveRequests to the planning backend.
type HTTPSaver struct {
	client  *http.Client
	baseURL string
	token   string
	log     logger.Logger
}

// NewHTTPSaver creates a saver from the configuration.
func NewHTTPSaver(cfg Config) *HTTPSaver {
	cfg.SetDefaults()
	return &HTTPSaver{
		client:  &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		token:   cfg.Token,
		log:     infralogger.New("store-http"),
	}
}

// Save implements core/store.Saver. Status 409 maps to ErrSaveConflict, 400
// and 422 to ErrValidationRejected; everything transport-shaped becomes a
// retryable TransportError.
func (s *HTTPSaver) Save(ctx context.Context, req model.SaveRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode save request: %w", err)
	}
	url := fmt.Sprintf("%s/opportunities/%s/overrides", s.baseURL, req.OpportunityID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build save request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return &corestore.TransportError{Err: err}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			s.log.Warnf("close response body: %v", cerr)
		}
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", corestore.ErrSaveConflict, readReason(resp.Body))
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", corestore.ErrValidationRejected, readReason(resp.Body))
	default:
		return &corestore.TransportError{
			Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, readReason(resp.Body)),
		}
	}
}

func readReason(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return "no detail"
	}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(data))
}
