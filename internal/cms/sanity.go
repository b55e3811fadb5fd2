package cms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/ai-twin/pkg/logger"
	"github.com/capitalize-ai/ai-twin/pkg/metrics"
)

const (
	defaultDataset    = "production"
	defaultAPIVersion = "v2025-01-20"
	defaultTimeout    = 10 * time.Second
)

// SanityConfig holds Sanity connection settings.
type SanityConfig struct {
	ProjectID  string
	Dataset    string
	Token      string
	APIVersion string

	// BaseURL overrides the project host, e.g. for tests. When set it is
	// used for both cached and fresh queries.
	BaseURL string
}

// SanityClient runs GROQ queries against the Sanity HTTP API.
type SanityClient struct {
	cdnURL  string
	liveURL string
	token   string
	http    *http.Client
	logger  *logger.Logger
}

// NewSanityClient creates a Sanity client.
func NewSanityClient(cfg SanityConfig, log *logger.Logger) (*SanityClient, error) {
	if cfg.ProjectID == "" && cfg.BaseURL == "" {
		return nil, errors.New("cms: Sanity project ID is required")
	}
	if cfg.Dataset == "" {
		cfg.Dataset = defaultDataset
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}

	path := fmt.Sprintf("/%s/data/query/%s", cfg.APIVersion, cfg.Dataset)
	c := &SanityClient{
		cdnURL:  fmt.Sprintf("https://%s.apicdn.sanity.io%s", cfg.ProjectID, path),
		liveURL: fmt.Sprintf("https://%s.api.sanity.io%s", cfg.ProjectID, path),
		token:   cfg.Token,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  log,
	}
	if cfg.BaseURL != "" {
		c.cdnURL = cfg.BaseURL + path
		c.liveURL = c.cdnURL
	}
	return c, nil
}

type queryResponse struct {
	Result json.RawMessage `json:"result"`
}

type errorResponse struct {
	Error struct {
		Description string `json:"description"`
	} `json:"error"`
}

// Query validates and executes query. params are bound as $name
// parameters, JSON encoded as the API expects.
func (c *SanityClient) Query(ctx context.Context, query string, params map[string]any, fresh bool) (json.RawMessage, error) {
	validation := Validate(query)
	if !validation.OK() {
		metrics.CMSQueriesTotal.WithLabelValues("rejected").Inc()
		c.logger.Warn("rejected CMS query", zap.Any("diagnostics", validation.Diagnostics))
		return nil, ErrUnsafeQuery
	}
	if warnings := validation.Warnings(); len(warnings) > 0 {
		c.logger.Debug("CMS query warnings", zap.Any("diagnostics", warnings))
	}

	values := url.Values{}
	values.Set("query", query)
	for name, value := range params {
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode param %s: %w", name, err)
		}
		values.Set("$"+name, string(encoded))
	}

	base := c.cdnURL
	if fresh {
		base = c.liveURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+values.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.CMSQueriesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to query CMS: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		metrics.CMSQueriesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to read CMS response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.CMSQueriesTotal.WithLabelValues("error").Inc()
		var apiErr errorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Description != "" {
			return nil, fmt.Errorf("CMS query failed (%d): %s", resp.StatusCode, apiErr.Error.Description)
		}
		return nil, fmt.Errorf("CMS query failed with status %d", resp.StatusCode)
	}

	var out queryResponse
	if err := json.Unmarshal(body, &out); err != nil {
		metrics.CMSQueriesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to decode CMS response: %w", err)
	}

	metrics.CMSQueriesTotal.WithLabelValues("ok").Inc()
	return out.Result, nil
}
