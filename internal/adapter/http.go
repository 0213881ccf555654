// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PaveTrack Systems

package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/pavetrack/field-sync/internal/config"
	"github.com/pavetrack/field-sync/internal/logger"
	"github.com/pavetrack/field-sync/models"
)

type httpTransport struct {
	client *resty.Client
	logger *logger.Logger
}

// NewHTTPTransport constructs an HTTP/REST implementation of [Transport].
// It normalises and validates the base URL from cfg.BaseURL and configures
// the underlying client with the request timeout.
//
// Returns an error if cfg.BaseURL is empty or cannot be parsed as a URL.
func NewHTTPTransport(cfg config.Remote, log *logger.Logger) (Transport, error) {
	baseURL, err := normalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid remote base url: %w", err)
	}
	timeout := time.Duration(cfg.RequestTimeout)
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &httpTransport{client: client, logger: log}, nil
}

func (h *httpTransport) Push(ctx context.Context, req models.PushRequest) ([]models.PushResult, error) {
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(req).
		Post("/api/sync/push")
	if err != nil {
		return nil, fmt.Errorf("push request: %w", classifyNetworkError(err))
	}
	if err = mapHTTPError(resp); err != nil {
		return nil, fmt.Errorf("push: %w", err)
	}

	var pr models.PushResponse
	if err = json.Unmarshal(resp.Body(), &pr); err != nil {
		return nil, fmt.Errorf("decode push response: %w", errors.Join(ErrTransient, err))
	}
	if len(pr.Results) != len(req.Items) {
		return nil, fmt.Errorf("%w: push returned %d results for %d items", ErrTransient, len(pr.Results), len(req.Items))
	}
	return pr.Results, nil
}

func (h *httpTransport) Pull(ctx context.Context, cursor string, limit int) (models.PullPage, error) {
	resp, err := h.client.R().
		SetContext(ctx).
		SetQueryParam("cursor", cursor).
		SetQueryParam("limit", strconv.Itoa(limit)).
		Get("/api/sync/pull")
	if err != nil {
		return models.PullPage{}, fmt.Errorf("pull request: %w", classifyNetworkError(err))
	}
	if err = mapHTTPError(resp); err != nil {
		return models.PullPage{}, fmt.Errorf("pull: %w", err)
	}

	var page models.PullPage
	if err = json.Unmarshal(resp.Body(), &page); err != nil {
		return models.PullPage{}, fmt.Errorf("decode pull response: %w", errors.Join(ErrTransient, err))
	}
	return page, nil
}

// mapHTTPError translates a non-2xx response into the package's error
// taxonomy. Server-side and throttling statuses are transient; client-side
// statuses are permanent except 409.
func mapHTTPError(resp *resty.Response) error {
	code := resp.StatusCode()
	if code >= http.StatusOK && code < http.StatusMultipleChoices {
		return nil
	}

	body := strings.TrimSpace(string(resp.Body()))
	if body == "" {
		body = http.StatusText(code)
	}

	switch {
	case code == http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrVersionConflict, body)
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: http %d: %s", ErrTransient, code, body)
	default:
		return fmt.Errorf("%w: http %d: %s", ErrPermanent, code, body)
	}
}

// classifyNetworkError wraps a request-level failure (connection refused,
// DNS, timeout) as transient. Context cancellation passes through so the
// orchestrator can tell a shutdown apart from a flaky link.
func classifyNetworkError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.Join(ErrTransient, err)
}

func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("base url is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("base url %q has no host", raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}
