package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/vytor/wordflash/internal/errors"
	"github.com/vytor/wordflash/internal/logger"
	"github.com/vytor/wordflash/internal/models"
)

// BaseTimestampHeader carries the remote version a PUT was based on.
const BaseTimestampHeader = "X-Base-Timestamp"

// Client talks to the HTTP backend served by internal/api.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) itemURL(id string) string {
	return c.baseURL + "/items/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, op string, req *http.Request) (*http.Response, error) {
	log := logger.FromContext(ctx).WithPrefix("remote").WithField("op", op)
	log.Debug("%s %s", req.Method, req.URL)
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn("request failed after %v: %v", time.Since(start), err)
		return nil, apperrors.NewNetworkError(op, err)
	}
	log.Debug("response received in %v, status=%d", time.Since(start), resp.StatusCode)
	return resp, nil
}

// statusError maps a non-success response to the remote error taxonomy.
func statusError(op, id string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.NewNotFoundError("remote item", id)
	case resp.StatusCode == http.StatusBadRequest:
		return apperrors.NewValidationError("item", strings.TrimSpace(string(body)))
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout:
		return apperrors.NewNetworkError(op, fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	default:
		return apperrors.NewInternalError(fmt.Errorf("%s status %d: %s", op, resp.StatusCode, string(body)))
	}
}

func decodeItem(op string, r io.Reader) (*models.VocabularyItem, error) {
	var item models.VocabularyItem
	if err := json.NewDecoder(r).Decode(&item); err != nil {
		// a truncated body is a transport problem
		return nil, apperrors.NewNetworkError(op, fmt.Errorf("decode item: %w", err))
	}
	return &item, nil
}

func (c *Client) FetchItem(ctx context.Context, id string) (*models.VocabularyItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.itemURL(id), nil)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	resp, err := c.do(ctx, "fetch", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("fetch", id, resp)
	}
	return decodeItem("fetch", resp.Body)
}

func (c *Client) UpsertItem(ctx context.Context, item models.VocabularyItem, base time.Time) (*models.VocabularyItem, error) {
	body, err := json.Marshal(item)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.itemURL(item.ID), bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if !base.IsZero() {
		req.Header.Set(BaseTimestampHeader, base.UTC().Format(time.RFC3339Nano))
	}

	resp, err := c.do(ctx, "upsert", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return decodeItem("upsert", resp.Body)
	case http.StatusConflict:
		current, err := decodeItem("upsert", resp.Body)
		if err != nil {
			return nil, err
		}
		return nil, &VersionConflictError{Current: *current}
	default:
		return nil, statusError("upsert", item.ID, resp)
	}
}

func (c *Client) DeleteItem(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.itemURL(id), nil)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	resp, err := c.do(ctx, "delete", req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
		return nil
	}
	return statusError("delete", id, resp)
}

// IsRetryable reports whether err is worth another attempt later.
func IsRetryable(err error) bool {
	return errors.Is(err, apperrors.ErrNetworkFailure) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, apperrors.ErrStorageUnavailable)
}
