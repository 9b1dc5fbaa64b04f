// Package remote calls an external OCR service over HTTP for documents without a text layer.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MrJamesThe3rd/docket/internal/document"
	"github.com/MrJamesThe3rd/docket/internal/extraction"
)

const (
	maxResponseBytes = 4 << 20
	maxErrorBytes    = 1 << 20
	maxErrorText     = 256
)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

type extractRequest struct {
	Kind     document.Kind `json:"kind"`
	MIMEType string        `json:"mime_type"`
	Content  []byte        `json:"content"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Extract posts the file to <baseURL>/extract and decodes the returned extraction result.
func (c *Client) Extract(ctx context.Context, data []byte, mimeType string, kind document.Kind) (*document.ExtractionResult, error) {
	body, err := json.Marshal(extractRequest{Kind: kind, MIMEType: mimeType, Content: data})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	limit := int64(maxResponseBytes)
	if resp.StatusCode != http.StatusOK {
		limit = maxErrorBytes
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if int64(len(raw)) > limit {
		if resp.StatusCode == http.StatusOK {
			return nil, fmt.Errorf("%w: response exceeds %d bytes", extraction.ErrMalformed, limit)
		}

		raw = raw[:limit]
	}

	switch {
	case resp.StatusCode == http.StatusUnsupportedMediaType:
		return nil, fmt.Errorf("%w: %s", extraction.ErrUnsupportedFormat, errorMessage(raw))
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: %s", extraction.ErrMalformed, errorMessage(raw))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("extraction service returned status %d: %s", resp.StatusCode, errorMessage(raw))
	}

	var result document.ExtractionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", extraction.ErrMalformed, err)
	}

	if result.Kind != kind {
		return nil, fmt.Errorf("%w: service answered with kind %q", extraction.ErrMalformed, result.Kind)
	}

	if result.ExtractedAt.IsZero() {
		result.ExtractedAt = time.Now().UTC()
	}

	return &result, nil
}

func errorMessage(raw []byte) string {
	var er errorResponse
	if err := json.Unmarshal(raw, &er); err == nil && er.Error != "" {
		return truncate(er.Error)
	}

	return truncate(string(raw))
}

func truncate(s string) string {
	if len(s) <= maxErrorText {
		return s
	}

	return s[:maxErrorText] + "..."
}
