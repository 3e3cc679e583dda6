// Package pdf turns a validated document form into the final PDF bytes by
// calling the external rendering service. Layout and typesetting live in
// that service; this package only carries the data over.
package pdf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docexpress/docexpress/internal/pkg/env"
)

// ErrUnavailable is returned when no rendering service is configured or the
// service cannot be reached.
var ErrUnavailable = errors.New("pdf rendering service unavailable")

// RenderRequest describes one document to render.
type RenderRequest struct {
	Slug  string            `json:"slug"`
	Title string            `json:"title"`
	Form  map[string]string `json:"form"`
}

// Renderer produces PDF bytes for a document request.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) ([]byte, error)
}

// NewRendererFromEnv returns an HTTP renderer when PDF_SERVICE_URL is set,
// otherwise a renderer that always reports ErrUnavailable.
func NewRendererFromEnv() Renderer {
	serviceURL := env.GetEnv("PDF_SERVICE_URL", "")
	if serviceURL == "" {
		return unavailableRenderer{}
	}
	return &httpRenderer{
		serviceURL: serviceURL,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

type httpRenderer struct {
	serviceURL string
	client     *http.Client
}

func (r *httpRenderer) Render(ctx context.Context, req RenderRequest) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.serviceURL+"/render", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}

type unavailableRenderer struct{}

func (unavailableRenderer) Render(context.Context, RenderRequest) ([]byte, error) {
	return nil, ErrUnavailable
}
