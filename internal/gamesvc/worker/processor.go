package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/woprlabs/wopr-services/internal/gamesvc/models"
)

// HTTPProcessor calls the external vision and adjudication endpoints.
type HTTPProcessor struct {
	http        *fasthttp.Client
	visionURL   string
	validateURL string
	timeout     time.Duration
}

type ProcessorOption func(*HTTPProcessor)

func WithTimeout(d time.Duration) ProcessorOption {
	return func(p *HTTPProcessor) { p.timeout = d }
}

func WithMaxConnsPerHost(n int) ProcessorOption {
	return func(p *HTTPProcessor) { p.http.MaxConnsPerHost = n }
}

func NewHTTPProcessor(visionURL, validateURL string, opts ...ProcessorOption) *HTTPProcessor {
	p := &HTTPProcessor{
		http:        &fasthttp.Client{ReadTimeout: 60 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		visionURL:   visionURL,
		validateURL: validateURL,
		timeout:     60 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *HTTPProcessor) Vision(ctx context.Context, capture *models.Capture) (map[string]interface{}, error) {
	payload := map[string]interface{}{}
	if capture != nil {
		payload["capture_id"] = capture.ID.String()
		payload["game_id"] = capture.GameID.String()
		payload["seq"] = capture.Seq
		if capture.ImagePath != nil {
			payload["image_path"] = *capture.ImagePath
		}
	}
	return p.postJSON(ctx, p.visionURL, payload)
}

func (p *HTTPProcessor) Validate(ctx context.Context, visionResult map[string]interface{}) (map[string]interface{}, error) {
	return p.postJSON(ctx, p.validateURL, visionResult)
}

func (p *HTTPProcessor) postJSON(ctx context.Context, url string, in map[string]interface{}) (map[string]interface{}, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	timeout := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}

	if err := p.http.DoTimeout(req, resp, timeout); err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("request to %s returned status %d", url, resp.StatusCode())
	}

	out := map[string]interface{}{}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("invalid response from %s: %w", url, err)
	}
	return out, nil
}

// StubProcessor stands in when no processing endpoints are configured.
type StubProcessor struct{}

func (StubProcessor) Vision(ctx context.Context, capture *models.Capture) (map[string]interface{}, error) {
	return map[string]interface{}{
		"detected_pieces": []interface{}{},
		"board_delta":     map[string]interface{}{"changed": true},
		"notes":           "stubbed vision result",
	}, nil
}

func (StubProcessor) Validate(ctx context.Context, visionResult map[string]interface{}) (map[string]interface{}, error) {
	return map[string]interface{}{
		"legal":      true,
		"violations": []interface{}{},
		"notes":      "stubbed validation",
	}, nil
}
