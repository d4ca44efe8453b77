package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/suPer8Hu/deckd/internal/apperr"
)

const DefaultFluxURL = "https://api.bfl.ai/v1/flux-kontext-pro"

// FluxProvider submits jobs to the Black Forest Labs API.
type FluxProvider struct {
	URL    string
	APIKey string
	Client *http.Client
}

func NewFluxProvider(url, apiKey string, timeout time.Duration) *FluxProvider {
	if url == "" {
		url = DefaultFluxURL
	}
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &FluxProvider{
		URL:    url,
		APIKey: apiKey,
		Client: &http.Client{Timeout: timeout},
	}
}

type fluxSubmitReq struct {
	Prompt      string `json:"prompt"`
	InputImage  string `json:"input_image"`
	InputImage2 string `json:"input_image_2,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
}

type fluxSubmitResp struct {
	ID         string `json:"id"`
	PollingURL string `json:"polling_url"`
}

type fluxPollResp struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Result *struct {
		Sample string `json:"sample"`
	} `json:"result"`
}

func (p *FluxProvider) Submit(ctx context.Context, req JobRequest) (string, error) {
	const op = "ai.FluxProvider.Submit"

	if p.Client == nil {
		return "", errors.New("flux: http client is nil")
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return "", apperr.E(apperr.Submit, op, "image provider is not configured", errors.New("flux: api key is required"))
	}

	b, err := json.Marshal(fluxSubmitReq{
		Prompt:      req.Prompt,
		InputImage:  req.InputImage,
		InputImage2: req.InputImage2,
		AspectRatio: req.AspectRatio,
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	p.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return "", apperr.E(apperr.Submit, op, "failed to submit job", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", apperr.E(apperr.Submit, op, "failed to submit job", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return "", apperr.E(apperr.Submit, op, "failed to submit job", fmt.Errorf("flux: %s", msg)).
			WithPayload(json.RawMessage(body))
	}

	var decoded fluxSubmitResp
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", apperr.E(apperr.Submit, op, "failed to submit job", err)
	}
	if decoded.PollingURL == "" {
		return "", apperr.E(apperr.Submit, op, "no polling handle", nil).WithPayload(json.RawMessage(body))
	}
	return decoded.PollingURL, nil
}

func (p *FluxProvider) Check(ctx context.Context, handle string) (JobStatus, error) {
	if p.Client == nil {
		return JobStatus{}, errors.New("flux: http client is nil")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, handle, nil)
	if err != nil {
		return JobStatus{}, err
	}
	p.setHeaders(req)

	resp, err := p.Client.Do(req)
	if err != nil {
		return JobStatus{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return JobStatus{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return JobStatus{}, fmt.Errorf("flux: %s", msg)
	}

	var decoded fluxPollResp
	if err := json.Unmarshal(body, &decoded); err != nil {
		return JobStatus{}, err
	}
	st := JobStatus{Status: decoded.Status, Raw: json.RawMessage(body)}
	if decoded.Result != nil {
		st.ResultURL = decoded.Result.Sample
	}
	return st, nil
}

func (p *FluxProvider) setHeaders(req *http.Request) {
	req.Header.Set("x-key", p.APIKey)
	req.Header.Set("accept", "application/json")
}
