// Package crossencoder calls an external cross-encoder scoring service for
// precision reranking. The service is slow and quota-bound, so calls are
// rate-limited client-side and wrapped in the shared resilience executor.
package crossencoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/avolkov/graphrag/internal/core/ports"
	"github.com/avolkov/graphrag/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	exec       *resilience.Executor
}

func New(baseURL, model string, requestsPerSecond float64, exec *resilience.Executor) *Client {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 4
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		exec:       exec,
	}
}

func (c *Client) Rerank(ctx context.Context, query string, documents []string, topN int) ([]ports.RankedIndex, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	if topN <= 0 || topN > len(documents) {
		topN = len(documents)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rerank rate limit: %w", err)
	}

	request := map[string]any{
		"model":     c.model,
		"query":     query,
		"documents": documents,
		"top_n":     topN,
	}

	var response struct {
		Results []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		} `json:"results"`
	}

	call := func(ctx context.Context) error {
		return c.postJSON(ctx, "/rerank", request, &response)
	}
	var err error
	if c.exec != nil {
		err = c.exec.Execute(ctx, "crossencoder_rerank", call, classifyRerankError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}

	out := make([]ports.RankedIndex, 0, len(response.Results))
	for _, r := range response.Results {
		out = append(out, ports.RankedIndex{Index: r.Index, Relevance: r.RelevanceScore})
	}
	return out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("crossencoder rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(raw)),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode rerank response: %w", err)
	}
	return nil
}
