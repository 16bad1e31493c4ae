package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avolkov/graphrag/internal/core/domain"
)

const sparseVectorName = "text_sparse"

// Client reads the chunk collection over the qdrant HTTP API. Indexing is
// owned by the ingestion service; this client only searches.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) Search(
	ctx context.Context,
	queryVector []float32,
	limit int,
	threshold float64,
	filter domain.SearchFilter,
) ([]domain.SearchResult, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if threshold > 0 {
		reqBody["score_threshold"] = threshold
	}
	if conditions := filterConditions(filter); len(conditions) > 0 {
		reqBody["filter"] = map[string]any{"must": conditions}
	}

	hits, err := c.searchPoints(ctx, reqBody)
	if err != nil {
		return nil, err
	}

	out := make([]domain.SearchResult, 0, len(hits))
	for _, hit := range hits {
		result := resultFromPayload(hit.Payload)
		result.Score = hit.Score
		out = append(out, result)
	}
	return out, nil
}

// SearchLexical runs the sparse BM25 index. Sparse dot products are unbounded,
// so scores are derived from rank to stay comparable with the dense channel.
func (c *Client) SearchLexical(
	ctx context.Context,
	queryText string,
	limit int,
	filter domain.SearchFilter,
) ([]domain.SearchResult, error) {
	sparse := encodeSparseQuery(queryText)
	if len(sparse.Indices) == 0 {
		return nil, nil
	}

	reqBody := map[string]any{
		"vector": map[string]any{
			"name":   sparseVectorName,
			"vector": sparse,
		},
		"limit":        limit,
		"with_payload": true,
	}
	if conditions := filterConditions(filter); len(conditions) > 0 {
		reqBody["filter"] = map[string]any{"must": conditions}
	}

	hits, err := c.searchPoints(ctx, reqBody)
	if err != nil {
		return nil, err
	}

	out := make([]domain.SearchResult, 0, len(hits))
	for i, hit := range hits {
		result := resultFromPayload(hit.Payload)
		result.Score = rankScore(i, len(hits))
		out = append(out, result)
	}
	return out, nil
}

type searchHit struct {
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) searchPoints(ctx context.Context, reqBody map[string]any) ([]searchHit, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(raw)); msg != "" {
			return nil, fmt.Errorf("qdrant search status: %s: %s", resp.Status, msg)
		}
		return nil, fmt.Errorf("qdrant search status: %s", resp.Status)
	}

	var searchResp struct {
		Result []searchHit `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return searchResp.Result, nil
}

func filterConditions(filter domain.SearchFilter) []map[string]any {
	var conditions []map[string]any

	if len(filter.DocTypes) > 0 {
		conditions = append(conditions, map[string]any{
			"key":   "doc_type",
			"match": map[string]any{"any": filter.DocTypes},
		})
	}
	if len(filter.DocumentIDs) > 0 {
		conditions = append(conditions, map[string]any{
			"key":   "document_id",
			"match": map[string]any{"any": filter.DocumentIDs},
		})
	}
	if len(filter.Authors) > 0 {
		conditions = append(conditions, map[string]any{
			"key":   "authors",
			"match": map[string]any{"any": filter.Authors},
		})
	}
	if filter.DateFrom != nil || filter.DateTo != nil {
		dateRange := map[string]any{}
		if filter.DateFrom != nil {
			dateRange["gte"] = filter.DateFrom.Format(time.RFC3339)
		}
		if filter.DateTo != nil {
			dateRange["lte"] = filter.DateTo.Format(time.RFC3339)
		}
		conditions = append(conditions, map[string]any{
			"key":      "published_at",
			"datetime": dateRange,
		})
	}
	return conditions
}

// rankScore maps the i-th sparse hit into (0,1] by rank, floored at 0.1.
func rankScore(index, total int) float64 {
	if total <= 0 {
		return 0.1
	}
	score := 1.0 - float64(index)/float64(total)
	if score < 0.1 {
		return 0.1
	}
	return score
}

func resultFromPayload(payload map[string]any) domain.SearchResult {
	result := domain.SearchResult{
		DocumentID:   stringPayload(payload, "document_id"),
		ChunkID:      stringPayload(payload, "chunk_id"),
		Content:      stringPayload(payload, "text"),
		Title:        stringPayload(payload, "title"),
		DocType:      stringPayload(payload, "doc_type"),
		PageRange:    stringPayload(payload, "page_range"),
		SectionTitle: stringPayload(payload, "section_title"),
		Metadata:     metadataFromPayload(payload),
	}
	if v, ok := payload["authority"].(float64); ok {
		result.Authority = v
	}
	if raw := stringPayload(payload, "published_at"); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			result.PublishedAt = parsed
		}
	}
	return result
}

// metadataFromPayload flattens the payload's scalar fields; nested maps and
// arrays are dropped.
func metadataFromPayload(payload map[string]any) map[string]string {
	if len(payload) == 0 {
		return nil
	}
	out := make(map[string]string, len(payload))
	for key, v := range payload {
		switch val := v.(type) {
		case nil, map[string]any, []any:
			continue
		case string:
			out[key] = val
		default:
			out[key] = fmt.Sprintf("%v", val)
		}
	}
	return out
}

func stringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	if _, isMap := v.(map[string]any); isMap {
		return ""
	}
	if _, isSlice := v.([]any); isSlice {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
