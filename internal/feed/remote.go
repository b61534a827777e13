// Package feed lets a client follow a running claudeview server: it fetches
// snapshots over HTTP and listens for change events over WebSocket.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"claudeview/internal/logs"
	"claudeview/internal/types"
)

// RemoteSource fetches snapshots from a server's /api/conversations.
type RemoteSource struct {
	baseURL string
	client  *http.Client
}

// NewRemoteSource creates a source for the server at baseURL. client may be
// nil.
func NewRemoteSource(baseURL string, client *http.Client) *RemoteSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &RemoteSource{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// FetchThreads implements ingest.Source.
func (s *RemoteSource) FetchThreads(ctx context.Context, query types.Query) ([]types.Thread, error) {
	var body struct {
		Threads []types.Thread `json:"threads"`
	}
	if err := s.get(ctx, "/api/conversations?"+encodeQuery(query).Encode(), &body); err != nil {
		return nil, err
	}
	return body.Threads, nil
}

// Stats fetches /api/stats.
func (s *RemoteSource) Stats(ctx context.Context) (logs.Stats, error) {
	var stats logs.Stats
	err := s.get(ctx, "/api/stats", &stats)
	return stats, err
}

func (s *RemoteSource) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("fetch %s: %s: %s", path, resp.Status, apiErr.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func encodeQuery(q types.Query) url.Values {
	v := url.Values{}
	if !q.From.IsZero() {
		v.Set("from", q.From.Format(time.RFC3339Nano))
	}
	if !q.To.IsZero() {
		v.Set("to", q.To.Format(time.RFC3339Nano))
	}
	if q.Project != "" {
		v.Set("project", q.Project)
	}
	if q.Keyword != "" {
		v.Set("keyword", q.Keyword)
	}
	if q.Sort != "" {
		v.Set("sort", q.Sort)
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(q.PageSize))
	}
	return v
}
