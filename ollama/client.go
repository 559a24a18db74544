// Package ollama provides the HTTP client for the Ollama API.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"ollamachat/domain"
)

// Client talks to an Ollama server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// pullClient has no overall timeout; model downloads are large and can
	// run for hours.
	pullClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new Ollama client. timeout bounds every call except
// model pulls.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		pullClient: &http.Client{
			Transport: transport,
		},
		logger: logger,
	}
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []wireMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

type tagsResponse struct {
	Models []struct {
		Name       string         `json:"name"`
		Size       int64          `json:"size"`
		Digest     string         `json:"digest"`
		ModifiedAt string         `json:"modified_at"`
		Details    map[string]any `json:"details"`
	} `json:"models"`
}

// classify maps a transport failure onto the domain error taxonomy.
func (c *Client) classify(op string, err error) error {
	var netErr net.Error
	var opErr *net.OpError
	if errors.As(err, &opErr) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &domain.ConnectionError{BaseURL: c.baseURL, Err: err}
	}
	return &domain.ProviderError{Op: op, Err: err}
}

func (c *Client) statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("ollama %s [%d]: %w", op, resp.StatusCode, domain.ErrModelNotFound)
	}
	return &domain.ProviderError{
		Op:  op,
		Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
	}
}

// ListModels fetches the model catalog from /api/tags. A malformed
// modified_at timestamp on one entry falls back to now instead of failing
// the whole listing.
func (c *Client) ListModels(ctx context.Context) ([]domain.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.classify("list_models", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError("list_models", resp)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, &domain.ProviderError{Op: "list_models", Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	models := make([]domain.ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		modifiedAt, err := time.Parse(time.RFC3339Nano, m.ModifiedAt)
		if err != nil {
			c.logger.Warn("unparseable model timestamp, defaulting to now",
				zap.String("model", m.Name),
				zap.String("modified_at", m.ModifiedAt))
			modifiedAt = time.Now()
		}
		models = append(models, domain.ModelInfo{
			Name:       m.Name,
			Size:       m.Size,
			Digest:     m.Digest,
			ModifiedAt: modifiedAt,
			Details:    m.Details,
		})
	}
	return models, nil
}

// ChatStream streams a chat completion from /api/chat. The response is
// newline-delimited JSON; each line carries a content delta until a line
// with done=true terminates the stream. Malformed lines are skipped.
func (c *Client) ChatStream(ctx context.Context, model string, messages []domain.Message, options map[string]any) (<-chan domain.StreamResponse, error) {
	wire := make([]wireMessage, 0, len(messages))
	for _, msg := range messages {
		wire = append(wire, wireMessage{Role: string(msg.Role), Content: msg.Content})
	}

	body, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: wire,
		Stream:   true,
		Options:  options,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	out := make(chan domain.StreamResponse)
	go func() {
		defer close(out)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
		if err != nil {
			c.emit(ctx, out, domain.StreamResponse{Err: fmt.Errorf("failed to create request: %w", err)})
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.emit(ctx, out, domain.StreamResponse{Err: c.classify("chat_stream", err)})
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			c.emit(ctx, out, domain.StreamResponse{Err: c.statusError("chat_stream", resp)})
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}

			var chunk chatChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				c.logger.Warn("skipping malformed chat chunk", zap.ByteString("line", line))
				continue
			}

			if chunk.Done {
				// Terminal sentinel; any remaining lines stay unread.
				c.emit(ctx, out, domain.StreamResponse{Done: true})
				return
			}

			if chunk.Message.Content != "" {
				if !c.emit(ctx, out, domain.StreamResponse{Content: chunk.Message.Content}) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			c.emit(ctx, out, domain.StreamResponse{Err: c.classify("chat_stream", err)})
			return
		}
		c.emit(ctx, out, domain.StreamResponse{Done: true})
	}()

	return out, nil
}

// emit sends an event unless the consumer has gone away.
func (c *Client) emit(ctx context.Context, out chan<- domain.StreamResponse, ev domain.StreamResponse) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// PullModel downloads a model via /api/pull, relaying each NDJSON progress
// record verbatim. Runs without a request timeout.
func (c *Client) PullModel(ctx context.Context, name string) (<-chan domain.PullProgress, error) {
	body, err := json.Marshal(map[string]any{"name": name, "stream": true})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.pullClient.Do(req)
	if err != nil {
		return nil, c.classify("pull_model", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.statusError("pull_model", resp)
	}

	out := make(chan domain.PullProgress)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 || !json.Valid(line) {
				continue
			}
			record := make(domain.PullProgress, len(line))
			copy(record, line)
			select {
			case out <- record:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// DeleteModel removes a model via /api/delete.
func (c *Client) DeleteModel(ctx context.Context, name string) error {
	body, err := json.Marshal(map[string]any{"name": name})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/delete", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.classify("delete_model", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.statusError("delete_model", resp)
	}
	return nil
}
