// Package comfy is a client for the ComfyUI HTTP/WebSocket API: prompt
// submission, readiness probing, execution history, artifact download, and
// the completion event stream. It also owns the lifecycle of the locally
// spawned server process.
package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/jrwhip/ComfyUI/internal/backoff"
	"github.com/jrwhip/ComfyUI/pkg/workflow"
)

// ErrNoArtifact means the run completed but no node exposed an image in the
// execution history. Distinct from transport errors: generation succeeded
// but no output was located.
var ErrNoArtifact = errors.New("no image found in execution history")

// ErrNotReady means the server did not answer its readiness probe within
// the allotted time.
var ErrNotReady = errors.New("server not ready within timeout")

// ImageRef locates a generated image on the server.
type ImageRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// NodeOutput is the per-node section of a history record. Nodes that do not
// produce images have an empty Images list.
type NodeOutput struct {
	Images []ImageRef `json:"images"`
}

// HistoryEntry is one prompt's record in the execution history.
type HistoryEntry struct {
	Outputs map[string]NodeOutput `json:"outputs"`
}

// ReadyPolicy configures the readiness poll loop.
type ReadyPolicy struct {
	Timeout time.Duration
	Policy  string
	Base    time.Duration
	Max     time.Duration
}

type Client struct {
	serverAddr string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(serverAddr string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		serverAddr: serverAddr,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

func (c *Client) baseURL() string {
	return "http://" + c.serverAddr
}

// Ready probes the server root. Any non-error response counts as ready.
func (c *Client) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("probe returned status %d", resp.StatusCode)
	}
	return nil
}

// WaitReady polls the readiness probe until it answers or the policy timeout
// elapses.
func (c *Client) WaitReady(ctx context.Context, policy ReadyPolicy) error {
	if policy.Timeout <= 0 {
		policy.Timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, policy.Timeout)
	defer cancel()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for attempt := 0; ; attempt++ {
		probeCtx, probeCancel := context.WithTimeout(ctx, time.Second)
		err := c.Ready(probeCtx)
		probeCancel()
		if err == nil {
			c.logger.Info("server ready", "attempts", attempt+1)
			return nil
		}

		delay := backoff.Delay(policy.Policy, policy.Base, policy.Max, attempt, rng)
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return ctx.Err()
			}
			return fmt.Errorf("%w (%s)", ErrNotReady, policy.Timeout)
		case <-time.After(delay):
		}
	}
}

// QueuePrompt submits a workflow for execution. Any non-2xx status is a
// fatal submission error; there is no retry.
func (c *Client) QueuePrompt(ctx context.Context, wf workflow.Workflow, clientID, promptID string) error {
	body, err := json.Marshal(map[string]any{
		"prompt":    wf,
		"client_id": clientID,
		"prompt_id": promptID,
	})
	if err != nil {
		return fmt.Errorf("encode prompt: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/prompt", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("submit prompt: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		out, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("submit prompt: server returned %d: %s", resp.StatusCode, bytes.TrimSpace(out))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// History fetches the execution record for one prompt id.
func (c *Client) History(ctx context.Context, promptID string) (HistoryEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/history/"+url.PathEscape(promptID), nil)
	if err != nil {
		return HistoryEntry{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("fetch history: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return HistoryEntry{}, fmt.Errorf("fetch history: server returned %d", resp.StatusCode)
	}

	var out map[string]HistoryEntry
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return HistoryEntry{}, fmt.Errorf("decode history: %w", err)
	}
	entry, ok := out[promptID]
	if !ok {
		return HistoryEntry{}, fmt.Errorf("history has no record for prompt %s", promptID)
	}
	return entry, nil
}

// Download retrieves the raw bytes of a generated image.
func (c *Client) Download(ctx context.Context, ref ImageRef) ([]byte, error) {
	q := url.Values{}
	q.Set("filename", ref.Filename)
	q.Set("subfolder", ref.Subfolder)
	q.Set("type", ref.Type)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/view?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download image: server returned %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// FindArtifact scans history outputs in ascending node-id order and returns
// the first image found. Node ids are sorted because Go map iteration order
// is randomized; the scan must be stable run to run.
func FindArtifact(entry HistoryEntry) (ImageRef, error) {
	ids := make([]string, 0, len(entry.Outputs))
	for id := range entry.Outputs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if imgs := entry.Outputs[id].Images; len(imgs) > 0 {
			return imgs[0], nil
		}
	}
	return ImageRef{}, ErrNoArtifact
}
