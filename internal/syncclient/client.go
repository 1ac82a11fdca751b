// Package syncclient talks to the planner service over its JSON protocol.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"planner/api/internal/plandoc"
)

const maxErrorBody = 1024

// Client implements sections.Remote against the planner HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches the full planner document for identity. A user who never saved
// gets an empty document.
func (c *Client) Get(ctx context.Context, identity plandoc.Identity) (*plandoc.RemoteState, error) {
	var resp plandoc.GetResponse
	if err := c.postJSON(ctx, "get", "/api/planner/get", plandoc.GetRequest{ID: identity.ID, Email: identity.Email}, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, &plandoc.RemoteError{Op: "get", Reason: reasonOrDefault(resp.Reason)}
	}
	doc := resp.State
	if doc == nil {
		doc = plandoc.NewDocument()
	}
	out := &plandoc.RemoteState{Document: doc.Clone(), PlannerID: resp.PlannerID}
	if resp.LastUpdated != nil {
		out.LastUpdated = *resp.LastUpdated
	}
	return out, nil
}

// Set replaces the full planner document for identity.
func (c *Client) Set(ctx context.Context, identity plandoc.Identity, doc *plandoc.Document) (*plandoc.SetResult, error) {
	if doc == nil {
		doc = plandoc.NewDocument()
	}
	var resp plandoc.SetResponse
	payload, err := plandoc.SetRequest{ID: identity.ID, Email: identity.Email, State: doc}.Encode()
	if err != nil {
		return nil, &plandoc.RemoteError{Op: "set", Err: fmt.Errorf("marshal request: %w", err)}
	}
	if err := c.post(ctx, "set", "/api/planner/set", payload, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, &plandoc.RemoteError{Op: "set", Reason: reasonOrDefault(resp.Reason)}
	}
	out := &plandoc.SetResult{PlannerID: resp.PlannerID}
	if resp.UpdatedAt != nil {
		out.UpdatedAt = *resp.UpdatedAt
	}
	return out, nil
}

// History lists accepted writes of the planner document, newest first.
func (c *Client) History(ctx context.Context, identity plandoc.Identity) ([]plandoc.HistoryEntry, error) {
	var resp plandoc.HistoryResponse
	if err := c.postJSON(ctx, "history", "/api/planner/history", plandoc.GetRequest{ID: identity.ID, Email: identity.Email}, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, &plandoc.RemoteError{Op: "history", Reason: reasonOrDefault(resp.Reason)}
	}
	return resp.Entries, nil
}

// Revision fetches the planner document recorded at hash.
func (c *Client) Revision(ctx context.Context, identity plandoc.Identity, hash string) (*plandoc.Document, error) {
	var resp plandoc.GetResponse
	req := plandoc.RevisionRequest{ID: identity.ID, Email: identity.Email, Hash: hash}
	if err := c.postJSON(ctx, "revision", "/api/planner/history/show", req, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, &plandoc.RemoteError{Op: "revision", Reason: reasonOrDefault(resp.Reason)}
	}
	if resp.State == nil {
		return plandoc.NewDocument(), nil
	}
	return resp.State, nil
}

func (c *Client) postJSON(ctx context.Context, op, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &plandoc.RemoteError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
	}
	return c.post(ctx, op, path, payload, out)
}

func (c *Client) post(ctx context.Context, op, path string, payload []byte, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &plandoc.RemoteError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &plandoc.RemoteError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		reason := failureReason(respBody)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return &plandoc.AuthError{Reason: reason}
		}
		return &plandoc.RemoteError{Op: op, Status: resp.StatusCode, Reason: reason}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &plandoc.RemoteError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// failureReason pulls the reason out of an {ok:false, reason} body, falling
// back to the raw text.
func failureReason(body []byte) string {
	var failure struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(body, &failure); err == nil && failure.Reason != "" {
		return failure.Reason
	}
	return strings.TrimSpace(string(body))
}

func reasonOrDefault(reason string) string {
	if strings.TrimSpace(reason) == "" {
		return "request rejected"
	}
	return reason
}
