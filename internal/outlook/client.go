package outlook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultBaseURL is the Microsoft Graph v1.0 endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

const defaultMaxResults = 100

// Client calls the Microsoft Graph API on behalf of one user. Graph has no
// official Go SDK in our stack, so responses are relayed as raw JSON; the
// frontend consumes Graph's own shapes.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

// NewClient creates a Graph client bound to the given access token.
func NewClient(accessToken string) *Client {
	return &Client{
		baseURL:     DefaultBaseURL,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

// ListMessages returns one page of the user's mailbox messages.
// pageToken carries Graph's $skiptoken continuation value.
func (c *Client) ListMessages(ctx context.Context, maxResults int64, pageToken string) (json.RawMessage, error) {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	params := url.Values{}
	params.Set("$top", strconv.FormatInt(maxResults, 10))
	if pageToken != "" {
		params.Set("$skiptoken", pageToken)
	}

	return c.get(ctx, "/me/messages?"+params.Encode())
}

// ListEvents returns the user's calendar events.
func (c *Client) ListEvents(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/me/events")
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build graph request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call graph: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		// Read a bounded amount for the error message; Graph error bodies
		// are small JSON documents.
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("graph returned %d: %s", res.StatusCode, body)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read graph response: %w", err)
	}
	return json.RawMessage(body), nil
}
