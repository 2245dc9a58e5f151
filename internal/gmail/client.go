package gmail

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// defaultMaxResults matches the page size the frontend expects when it does
// not ask for one.
const defaultMaxResults = 100

// Client wraps the Gmail Users service for a single user's grant.
type Client struct {
	svc *gmail.UsersService
}

// NewClient creates a Gmail client bound to the given access token. The
// token must already be valid; refreshing is the integration manager's job.
func NewClient(ctx context.Context, accessToken string) (*Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})

	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}

	return &Client{svc: svc.Users}, nil
}

// ListMessages returns one page of the user's messages.
func (c *Client) ListMessages(ctx context.Context, maxResults int64, pageToken string) (*gmail.ListMessagesResponse, error) {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	call := c.svc.Messages.List("me").MaxResults(maxResults).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	res, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("list gmail messages: %w", err)
	}
	return res, nil
}
