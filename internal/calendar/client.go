package calendar

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const defaultMaxResults = 100

// Client wraps the Google Calendar events service for a single user's grant.
type Client struct {
	svc *calendar.EventsService
}

// NewClient creates a Calendar client bound to the given access token.
func NewClient(ctx context.Context, accessToken string) (*Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})

	svc, err := calendar.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}

	return &Client{svc: svc.Events}, nil
}

// ListEvents returns one page of events from the user's primary calendar.
func (c *Client) ListEvents(ctx context.Context, maxResults int64, pageToken string) (*calendar.Events, error) {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	call := c.svc.List("primary").MaxResults(maxResults).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	res, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}
	return res, nil
}
