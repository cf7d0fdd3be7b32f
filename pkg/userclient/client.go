// Package userclient calls the users service's internal API on behalf of
// other services.
package userclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("user not found")
	ErrBanned       = errors.New("user is banned")
	ErrUnauthorized = errors.New("internal api key rejected")
)

// User is the minimal public view served by the internal API.
type User struct {
	ID            int64     `json:"id"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Patronymic    string    `json:"patronymic"`
	RegisterDate  time.Time `json:"register_date"`
	IsBanned      bool      `json:"is_banned"`
	FormattedName string    `json:"formatted_name"`
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(usersServiceURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(usersServiceURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// GetByID fails with ErrBanned for banned users.
func (c *Client) GetByID(ctx context.Context, id int64) (*User, error) {
	return c.get(ctx, "/internal/"+strconv.FormatInt(id, 10))
}

func (c *Client) SearchByEmail(ctx context.Context, email string) (*User, error) {
	return c.get(ctx, "/internal/search?"+url.Values{"email": {email}}.Encode())
}

func (c *Client) get(ctx context.Context, path string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrNotFound
	case http.StatusForbidden:
		return nil, ErrBanned
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	default:
		return nil, fmt.Errorf("users service responded with status: %d", resp.StatusCode)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &user, nil
}
