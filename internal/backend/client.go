// Package backend implements the REST client for the hosted relational
// store that backs credential validation. Queries are PostgREST-style row
// filters over the users_login, secrets, and auth_tokens tables,
// authenticated with a static anonymous key.
package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const restPrefix = "/rest/v1/"

// Client issues row-filter queries against one backend endpoint. It is
// cheap to construct; the session manager builds a fresh one whenever the
// connection params change.
type Client struct {
	endpointURL string
	anonKey     string
	httpClient  *http.Client
}

// New creates a client for the given endpoint and anonymous key. httpClient
// may be nil, in which case http.DefaultClient is used.
func New(endpointURL, anonKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		endpointURL: strings.TrimRight(endpointURL, "/"),
		anonKey:     anonKey,
		httpClient:  httpClient,
	}
}

// UserRecord is one row of the users_login table.
type UserRecord struct {
	Username string
	Password string
}

// FindUser looks up a user row by exact username. The second return value
// reports whether a row matched.
func (c *Client) FindUser(ctx context.Context, username string) (UserRecord, bool, error) {
	query := url.Values{
		"username": {"eq." + username},
		"select":   {"username,password"},
	}
	rows, err := c.queryRows(ctx, "users_login", query)
	if err != nil {
		return UserRecord{}, false, err
	}
	if len(rows) == 0 {
		return UserRecord{}, false, nil
	}
	row := rows[0]
	return UserRecord{
		Username: row.Get("username").String(),
		Password: row.Get("password").String(),
	}, true, nil
}

// FetchSecret returns the value stored under name in the secrets table.
func (c *Client) FetchSecret(ctx context.Context, name string) (string, bool, error) {
	query := url.Values{
		"name":   {"eq." + name},
		"select": {"value"},
	}
	rows, err := c.queryRows(ctx, "secrets", query)
	if err != nil {
		return "", false, err
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	return rows[0].Get("value").String(), true, nil
}

// TokenRecord is the projection selected when validating an auth token.
type TokenRecord struct {
	Username  string
	IsAdmin   bool
	ExpiresAt string
}

// LookupToken returns the non-expired auth_tokens row matching token
// exactly, if any. Expiry filtering happens server-side against now.
func (c *Client) LookupToken(ctx context.Context, token string, now time.Time) (TokenRecord, bool, error) {
	query := url.Values{
		"token":      {"eq." + token},
		"expires_at": {"gt." + now.UTC().Format(time.RFC3339)},
		"select":     {"username,is_admin,expires_at"},
	}
	rows, err := c.queryRows(ctx, "auth_tokens", query)
	if err != nil {
		return TokenRecord{}, false, err
	}
	if len(rows) == 0 {
		return TokenRecord{}, false, nil
	}
	row := rows[0]
	return TokenRecord{
		Username:  row.Get("username").String(),
		IsAdmin:   row.Get("is_admin").Bool(),
		ExpiresAt: row.Get("expires_at").String(),
	}, true, nil
}

// queryRows performs one GET against a table and returns the JSON array
// rows. Any non-2xx status or malformed body is an error; retries are the
// caller's concern and none are performed here.
func (c *Client) queryRows(ctx context.Context, table string, query url.Values) ([]gjson.Result, error) {
	reqURL := c.endpointURL + restPrefix + table + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("backend: build request failed: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+c.anonKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: query %s failed: %w", table, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("backend: read %s response failed: %w", table, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("backend: query %s returned status %d", table, resp.StatusCode)
	}
	// gjson parses leniently, so truncated or garbage bodies have to be
	// rejected before they can masquerade as rows.
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("backend: query %s returned malformed body", table)
	}
	parsed := gjson.ParseBytes(body)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("backend: query %s returned non-array body", table)
	}
	return parsed.Array(), nil
}
