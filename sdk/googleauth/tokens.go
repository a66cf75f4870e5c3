package googleauth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// TokenSet is the OAuth2 token triple plus its absolute expiry. ExpiryMillis
// is derived from the server-reported lifetime at response time and never
// recomputed afterwards.
type TokenSet struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	IDToken      string `json:"idToken"`
	ExpiryMillis int64  `json:"expiryEpochMillis"`
}

// UserInfo is the provider's profile record, fetched once per token
// exchange or cache load and paired with the current TokenSet's lifetime.
type UserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	EmailVerified bool   `json:"emailVerified"`
}

// exchangeCode trades an authorization code for a fresh token set. One
// request, no retries; any non-success status maps to the generic
// authentication-failed error.
func (c *Controller) exchangeCode(ctx context.Context, code string) (*TokenSet, error) {
	form := url.Values{
		"code":          {code},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"redirect_uri":  {c.redirectURL},
		"grant_type":    {"authorization_code"},
	}
	body, err := c.postTokenEndpoint(ctx, form)
	if err != nil {
		return nil, err
	}
	return c.tokenSetFromResponse(body, ""), nil
}

// refreshGrant trades a refresh token for a new access token. The provider
// may rotate the refresh token; when it does not, the old one is kept.
func (c *Controller) refreshGrant(ctx context.Context, refreshToken string) (*TokenSet, error) {
	form := url.Values{
		"refresh_token": {refreshToken},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"grant_type":    {"refresh_token"},
	}
	body, err := c.postTokenEndpoint(ctx, form)
	if err != nil {
		return nil, err
	}
	return c.tokenSetFromResponse(body, refreshToken), nil
}

func (c *Controller) postTokenEndpoint(ctx context.Context, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("google auth: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warnf("google auth: token endpoint request failed: %v", err)
		return nil, errAuthenticationFailed
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Warnf("google auth: read token response failed: %v", err)
		return nil, errAuthenticationFailed
	}
	if resp.StatusCode != http.StatusOK {
		log.Warnf("google auth: token endpoint returned status %d", resp.StatusCode)
		return nil, errAuthenticationFailed
	}
	return body, nil
}

// tokenSetFromResponse builds a TokenSet from a token endpoint body.
// previousRefreshToken fills in when the response carries none.
func (c *Controller) tokenSetFromResponse(body []byte, previousRefreshToken string) *TokenSet {
	parsed := gjson.ParseBytes(body)
	refreshToken := parsed.Get("refresh_token").String()
	if refreshToken == "" {
		refreshToken = previousRefreshToken
	}
	return &TokenSet{
		AccessToken:  parsed.Get("access_token").String(),
		RefreshToken: refreshToken,
		IDToken:      parsed.Get("id_token").String(),
		ExpiryMillis: c.now().UnixMilli() + parsed.Get("expires_in").Int()*1000,
	}
}

// fetchUserInfo retrieves the provider profile for the given access token.
func (c *Controller) fetchUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("google auth: build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warnf("google auth: userinfo request failed: %v", err)
		return nil, errAuthenticationFailed
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Warnf("google auth: read userinfo response failed: %v", err)
		return nil, errAuthenticationFailed
	}
	if resp.StatusCode != http.StatusOK {
		log.Warnf("google auth: userinfo returned status %d", resp.StatusCode)
		return nil, errAuthenticationFailed
	}

	parsed := gjson.ParseBytes(body)
	return &UserInfo{
		ID:            parsed.Get("id").String(),
		Email:         parsed.Get("email").String(),
		Name:          parsed.Get("name").String(),
		Picture:       parsed.Get("picture").String(),
		EmailVerified: parsed.Get("verified_email").Bool(),
	}, nil
}
