package googleauth

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/classplan-dev/authbridge/sdk/channel"
	"github.com/classplan-dev/authbridge/sdk/store"
)

// Placeholder credentials shipped in example configuration. IsConfigured
// treats them the same as missing values.
const (
	PlaceholderClientID     = "YOUR_GOOGLE_CLIENT_ID"
	PlaceholderClientSecret = "YOUR_GOOGLE_CLIENT_SECRET"
)

// Authorization-window message types, same-origin only.
const (
	MsgTypeAuthSuccess = "GOOGLE_AUTH_SUCCESS"
	MsgTypeAuthError   = "GOOGLE_AUTH_ERROR"
)

// Default provider endpoints.
const (
	defaultTokenURL    = "https://oauth2.googleapis.com/token"
	defaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// expirySkew is the freshness margin: an access token within this much of
// its expiry is treated as already stale.
const expirySkew = 5 * time.Minute

// defaultPollInterval is how often the controller checks whether the user
// closed the authorization window.
const defaultPollInterval = time.Second

var oauthScopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/calendar",
}

// Storage keys written by the calendar-auth side of the subsystem.
const (
	storeKeyTokens   = "authbridge.google.tokens"
	storeKeyUserInfo = "authbridge.google.user"
)

// CalendarCredentials is what calendar-integration callers consume. APIKey
// carries the OAuth client identifier reused as a calendar API key, a
// simplification inherited from the system this replaces.
type CalendarCredentials struct {
	APIKey      string
	AccessToken string
}

// Options configures a Controller.
type Options struct {
	ClientID     string
	ClientSecret string
	// RedirectURL is the redirect the authorization window returns to.
	RedirectURL string
	// Origin is this context's own origin. Window messages from any other
	// origin are ignored outright.
	Origin string
	// Launcher opens the authorization window. Required for SignIn.
	Launcher PopupLauncher
	// Messages carries the window's success/error messages back.
	Messages channel.MessageChannel
	// Store persists the token set and user info across restarts. Required.
	Store store.KeyValue
	// HTTPClient is used for token exchange and userinfo requests. Defaults
	// to http.DefaultClient.
	HTTPClient *http.Client
	// PollInterval overrides the window-liveness poll cadence, for tests.
	PollInterval time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
	// OnSignedOut fires when a background best-effort refresh fails and the
	// controller signs out on its own.
	OnSignedOut func()

	// TokenURL and UserInfoURL override the provider endpoints, for tests.
	TokenURL    string
	UserInfoURL string
}

// Controller drives the authorization-code flow and owns the resulting
// token set. States progress Unconfigured -> Idle -> AwaitingPopupResult ->
// Authenticated; token expiry is a lazy observation on access, not a timer.
//
// Concurrent overlapping SignIn calls race independently; the last one to
// finish wins.
type Controller struct {
	clientID     string
	clientSecret string
	redirectURL  string
	origin       string
	launcher     PopupLauncher
	messages     channel.MessageChannel
	kv           store.KeyValue
	httpClient   *http.Client
	pollInterval time.Duration
	now          func() time.Time
	onSignedOut  func()
	tokenURL     string
	userInfoURL  string

	mu     sync.Mutex
	tokens *TokenSet
	user   *UserInfo
}

// NewController builds a controller. It does not touch the store; call
// LoadStoredTokens to hydrate.
func NewController(opts Options) *Controller {
	c := &Controller{
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		redirectURL:  opts.RedirectURL,
		origin:       opts.Origin,
		launcher:     opts.Launcher,
		messages:     opts.Messages,
		kv:           opts.Store,
		httpClient:   opts.HTTPClient,
		pollInterval: opts.PollInterval,
		now:          opts.Now,
		onSignedOut:  opts.OnSignedOut,
		tokenURL:     opts.TokenURL,
		userInfoURL:  opts.UserInfoURL,
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.tokenURL == "" {
		c.tokenURL = defaultTokenURL
	}
	if c.userInfoURL == "" {
		c.userInfoURL = defaultUserInfoURL
	}
	return c
}

// IsConfigured reports whether real client credentials are present.
func (c *Controller) IsConfigured() bool {
	return c.clientID != "" && c.clientID != PlaceholderClientID &&
		c.clientSecret != "" && c.clientSecret != PlaceholderClientSecret
}

// AuthURL builds the authorization URL the external window navigates to.
// Offline access with forced consent guarantees a refresh token on every
// grant.
func (c *Controller) AuthURL() string {
	conf := &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		RedirectURL:  c.redirectURL,
		Scopes:       oauthScopes,
		Endpoint:     google.Endpoint,
	}
	return conf.AuthCodeURL("",
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

// SignIn runs one complete authorization-code flow: open the window, wait
// for its result, exchange the code, fetch the profile, persist both.
// Exactly one of window-closed, success message, or error message
// terminates the attempt; whichever fires first tears the others down.
func (c *Controller) SignIn(ctx context.Context) (*UserInfo, error) {
	if !c.IsConfigured() {
		return nil, &ConfigError{}
	}

	popup, err := c.launcher.Open(c.AuthURL())
	if err != nil {
		return nil, &ConfigError{Reason: "failed to open authorization window: " + err.Error()}
	}

	type outcome struct {
		code string
		err  error
	}
	results := make(chan outcome, 1)
	var once sync.Once
	cancel := c.messages.Subscribe(func(msg channel.Message) {
		if msg.Origin != c.origin {
			return
		}
		switch msg.Type {
		case MsgTypeAuthSuccess:
			code := gjson.GetBytes(msg.Data, "code").String()
			once.Do(func() { results <- outcome{code: code} })
		case MsgTypeAuthError:
			reason := gjson.GetBytes(msg.Data, "error").String()
			once.Do(func() { results <- outcome{err: &ProviderError{Code: reason}} })
		}
	})
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case res := <-results:
			popup.Close()
			if res.err != nil {
				return nil, res.err
			}
			return c.completeSignIn(ctx, res.code)
		case <-ticker.C:
			if popup.Closed() {
				return nil, &CancelledError{}
			}
		case <-ctx.Done():
			popup.Close()
			return nil, ctx.Err()
		}
	}
}

func (c *Controller) completeSignIn(ctx context.Context, code string) (*UserInfo, error) {
	tokens, err := c.exchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	user, err := c.fetchUserInfo(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.tokens = tokens
	c.user = user
	c.mu.Unlock()
	c.persist(tokens, user)

	log.Infof("google auth: signed in as %s", user.Email)
	return user, nil
}

// AccessToken returns the current access token, or empty when none is
// stored or the token is within five minutes of expiry. It never triggers
// a refresh; callers decide when to call RefreshAccessToken.
func (c *Controller) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokens == nil || !c.freshLocked() {
		return ""
	}
	return c.tokens.AccessToken
}

// CalendarCredentials returns the credential pair calendar callers need, or
// nil when no valid access token is available.
func (c *Controller) CalendarCredentials() *CalendarCredentials {
	token := c.AccessToken()
	if token == "" {
		return nil
	}
	return &CalendarCredentials{APIKey: c.clientID, AccessToken: token}
}

// CurrentUser returns a copy of the provider profile for the active token
// set, or nil.
func (c *Controller) CurrentUser() *UserInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return nil
	}
	user := *c.user
	return &user
}

// RefreshAccessToken exchanges the stored refresh token for a new access
// token and persists the updated set. The refresh token survives unless the
// provider rotates it.
func (c *Controller) RefreshAccessToken(ctx context.Context) error {
	c.mu.Lock()
	refreshToken := ""
	if c.tokens != nil {
		refreshToken = c.tokens.RefreshToken
	}
	c.mu.Unlock()
	if refreshToken == "" {
		return ErrNoRefreshToken
	}

	tokens, err := c.refreshGrant(ctx, refreshToken)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if tokens.IDToken == "" && c.tokens != nil {
		tokens.IDToken = c.tokens.IDToken
	}
	c.tokens = tokens
	user := c.user
	c.mu.Unlock()
	c.persist(tokens, user)
	log.Debug("google auth: access token refreshed")
	return nil
}

// LoadStoredTokens hydrates the token set and profile from the store. A
// fresh set returns true immediately. An expired set with a refresh token
// also returns true optimistically while a best-effort refresh runs in the
// background; if that refresh fails the controller signs out entirely and
// fires OnSignedOut. Anything else returns false.
func (c *Controller) LoadStoredTokens(ctx context.Context) bool {
	tokens := c.loadTokenSet()
	user := c.loadUserInfo()
	if tokens == nil || tokens.AccessToken == "" || user == nil {
		return false
	}

	c.mu.Lock()
	c.tokens = tokens
	c.user = user
	fresh := c.freshLocked()
	refreshToken := tokens.RefreshToken
	c.mu.Unlock()

	if fresh {
		return true
	}
	if refreshToken == "" {
		c.mu.Lock()
		c.tokens = nil
		c.user = nil
		c.mu.Unlock()
		return false
	}

	go func() {
		if err := c.RefreshAccessToken(context.Background()); err != nil {
			log.Warnf("google auth: background refresh failed, signing out: %v", err)
			c.SignOut()
			if c.onSignedOut != nil {
				c.onSignedOut()
			}
		}
	}()
	return true
}

// SignOut drops the token set, the profile, and their cache entries,
// synchronously.
func (c *Controller) SignOut() {
	c.mu.Lock()
	c.tokens = nil
	c.user = nil
	c.mu.Unlock()
	for _, key := range []string{storeKeyTokens, storeKeyUserInfo} {
		if err := c.kv.Delete(key); err != nil {
			log.Warnf("google auth: delete %s failed: %v", key, err)
		}
	}
	log.Debug("google auth: signed out")
}

// freshLocked reports whether the current token set is outside the expiry
// skew window. Callers hold c.mu.
func (c *Controller) freshLocked() bool {
	if c.tokens == nil {
		return false
	}
	return c.now().UnixMilli() < c.tokens.ExpiryMillis-expirySkew.Milliseconds()
}

func (c *Controller) persist(tokens *TokenSet, user *UserInfo) {
	if tokens != nil {
		if raw, err := json.Marshal(tokens); err == nil {
			if errSet := c.kv.Set(storeKeyTokens, string(raw)); errSet != nil {
				log.Warnf("google auth: persist tokens failed: %v", errSet)
			}
		}
	}
	if user != nil {
		if raw, err := json.Marshal(user); err == nil {
			if errSet := c.kv.Set(storeKeyUserInfo, string(raw)); errSet != nil {
				log.Warnf("google auth: persist user info failed: %v", errSet)
			}
		}
	}
}

func (c *Controller) loadTokenSet() *TokenSet {
	raw, ok := c.kv.Get(storeKeyTokens)
	if !ok {
		return nil
	}
	var tokens TokenSet
	if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
		log.Warnf("google auth: discarding unreadable token set: %v", err)
		return nil
	}
	return &tokens
}

func (c *Controller) loadUserInfo() *UserInfo {
	raw, ok := c.kv.Get(storeKeyUserInfo)
	if !ok {
		return nil
	}
	var user UserInfo
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		log.Warnf("google auth: discarding unreadable user info: %v", err)
		return nil
	}
	return &user
}
