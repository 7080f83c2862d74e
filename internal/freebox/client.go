package freebox

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fastjson"

	"github.com/ferux/trafficsentinel/internal/config"
	"github.com/ferux/trafficsentinel/internal/model"
)

const (
	defaultBaseURL = "http://mafreebox.freebox.fr"
	defaultAppID   = "traffic_sentinel"

	appName    = "Traffic Sentinel Network Monitor"
	appVersion = "1.0.0"
	deviceName = "VM Traffic Monitor"
)

// Client talks to the Freebox OS HTTP API. It implements gateway.Gateway
// on top of the wifi mac_filter blacklist and gateway.Refresher on top of
// the challenge/session login.
type Client struct {
	c      *http.Client
	logger zerolog.Logger

	baseURL   string
	appID     string
	tokenFile string

	mu         sync.Mutex
	apiVersion string
	appToken   string
	session    string
}

// New creates a client from config. Call Connect before using it.
func New(cfg config.Freebox, logger zerolog.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	appID := cfg.AppID
	if appID == "" {
		appID = defaultAppID
	}

	return &Client{
		c:          &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With().Str("pkg", "freebox").Logger(),
		baseURL:    strings.TrimRight(baseURL, "/"),
		appID:      appID,
		tokenFile:  cfg.TokenFile,
		apiVersion: "v8",
	}
}

// Connect discovers the API version, loads the stored app token and opens
// a session.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.discover(ctx); err != nil {
		return err
	}

	tokens, err := loadTokens(c.tokenFile)
	if err != nil {
		return fmt.Errorf("loading tokens: %w", err)
	}
	if tokens.AppToken == "" {
		return model.Error("no app token, run with -authorize first")
	}

	c.mu.Lock()
	c.appToken = tokens.AppToken
	c.session = tokens.SessionToken
	c.mu.Unlock()

	return c.RefreshSession(ctx)
}

// discover queries /api_version, which requires no authentication.
func (c *Client) discover(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api_version", nil)
	if err != nil {
		return fmt.Errorf("making request: %w", err)
	}

	resp, err := c.c.Do(req)
	if err != nil {
		return fmt.Errorf("querying api version: %v: %w", err, model.ErrUnreachable)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading api version: %v: %w", err, model.ErrUnreachable)
	}

	v, err := fastjson.ParseBytes(data)
	if err != nil {
		return fmt.Errorf("parsing api version: %w", err)
	}

	version := string(v.GetStringBytes("api_version"))
	if version == "" {
		return model.Error("api version missing in response")
	}

	// only the major version goes into request paths
	major, _, _ := strings.Cut(version, ".")

	c.mu.Lock()
	c.apiVersion = "v" + major
	c.mu.Unlock()

	c.logger.Info().
		Str("device", string(v.GetStringBytes("device_name"))).
		Str("api_version", version).
		Msg("freebox discovered")

	return nil
}

// RefreshSession obtains a new session token: fetch a login challenge,
// sign it with the app token (HMAC-SHA1, per the Freebox login protocol)
// and exchange the signature for a session. The new token is persisted
// next to the app token.
func (c *Client) RefreshSession(ctx context.Context) error {
	v, err := c.call(ctx, http.MethodGet, "login", nil, false)
	if err != nil {
		return fmt.Errorf("fetching challenge: %w", err)
	}

	challenge := string(v.GetStringBytes("result", "challenge"))
	if challenge == "" {
		return model.Error("empty login challenge")
	}

	c.mu.Lock()
	appToken := c.appToken
	c.mu.Unlock()

	mac := hmac.New(sha1.New, []byte(appToken))
	mac.Write([]byte(challenge))
	password := hex.EncodeToString(mac.Sum(nil))

	body := map[string]string{
		"app_id":   c.appID,
		"password": password,
	}

	v, err = c.call(ctx, http.MethodPost, "login/session", body, false)
	if err != nil {
		return fmt.Errorf("opening session: %w", err)
	}

	session := string(v.GetStringBytes("result", "session_token"))
	if session == "" {
		return model.Error("empty session token")
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	if err := saveTokens(c.tokenFile, tokens{AppToken: appToken, SessionToken: session}); err != nil {
		// token stays usable in memory for this run
		c.logger.Warn().Err(err).Msg("can't persist session token")
	}

	c.logger.Info().Msg("freebox session refreshed")

	return nil
}

// call performs one API request and returns the parsed body after checking
// the success flag. Transport failures map to ErrUnreachable, rejected
// credentials to ErrAuthExpired.
func (c *Client) call(ctx context.Context, method, path string, body interface{}, auth bool) (*fastjson.Value, error) {
	c.mu.Lock()
	requestURL := c.baseURL + "/api/" + c.apiVersion + "/" + path
	session := c.session
	c.mu.Unlock()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("X-Fbx-App-Auth", session)
	}

	resp, err := c.c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %v: %w", method, path, err, model.ErrUnreachable)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %v: %w", method, path, err, model.ErrUnreachable)
	}

	v, err := fastjson.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s %s: parsing response: %w", method, path, err)
	}

	if !v.GetBool("success") {
		code := string(v.GetStringBytes("error_code"))
		switch code {
		case "auth_required", "invalid_token", "invalid_session":
			return nil, fmt.Errorf("%s %s: %w", method, path, model.ErrAuthExpired)
		}

		msg := string(v.GetStringBytes("msg"))
		return nil, fmt.Errorf("%s %s: %s (%s)", method, path, msg, code)
	}

	return v, nil
}
