package gizwits

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/brutella/hc/log"
	"golang.org/x/sync/singleflight"
)

// TokenTTL is how long we trust a token; Gizwits does not tell us
const TokenTTL = time.Hour

const (
	headerAppID = "X-Gizwits-Application-Id"
	headerToken = "X-Gizwits-User-token"

	loginPath    = "/app/login"
	bindingsPath = "/app/bindings?limit=20&skip=0"
	controlPath  = "/app/control/%s"
	latestPath   = "/app/devdata/%s/latest"
)

// Config is what the client needs to talk to Gizwits
type Config struct {
	BaseURL  string
	AppID    string
	Username string
	Password string
	Timeout  time.Duration
	Now      func() time.Time // nil means time.Now
}

// Client holds the single session shared by every switch
type Client struct {
	baseURL    string
	appID      string
	username   string
	password   string
	httpClient *http.Client
	now        func() time.Time

	mu      sync.RWMutex
	session Session
	login   singleflight.Group
}

// NewClient sets up a client, it does not log in
func NewClient(c Config) *Client {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return &Client{
		baseURL:    c.BaseURL,
		appID:      c.AppID,
		username:   c.Username,
		password:   c.Password,
		httpClient: &http.Client{Timeout: c.Timeout},
		now:        c.Now,
	}
}

// Authenticate logs in and replaces the session; on failure the old session is kept
func (c *Client) Authenticate(ctx context.Context) (Session, error) {
	body, err := json.Marshal(loginRequest{
		Username: c.username,
		Password: c.password,
		Lang:     "en",
	})
	if err != nil {
		return Session{}, &AuthError{Err: err}
	}

	raw, status, err := c.do(ctx, http.MethodPost, loginPath, "", body, "login")
	if err != nil {
		loginsTotal.WithLabelValues("error").Inc()
		return Session{}, &AuthError{Err: err}
	}
	if status < 200 || status > 299 {
		loginsTotal.WithLabelValues("rejected").Inc()
		return Session{}, &AuthError{Status: status, Err: payloadError(raw, status)}
	}

	var reply loginReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		loginsTotal.WithLabelValues("error").Inc()
		return Session{}, &AuthError{Status: status, Err: fmt.Errorf("parsing login reply: %w", err)}
	}
	if reply.Token == "" {
		loginsTotal.WithLabelValues("error").Inc()
		return Session{}, &AuthError{Status: status, Err: errors.New("no token in login reply")}
	}

	s := Session{
		Token:     reply.Token,
		ExpiresAt: c.now().Add(TokenTTL),
	}
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()

	loginsTotal.WithLabelValues("ok").Inc()
	log.Debug.Printf("gizwits session valid until %s", s.ExpiresAt.Format(time.RFC3339))
	return s, nil
}

// IsExpired is true when there is no token, no expiry, or the expiry has passed
func (c *Client) IsExpired() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.Expired(c.now())
}

// Token returns the current token, if any
func (c *Client) Token() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.Token, c.session.Token != ""
}

// Session returns a copy of the current session
func (c *Client) Session() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// EnsureSession logs in if needed; concurrent callers share one login.
// The login does not belong to any caller, so giving up on ctx only stops this caller's wait.
func (c *Client) EnsureSession(ctx context.Context) error {
	if !c.IsExpired() {
		return nil
	}
	ch := c.login.DoChan("login", func() (interface{}, error) {
		if !c.IsExpired() {
			return nil, nil
		}
		log.Info.Printf("gizwits session expired, logging in as %s", c.username)
		lctx, cancel := context.WithTimeout(context.Background(), c.httpClient.Timeout)
		defer cancel()
		return c.Authenticate(lctx)
	})

	select {
	case <-ctx.Done():
		return &AuthError{Err: ctx.Err()}
	case res := <-ch:
		if res.Shared {
			log.Debug.Print("shared an in-flight gizwits login")
		}
		return res.Err
	}
}

// Devices lists the devices bound to the account
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	if err := c.EnsureSession(ctx); err != nil {
		return nil, &FetchError{Err: err}
	}
	token, ok := c.Token()
	if !ok {
		return nil, &FetchError{Err: ErrNoToken}
	}

	raw, status, err := c.do(ctx, http.MethodGet, bindingsPath, token, nil, "bindings")
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	if status < 200 || status > 299 {
		return nil, &FetchError{Err: payloadError(raw, status)}
	}

	var reply bindingsReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, &FetchError{Err: fmt.Errorf("parsing devices: %w", err)}
	}
	if reply.Devices == nil {
		return nil, &FetchError{Err: errors.New("no devices in reply")}
	}
	return reply.Devices, nil
}

// Device finds one device in the listing
func (c *Client) Device(ctx context.Context, did string) (Device, error) {
	devices, err := c.Devices(ctx)
	if err != nil {
		return Device{}, &ReadError{DID: did, Err: err}
	}
	for _, d := range devices {
		if d.DID == did {
			return d, nil
		}
	}
	return Device{}, &ReadError{DID: did, Err: ErrDeviceNotFound}
}

// Control sends attributes to a device; only a 200 is success
func (c *Client) Control(ctx context.Context, did string, attrs map[string]interface{}) error {
	if err := c.EnsureSession(ctx); err != nil {
		return &ControlError{DID: did, Err: err}
	}
	token, ok := c.Token()
	if !ok {
		return &ControlError{DID: did, Err: ErrNoToken}
	}

	body, err := json.Marshal(controlRequest{Attrs: attrs})
	if err != nil {
		return &ControlError{DID: did, Err: err}
	}

	raw, status, err := c.do(ctx, http.MethodPost, fmt.Sprintf(controlPath, did), token, body, "control")
	if err != nil {
		return &ControlError{DID: did, Err: err}
	}
	if status != http.StatusOK {
		return &ControlError{DID: did, Status: status, Payload: decodePayload(raw)}
	}
	return nil
}

// Latest pulls the most recent attribute snapshot of a device
func (c *Client) Latest(ctx context.Context, did string) (*Latest, error) {
	if err := c.EnsureSession(ctx); err != nil {
		return nil, &ReadError{DID: did, Err: err}
	}
	token, ok := c.Token()
	if !ok {
		return nil, &ReadError{DID: did, Err: ErrNoToken}
	}

	raw, status, err := c.do(ctx, http.MethodGet, fmt.Sprintf(latestPath, did), token, nil, "latest")
	if err != nil {
		return nil, &ReadError{DID: did, Err: err}
	}
	if status != http.StatusOK {
		return nil, &ReadError{DID: did, Err: payloadError(raw, status)}
	}

	var l Latest
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, &ReadError{DID: did, Err: fmt.Errorf("parsing attributes: %w", err)}
	}
	if l.Attr == nil {
		return nil, &ReadError{DID: did, Err: errors.New("no attributes in reply")}
	}
	return &l, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body []byte, endpoint string) ([]byte, int, error) {
	var br io.Reader
	if body != nil {
		br = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, br)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerAppID, c.appID)
	if token != "" {
		req.Header.Set(headerToken, token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, 0, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()
	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	return raw, resp.StatusCode, nil
}

func decodePayload(raw []byte) *ErrorPayload {
	if len(raw) == 0 {
		return nil
	}
	var p ErrorPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return &ErrorPayload{Message: string(raw)}
	}
	if p.Message == "" && p.Code == 0 {
		return nil
	}
	return &p
}

func payloadError(raw []byte, status int) error {
	if p := decodePayload(raw); p != nil {
		return fmt.Errorf("status %d: %s", status, p.Message)
	}
	return fmt.Errorf("status %d: %s", status, http.StatusText(status))
}
