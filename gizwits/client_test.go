package gizwits

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const (
	testAppID = "c70a66ff039d41b4a220e198b0fcc8b3"
	testToken = "ofmyappreciation"
)

type ClientTestSuite struct {
	suite.Suite

	now    time.Time
	logins int32
	mux    *http.ServeMux
	server *httptest.Server
	client *Client
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func (s *ClientTestSuite) SetupTest() {
	s.now = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	atomic.StoreInt32(&s.logins, 0)
	s.mux = http.NewServeMux()
	s.server = httptest.NewServer(s.mux)
	s.client = NewClient(Config{
		BaseURL:  s.server.URL,
		AppID:    testAppID,
		Username: "bobby@charlton.com",
		Password: "england66",
		Now:      func() time.Time { return s.now },
	})
}

func (s *ClientTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *ClientTestSuite) handleLogin() {
	s.mux.HandleFunc("/app/login", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.logins, 1)
		json.NewEncoder(w).Encode(map[string]interface{}{"token": testToken, "uid": "u1", "expire_at": 1})
	})
}

func (s *ClientTestSuite) TestAuthenticateRequest() {
	assert := assert.New(s.T())
	s.mux.HandleFunc("/app/login", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(http.MethodPost, r.Method)
		assert.Equal(testAppID, r.Header.Get("X-Gizwits-Application-Id"))
		assert.Equal("application/json", r.Header.Get("Content-Type"))
		assert.Equal("application/json", r.Header.Get("Accept"))

		var body map[string]string
		assert.NoError(json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(map[string]string{
			"username": "bobby@charlton.com",
			"password": "england66",
			"lang":     "en",
		}, body)
		w.Write([]byte(`{"token":"` + testToken + `"}`))
	})

	session, err := s.client.Authenticate(context.Background())
	s.Require().NoError(err)
	assert.Equal(testToken, session.Token)
	assert.Equal(s.now.Add(time.Hour), session.ExpiresAt)
	assert.False(s.client.IsExpired())

	token, ok := s.client.Token()
	assert.True(ok)
	assert.Equal(testToken, token)
}

func (s *ClientTestSuite) TestAuthenticateFailureKeepsSession() {
	assert := assert.New(s.T())
	old := Session{Token: "old", ExpiresAt: s.now.Add(10 * time.Minute)}
	s.client.session = old

	s.mux.HandleFunc("/app/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error_code":9020,"error_message":"username or password error"}`))
	})

	_, err := s.client.Authenticate(context.Background())
	var authErr *AuthError
	s.Require().True(errors.As(err, &authErr))
	assert.Equal(http.StatusBadRequest, authErr.Status)
	assert.Contains(err.Error(), "username or password error")
	assert.Equal(old, s.client.Session())
}

func (s *ClientTestSuite) TestAuthenticateNoToken() {
	s.mux.HandleFunc("/app/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"uid":"u1"}`))
	})

	_, err := s.client.Authenticate(context.Background())
	var authErr *AuthError
	s.True(errors.As(err, &authErr))
	s.True(s.client.IsExpired())
}

func (s *ClientTestSuite) TestAuthenticateUnreachable() {
	s.server.Close()

	_, err := s.client.Authenticate(context.Background())
	var authErr *AuthError
	s.True(errors.As(err, &authErr))
	s.Zero(authErr.Status)
}

func (s *ClientTestSuite) TestIsExpired() {
	assert := assert.New(s.T())

	assert.True(s.client.IsExpired(), "no token")

	s.client.session = Session{Token: testToken}
	assert.True(s.client.IsExpired(), "no expiry")

	s.client.session = Session{Token: testToken, ExpiresAt: s.now.Add(-time.Second)}
	assert.True(s.client.IsExpired(), "in the past")

	s.client.session = Session{Token: testToken, ExpiresAt: s.now}
	assert.True(s.client.IsExpired(), "expiry is now")

	s.client.session = Session{Token: testToken, ExpiresAt: s.now.Add(TokenTTL)}
	assert.False(s.client.IsExpired(), "fresh")
}

func (s *ClientTestSuite) TestEnsureSessionSharesLogin() {
	s.mux.HandleFunc("/app/login", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.logins, 1)
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte(`{"token":"` + testToken + `"}`))
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.NoError(s.client.EnsureSession(context.Background()))
		}()
	}
	wg.Wait()

	s.Equal(int32(1), atomic.LoadInt32(&s.logins))
	s.False(s.client.IsExpired())
}

func (s *ClientTestSuite) TestEnsureSessionOutlivesCancelledCaller() {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	s.mux.HandleFunc("/app/login", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.logins, 1)
		once.Do(func() { close(started) })
		<-release
		w.Write([]byte(`{"token":"` + testToken + `"}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() { first <- s.client.EnsureSession(ctx) }()
	<-started

	second := make(chan error, 1)
	go func() { second <- s.client.EnsureSession(context.Background()) }()

	// the first caller gives up while the login is still in flight
	cancel()
	err := <-first
	var authErr *AuthError
	s.True(errors.As(err, &authErr))
	s.True(errors.Is(err, context.Canceled))

	close(release)
	s.NoError(<-second)
	s.Equal(int32(1), atomic.LoadInt32(&s.logins))
	s.False(s.client.IsExpired())
}

func (s *ClientTestSuite) TestEnsureSessionRelogsWhenExpired() {
	s.handleLogin()
	s.Require().NoError(s.client.EnsureSession(context.Background()))
	s.Require().NoError(s.client.EnsureSession(context.Background()))
	s.Equal(int32(1), atomic.LoadInt32(&s.logins))

	s.now = s.now.Add(TokenTTL)
	s.True(s.client.IsExpired())
	s.Require().NoError(s.client.EnsureSession(context.Background()))
	s.Equal(int32(2), atomic.LoadInt32(&s.logins))
}

func (s *ClientTestSuite) TestDevices() {
	assert := assert.New(s.T())
	s.handleLogin()
	s.mux.HandleFunc("/app/bindings", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(http.MethodGet, r.Method)
		assert.Equal("limit=20&skip=0", r.URL.RawQuery)
		assert.Equal(testToken, r.Header.Get("X-Gizwits-User-token"))
		assert.Equal(testAppID, r.Header.Get("X-Gizwits-Application-Id"))
		w.Write([]byte(`{"devices":[
			{"did":"d1","dev_alias":"Salon","is_online":true,"product_name":"Pilote_SoC","mac":"accf23aabbcc"},
			{"did":"d2","dev_alias":"Chambre","is_online":false}
		]}`))
	})

	devices, err := s.client.Devices(context.Background())
	s.Require().NoError(err)
	s.Require().Len(devices, 2)
	assert.Equal(Device{DID: "d1", Alias: "Salon", IsOnline: true, ProductName: "Pilote_SoC", MAC: "accf23aabbcc"}, devices[0])
	assert.Equal("Chambre", devices[1].Alias)
	assert.False(devices[1].IsOnline)
}

func (s *ClientTestSuite) TestDevicesLoginFails() {
	s.mux.HandleFunc("/app/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	s.mux.HandleFunc("/app/bindings", func(w http.ResponseWriter, r *http.Request) {
		s.Fail("listing must not be called without a token")
	})

	_, err := s.client.Devices(context.Background())
	var fetchErr *FetchError
	var authErr *AuthError
	s.True(errors.As(err, &fetchErr))
	s.True(errors.As(err, &authErr))
	s.Contains(err.Error(), "Internal")
}

func (s *ClientTestSuite) TestDevicesMalformed() {
	s.handleLogin()
	s.mux.HandleFunc("/app/bindings", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"nope":true}`))
	})

	_, err := s.client.Devices(context.Background())
	var fetchErr *FetchError
	s.True(errors.As(err, &fetchErr))
}

func (s *ClientTestSuite) TestDeviceNotFound() {
	s.handleLogin()
	s.mux.HandleFunc("/app/bindings", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"devices":[{"did":"d1"}]}`))
	})

	_, err := s.client.Device(context.Background(), "d9")
	var readErr *ReadError
	s.Require().True(errors.As(err, &readErr))
	s.Equal("d9", readErr.DID)
	s.True(errors.Is(err, ErrDeviceNotFound))
}

func (s *ClientTestSuite) TestControl() {
	assert := assert.New(s.T())
	s.handleLogin()
	s.mux.HandleFunc("/app/control/d1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(http.MethodPost, r.Method)
		assert.Equal(testToken, r.Header.Get("X-Gizwits-User-token"))
		assert.Equal(testAppID, r.Header.Get("X-Gizwits-Application-Id"))

		var body struct {
			Attrs map[string]int `json:"attrs"`
		}
		assert.NoError(json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(map[string]int{"mode": 1}, body.Attrs)
		w.Write([]byte(`{}`))
	})

	s.NoError(s.client.Control(context.Background(), "d1", map[string]interface{}{"mode": 1}))
}

func (s *ClientTestSuite) TestControlServerError() {
	s.handleLogin()
	s.mux.HandleFunc("/app/control/d1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error_code":9004,"error_message":"device offline"}`))
	})

	err := s.client.Control(context.Background(), "d1", map[string]interface{}{"mode": 3})
	var ctlErr *ControlError
	s.Require().True(errors.As(err, &ctlErr))
	s.Equal(http.StatusInternalServerError, ctlErr.Status)
	s.Require().NotNil(ctlErr.Payload)
	s.Equal(9004, ctlErr.Payload.Code)
	s.Equal("device offline", ctlErr.Payload.Message)
}

func (s *ClientTestSuite) TestControlNonOKSuccessStatus() {
	s.handleLogin()
	s.mux.HandleFunc("/app/control/d1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	err := s.client.Control(context.Background(), "d1", map[string]interface{}{"on": true})
	var ctlErr *ControlError
	s.Require().True(errors.As(err, &ctlErr))
	s.Equal(http.StatusAccepted, ctlErr.Status)
	s.Nil(ctlErr.Payload)
}

func (s *ClientTestSuite) TestLatest() {
	s.handleLogin()
	s.mux.HandleFunc("/app/devdata/d1/latest", func(w http.ResponseWriter, r *http.Request) {
		s.Equal(testToken, r.Header.Get("X-Gizwits-User-token"))
		w.Write([]byte(`{"did":"d1","updated_at":1700000000,"attr":{"mode":4,"on_off":true}}`))
	})

	l, err := s.client.Latest(context.Background(), "d1")
	s.Require().NoError(err)
	mode, ok := l.Mode()
	s.True(ok)
	s.Equal(4, mode)
}

func (s *ClientTestSuite) TestLatestMalformed() {
	s.handleLogin()
	s.mux.HandleFunc("/app/devdata/d1/latest", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"did":"d1"}`))
	})
	s.mux.HandleFunc("/app/devdata/d2/latest", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"did":"d2","attr":{"mode":"cft"}}`))
	})

	_, err := s.client.Latest(context.Background(), "d1")
	var readErr *ReadError
	s.True(errors.As(err, &readErr))

	l, err := s.client.Latest(context.Background(), "d2")
	s.Require().NoError(err)
	_, ok := l.Mode()
	s.False(ok)
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()
	assert.True(t, Session{}.Expired(now))
	assert.True(t, Session{Token: "x", ExpiresAt: now.Add(-time.Minute)}.Expired(now))
	assert.False(t, Session{Token: "x", ExpiresAt: now.Add(TokenTTL)}.Expired(now))
}

func TestControlErrorMessage(t *testing.T) {
	err := &ControlError{DID: "d1", Status: 500, Payload: &ErrorPayload{Code: 9004, Message: "device offline"}}
	require.Equal(t, "unable to control [d1]: status 500: device offline (9004)", err.Error())
}
