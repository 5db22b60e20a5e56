package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bulbnet/bulbnet-core/internal/auth"
	"github.com/bulbnet/bulbnet-core/internal/bridge"
	"github.com/bulbnet/bulbnet-core/internal/device"
	"github.com/bulbnet/bulbnet-core/internal/infrastructure/config"
	"github.com/bulbnet/bulbnet-core/internal/infrastructure/logging"
	"github.com/bulbnet/bulbnet-core/internal/infrastructure/mqtt"
)

const testJWTSecret = "test-secret-key-at-least-32-characters-long"

// fakeBroker records publishes in place of a live MQTT connection.
type fakeBroker struct {
	mu        sync.Mutex
	published []publishedMsg
	connected bool
}

type publishedMsg struct {
	topic   string
	payload []byte
}

func (f *fakeBroker) Publish(topic string, payload []byte, _ byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMsg{topic: topic, payload: payload})
	return nil
}

func (f *fakeBroker) IsConnected() bool { return f.connected }

func (f *fakeBroker) publishCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

// healthOK satisfies HealthChecker for /status tests.
type healthOK struct{}

func (healthOK) HealthCheck(context.Context) error { return nil }

// testFixture bundles the server with direct repository access for seeding
// and assertions.
type testFixture struct {
	srv     *Server
	router  http.Handler
	broker  *fakeBroker
	devices device.Repository
	audit   device.AuditRepository
}

// newFixture creates a Server backed by a temp-file SQLite database.
func newFixture(t *testing.T) *testFixture {
	t.Helper()

	db := setupTestDB(t)
	devices := device.NewRepository(db)
	audit := device.NewAuditRepository(db)
	users := auth.NewUserRepository(db)
	broker := &fakeBroker{}

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{
				Secret:         testJWTSecret,
				AccessTokenTTL: 3600,
			},
		},
		Logger:  log,
		Devices: devices,
		Audit:   audit,
		Users:   users,
		Broker:  broker,
		DB:      healthOK{},
		QoS:     1,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	srv.hub = NewHub(srv.wsCfg, log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.hub.Run(ctx)

	return &testFixture{
		srv:     srv,
		router:  srv.buildRouter(),
		broker:  broker,
		devices: devices,
		audit:   audit,
	}
}

// setupTestDB creates a temp-file SQLite database with the full schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", "file:"+path+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TEXT NOT NULL
		) STRICT;
		CREATE TABLE devices (
			device_id TEXT PRIMARY KEY,
			status TEXT,
			updated_at TEXT NOT NULL
		) STRICT;
		CREATE TABLE audit_records (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			status TEXT,
			username TEXT NOT NULL,
			created_at TEXT NOT NULL
		) STRICT;
	`
	if _, execErr := db.Exec(schema); execErr != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", execErr)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// doJSON performs a request with an optional JSON body and bearer token.
func (f *testFixture) doJSON(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

// token issues a bearer token for the given username directly.
func (f *testFixture) token(t *testing.T, username string) string {
	t.Helper()
	token, err := auth.GenerateAccessToken(username, testJWTSecret, 3600)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	return token
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestPing(t *testing.T) {
	f := newFixture(t)

	w := f.doJSON(t, http.MethodGet, "/ping", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	resp := decodeBody(t, w)
	if resp["status"] != "success" {
		t.Errorf("status = %v, want success", resp["status"])
	}
	if resp["message"] != "Server is running" {
		t.Errorf("message = %v, want Server is running", resp["message"])
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t)

	w := f.doJSON(t, http.MethodGet, "/status", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	resp := decodeBody(t, w)
	if resp["server"] != "Running" {
		t.Errorf("server = %v, want Running", resp["server"])
	}
	if resp["mqtt_connected"] != false {
		t.Errorf("mqtt_connected = %v, want false", resp["mqtt_connected"])
	}
	if resp["db_connected"] != true {
		t.Errorf("db_connected = %v, want true", resp["db_connected"])
	}
}

func TestSignup_FirstUser(t *testing.T) {
	f := newFixture(t)

	w := f.doJSON(t, http.MethodPost, "/signup", "", map[string]string{
		"username": "alice",
		"password": "correct-horse",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	resp := decodeBody(t, w)
	if resp["status"] != "success" {
		t.Errorf("status = %v, want success", resp["status"])
	}
	if resp["message"] != "First user created" {
		t.Errorf("message = %v, want First user created", resp["message"])
	}
}

func TestSignup_SecondUser(t *testing.T) {
	f := newFixture(t)

	first := f.doJSON(t, http.MethodPost, "/signup", "", map[string]string{
		"username": "alice", "password": "pw-one",
	})
	if first.Code != http.StatusOK {
		t.Fatalf("first signup status = %d", first.Code)
	}

	w := f.doJSON(t, http.MethodPost, "/signup", "", map[string]string{
		"username": "bob", "password": "pw-two",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	resp := decodeBody(t, w)
	if resp["status"] != "success" {
		t.Errorf("status = %v, want success", resp["status"])
	}
	if _, hasMsg := resp["message"]; hasMsg {
		t.Errorf("second signup carried message %v, want none", resp["message"])
	}
}

func TestSignup_DuplicateUsername(t *testing.T) {
	f := newFixture(t)

	first := f.doJSON(t, http.MethodPost, "/signup", "", map[string]string{
		"username": "alice", "password": "pw-one",
	})
	if first.Code != http.StatusOK {
		t.Fatalf("first signup status = %d", first.Code)
	}

	w := f.doJSON(t, http.MethodPost, "/signup", "", map[string]string{
		"username": "alice", "password": "pw-other",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	resp := decodeBody(t, w)
	if resp["status"] != "error" {
		t.Errorf("status = %v, want error", resp["status"])
	}
	if resp["message"] != "User already exists" {
		t.Errorf("message = %v, want User already exists", resp["message"])
	}
}

func TestSignup_AcceptsAnyCredentials(t *testing.T) {
	// Signup applies no strength or format gates: the first account is
	// accepted even with an empty password, and usernames are stored as
	// given. Only duplicates are rejected.
	f := newFixture(t)

	first := f.doJSON(t, http.MethodPost, "/signup", "", map[string]string{
		"username": "alice", "password": "",
	})
	if first.Code != http.StatusOK {
		t.Fatalf("empty-password signup status = %d, want %d: %s",
			first.Code, http.StatusOK, first.Body.String())
	}
	resp := decodeBody(t, first)
	if resp["message"] != "First user created" {
		t.Errorf("message = %v, want First user created", resp["message"])
	}

	second := f.doJSON(t, http.MethodPost, "/signup", "", map[string]string{
		"username": "weird user!", "password": "pw",
	})
	if second.Code != http.StatusOK {
		t.Fatalf("odd-username signup status = %d, want %d: %s",
			second.Code, http.StatusOK, second.Body.String())
	}

	// Both accounts can log in with the credentials they registered.
	for _, creds := range []map[string]string{
		{"username": "alice", "password": ""},
		{"username": "weird user!", "password": "pw"},
	} {
		login := f.doJSON(t, http.MethodPost, "/login", "", creds)
		if login.Code != http.StatusOK {
			t.Errorf("login as %q status = %d, want %d",
				creds["username"], login.Code, http.StatusOK)
		}
	}
}

func TestLogin_RoundTrip(t *testing.T) {
	f := newFixture(t)

	signup := f.doJSON(t, http.MethodPost, "/signup", "", map[string]string{
		"username": "alice", "password": "correct-horse",
	})
	if signup.Code != http.StatusOK {
		t.Fatalf("signup status = %d", signup.Code)
	}

	login := f.doJSON(t, http.MethodPost, "/login", "", map[string]string{
		"username": "alice", "password": "correct-horse",
	})
	if login.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", login.Code, login.Body.String())
	}

	resp := decodeBody(t, login)
	token, _ := resp["access_token"].(string)
	if token == "" {
		t.Fatal("login returned no access_token")
	}

	// The issued token authorises a protected call.
	devices := f.doJSON(t, http.MethodGet, "/devices", token, nil)
	if devices.Code != http.StatusOK {
		t.Errorf("GET /devices with token status = %d, want %d", devices.Code, http.StatusOK)
	}
}

func TestLogin_UniformFailures(t *testing.T) {
	f := newFixture(t)

	signup := f.doJSON(t, http.MethodPost, "/signup", "", map[string]string{
		"username": "alice", "password": "correct-horse",
	})
	if signup.Code != http.StatusOK {
		t.Fatalf("signup status = %d", signup.Code)
	}

	unknownUser := f.doJSON(t, http.MethodPost, "/login", "", map[string]string{
		"username": "mallory", "password": "whatever",
	})
	wrongPassword := f.doJSON(t, http.MethodPost, "/login", "", map[string]string{
		"username": "alice", "password": "wrong",
	})

	for name, w := range map[string]*httptest.ResponseRecorder{
		"unknown user":   unknownUser,
		"wrong password": wrongPassword,
	} {
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s status = %d, want %d", name, w.Code, http.StatusUnauthorized)
		}
	}

	// No user-existence oracle: both failures produce identical bodies.
	if unknownUser.Body.String() != wrongPassword.Body.String() {
		t.Errorf("failure bodies differ: %q vs %q",
			unknownUser.Body.String(), wrongPassword.Body.String())
	}
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	f := newFixture(t)

	w := f.doJSON(t, http.MethodGet, "/devices", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	bad := f.doJSON(t, http.MethodGet, "/devices", "not-a-token", nil)
	if bad.Code != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want %d", bad.Code, http.StatusUnauthorized)
	}
}

func TestListDevices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.devices.UpsertStatus(ctx, "bulb-1", json.RawMessage(`"on"`)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := f.devices.UpsertStatus(ctx, "bulb-2", json.RawMessage(`{"on":false}`)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := f.doJSON(t, http.MethodGet, "/devices", f.token(t, "alice"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var devices []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &devices); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(devices) != 2 {
		t.Errorf("len(devices) = %d, want 2", len(devices))
	}
}

func TestGetDevice(t *testing.T) {
	f := newFixture(t)

	if err := f.devices.UpsertStatus(context.Background(), "bulb-1", json.RawMessage(`"on"`)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := f.doJSON(t, http.MethodGet, "/device/bulb-1", f.token(t, "alice"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	resp := decodeBody(t, w)
	if resp["device_id"] != "bulb-1" {
		t.Errorf("device_id = %v, want bulb-1", resp["device_id"])
	}
	if resp["status"] != "on" {
		t.Errorf("status = %v, want on", resp["status"])
	}
}

func TestGetDevice_NotFound(t *testing.T) {
	f := newFixture(t)

	w := f.doJSON(t, http.MethodGet, "/device/ghost", f.token(t, "alice"), nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}

	resp := decodeBody(t, w)
	if resp["message"] != "Device not found" {
		t.Errorf("message = %v, want Device not found", resp["message"])
	}
}

func TestUpdateDevice_NotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w := f.doJSON(t, http.MethodPost, "/device/ghost", f.token(t, "alice"),
		map[string]any{"status": "on"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}

	// The failed update must leave no trace: no audit row, no publish.
	records, err := f.audit.List(ctx, device.AuditFilter{})
	if err != nil {
		t.Fatalf("audit List: %v", err)
	}
	if records.Total != 0 {
		t.Errorf("audit Total = %d, want 0", records.Total)
	}
	if n := f.broker.publishCount(); n != 0 {
		t.Errorf("publish count = %d, want 0", n)
	}
}

func TestUpdateDevice_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.devices.UpsertStatus(ctx, "bulb-1", json.RawMessage(`"off"`)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := f.doJSON(t, http.MethodPost, "/device/bulb-1", f.token(t, "alice"),
		map[string]any{"status": "on"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	resp := decodeBody(t, w)
	if resp["status"] != "success" {
		t.Errorf("status = %v, want success", resp["status"])
	}

	// Store reflects the change.
	dev, err := f.devices.GetByID(ctx, "bulb-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if string(dev.Status) != `"on"` {
		t.Errorf("stored status = %s, want \"on\"", dev.Status)
	}

	// Audit row attributed to the caller.
	records, err := f.audit.List(ctx, device.AuditFilter{DeviceID: "bulb-1"})
	if err != nil {
		t.Fatalf("audit List: %v", err)
	}
	if records.Total != 1 {
		t.Fatalf("audit Total = %d, want 1", records.Total)
	}
	if records.Records[0].Username != "alice" {
		t.Errorf("audit username = %q, want alice", records.Records[0].Username)
	}

	// Change went back out on the device's stateChange topic as the bare
	// status, without the {"status": ...} envelope devices report with.
	f.broker.mu.Lock()
	defer f.broker.mu.Unlock()
	if len(f.broker.published) != 1 {
		t.Fatalf("publish count = %d, want 1", len(f.broker.published))
	}
	if got := f.broker.published[0].topic; got != "device/bulb-1/stateChange" {
		t.Errorf("publish topic = %q, want device/bulb-1/stateChange", got)
	}
	if got := string(f.broker.published[0].payload); got != `"on"` {
		t.Errorf("publish payload = %s, want \"on\"", got)
	}
}

// echoBroker loops every stateChange publish back through the handlers
// registered via Subscribe, the way a live broker echoes the relay's own
// publishes back at its wildcard subscriptions.
type echoBroker struct {
	mu            sync.Mutex
	subscriptions map[string]mqtt.MessageHandler
}

func newEchoBroker() *echoBroker {
	return &echoBroker{subscriptions: make(map[string]mqtt.MessageHandler)}
}

func (e *echoBroker) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscriptions[topic] = handler
	return nil
}

func (e *echoBroker) IsConnected() bool { return true }

func (e *echoBroker) Publish(topic string, payload []byte, _ byte, _ bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, leaf, ok := mqtt.ParseDeviceTopic(topic); ok && leaf == mqtt.LeafStateChange {
		if handler, found := e.subscriptions["device/+/stateChange"]; found {
			return handler(topic, payload)
		}
	}
	return nil
}

// stateChangeHandler returns the handler the consumer registered for the
// stateChange wildcard.
func (e *echoBroker) stateChangeHandler(t *testing.T) mqtt.MessageHandler {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	handler, ok := e.subscriptions["device/+/stateChange"]
	if !ok {
		t.Fatal("no subscription for device/+/stateChange")
	}
	return handler
}

// TestUpdateDevice_BrokerEchoWritesNothing wires the HTTP server and the
// broker consumer to the same store, with a broker that echoes the server's
// own stateChange publish back at the consumer's subscription. The echoed
// payload is the bare status value, so the consumer must drop it: one API
// write yields exactly one store write and one audit row, attributed to the
// caller rather than the system label.
func TestUpdateDevice_BrokerEchoWritesNothing(t *testing.T) {
	db := setupTestDB(t)
	devices := device.NewRepository(db)
	audit := device.NewAuditRepository(db)
	users := auth.NewUserRepository(db)
	broker := newEchoBroker()

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{
				Secret:         testJWTSecret,
				AccessTokenTTL: 3600,
			},
		},
		Logger:  log,
		Devices: devices,
		Audit:   audit,
		Users:   users,
		Broker:  broker,
		DB:      healthOK{},
		QoS:     1,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	router := srv.buildRouter()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	b := bridge.New(broker, devices, audit, nil, nil, log, 1)
	if err := b.Start(ctx); err != nil {
		t.Fatalf("bridge Start: %v", err)
	}

	if err := devices.UpsertStatus(context.Background(), "bulb-1", json.RawMessage(`"off"`)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	token, err := auth.GenerateAccessToken("alice", testJWTSecret, 3600)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/device/bulb-1",
		bytes.NewReader([]byte(`{"status":"on"}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	// The consumer handles messages in arrival order, so once a trailing
	// message for a second device has landed the echo has been processed.
	handler := broker.stateChangeHandler(t)
	if err := handler("device/bulb-2/stateChange", []byte(`{"status":"seen"}`)); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := devices.GetByID(context.Background(), "bulb-2"); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("consumer did not catch up in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	got, err := devices.GetByID(context.Background(), "bulb-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if string(got.Status) != `"on"` {
		t.Errorf("stored status = %s, want \"on\"", got.Status)
	}

	records, err := audit.List(context.Background(), device.AuditFilter{DeviceID: "bulb-1"})
	if err != nil {
		t.Fatalf("audit List: %v", err)
	}
	if records.Total != 1 {
		t.Fatalf("audit Total = %d, want exactly 1", records.Total)
	}
	if records.Records[0].Username != "alice" {
		t.Errorf("audit username = %q, want alice", records.Records[0].Username)
	}
}

func TestUpdateDevice_MissingStatus(t *testing.T) {
	f := newFixture(t)

	if err := f.devices.UpsertStatus(context.Background(), "bulb-1", json.RawMessage(`"off"`)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := f.doJSON(t, http.MethodPost, "/device/bulb-1", f.token(t, "alice"),
		map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestListAudit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.audit.Create(ctx, &device.AuditRecord{
		DeviceID: "bulb-1",
		Status:   json.RawMessage(`"on"`),
		Username: "alice",
	}); err != nil {
		t.Fatalf("seed audit: %v", err)
	}

	w := f.doJSON(t, http.MethodGet, "/audit?device_id=bulb-1", f.token(t, "alice"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	resp := decodeBody(t, w)
	if total, _ := resp["total"].(float64); total != 1 {
		t.Errorf("total = %v, want 1", resp["total"])
	}
}

func TestWSTicket_SingleUse(t *testing.T) {
	f := newFixture(t)

	w := f.doJSON(t, http.MethodPost, "/auth/ws-ticket", f.token(t, "alice"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	resp := decodeBody(t, w)
	ticket, _ := resp["ticket"].(string)
	if ticket == "" {
		t.Fatal("no ticket in response")
	}

	if !f.srv.tickets.consume(ticket) {
		t.Error("first consume failed, want success")
	}
	if f.srv.tickets.consume(ticket) {
		t.Error("second consume succeeded, want single-use rejection")
	}
}

func TestWebSocket_RequiresTicket(t *testing.T) {
	f := newFixture(t)

	w := f.doJSON(t, http.MethodGet, "/ws", f.token(t, "alice"), nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestHubBroadcast(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, log)

	client := &WSClient{hub: hub, send: make(chan []byte, 1)}
	hub.Register(client)
	defer hub.Unregister(client)

	hub.Broadcast("device_status_update", map[string]any{
		"device_id": "bulb-1",
		"status":    json.RawMessage(`"on"`),
	})

	select {
	case data := <-client.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		if msg.Type != WSTypeEvent {
			t.Errorf("type = %q, want %q", msg.Type, WSTypeEvent)
		}
		if msg.EventType != "device_status_update" {
			t.Errorf("event_type = %q, want device_status_update", msg.EventType)
		}
		payload, _ := msg.Payload.(map[string]any)
		if payload["device_id"] != "bulb-1" {
			t.Errorf("payload device_id = %v, want bulb-1", payload["device_id"])
		}
	default:
		t.Fatal("no frame queued for client")
	}
}
