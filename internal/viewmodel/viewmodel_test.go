package viewmodel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/dovecote/pigeon/internal/deviceapi"
)

// request is one call seen by fakeTransport
type request struct {
	Method string
	Path   string
	Body   map[string]any
}

// fakeTransport records every request and answers from a table keyed by
// "METHOD path"
type fakeTransport struct {
	mu        sync.Mutex
	requests  []request
	responses map[string]*deviceapi.Response
	errs      map[string]error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		responses: make(map[string]*deviceapi.Response),
		errs:      make(map[string]error),
	}
}

func (f *fakeTransport) answer(method, path string, status int, body string) {
	f.responses[method+" "+path] = &deviceapi.Response{StatusCode: status, Body: []byte(body)}
}

func (f *fakeTransport) do(method, path string, body any) (*deviceapi.Response, error) {
	req := request{Method: method, Path: path}
	if body != nil {
		data, _ := json.Marshal(body)
		_ = json.Unmarshal(data, &req.Body)
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	key := method + " " + path
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	if resp, ok := f.responses[key]; ok {
		return resp, nil
	}
	return &deviceapi.Response{StatusCode: http.StatusNotFound}, nil
}

func (f *fakeTransport) Get(_ context.Context, path string) (*deviceapi.Response, error) {
	return f.do(http.MethodGet, path, nil)
}

func (f *fakeTransport) Post(_ context.Context, path string, body any) (*deviceapi.Response, error) {
	return f.do(http.MethodPost, path, body)
}

func (f *fakeTransport) Delete(_ context.Context, path string) (*deviceapi.Response, error) {
	return f.do(http.MethodDelete, path, nil)
}

func newTestViewModel(t *testing.T) (*ViewModel, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	client := deviceapi.NewClientWithTransport("http://device", tr)
	return New(client, zap.NewNop()), tr
}

func TestScan_ReplacesList(t *testing.T) {
	vm, tr := newTestViewModel(t)
	tr.answer(http.MethodGet, "/wifi/networks", 200, `{"wifi_list":[{"ssid":"A","rssi":-50},{"ssid":"B","rssi":-70}]}`)

	state := State{WifiList: []deviceapi.WifiNetwork{{SSID: "stale"}}}
	state = state.Begin(ActionScan).Apply(vm.Scan(context.Background()))

	if len(tr.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(tr.requests))
	}
	if r := tr.requests[0]; r.Method != http.MethodGet || r.Path != "/wifi/networks" {
		t.Errorf("request = %s %s, want GET /wifi/networks", r.Method, r.Path)
	}

	var got []string
	for _, n := range state.WifiList {
		got = append(got, n.SSID)
	}
	if !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("WifiList = %v, want [A B]", got)
	}
	if state.Status != StatusSucceeded || state.Err != nil {
		t.Errorf("Status = %v, Err = %v", state.Status, state.Err)
	}
}

func TestScan_MissingListBecomesNil(t *testing.T) {
	vm, tr := newTestViewModel(t)
	tr.answer(http.MethodGet, "/wifi/networks", 200, `{"ap_count":0}`)

	state := State{WifiList: []deviceapi.WifiNetwork{{SSID: "stale"}}}
	out := vm.Scan(context.Background())
	if out.Err != nil {
		t.Fatalf("Scan() error = %v, want nil", out.Err)
	}

	state = state.Apply(out)
	if state.WifiList != nil {
		t.Errorf("WifiList = %v, want nil", state.WifiList)
	}
	if state.Status != StatusSucceeded {
		t.Errorf("Status = %v, want succeeded", state.Status)
	}
}

func TestApply_PostsExactlyFiveFields(t *testing.T) {
	vm, tr := newTestViewModel(t)
	tr.answer(http.MethodPost, "/settings", http.StatusAccepted, "")

	fields := Fields{
		WifiSSID:     "s",
		WifiPassword: "p",
		MQTTURL:      "m",
		MQTTUsername: "u",
		MQTTPassword: "pw",
	}
	networks := []deviceapi.WifiNetwork{{SSID: "kept"}}
	state := State{WifiList: networks}.WithFields(fields)
	state = state.Begin(ActionApply).Apply(vm.Apply(context.Background(), state.Fields))

	if len(tr.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(tr.requests))
	}
	r := tr.requests[0]
	if r.Method != http.MethodPost || r.Path != "/settings" {
		t.Errorf("request = %s %s, want POST /settings", r.Method, r.Path)
	}

	want := map[string]any{
		"wifi_ssid":     "s",
		"wifi_password": "p",
		"mqtt_url":      "m",
		"mqtt_username": "u",
		"mqtt_password": "pw",
	}
	if !reflect.DeepEqual(r.Body, want) {
		t.Errorf("body = %v, want %v", r.Body, want)
	}

	if !reflect.DeepEqual(state.WifiList, networks) {
		t.Errorf("Apply must not touch the network list, got %v", state.WifiList)
	}
	if state.Applied == nil || state.Applied.StatusCode != http.StatusAccepted {
		t.Errorf("Applied = %+v, want 202", state.Applied)
	}
	if state.Fields != fields {
		t.Errorf("Fields = %+v, want unchanged", state.Fields)
	}
}

func TestApply_IgnoresListInResponse(t *testing.T) {
	vm, tr := newTestViewModel(t)
	tr.answer(http.MethodPost, "/settings", http.StatusOK, `{"wifi_list":[{"ssid":"bogus"}]}`)

	state := State{}.Apply(vm.Apply(context.Background(), Fields{WifiSSID: "s"}))
	if state.WifiList != nil {
		t.Errorf("WifiList = %v, want nil", state.WifiList)
	}
	if string(state.Applied.Body) != `{"wifi_list":[{"ssid":"bogus"}]}` {
		t.Errorf("Applied.Body = %s", state.Applied.Body)
	}
}

func TestFetch_DoesNotMutateList(t *testing.T) {
	bodies := []string{
		`{"wifi_ssid":"home","device_id":"3"}`,
		`{"wifi_list":[{"ssid":"X"}],"wifi_ssid":"home"}`,
		``,
	}

	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			vm, tr := newTestViewModel(t)
			tr.answer(http.MethodGet, "/settings", 200, body)

			networks := []deviceapi.WifiNetwork{{SSID: "A"}}
			state := State{WifiList: networks}.Apply(vm.Fetch(context.Background()))

			if len(tr.requests) != 1 || tr.requests[0].Method != http.MethodGet || tr.requests[0].Path != "/settings" {
				t.Fatalf("requests = %+v, want one GET /settings", tr.requests)
			}
			if !reflect.DeepEqual(state.WifiList, networks) {
				t.Errorf("WifiList = %v, want unchanged", state.WifiList)
			}
			if state.Settings == nil {
				t.Error("Settings snapshot should be kept")
			}
		})
	}
}

func TestFailures_AreSurfacedAndNotRetried(t *testing.T) {
	netErr := &deviceapi.DeviceError{Type: deviceapi.ErrTypeConnectionRefused, Message: "device refused connection"}

	tests := []struct {
		name   string
		setup  func(*fakeTransport)
		run    func(*ViewModel) Outcome
		check  func(error) bool
		method string
	}{
		{
			name:   "scan network error",
			setup:  func(f *fakeTransport) { f.errs["GET /wifi/networks"] = netErr },
			run:    func(vm *ViewModel) Outcome { return vm.Scan(context.Background()) },
			check:  deviceapi.IsNetworkError,
			method: http.MethodGet,
		},
		{
			name:   "scan server error",
			setup:  func(f *fakeTransport) { f.answer("GET", "/wifi/networks", 500, "Failed to scan WiFi networks") },
			run:    func(vm *ViewModel) Outcome { return vm.Scan(context.Background()) },
			check:  deviceapi.IsHTTPError,
			method: http.MethodGet,
		},
		{
			name:   "scan malformed json",
			setup:  func(f *fakeTransport) { f.answer("GET", "/wifi/networks", 200, `{"wifi_list":`) },
			run:    func(vm *ViewModel) Outcome { return vm.Scan(context.Background()) },
			check:  deviceapi.IsParseError,
			method: http.MethodGet,
		},
		{
			name:   "apply rejected",
			setup:  func(f *fakeTransport) { f.answer("POST", "/settings", 400, "Invalid JSON") },
			run:    func(vm *ViewModel) Outcome { return vm.Apply(context.Background(), Fields{}) },
			check:  deviceapi.IsHTTPError,
			method: http.MethodPost,
		},
		{
			name:   "apply network error",
			setup:  func(f *fakeTransport) { f.errs["POST /settings"] = netErr },
			run:    func(vm *ViewModel) Outcome { return vm.Apply(context.Background(), Fields{}) },
			check:  deviceapi.IsNetworkError,
			method: http.MethodPost,
		},
		{
			name:   "fetch server error",
			setup:  func(f *fakeTransport) { f.answer("GET", "/settings", 500, "Failed to get settings") },
			run:    func(vm *ViewModel) Outcome { return vm.Fetch(context.Background()) },
			check:  deviceapi.IsHTTPError,
			method: http.MethodGet,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm, tr := newTestViewModel(t)
			tt.setup(tr)

			networks := []deviceapi.WifiNetwork{{SSID: "A"}}
			out := tt.run(vm)
			state := State{WifiList: networks}.Apply(out)

			if len(tr.requests) != 1 {
				t.Errorf("requests = %d, want exactly 1", len(tr.requests))
			}
			if tr.requests[0].Method != tt.method {
				t.Errorf("method = %s, want %s", tr.requests[0].Method, tt.method)
			}
			if out.OK() || !tt.check(out.Err) {
				t.Errorf("Err = %v, unexpected classification", out.Err)
			}
			if state.Status != StatusFailed || state.Err == nil {
				t.Errorf("Status = %v, Err = %v, want failed", state.Status, state.Err)
			}
			if !reflect.DeepEqual(state.WifiList, networks) {
				t.Errorf("failure must not change the list, got %v", state.WifiList)
			}
		})
	}
}

// blockingDevice holds ScanNetworks until released
type blockingDevice struct {
	started chan struct{}
	release chan struct{}
	scans   int
	mu      sync.Mutex
}

func (d *blockingDevice) ScanNetworks(ctx context.Context) (*deviceapi.NetworkList, error) {
	d.mu.Lock()
	d.scans++
	d.mu.Unlock()
	close(d.started)
	<-d.release
	return &deviceapi.NetworkList{WifiList: []deviceapi.WifiNetwork{}}, nil
}

func (d *blockingDevice) ApplySettings(ctx context.Context, p deviceapi.SettingsPayload) (*deviceapi.ApplyResult, error) {
	return &deviceapi.ApplyResult{StatusCode: http.StatusAccepted}, nil
}

func (d *blockingDevice) FetchSettings(ctx context.Context) (*deviceapi.Settings, error) {
	return &deviceapi.Settings{}, nil
}

func TestInFlightGuard(t *testing.T) {
	dev := &blockingDevice{started: make(chan struct{}), release: make(chan struct{})}
	vm := New(dev, zap.NewNop())

	first := make(chan Outcome, 1)
	go func() { first <- vm.Scan(context.Background()) }()
	<-dev.started

	if !vm.Running(ActionScan) {
		t.Error("Running(scan) = false while a scan is outstanding")
	}

	busy := State{}.Begin(ActionScan)
	dup := vm.Scan(context.Background())
	if !errors.Is(dup.Err, ErrInFlight) {
		t.Fatalf("second Scan() error = %v, want ErrInFlight", dup.Err)
	}
	if got := busy.Apply(dup); !reflect.DeepEqual(got, busy) {
		t.Errorf("ErrInFlight changed the state: %+v", got)
	}

	// other actions are not blocked by a running scan
	if out := vm.Fetch(context.Background()); out.Err != nil {
		t.Errorf("Fetch() during scan error = %v", out.Err)
	}

	close(dev.release)
	if out := <-first; out.Err != nil {
		t.Errorf("first Scan() error = %v", out.Err)
	}
	if dev.scans != 1 {
		t.Errorf("scans = %d, want 1", dev.scans)
	}
	if vm.Running(ActionScan) {
		t.Error("Running(scan) = true after completion")
	}
}

func TestViewModel_OverHTTP(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.Path)
		mu.Unlock()

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/wifi/networks":
			w.Write([]byte(`{"ap_count":1,"wifi_list":[{"ssid":"attic","rssi":-60,"authmode":"WIFI_AUTH_WPA2_PSK","11n":"true"}]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/settings":
			w.WriteHeader(http.StatusAccepted)
		case r.Method == http.MethodGet && r.URL.Path == "/settings":
			w.Write([]byte(`{"wifi_ssid":"attic","device_id":"1"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	vm := New(deviceapi.NewClientWithURL(server.URL), zap.NewNop())
	ctx := context.Background()

	state := State{}
	state = state.Apply(vm.Scan(ctx))
	state = state.WithFields(Fields{WifiSSID: state.WifiList[0].SSID, WifiPassword: "hunter22"})
	state = state.Apply(vm.Apply(ctx, state.Fields))
	state = state.Apply(vm.Fetch(ctx))

	want := []string{"GET /wifi/networks", "POST /settings", "GET /settings"}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("requests = %v, want %v", seen, want)
	}
	if !state.Applied.Accepted() {
		t.Errorf("Applied = %+v", state.Applied)
	}
	if state.Settings.WifiSSID != "attic" {
		t.Errorf("Settings = %+v", state.Settings)
	}
	if len(state.WifiList) != 1 || !bool(state.WifiList[0].PHY11n) {
		t.Errorf("WifiList = %+v", state.WifiList)
	}
}
