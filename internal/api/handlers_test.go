package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	ts "github.com/ferux/trafficsentinel"
	"github.com/ferux/trafficsentinel/internal/model"
	"github.com/ferux/trafficsentinel/internal/registry"
)

type fakeEnforcer struct {
	macs chan string
}

func (f *fakeEnforcer) EnforceDevice(_ context.Context, mac string) error {
	f.macs <- mac
	return nil
}

func newTestAPI(t *testing.T) (*HTTP, *registry.Registry, *fakeEnforcer) {
	t.Helper()

	db, err := registry.InitDB(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	reg := registry.New(db)
	enf := &fakeEnforcer{macs: make(chan string, 8)}

	return &HTTP{registry: reg, enforcer: enf, bootTime: time.Now()}, reg, enf
}

func seedDevice(t *testing.T, reg *registry.Registry, mac string, status model.Status) {
	t.Helper()

	now := time.Now().UTC()
	err := reg.Put(context.Background(), model.Device{
		MAC: mac, Status: status, FirstSeen: now, LastSeen: now,
	})
	if err != nil {
		t.Fatalf("seed device: %v", err)
	}
}

func waitEnforced(t *testing.T, enf *fakeEnforcer, mac string) {
	t.Helper()

	select {
	case got := <-enf.macs:
		if got != mac {
			t.Fatalf("enforced %q, want %q", got, mac)
		}
	case <-time.After(time.Second):
		t.Fatalf("no enforcement for %q", mac)
	}
}

func TestGetInfo(t *testing.T) {
	ts.Branch = "master"
	ts.Revision = "00000000"

	r := httptest.NewRequest(http.MethodGet, "/api/v1/info", nil)
	w := httptest.NewRecorder()
	api := &HTTP{
		bootTime:     time.Now(),
		requestCount: 10,
	}

	api.handleInfo(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("exp %d got %d", http.StatusOK, w.Code)
	}

	var got InfoResponse
	_ = json.Unmarshal(w.Body.Bytes(), &got)

	if got.Revision != ts.Revision || got.Branch != ts.Branch || got.RequestCount != 10 {
		t.Fatalf("unexpected info %#v", got)
	}
}

func TestListDevicesEmpty(t *testing.T) {
	api, _, _ := newTestAPI(t)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	w := httptest.NewRecorder()

	api.handleListDevices(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("exp %d got %d", http.StatusOK, w.Code)
	}
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Fatalf("exp empty array, got %q", body)
	}
}

func TestAddDevice(t *testing.T) {
	api, reg, enf := newTestAPI(t)

	body := strings.NewReader(`{"mac_address":"AA-BB-CC-DD-EE-FF","status":"banned","comment":"noisy iot"}`)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/devices", body)
	w := httptest.NewRecorder()

	api.handleAddDevice(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("exp %d got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}

	d, err := reg.Get(context.Background(), "aa:bb:cc:dd:ee:ff")
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	if d.Status != model.StatusBanned {
		t.Fatalf("exp banned got %s", d.Status)
	}
	if d.Comment != "noisy iot" {
		t.Fatalf("exp comment kept, got %q", d.Comment)
	}

	waitEnforced(t, enf, "aa:bb:cc:dd:ee:ff")
}

func TestAddDeviceDefaultsToQuarantine(t *testing.T) {
	api, reg, _ := newTestAPI(t)

	body := strings.NewReader(`{"mac_address":"aa:bb:cc:dd:ee:ff"}`)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/devices", body)
	w := httptest.NewRecorder()

	api.handleAddDevice(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("exp %d got %d", http.StatusCreated, w.Code)
	}

	d, err := reg.Get(context.Background(), "aa:bb:cc:dd:ee:ff")
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	if d.Status != model.StatusQuarantine {
		t.Fatalf("exp quarantine got %s", d.Status)
	}
}

func TestAddDeviceRejectsBadMAC(t *testing.T) {
	api, _, _ := newTestAPI(t)

	body := strings.NewReader(`{"mac_address":"not-a-mac"}`)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/devices", body)
	w := httptest.NewRecorder()

	api.handleAddDevice(w, r)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("exp %d got %d", http.StatusUnprocessableEntity, w.Code)
	}
}

func TestSetStatus(t *testing.T) {
	api, reg, enf := newTestAPI(t)
	seedDevice(t, reg, "aa:bb:cc:dd:ee:ff", model.StatusQuarantine)

	body := strings.NewReader(`{"status":"authorized","comment":"family laptop"}`)
	r := httptest.NewRequest(http.MethodPut, "/api/v1/devices/aa:bb:cc:dd:ee:ff/status", body)
	r = mux.SetURLVars(r, map[string]string{"mac": "aa:bb:cc:dd:ee:ff"})
	w := httptest.NewRecorder()

	api.handleSetStatus(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("exp %d got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var d model.Device
	if err := json.Unmarshal(w.Body.Bytes(), &d); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if d.Status != model.StatusAuthorized {
		t.Fatalf("exp authorized got %s", d.Status)
	}
	if d.Comment != "family laptop" {
		t.Fatalf("exp comment updated, got %q", d.Comment)
	}

	waitEnforced(t, enf, "aa:bb:cc:dd:ee:ff")
}

func TestSetStatusUnknownDevice(t *testing.T) {
	api, _, _ := newTestAPI(t)

	body := strings.NewReader(`{"status":"banned"}`)
	r := httptest.NewRequest(http.MethodPut, "/api/v1/devices/aa:bb:cc:dd:ee:ff/status", body)
	r = mux.SetURLVars(r, map[string]string{"mac": "aa:bb:cc:dd:ee:ff"})
	w := httptest.NewRecorder()

	api.handleSetStatus(w, r)

	if w.Code != http.StatusNotFound {
		t.Fatalf("exp %d got %d", http.StatusNotFound, w.Code)
	}

	var serr model.ServiceError
	if err := json.Unmarshal(w.Body.Bytes(), &serr); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if serr.Message != model.ErrNotFound.Error() {
		t.Fatalf("exp %q got %q", model.ErrNotFound.Error(), serr.Message)
	}
}

func TestSetStatusRejectsUnknownValue(t *testing.T) {
	api, reg, _ := newTestAPI(t)
	seedDevice(t, reg, "aa:bb:cc:dd:ee:ff", model.StatusQuarantine)

	body := strings.NewReader(`{"status":"allowed"}`)
	r := httptest.NewRequest(http.MethodPut, "/api/v1/devices/aa:bb:cc:dd:ee:ff/status", body)
	r = mux.SetURLVars(r, map[string]string{"mac": "aa:bb:cc:dd:ee:ff"})
	w := httptest.NewRecorder()

	api.handleSetStatus(w, r)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("exp %d got %d", http.StatusUnprocessableEntity, w.Code)
	}
}

func TestSetStatusKeepsCommentWhenOmitted(t *testing.T) {
	api, reg, _ := newTestAPI(t)

	now := time.Now().UTC()
	err := reg.Put(context.Background(), model.Device{
		MAC: "aa:bb:cc:dd:ee:ff", Status: model.StatusQuarantine,
		FirstSeen: now, LastSeen: now, Comment: "old note",
	})
	if err != nil {
		t.Fatalf("seed device: %v", err)
	}

	body := strings.NewReader(`{"status":"banned"}`)
	r := httptest.NewRequest(http.MethodPut, "/api/v1/devices/aa:bb:cc:dd:ee:ff/status", body)
	r = mux.SetURLVars(r, map[string]string{"mac": "aa:bb:cc:dd:ee:ff"})
	w := httptest.NewRecorder()

	api.handleSetStatus(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("exp %d got %d", http.StatusOK, w.Code)
	}

	d, err := reg.Get(context.Background(), "aa:bb:cc:dd:ee:ff")
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	if d.Comment != "old note" {
		t.Fatalf("exp comment preserved, got %q", d.Comment)
	}
}

func TestSetComment(t *testing.T) {
	api, reg, _ := newTestAPI(t)
	seedDevice(t, reg, "aa:bb:cc:dd:ee:ff", model.StatusAuthorized)

	body := strings.NewReader(`{"comment":"kid's tablet"}`)
	r := httptest.NewRequest(http.MethodPut, "/api/v1/devices/aa:bb:cc:dd:ee:ff/comment", body)
	r = mux.SetURLVars(r, map[string]string{"mac": "aa:bb:cc:dd:ee:ff"})
	w := httptest.NewRecorder()

	api.handleSetComment(w, r)

	if w.Code != http.StatusNoContent {
		t.Fatalf("exp %d got %d", http.StatusNoContent, w.Code)
	}

	d, err := reg.Get(context.Background(), "aa:bb:cc:dd:ee:ff")
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	if d.Comment != "kid's tablet" {
		t.Fatalf("exp comment set, got %q", d.Comment)
	}
}

func TestDeleteDevice(t *testing.T) {
	api, reg, _ := newTestAPI(t)
	seedDevice(t, reg, "aa:bb:cc:dd:ee:ff", model.StatusBanned)

	r := httptest.NewRequest(http.MethodDelete, "/api/v1/devices/aa:bb:cc:dd:ee:ff", nil)
	r = mux.SetURLVars(r, map[string]string{"mac": "aa:bb:cc:dd:ee:ff"})
	w := httptest.NewRecorder()

	api.handleDeleteDevice(w, r)

	if w.Code != http.StatusNoContent {
		t.Fatalf("exp %d got %d", http.StatusNoContent, w.Code)
	}

	if _, err := reg.Get(context.Background(), "aa:bb:cc:dd:ee:ff"); err != model.ErrNotFound {
		t.Fatalf("exp not found, got %v", err)
	}
}

func TestGetLogs(t *testing.T) {
	api, _, _ := newTestAPI(t)

	path := filepath.Join(t.TempDir(), "sentinel.log")
	lines := []string{"one", "two", "three", "four"}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		t.Fatalf("write log: %v", err)
	}
	api.logFile = path

	r := httptest.NewRequest(http.MethodGet, "/api/v1/logs?lines=2", nil)
	w := httptest.NewRecorder()

	api.handleLogs(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("exp %d got %d", http.StatusOK, w.Code)
	}
	if got := w.Body.String(); got != "three\nfour\n" {
		t.Fatalf("exp last two lines, got %q", got)
	}
}

func TestGetLogsNoFileConfigured(t *testing.T) {
	api, _, _ := newTestAPI(t)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/logs", nil)
	w := httptest.NewRecorder()

	api.handleLogs(w, r)

	if w.Code != http.StatusNotFound {
		t.Fatalf("exp %d got %d", http.StatusNotFound, w.Code)
	}
}
