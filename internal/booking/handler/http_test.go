package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/example/fieldserve/internal/auth"
	"github.com/example/fieldserve/internal/booking/repository"
	"github.com/example/fieldserve/internal/booking/service"
	"github.com/example/fieldserve/internal/dispatch"
	"github.com/example/fieldserve/internal/dispatch/directory"
	"github.com/example/fieldserve/internal/dispatch/domain"
	"github.com/example/fieldserve/internal/tracking"
)

var delhi = domain.GeoPoint{Lat: 28.6139, Lng: 77.2090}

func newServer(t *testing.T, workerAuth func(http.Handler) http.Handler) (*httptest.Server, *directory.MemoryDirectory) {
	t.Helper()
	dir := directory.NewMemoryDirectory()
	disp := dispatch.New(dir, dir, nil, dispatch.Config{DefaultLocation: delhi})
	tracker := tracking.NewTracker(dir, nil, nil, nil, tracking.Config{})
	t.Cleanup(tracker.Close)
	svc := service.New(repository.NewMemoryRepository(), disp, tracker, dir, nil, nil, nil, delhi)

	h := NewHTTP(svc, tracker, workerAuth, nil).WithWorkerRegistry(dir)
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return srv, dir
}

func seedWorker(dir *directory.MemoryDirectory) domain.Worker {
	w := domain.Worker{
		ID:        uuid.New(),
		Name:      "Raj",
		Phone:     "+911234567890",
		Category:  "plumbing",
		Location:  domain.GeoPoint{Lat: 28.62, Lng: 77.21},
		Rating:    4.8,
		Available: true,
	}
	dir.Upsert(w)
	return w
}

func createBooking(t *testing.T, srv *httptest.Server) uuid.UUID {
	t.Helper()
	body := `{"customer_name":"Asha","phone":"+919876543210","category":"plumbing","location":{"lat":28.61,"lng":77.20}}`
	resp, err := http.Post(srv.URL+"/v1/bookings", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out struct {
		BookingID uuid.UUID `json:"booking_id"`
		Status    string    `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.BookingID
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func TestCreateBookingRequiresCategory(t *testing.T) {
	srv, _ := newServer(t, nil)
	resp, err := http.Post(srv.URL+"/v1/bookings", "application/json", strings.NewReader(`{"phone":"+911"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateBookingRejectsInvalidCoordinates(t *testing.T) {
	srv, _ := newServer(t, nil)
	body := `{"phone":"+911","category":"plumbing","location":{"lat":91,"lng":0}}`
	resp, err := http.Post(srv.URL+"/v1/bookings", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLocationReportAndSnapshotFlow(t *testing.T) {
	srv, dir := newServer(t, nil)
	seedWorker(dir)
	id := createBooking(t, srv)

	resp := postJSON(t, fmt.Sprintf("%s/v1/sessions/%s/location", srv.URL, id), map[string]any{
		"latitude":  28.615,
		"longitude": 77.205,
		"timestamp": time.Now().UTC(),
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	snapResp, err := http.Get(fmt.Sprintf("%s/v1/sessions/%s/snapshot", srv.URL, id))
	require.NoError(t, err)
	defer snapResp.Body.Close()
	require.Equal(t, http.StatusOK, snapResp.StatusCode)

	var snap tracking.Snapshot
	require.NoError(t, json.NewDecoder(snapResp.Body).Decode(&snap))
	require.Equal(t, domain.StatusEnRoute, snap.Status)
	require.Equal(t, 28.615, snap.Latitude)
}

func TestLocationReportErrorMapping(t *testing.T) {
	srv, dir := newServer(t, nil)
	seedWorker(dir)
	id := createBooking(t, srv)

	// Out-of-range latitude.
	resp := postJSON(t, fmt.Sprintf("%s/v1/sessions/%s/location", srv.URL, id), map[string]any{
		"latitude": 91.0, "longitude": 0.0, "timestamp": time.Now().UTC(),
	})
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown session.
	resp = postJSON(t, fmt.Sprintf("%s/v1/sessions/%s/location", srv.URL, uuid.New()), map[string]any{
		"latitude": 28.6, "longitude": 77.2, "timestamp": time.Now().UTC(),
	})
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Terminal session.
	complete, err := http.Post(fmt.Sprintf("%s/v1/bookings/%s/complete", srv.URL, id), "application/json", nil)
	require.NoError(t, err)
	complete.Body.Close()
	require.Equal(t, http.StatusOK, complete.StatusCode)

	resp = postJSON(t, fmt.Sprintf("%s/v1/sessions/%s/location", srv.URL, id), map[string]any{
		"latitude": 28.6, "longitude": 77.2, "timestamp": time.Now().UTC(),
	})
	resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestWorkerEndpointsRequireAuth(t *testing.T) {
	const secret = "handler-test-secret"
	srv, dir := newServer(t, auth.Middleware(secret, auth.RoleWorker))
	seedWorker(dir)
	id := createBooking(t, srv)

	url := fmt.Sprintf("%s/v1/sessions/%s/location", srv.URL, id)
	payload, _ := json.Marshal(map[string]any{"latitude": 28.6, "longitude": 77.2, "timestamp": time.Now().UTC()})

	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := auth.MintToken(secret, "worker-1", auth.RoleWorker, time.Minute)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStreamDeliversSnapshots(t *testing.T) {
	srv, dir := newServer(t, nil)
	seedWorker(dir)
	id := createBooking(t, srv)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + fmt.Sprintf("/v1/sessions/%s/stream", id)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var snap tracking.Snapshot
	require.NoError(t, conn.ReadJSON(&snap))
	require.Equal(t, id, snap.SessionID)
	require.Equal(t, domain.StatusAssigned, snap.Status)
}

func TestStreamUnknownSession(t *testing.T) {
	srv, _ := newServer(t, nil)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + fmt.Sprintf("/v1/sessions/%s/stream", uuid.New())
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	if resp != nil {
		defer resp.Body.Close()
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	}
}
