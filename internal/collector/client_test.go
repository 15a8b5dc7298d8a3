package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"example.com/fieldpresence/internal/auth"
	"example.com/fieldpresence/internal/domain"
)

func newTestCollector(t *testing.T, r chi.Router) *Client {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api/", auth.NewAuthorizer("Token", auth.StaticToken("secret")))
}

func TestSendLocationPostsCoordinates(t *testing.T) {
	var got map[string]float64
	var header string
	r := chi.NewRouter()
	r.Post("/api/tracking/update/", func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	})
	client := newTestCollector(t, r)

	err := client.SendLocation(context.Background(), domain.LocationSample{Latitude: 12.5, Longitude: 77.25})
	require.NoError(t, err)
	require.Equal(t, "Token secret", header)
	require.Equal(t, map[string]float64{"latitude": 12.5, "longitude": 77.25}, got)
}

func TestSendLocationReportsNetworkFailure(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/tracking/update/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"detail":"upstream down"}`))
	})
	client := newTestCollector(t, r)

	err := client.SendLocation(context.Background(), domain.LocationSample{Latitude: 1, Longitude: 2})
	require.ErrorIs(t, err, domain.ErrNetwork)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	require.Equal(t, "upstream down", statusErr.Detail)
}

func TestTransportErrorIsNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := NewClient(srv.URL, auth.NewAuthorizer("", auth.StaticToken("t")), WithTimeout(time.Second))

	_, err := client.All(context.Background())
	require.ErrorIs(t, err, domain.ErrNetwork)
}

func TestMissingTokenIsNetworkFailure(t *testing.T) {
	client := NewClient("http://collector.invalid", auth.NewAuthorizer("", auth.StaticToken("")))
	err := client.SendLocation(context.Background(), domain.LocationSample{})
	require.ErrorIs(t, err, domain.ErrNetwork)
	require.ErrorContains(t, err, auth.ErrMissingToken.Error())
}

func TestLatestDecodesRecord(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/tracking/{agentID}/latest/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "7", chi.URLParam(r, "agentID"))
		_, _ = w.Write([]byte(`{"latitude":12.97,"longitude":77.59,"timestamp":"2025-01-02T10:00:00.123456+05:30"}`))
	})
	client := newTestCollector(t, r)

	rec, err := client.Latest(context.Background(), "7")
	require.NoError(t, err)
	require.Equal(t, "7", rec.AgentID)
	require.Equal(t, 12.97, rec.Latitude)
	require.Equal(t, 77.59, rec.Longitude)
	require.True(t, rec.LastSeenAt.Equal(time.Date(2025, 1, 2, 4, 30, 0, 123456000, time.UTC)))
}

func TestAllDecodesNumericAndStringIDs(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/tracking/all/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":101,"user":3,"username":"asha","latitude":10,"longitude":20,"timestamp":"2025-01-02T10:00:00Z"},
			{"id":"102","username":"ravi","latitude":11,"longitude":21,"timestamp":"2025-01-02T10:00:01Z"}
		]`))
	})
	client := newTestCollector(t, r)

	records, err := client.All(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "3", records[0].AgentID)
	require.Equal(t, "asha", records[0].Username)
	require.Equal(t, "102", records[1].AgentID)
}

func TestAllRejectsMalformedBody(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/tracking/all/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"a list"}`))
	})
	client := newTestCollector(t, r)

	_, err := client.All(context.Background())
	require.ErrorIs(t, err, domain.ErrNetwork)
}

func TestPunchSendsMultipartEvidence(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/tracking/punch/", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "12.9716", r.FormValue("latitude"))
		require.Equal(t, "77.5946", r.FormValue("longitude"))
		require.Empty(t, r.FormValue("store"))

		file, hdr, err := r.FormFile("photo")
		require.NoError(t, err)
		defer file.Close()
		require.Equal(t, "photo.png", hdr.Filename)
		require.Equal(t, "image/png", hdr.Header.Get("Content-Type"))
		data, _ := io.ReadAll(file)
		require.Equal(t, []byte("pixels"), data)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 55}`))
	})
	client := newTestCollector(t, r)

	ack, err := client.Punch(context.Background(), domain.PunchBundle{
		Kind:     domain.PunchCheckIn,
		Photo:    &domain.Photo{Name: "IMG_1.PNG", Data: []byte("pixels")},
		Location: &domain.LocationSample{Latitude: 12.9716, Longitude: 77.5946},
	})
	require.NoError(t, err)
	require.Equal(t, "55", ack.ID)
	require.Equal(t, http.StatusCreated, ack.StatusCode)
}

func TestPunchLogsMalformedAcknowledgement(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/tracking/punch/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 5`))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	var buf bytes.Buffer
	client := NewClient(srv.URL+"/api/", auth.NewAuthorizer("Token", auth.StaticToken("secret")),
		WithLogger(log.New(&buf, "", 0)))

	ack, err := client.Punch(context.Background(), domain.PunchBundle{
		Kind:     domain.PunchCheckIn,
		Photo:    &domain.Photo{Name: "a.png", Data: []byte("pixels")},
		Location: &domain.LocationSample{Latitude: 1, Longitude: 2},
	})
	require.NoError(t, err)
	require.Empty(t, ack.ID)
	require.Equal(t, http.StatusCreated, ack.StatusCode)
	require.Contains(t, buf.String(), "check_in accepted (status 201) but the acknowledgement is malformed")
}

func TestStoreVisitIncludesStoreField(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/tracking/store-visit/", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "17", r.FormValue("store"))
		_, hdr, err := r.FormFile("photo")
		require.NoError(t, err)
		require.Equal(t, "visit_photo.jpeg", hdr.Filename)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"Store is closed"}`))
	})
	client := newTestCollector(t, r)

	_, err := client.Punch(context.Background(), domain.PunchBundle{
		Kind:     domain.PunchStoreVisit,
		Photo:    &domain.Photo{ContentType: "image/jpeg", Data: []byte("x")},
		Location: &domain.LocationSample{Latitude: 1, Longitude: 2},
		Target:   &domain.GeofenceTarget{ID: "17"},
	})
	require.ErrorIs(t, err, domain.ErrNetwork)
	require.ErrorContains(t, err, "Store is closed")
}

func TestPunchRejectsIncompleteBundle(t *testing.T) {
	client := NewClient("http://collector.invalid", nil)
	_, err := client.Punch(context.Background(), domain.PunchBundle{
		Kind:     domain.PunchCheckIn,
		Location: &domain.LocationSample{},
	})
	require.ErrorIs(t, err, domain.ErrValidation)
}
