package advisory

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	adv "psirt_report_bot/internal/domain/advisory"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func tokenServer(t *testing.T, status int, issued *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "id", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))
		if issued != nil {
			atomic.AddInt32(issued, 1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3599}`))
		} else {
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(tokenURL, apiURL string) *Client {
	return NewClient(Config{
		ClientID:     "id",
		ClientSecret: "secret",
		TokenURL:     tokenURL,
		APIURL:       apiURL,
		Timeout:      5 * time.Second,
	}, quietLogger())
}

var (
	from = time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)
	to   = time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)
)

func TestFetch_DecodesAdvisories(t *testing.T) {
	var issued int32
	tokens := tokenServer(t, http.StatusOK, &issued)
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "2024-02-20", r.URL.Query().Get("startDate"))
		assert.Equal(t, "2024-05-20", r.URL.Query().Get("endDate"))
		_, _ = w.Write([]byte(`{"advisories":[
			{"advisoryId":"cisco-sa-1","advisoryTitle":"One","sir":"High","lastUpdated":"2024-05-18T16:00:00"},
			{"advisoryId":"cisco-sa-2","advisoryTitle":"Two","sir":"Low","lastUpdated":"2024-03-01T08:00:00"}
		]}`))
	}))
	defer api.Close()

	client := newTestClient(tokens.URL, api.URL)
	snap, err := client.Fetch(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, snap.Entries, 2)
	assert.Equal(t, "cisco-sa-1", snap.Entries[0].AdvisoryID)
	assert.Equal(t, "2024-03-01T08:00:00", snap.Entries[1].LastUpdated)
	assert.Equal(t, from, snap.From)

	_, err = client.Fetch(context.Background(), from, to)
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&issued), "token is reused until near expiry")
}

func TestFetch_CategorizesFeedStatus(t *testing.T) {
	tokens := tokenServer(t, http.StatusOK, nil)
	cases := map[int]error{
		http.StatusForbidden:           adv.ErrUnauthorized,
		http.StatusNotFound:            adv.ErrNotFound,
		http.StatusTooManyRequests:     adv.ErrRateLimited,
		http.StatusBadRequest:          adv.ErrBadRequest,
		http.StatusInternalServerError: adv.ErrUnexpectedStatus,
	}
	for status, want := range cases {
		api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		_, err := newTestClient(tokens.URL, api.URL).Fetch(context.Background(), from, to)
		api.Close()
		assert.ErrorIs(t, err, want, "status %d", status)
	}
}

func TestFetch_TokenRejected(t *testing.T) {
	tokens := tokenServer(t, http.StatusUnauthorized, nil)
	var apiCalls int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&apiCalls, 1)
	}))
	defer api.Close()

	_, err := newTestClient(tokens.URL, api.URL).Fetch(context.Background(), from, to)

	assert.ErrorIs(t, err, adv.ErrUnauthorized)
	assert.Zero(t, atomic.LoadInt32(&apiCalls))
}

func TestFetch_MalformedBody(t *testing.T) {
	tokens := tokenServer(t, http.StatusOK, nil)
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"advisories": [`))
	}))
	defer api.Close()

	_, err := newTestClient(tokens.URL, api.URL).Fetch(context.Background(), from, to)

	assert.ErrorContains(t, err, "decoding advisories")
}
