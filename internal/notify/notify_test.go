package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_PostsPayload(t *testing.T) {
	got := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		got <- body
	}))
	defer srv.Close()

	d := New(Config{}, srv.Client())
	d.Dispatch(srv.URL, Payload{EventID: 1, AttendeeID: 2, Quantity: 3, AttendeesTotal: 3, MaxAttendees: 5})
	d.Wait()

	body := <-got
	assert.Equal(t, float64(2), body["attendee_id"])
	assert.NotContains(t, body, "name")
	assert.NotContains(t, body, "email")
	assert.Empty(t, d.Errors())
}

func TestDispatch_FailureGoesToErrorChannel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := New(Config{}, srv.Client())
	d.Dispatch(srv.URL, Payload{EventID: 7, AttendeeID: 8})
	d.Wait()

	select {
	case f := <-d.Errors():
		assert.Equal(t, int64(7), f.EventID)
		assert.Error(t, f.Err)
	case <-time.After(time.Second):
		t.Fatal("expected a failure")
	}
}

func TestDispatch_DoesNotBlockOnSlowOrganizer(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	d := New(Config{Timeout: time.Second}, srv.Client())

	start := time.Now()
	d.Dispatch(srv.URL, Payload{EventID: 1})
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestDispatch_FullErrorChannelDropsFailures(t *testing.T) {
	d := New(Config{Buffer: 1, Timeout: 100 * time.Millisecond}, nil)

	d.Dispatch("http://127.0.0.1:0/", Payload{EventID: 1})
	d.Dispatch("http://127.0.0.1:0/", Payload{EventID: 2})
	d.Wait()

	assert.Len(t, d.Errors(), 1)
}

func TestDispatch_NoURLIsNoop(t *testing.T) {
	d := New(Config{}, nil)
	d.Dispatch("", Payload{EventID: 1})
	d.Wait()

	assert.Empty(t, d.Errors())
}
