package missionlinesdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(srv.URL)
	c.RetryDelay = time.Millisecond
	return c
}

func conflict(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusConflict)
	_, _ = w.Write([]byte(`{"error":{"code":"conflict","message":"task changed"}}`))
}

func TestTransitionRetriesOnConflict(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/tasks/t-1/transition", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "in_progress", body["status"])
		_, hasExpected := body["expected_status"]
		assert.False(t, hasExpected)
		if calls.Add(1) < 3 {
			conflict(w)
			return
		}
		_ = json.NewEncoder(w).Encode(Task{ID: "t-1", StatusID: 2, Status: "in_progress"})
	})

	task, err := c.TransitionTask(context.Background(), "t-1", "in_progress", "")
	require.NoError(t, err)
	assert.Equal(t, "in_progress", task.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestConflictSurfacesAfterRetries(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		conflict(w)
	})
	c.MaxAttempts = 2

	_, err := c.TransitionTask(context.Background(), "t-1", "completed", "in_progress")
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "conflict", apiErr.Code)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestOtherErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"code":"invalid_transition","message":"invalid task status transition new -> completed"}}`))
	})

	_, err := c.TransitionTask(context.Background(), "t-1", "completed", "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "invalid_transition", apiErr.Code)
	assert.False(t, IsConflict(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestAuthHeaders(t *testing.T) {
	var gotAuth, gotActor string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotActor = r.Header.Get("X-Actor-Id")
		_, _ = w.Write([]byte(`{"items":[{"id":1,"name":"Inspection","estimated_duration":90}]}`))
	})

	c.ActorID = "dispatcher-7"
	types, err := c.ListMissionTypes(context.Background())
	require.NoError(t, err)
	require.Len(t, types, 1)
	assert.Equal(t, "Inspection", types[0].Name)
	assert.Equal(t, "", gotAuth)
	assert.Equal(t, "dispatcher-7", gotActor)

	c.BearerToken = "tok"
	_, err = c.ListMissionTypes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "", gotActor)
}

func TestEventsQuery(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/events", r.URL.Path)
		assert.Equal(t, "task", r.URL.Query().Get("entity_kind"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"items":[{"id":9,"type":"task.transitioned","entity_kind":"task","actor_id":"local-user"}]}`))
	})

	evts, err := c.Events(context.Background(), "task", 5)
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, "task.transitioned", evts[0].Type)
}

func TestDeleteTemplateNoContent(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v0/templates/tpl-1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, c.DeleteTemplate(context.Background(), "tpl-1"))
}
