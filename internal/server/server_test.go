package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"missionline/internal/db"
	"missionline/internal/domain"
	"missionline/internal/engine"
	"missionline/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, auth AuthConfig) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if auth.Logger == nil {
		auth.Logger = log.New(io.Discard, "", 0)
	}
	handler, err := New(Config{Engine: engine.New(conn), BasePath: "/v0", Auth: auth})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, data []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env
}

// seed creates a mission type with two templates, two employees and a
// project, returning their ids.
func seed(t *testing.T, srv *testServer, headers map[string]string) (typeID, projectID int64) {
	t.Helper()
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/mission-types", map[string]any{
		"name": "Inspection", "estimated_duration": 90,
	}, headers)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var mt domain.MissionType
	require.NoError(t, json.Unmarshal(data, &mt))

	for _, tpl := range []map[string]any{
		{"description": "site survey", "estimated_duration": 30},
		{"description": "wire panel", "estimated_duration": 45},
	} {
		res, data := doJSON(t, client, http.MethodPost, fmt.Sprintf("%s/v0/mission-types/%d/templates", srv.URL, mt.ID), tpl, headers)
		require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	}
	for _, id := range []string{"A", "B"} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/employees", map[string]any{
			"id": id, "first_name": "Emp", "last_name": id,
		}, headers)
		require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{"name": "Harbour"}, headers)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var p domain.Project
	require.NoError(t, json.Unmarshal(data, &p))
	return mt.ID, p.ID
}

func TestMissionLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()
	typeID, projectID := seed(t, srv, nil)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/missions", map[string]any{
		"date":            "2024-03-04",
		"mission_type_id": typeID,
		"project_id":      projectID,
		"employee_ids":    []string{"A", "B"},
		"team_leader_id":  "B",
	}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var m MissionResponse
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "red", m.Status)
	assert.Equal(t, 90, m.EstimatedDuration)
	require.Len(t, m.Tasks, 2)
	assert.Equal(t, "new", m.Tasks[0].Status)
	require.Len(t, m.Team, 2)
	assert.Equal(t, "B", m.Team[0].ID)
	assert.True(t, m.Team[0].IsTeamLeader)

	taskURL := srv.URL + "/v0/tasks/" + m.Tasks[0].ID + "/transition"
	res, data = doJSON(t, client, http.MethodPost, taskURL, map[string]any{"status": "in_progress"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var task TaskResponse
	require.NoError(t, json.Unmarshal(data, &task))
	assert.Equal(t, "in_progress", task.Status)
	assert.NotNil(t, task.StartStamp)

	res, data = doJSON(t, client, http.MethodPost, taskURL, map[string]any{"status": "new"}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode, string(data))
	env := decodeError(t, data)
	assert.Equal(t, "invalid_transition", env.Error.Code)
	assert.ElementsMatch(t, []any{"paused", "completed"}, env.Error.Details["allowed"])

	res, data = doJSON(t, client, http.MethodPost, taskURL, map[string]any{"status": "paused", "expected_status": "new"}, nil)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/missions/"+m.ID, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "orange", m.Status)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/missions?employee_id=A", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var list MissionList
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list.Items, 1)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?entity_kind=task", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var evts EventList
	require.NoError(t, json.Unmarshal(data, &evts))
	require.Len(t, evts.Items, 1)
	assert.Equal(t, "task.transitioned", evts.Items[0].Type)
	assert.Equal(t, "local-user", evts.Items[0].ActorID)
}

func TestErrorMapping(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()
	typeID, projectID := seed(t, srv, nil)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/missions", map[string]any{
		"date": "2024-03-04", "mission_type_id": typeID, "project_id": projectID,
		"employee_ids": []string{}, "team_leader_id": "A",
	}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	assert.Equal(t, "validation_error", decodeError(t, data).Error.Code)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/missions", map[string]any{
		"date": "2024-03-04", "mission_type_id": 999, "project_id": projectID,
		"employee_ids": []string{"A"}, "team_leader_id": "A",
	}, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode, string(data))
	assert.Equal(t, "mission type", decodeError(t, data).Error.Details["entity"])

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/mission-types", map[string]any{
		"name": "Inspection", "estimated_duration": 30,
	}, nil)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))

	dup := map[string]any{
		"id": "m-fixed", "date": "2024-03-04", "mission_type_id": typeID, "project_id": projectID,
		"employee_ids": []string{"A"}, "team_leader_id": "A",
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/missions", dup, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/missions", dup, nil)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	assert.Equal(t, "conflict", decodeError(t, data).Error.Code)

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/employees/missing", nil, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/missions/nope", nil, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode, string(data))
}

func TestTemplateOrderingEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()
	typeID, _ := seed(t, srv, nil)
	listURL := fmt.Sprintf("%s/v0/mission-types/%d/templates", srv.URL, typeID)

	res, data := doJSON(t, client, http.MethodGet, listURL, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var tpls TemplateList
	require.NoError(t, json.Unmarshal(data, &tpls))
	require.Len(t, tpls.Items, 2)
	first, second := tpls.Items[0], tpls.Items[1]

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/templates/"+first.ID+"/move", map[string]any{"direction": "up"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var moved domain.TaskTemplate
	require.NoError(t, json.Unmarshal(data, &moved))
	assert.Equal(t, 1, moved.Ord, "moving the first template up is a no-op")

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/templates/"+first.ID+"/move", map[string]any{"direction": "down"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &moved))
	assert.Equal(t, 2, moved.Ord)

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/templates/"+second.ID, nil, nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPost, listURL+"/renumber", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &tpls))
	require.Len(t, tpls.Items, 1)
	assert.Equal(t, first.ID, tpls.Items[0].ID)
	assert.Equal(t, 1, tpls.Items[0].Ord)
}

func TestBearerAuth(t *testing.T) {
	const secret = "test-secret"
	srv, cleanup := newTestServer(t, AuthConfig{JWTSecret: secret})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/mission-types", nil, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/mission-types", nil, map[string]string{"X-Actor-Id": "mallory"})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode, "actor header is ignored unless allowed: %s", string(data))

	bad, err := IssueToken("other-secret", "mallory")
	require.NoError(t, err)
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/mission-types", nil, map[string]string{"Authorization": "Bearer " + bad})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode, string(data))

	token, err := IssueToken(secret, "dispatcher-7")
	require.NoError(t, err)
	headers := map[string]string{"Authorization": "Bearer " + token}
	seed(t, srv, headers)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?entity_kind=mission_type", nil, headers)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var evts EventList
	require.NoError(t, json.Unmarshal(data, &evts))
	require.NotEmpty(t, evts.Items)
	assert.Equal(t, "dispatcher-7", evts.Items[0].ActorID)
}

func TestActorHeaderWhenAllowed(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{AllowActorHeader: true})
	defer cleanup()
	headers := map[string]string{"X-Actor-Id": "field-lead"}
	seed(t, srv, headers)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events?entity_kind=employee", nil, headers)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var evts EventList
	require.NoError(t, json.Unmarshal(data, &evts))
	require.Len(t, evts.Items, 2)
	assert.Equal(t, "field-lead", evts.Items[0].ActorID)

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/employees", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}
