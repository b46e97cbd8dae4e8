package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbase/internal/api"
	"gridbase/internal/app"
	"gridbase/internal/config"
	internaldb "gridbase/internal/db"
)

const testSecret = "handler-test-secret"

func newTestServer(t *testing.T, cfg api.RouterConfig) *httptest.Server {
	t.Helper()

	writeDB, readDB := internaldb.OpenTestSQLite(t)
	application := app.New(app.Deps{
		Cfg:     &config.Config{},
		WriteDB: writeDB,
		ReadDB:  readDB,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = testSecret
	}
	srv := httptest.NewServer(api.NewRouter(application.Handler, cfg))
	t.Cleanup(srv.Close)
	return srv
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

// do issues a request as the given user. An empty userID sends no token.
func do(t *testing.T, srv *httptest.Server, method, path, userID, body string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, userID))
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// createBase creates a base as userID and returns its id.
func createBase(t *testing.T, srv *httptest.Server, userID, name string) string {
	t.Helper()
	resp := do(t, srv, http.MethodPost, "/api/bases", userID, fmt.Sprintf(`{"name":%q}`, name))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var body struct {
		ID string `json:"id"`
	}
	decode(t, resp, &body)
	return body.ID
}

func createTable(t *testing.T, srv *httptest.Server, userID, baseID, name string) string {
	t.Helper()
	resp := do(t, srv, http.MethodPost, "/api/bases/"+baseID+"/tables", userID,
		fmt.Sprintf(`{"name":%q}`, name))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var body struct {
		ID string `json:"id"`
	}
	decode(t, resp, &body)
	return body.ID
}

func createColumn(t *testing.T, srv *httptest.Server, userID, tableID, body string) string {
	t.Helper()
	resp := do(t, srv, http.MethodPost, "/api/tables/"+tableID+"/columns", userID, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var col struct {
		ID string `json:"id"`
	}
	decode(t, resp, &col)
	return col.ID
}

func addMember(t *testing.T, srv *httptest.Server, asUser, baseID, body string) {
	t.Helper()
	resp := do(t, srv, http.MethodPost, "/api/bases/"+baseID+"/members", asUser, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

type pageBody struct {
	Rows []struct {
		ID          string          `json:"id"`
		Fields      map[string]any  `json:"fields"`
		Permissions map[string]bool `json:"_permissions"`
	} `json:"rows"`
	Total int64 `json:"total"`
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, api.RouterConfig{})
	resp := do(t, srv, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateBase_AnonymousDenied(t *testing.T) {
	srv := newTestServer(t, api.RouterConfig{})
	resp := do(t, srv, http.MethodPost, "/api/bases", "", `{"name":"Nope"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRecordFlow(t *testing.T) {
	srv := newTestServer(t, api.RouterConfig{})

	baseID := createBase(t, srv, "owner1", "Ops")
	tableID := createTable(t, srv, "owner1", baseID, "Tasks")
	createColumn(t, srv, "owner1", tableID, `{"name":"title","dataType":"text"}`)
	createColumn(t, srv, "owner1", tableID,
		`{"name":"status","dataType":"single_select","options":{"choices":["open","done"]}}`)

	addMember(t, srv, "owner1", baseID, `{"userId":"member1","roleName":"member"}`)
	addMember(t, srv, "owner1", baseID, `{"userId":"viewer1","roleName":"viewer"}`)

	// Member creates a record.
	resp := do(t, srv, http.MethodPost, "/api/tables/"+tableID+"/records", "member1",
		`{"fields":{"title":"write docs","status":"open"}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		ID        string         `json:"id"`
		Fields    map[string]any `json:"fields"`
		CreatedBy string         `json:"createdBy"`
	}
	decode(t, resp, &created)
	assert.Equal(t, "member1", created.CreatedBy)

	// Viewer cannot create.
	resp = do(t, srv, http.MethodPost, "/api/tables/"+tableID+"/records", "viewer1",
		`{"fields":{"title":"sneaky"}}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Unknown column is a validation error.
	resp = do(t, srv, http.MethodPost, "/api/tables/"+tableID+"/records", "member1",
		`{"fields":{"bogus":1}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Viewer can query, and sees non-editable cells.
	resp = do(t, srv, http.MethodPost, "/api/tables/"+tableID+"/records/query", "viewer1", `{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page pageBody
	decode(t, resp, &page)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "write docs", page.Rows[0].Fields["title"])
	assert.False(t, page.Rows[0].Permissions["title"])

	// Filter through the wire predicate.
	resp = do(t, srv, http.MethodPost, "/api/tables/"+tableID+"/records/query", "member1",
		`{"filter":{"op":"eq","field":"status","value":"done"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page = pageBody{}
	decode(t, resp, &page)
	assert.Empty(t, page.Rows)

	// Update, fetch, delete.
	resp = do(t, srv, http.MethodPatch, "/api/tables/"+tableID+"/records/"+created.ID, "member1",
		`{"fields":{"status":"done"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/api/tables/"+tableID+"/records/"+created.ID, "member1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view struct {
		Fields map[string]any `json:"fields"`
	}
	decode(t, resp, &view)
	assert.Equal(t, "done", view.Fields["status"])

	resp = do(t, srv, http.MethodDelete, "/api/tables/"+tableID+"/records/"+created.ID, "member1", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/api/tables/"+tableID+"/records/"+created.ID, "member1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAnonymousQueryDenied(t *testing.T) {
	srv := newTestServer(t, api.RouterConfig{})
	baseID := createBase(t, srv, "owner1", "Ops")
	tableID := createTable(t, srv, "owner1", baseID, "Tasks")

	resp := do(t, srv, http.MethodPost, "/api/tables/"+tableID+"/records/query", "", `{}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestGrantEndpoints(t *testing.T) {
	srv := newTestServer(t, api.RouterConfig{})

	baseID := createBase(t, srv, "owner1", "Ops")
	tableID := createTable(t, srv, "owner1", baseID, "Tasks")
	createColumn(t, srv, "owner1", tableID, `{"name":"title","dataType":"text"}`)
	createColumn(t, srv, "owner1", tableID, `{"name":"salary","dataType":"number"}`)
	addMember(t, srv, "owner1", baseID, `{"userId":"member1","roleName":"member"}`)

	resp := do(t, srv, http.MethodPost, "/api/tables/"+tableID+"/records", "owner1",
		`{"fields":{"title":"hire","salary":90000}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Members cannot administer grants.
	grantBody := `{"columnName":"salary","targetType":"all_members","isHidden":true}`
	resp = do(t, srv, http.MethodPost, "/api/tables/"+tableID+"/grants", "member1", grantBody)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/tables/"+tableID+"/grants", "owner1", grantBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var grant struct {
		ID string `json:"id"`
	}
	decode(t, resp, &grant)

	// The hidden column disappears from member reads.
	resp = do(t, srv, http.MethodPost, "/api/tables/"+tableID+"/records/query", "member1", `{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page pageBody
	decode(t, resp, &page)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "hire", page.Rows[0].Fields["title"])
	assert.NotContains(t, page.Rows[0].Fields, "salary")

	// Listing and deleting grants is owner territory too.
	resp = do(t, srv, http.MethodGet, "/api/tables/"+tableID+"/grants", "owner1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var grants []struct {
		ID string `json:"id"`
	}
	decode(t, resp, &grants)
	require.Len(t, grants, 1)

	resp = do(t, srv, http.MethodDelete, "/api/tables/"+tableID+"/grants/"+grant.ID, "owner1", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestRowPolicyThroughAPI(t *testing.T) {
	srv := newTestServer(t, api.RouterConfig{})

	baseID := createBase(t, srv, "owner1", "Ops")
	tableID := createTable(t, srv, "owner1", baseID, "Tickets")
	createColumn(t, srv, "owner1", tableID, `{"name":"subject","dataType":"text"}`)

	// Custom role restricted to its own records.
	resp := do(t, srv, http.MethodPost, "/api/bases/"+baseID+"/roles", "owner1", `{"name":"agent"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var role struct {
		ID string `json:"id"`
	}
	decode(t, resp, &role)

	resp = do(t, srv, http.MethodPut, "/api/tables/"+tableID+"/perms/table", "owner1",
		fmt.Sprintf(`{"roleId":%q,"canCreate":true,"canRead":true,"canUpdate":true,"canDelete":false}`, role.ID))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/tables/"+tableID+"/policies", "owner1",
		fmt.Sprintf(`{"roleId":%q,"template":{"field":"created_by","op":"equals","value":"$ctx.userId"}}`, role.ID))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	addMember(t, srv, "owner1", baseID, fmt.Sprintf(`{"userId":"agent1","roleId":%q}`, role.ID))
	addMember(t, srv, "owner1", baseID, `{"userId":"member1","roleName":"member"}`)

	for _, tc := range []struct{ user, subject string }{
		{"agent1", "mine"},
		{"member1", "theirs"},
		{"member1", "also theirs"},
	} {
		resp = do(t, srv, http.MethodPost, "/api/tables/"+tableID+"/records", tc.user,
			fmt.Sprintf(`{"fields":{"subject":%q}}`, tc.subject))
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	// The agent only sees records they created.
	resp = do(t, srv, http.MethodPost, "/api/tables/"+tableID+"/records/query", "agent1", `{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page pageBody
	decode(t, resp, &page)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "mine", page.Rows[0].Fields["subject"])
	assert.EqualValues(t, 1, page.Total)

	// The owner sees everything.
	resp = do(t, srv, http.MethodPost, "/api/tables/"+tableID+"/records/query", "owner1", `{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page = pageBody{}
	decode(t, resp, &page)
	assert.Len(t, page.Rows, 3)
}

func TestColumnPatch(t *testing.T) {
	srv := newTestServer(t, api.RouterConfig{})

	baseID := createBase(t, srv, "owner1", "Ops")
	tableID := createTable(t, srv, "owner1", baseID, "Tasks")
	colID := createColumn(t, srv, "owner1", tableID, `{"name":"title","dataType":"text"}`)

	resp := do(t, srv, http.MethodPatch, "/api/tables/"+tableID+"/columns/"+colID, "owner1",
		`{"name":"headline"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var col struct {
		Name string `json:"name"`
	}
	decode(t, resp, &col)
	assert.Equal(t, "headline", col.Name)

	resp = do(t, srv, http.MethodPatch, "/api/tables/"+tableID+"/columns/"+colID, "owner1", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuditEndpoint(t *testing.T) {
	srv := newTestServer(t, api.RouterConfig{})

	baseID := createBase(t, srv, "owner1", "Ops")
	tableID := createTable(t, srv, "owner1", baseID, "Tasks")
	createColumn(t, srv, "owner1", tableID, `{"name":"title","dataType":"text"}`)
	addMember(t, srv, "owner1", baseID, `{"userId":"member1","roleName":"member"}`)

	resp := do(t, srv, http.MethodPost, "/api/tables/"+tableID+"/records/query", "member1", `{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Members cannot read the audit log.
	resp = do(t, srv, http.MethodGet, "/api/bases/"+baseID+"/audit", "member1", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/api/bases/"+baseID+"/audit", "owner1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var audit struct {
		Entries []struct {
			Action string `json:"Action"`
			Status string `json:"Status"`
		} `json:"entries"`
		Total int64 `json:"total"`
	}
	decode(t, resp, &audit)
	require.NotEmpty(t, audit.Entries)
	assert.Positive(t, audit.Total)
}

func TestRateLimitWiredIntoRouter(t *testing.T) {
	srv := newTestServer(t, api.RouterConfig{RateLimitRPS: 1, RateLimitBurst: 2})

	for n := 0; n < 2; n++ {
		resp := do(t, srv, http.MethodGet, "/healthz", "", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := do(t, srv, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
