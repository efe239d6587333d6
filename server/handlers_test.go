package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/lvoz2/weblib/model"
	"github.com/lvoz2/weblib/search"
	"github.com/lvoz2/weblib/server/middlewares"
	"github.com/lvoz2/weblib/store"
	"github.com/lvoz2/weblib/utils"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeSource struct {
	results []model.ItemView
	err     error
}

func (f *fakeSource) Name() string { return "wikipedia" }

func (f *fakeSource) Search(ctx context.Context, query string, limit int, viewerID *int64) ([]model.ItemView, error) {
	return f.results, f.err
}

type apiResponse struct {
	Status  bool             `json:"status"`
	Error   string           `json:"error"`
	Item    *model.ItemView  `json:"item"`
	Items   []model.ItemView `json:"items"`
	Results []model.ItemView `json:"results"`
	User    *struct {
		Id string `json:"id"`
	} `json:"user"`
}

func newTestRouter(t *testing.T, src search.Source) (*gin.Engine, *API, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := utils.CreateTempDB(t)
	api := NewAPI(
		store.NewItemStore(db),
		store.NewUserStore(db),
		store.NewRecencyLedger(db),
		search.NewOrchestrator(src),
	)
	router := gin.New()
	router.Use(middlewares.RequestId(), middlewares.Viewer())
	api.Register(router)
	return router, api, db
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, viewer *int64, body interface{}) apiResponse {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if viewer != nil {
		req.Header.Set(middlewares.ViewerHeader, strconv.FormatInt(*viewer, 10))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func loginTestUser(t *testing.T, router *gin.Engine) int64 {
	t.Helper()
	resp := doJSON(t, router, http.MethodPost, "/api/users/login", nil, map[string]interface{}{
		"email": "a@example.com", "platform": "google",
		"platform_id": map[string]string{"sub": "123"},
		"name":        "Alice", "username": "alice",
	})
	require.True(t, resp.Status)
	require.NotNil(t, resp.User)
	id, err := strconv.ParseInt(resp.User.Id, 10, 64)
	require.NoError(t, err)
	return id
}

func TestLoginProvisionsUserOnce(t *testing.T) {
	router, _, _ := newTestRouter(t, &fakeSource{})

	first := loginTestUser(t, router)
	second := loginTestUser(t, router)
	require.Equal(t, first, second)
}

func TestLoginValidation(t *testing.T) {
	router, _, _ := newTestRouter(t, &fakeSource{})

	resp := doJSON(t, router, http.MethodPost, "/api/users/login", nil, map[string]interface{}{
		"email": "a@example.com",
	})
	require.False(t, resp.Status)
	require.Contains(t, resp.Error, "missing required login fields")
}

func TestBrowseSearchEmptyQuery(t *testing.T) {
	router, _, _ := newTestRouter(t, &fakeSource{})

	resp := doJSON(t, router, http.MethodPost, "/api/browse/search", nil, map[string]interface{}{
		"query": "", "num_results": 5, "filters": map[string]string{"source": "wikipedia"},
	})
	require.True(t, resp.Status)
	require.Empty(t, resp.Results)
}

func TestBrowseSearchUnknownSource(t *testing.T) {
	router, _, _ := newTestRouter(t, &fakeSource{})

	resp := doJSON(t, router, http.MethodPost, "/api/browse/search", nil, map[string]interface{}{
		"query": "Australia", "num_results": 5, "filters": map[string]string{"source": "bing"},
	})
	require.False(t, resp.Status)
	require.Contains(t, resp.Error, "unknown search source")
}

func TestBrowseSearchReturnsAdapterResults(t *testing.T) {
	src := &fakeSource{results: []model.ItemView{{Id: "3", Title: "Australia"}, {Id: "1", Title: "Austria"}}}
	router, _, _ := newTestRouter(t, src)

	resp := doJSON(t, router, http.MethodPost, "/api/browse/search", nil, map[string]interface{}{
		"query": "Austr", "num_results": 2, "filters": map[string]string{"source": "wikipedia"},
	})
	require.True(t, resp.Status)
	require.Len(t, resp.Results, 2)
	require.Equal(t, "Australia", resp.Results[0].Title)
}

func TestItemLifecycle(t *testing.T) {
	router, api, _ := newTestRouter(t, &fakeSource{})
	viewer := loginTestUser(t, router)

	created, err := api.Items.CreateItem(model.Item{
		Title: "Australia", Description: "a country",
		SourceUrl: "https://en.wikipedia.org/wiki/Australia", SourceName: "Wikipedia", SourceId: "4689264",
	}, nil, false)
	require.NoError(t, err)
	itemPath := "/api/items/" + created.Id

	// Viewing attaches the saved flag and records recency.
	resp := doJSON(t, router, http.MethodGet, itemPath, &viewer, nil)
	require.True(t, resp.Status)
	require.NotNil(t, resp.Item)
	require.False(t, resp.Item.Saved)

	resp = doJSON(t, router, http.MethodGet, "/api/recent/viewed", &viewer, nil)
	require.True(t, resp.Status)
	require.Len(t, resp.Items, 1)
	require.Equal(t, created.Id, resp.Items[0].Id)

	// Save, then the item and the saved list reflect it.
	resp = doJSON(t, router, http.MethodPost, itemPath+"/save", &viewer, nil)
	require.True(t, resp.Status)

	resp = doJSON(t, router, http.MethodGet, "/api/saved", &viewer, nil)
	require.True(t, resp.Status)
	require.Len(t, resp.Items, 1)
	require.True(t, resp.Items[0].Saved)

	resp = doJSON(t, router, http.MethodGet, itemPath, &viewer, nil)
	require.True(t, resp.Item.Saved)

	// Unsave twice: the second one is an idempotent no-op.
	resp = doJSON(t, router, http.MethodPost, itemPath+"/unsave", &viewer, nil)
	require.True(t, resp.Status)
	resp = doJSON(t, router, http.MethodPost, itemPath+"/unsave", &viewer, nil)
	require.True(t, resp.Status)

	resp = doJSON(t, router, http.MethodGet, "/api/saved", &viewer, nil)
	require.True(t, resp.Status)
	require.Empty(t, resp.Items)
}

func TestGetItemNotFound(t *testing.T) {
	router, _, _ := newTestRouter(t, &fakeSource{})

	resp := doJSON(t, router, http.MethodGet, "/api/items/999", nil, nil)
	require.False(t, resp.Status)
	require.Contains(t, resp.Error, "does not exist")
}

func TestSaveRequiresLogin(t *testing.T) {
	router, _, _ := newTestRouter(t, &fakeSource{})

	resp := doJSON(t, router, http.MethodPost, "/api/items/1/save", nil, nil)
	require.False(t, resp.Status)
	require.Contains(t, resp.Error, "login required")
}

func TestRecentListsAreEmptyForAnonymous(t *testing.T) {
	router, _, _ := newTestRouter(t, &fakeSource{})

	resp := doJSON(t, router, http.MethodGet, "/api/recent/searched", nil, nil)
	require.True(t, resp.Status)
	require.Empty(t, resp.Items)
}
