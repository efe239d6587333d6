package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lvoz2/weblib/model"
	"github.com/lvoz2/weblib/search"
	"github.com/lvoz2/weblib/server/middlewares"
	"github.com/lvoz2/weblib/store"
	Logger "github.com/lvoz2/weblib/utils/log"
	"github.com/pkg/errors"
)

// API wires the stores and the search orchestrator into the REST surface the
// web front end consumes. Business-logic failures come back as 200 with
// {status:false, error}; only unexpected internal faults map to a 5xx.
type API struct {
	Items   *store.ItemStore
	Users   *store.UserStore
	Recency *store.RecencyLedger
	Search  *search.Orchestrator
}

func NewAPI(items *store.ItemStore, users *store.UserStore, recency *store.RecencyLedger, orchestrator *search.Orchestrator) *API {
	return &API{Items: items, Users: users, Recency: recency, Search: orchestrator}
}

func (a *API) Register(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/browse/search", a.BrowseSearch)
	api.GET("/items/:id", a.GetItem)
	api.POST("/items/:id/save", a.SaveItem)
	api.POST("/items/:id/unsave", a.UnsaveItem)
	api.GET("/saved", a.SavedItems)
	api.GET("/recent/viewed", a.RecentViewed)
	api.GET("/recent/searched", a.RecentSearched)
	api.POST("/users/login", a.Login)
}

type statusResponse struct {
	Status bool   `json:"status"`
	Error  string `json:"error,omitempty"`
}

type itemResponse struct {
	Status bool            `json:"status"`
	Item   *model.ItemView `json:"item,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type itemsResponse struct {
	Status bool             `json:"status"`
	Items  []model.ItemView `json:"items"`
	Error  string           `json:"error,omitempty"`
}

type userPayload struct {
	Id       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Platform string `json:"platform"`
}

type userResponse struct {
	Status bool         `json:"status"`
	User   *userPayload `json:"user,omitempty"`
	Error  string       `json:"error,omitempty"`
}

type searchPayload struct {
	Query      string         `json:"query"`
	NumResults int            `json:"num_results"`
	Filters    search.Filters `json:"filters"`
}

type loginPayload struct {
	Email      string            `json:"email"`
	Platform   string            `json:"platform"`
	PlatformId map[string]string `json:"platform_id"`
	Name       string            `json:"name"`
	Username   string            `json:"username"`
}

// BrowseSearch is the orchestrator entry point for the browse page.
func (a *API) BrowseSearch(c *gin.Context) {
	var payload searchPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusOK, statusResponse{Status: false, Error: "malformed request payload"})
		return
	}

	envelope, err := a.Search.Search(c.Request.Context(), search.Request{
		Query:      payload.Query,
		NumResults: payload.NumResults,
		Filters:    payload.Filters,
		ViewerID:   middlewares.ViewerID(c),
	})
	if err != nil {
		a.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope)
}

// GetItem looks an item up by local id and, for authenticated viewers, marks
// it recently viewed.
func (a *API) GetItem(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusOK, itemResponse{Status: false, Error: "invalid item id"})
		return
	}
	viewer := middlewares.ViewerID(c)

	item, err := a.Items.GetItem(id, viewer)
	if err != nil {
		a.respondError(c, err)
		return
	}
	if item == nil {
		c.JSON(http.StatusOK, itemResponse{Status: false, Error: "Item with id \"" + c.Param("id") + "\" does not exist"})
		return
	}
	if viewer != nil {
		if err := a.Recency.Record(store.KindViewed, *viewer, id); err != nil {
			a.respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, itemResponse{Status: true, Item: item})
}

func (a *API) SaveItem(c *gin.Context) {
	a.mutateSaved(c, a.Items.SaveItem)
}

func (a *API) UnsaveItem(c *gin.Context) {
	a.mutateSaved(c, a.Items.UnsaveItem)
}

func (a *API) mutateSaved(c *gin.Context, op func(itemID, viewerID int64) error) {
	viewer := middlewares.ViewerID(c)
	if viewer == nil {
		c.JSON(http.StatusOK, statusResponse{Status: false, Error: "login required"})
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusOK, statusResponse{Status: false, Error: "invalid item id"})
		return
	}
	if err := op(id, *viewer); err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusResponse{Status: true})
}

// SavedItems lists the viewer's saved items, newest save first.
func (a *API) SavedItems(c *gin.Context) {
	viewer := middlewares.ViewerID(c)
	if viewer == nil {
		c.JSON(http.StatusOK, statusResponse{Status: false, Error: "login required"})
		return
	}
	items, err := a.Items.SavedItems(*viewer)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, itemsResponse{Status: true, Items: items})
}

func (a *API) RecentViewed(c *gin.Context) {
	a.listRecent(c, store.KindViewed)
}

func (a *API) RecentSearched(c *gin.Context) {
	a.listRecent(c, store.KindSearched)
}

func (a *API) listRecent(c *gin.Context, kind store.RecencyKind) {
	viewer := middlewares.ViewerID(c)
	if viewer == nil {
		// An anonymous viewer simply has no history.
		c.JSON(http.StatusOK, itemsResponse{Status: true, Items: []model.ItemView{}})
		return
	}
	items, err := a.Recency.List(kind, *viewer)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, itemsResponse{Status: true, Items: items})
}

// Login provisions the user on first login and returns the local identity the
// session layer should associate with its session.
func (a *API) Login(c *gin.Context) {
	var payload loginPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusOK, userResponse{Status: false, Error: "malformed request payload"})
		return
	}
	user, err := a.Users.GetOrCreateUser(payload.Email, payload.Platform, payload.PlatformId, payload.Name, payload.Username)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, userResponse{Status: true, User: &userPayload{
		Id:       strconv.FormatInt(user.Id, 10),
		Email:    user.Email,
		Name:     user.Name,
		Username: user.Username,
		Platform: user.LoginPlatform,
	}})
}

// respondError maps an error to the wire. Consistency violations are
// programming/data-integrity bugs and surface as an internal server error;
// everything else is a business-level failure reported in-band.
func (a *API) respondError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrConsistency) {
		a.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusResponse{Status: false, Error: err.Error()})
}

func (a *API) internalError(c *gin.Context, err error) {
	Logger.Log.Errorln("internal error:", err)
	c.JSON(http.StatusInternalServerError, statusResponse{Status: false, Error: "internal error"})
}
