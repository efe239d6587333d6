package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/lvoz2/weblib/model"
	"github.com/lvoz2/weblib/store"
	"github.com/lvoz2/weblib/utils"
	Logger "github.com/lvoz2/weblib/utils/log"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// MaxResults is the hard cap on how many results one search may request.
const MaxResults = 20

// Source is the contract every search adapter implements: turn a free-text
// query into normalized items, at most limit of them, in the exact order the
// upstream API ranked them.
type Source interface {
	// Name is the discriminator the web layer selects the source by.
	Name() string
	Search(ctx context.Context, query string, limit int, viewerID *int64) ([]model.ItemView, error)
}

// Filters carries the source discriminator plus any source-specific knobs
// from the request payload.
type Filters struct {
	Source string `json:"source"`
}

type Request struct {
	Query      string
	NumResults int
	Filters    Filters
	ViewerID   *int64
}

// Envelope is the status wrapper handed back to the web layer. Business-level
// failures ride in-band with Status false; the transport stays 2xx.
type Envelope struct {
	Status  bool             `json:"status"`
	Results []model.ItemView `json:"results,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// Orchestrator validates a search request and dispatches it to the adapter
// matching the requested source.
type Orchestrator struct {
	sources map[string]Source
}

func NewOrchestrator(sources ...Source) *Orchestrator {
	m := make(map[string]Source, len(sources))
	for _, s := range sources {
		m[s.Name()] = s
	}
	return &Orchestrator{sources: m}
}

// Search runs one search request end to end. The returned error is non-nil
// only for internal faults (data-integrity violations) that the transport
// should report as a server error; everything else, including upstream
// failures and bad input, comes back inside the envelope.
func (o *Orchestrator) Search(ctx context.Context, req Request) (Envelope, error) {
	// An empty query is a successful empty search, not an error. No network
	// calls, no store writes.
	if strings.TrimSpace(req.Query) == "" {
		return Envelope{Status: true, Results: []model.ItemView{}}, nil
	}

	src, ok := o.sources[req.Filters.Source]
	if !ok {
		return Envelope{Status: false, Error: fmt.Sprintf("unknown search source %q", req.Filters.Source)}, nil
	}

	limit := utils.ClampInt(req.NumResults, 1, MaxResults)
	results, err := src.Search(ctx, req.Query, limit, req.ViewerID)
	if err != nil {
		if errors.Is(err, store.ErrConsistency) {
			return Envelope{}, err
		}
		Logger.Log.WithFields(logrus.Fields{"source": src.Name()}).Errorln("search failed:", err)
		return Envelope{Status: false, Error: err.Error()}, nil
	}
	if results == nil {
		results = []model.ItemView{}
	}
	return Envelope{Status: true, Results: results}, nil
}
