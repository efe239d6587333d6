package sources

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/lvoz2/weblib/model"
	"github.com/lvoz2/weblib/search/clients"
	"github.com/lvoz2/weblib/store"
	"github.com/lvoz2/weblib/utils"
	Logger "github.com/lvoz2/weblib/utils/log"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	wikipediaAPIBase    = "https://en.wikipedia.org/w/api.php"
	wikipediaSourceName = "Wikipedia"
)

// Wikipedia adapts the MediaWiki full-text search API. The primary search
// call yields ranked page ids; pages not already in the item store are
// enriched with three batched follow-up calls (canonical urls, page images,
// intro extracts) plus one HEAD probe per thumbnail for its mime type.
type Wikipedia struct {
	Items  *store.ItemStore
	Client *clients.HttpClient

	// APIBase points at the MediaWiki action API, overridable in tests.
	APIBase string
}

func NewWikipedia(items *store.ItemStore) *Wikipedia {
	return &Wikipedia{
		Items:   items,
		Client:  clients.NewDefaultHttpClient(),
		APIBase: wikipediaAPIBase,
	}
}

func (w *Wikipedia) Name() string { return "wikipedia" }

type wikiSearchPage struct {
	PageId int    `json:"pageid"`
	Title  string `json:"title"`
}

type wikiSearchResponse struct {
	Query struct {
		Search []wikiSearchPage `json:"search"`
	} `json:"query"`
}

type wikiInfoPage struct {
	FullUrl string `json:"fullurl"`
}

type wikiInfoResponse struct {
	Query struct {
		Pages map[string]wikiInfoPage `json:"pages"`
	} `json:"query"`
}

type wikiThumbnail struct {
	Source string `json:"source"`
	Height int    `json:"height"`
}

type wikiImagePage struct {
	Thumbnail *wikiThumbnail `json:"thumbnail"`
}

type wikiImageResponse struct {
	Query struct {
		Pages map[string]wikiImagePage `json:"pages"`
	} `json:"query"`
}

type wikiExtractPage struct {
	Extract *string `json:"extract"`
}

type wikiExtractResponse struct {
	Query struct {
		Pages map[string]wikiExtractPage `json:"pages"`
	} `json:"query"`
}

func (w *Wikipedia) Search(ctx context.Context, query string, limit int, viewerID *int64) ([]model.ItemView, error) {
	var search wikiSearchResponse
	err := w.Client.GetJSON(ctx, w.queryURL(url.Values{
		"action":        {"query"},
		"format":        {"json"},
		"formatversion": {"2"},
		"list":          {"search"},
		"srsearch":      {query},
		"srlimit":       {strconv.Itoa(limit)},
	}), &search)
	if err != nil {
		return nil, err
	}
	pages := search.Query.Search

	// Cache pass: pages already in the item store need no enrichment calls,
	// but a hit still counts as searched for the viewer.
	hits := make(map[string]model.ItemView)
	missSet := make(map[string]bool)
	missIDs := make([]string, 0, len(pages))
	for _, page := range pages {
		pageID := strconv.Itoa(page.PageId)
		item, err := w.Items.GetItemBySource(wikipediaSourceName, pageID, viewerID, true)
		if err != nil {
			return nil, err
		}
		if item == nil {
			if !missSet[pageID] {
				missSet[pageID] = true
				missIDs = append(missIDs, pageID)
			}
		} else {
			hits[pageID] = *item
		}
	}

	created := make(map[string]model.ItemView)
	if len(missIDs) > 0 {
		infos, images, extracts, err := w.fetchMissMetadata(ctx, missIDs)
		if err != nil {
			return nil, err
		}
		for _, page := range pages {
			pageID := strconv.Itoa(page.PageId)
			if !missSet[pageID] {
				continue
			}
			view, err := w.buildItem(ctx, page, infos[pageID], images[pageID], extracts[pageID], viewerID)
			if err != nil {
				if errors.Is(err, store.ErrConsistency) {
					return nil, err
				}
				// One malformed upstream record must not fail the batch.
				Logger.Log.WithFields(logrus.Fields{"source": "wikipedia", "pageid": pageID}).
					Warnln("skipping result:", err)
				continue
			}
			created[pageID] = *view
		}
	}

	// Reassemble in the exact order the upstream ranked the pages. Hits and
	// backfilled misses complete in separate passes, so the final order must
	// come from the primary response, never from append order.
	results := make([]model.ItemView, 0, len(pages))
	for _, page := range pages {
		pageID := strconv.Itoa(page.PageId)
		if view, ok := hits[pageID]; ok {
			results = append(results, view)
		} else if view, ok := created[pageID]; ok {
			results = append(results, view)
		}
	}
	return results, nil
}

// fetchMissMetadata issues the three batched enrichment calls for just the
// miss set, pageids joined with "|" to keep request volume down.
func (w *Wikipedia) fetchMissMetadata(ctx context.Context, pageIDs []string) (map[string]wikiInfoPage, map[string]wikiImagePage, map[string]wikiExtractPage, error) {
	joined := strings.Join(pageIDs, "|")

	var info wikiInfoResponse
	if err := w.Client.GetJSON(ctx, w.queryURL(url.Values{
		"action":  {"query"},
		"format":  {"json"},
		"prop":    {"info"},
		"inprop":  {"url"},
		"pageids": {joined},
	}), &info); err != nil {
		return nil, nil, nil, err
	}

	var images wikiImageResponse
	if err := w.Client.GetJSON(ctx, w.queryURL(url.Values{
		"action":      {"query"},
		"format":      {"json"},
		"prop":        {"pageimages"},
		"piprop":      {"name|thumbnail"},
		"pithumbsize": {"200"},
		"pageids":     {joined},
	}), &images); err != nil {
		return nil, nil, nil, err
	}

	var extracts wikiExtractResponse
	if err := w.Client.GetJSON(ctx, w.queryURL(url.Values{
		"action":      {"query"},
		"format":      {"json"},
		"prop":        {"extracts"},
		"explaintext": {"1"},
		"exintro":     {"1"},
		"pageids":     {joined},
	}), &extracts); err != nil {
		return nil, nil, nil, err
	}

	return info.Query.Pages, images.Query.Pages, extracts.Query.Pages, nil
}

// buildItem normalizes one enriched page and submits it to the item store's
// create-or-find. A missing required field is an error the caller logs and
// skips. The thumbnail mime type is verified against the image itself, never
// trusted from search metadata.
func (w *Wikipedia) buildItem(ctx context.Context, page wikiSearchPage, info wikiInfoPage, image wikiImagePage, extract wikiExtractPage, viewerID *int64) (*model.ItemView, error) {
	if info.FullUrl == "" {
		return nil, errors.New("enrichment response carries no canonical url")
	}
	if extract.Extract == nil {
		return nil, errors.New("enrichment response carries no extract")
	}

	thumbURL, thumbMime := "", ""
	thumbHeight := 0
	if image.Thumbnail != nil {
		thumbURL = image.Thumbnail.Source
		mime, err := w.Client.ContentType(ctx, thumbURL)
		if err != nil {
			return nil, errors.Wrap(err, "thumbnail mime probe failed")
		}
		thumbMime = mime
		thumbHeight = utils.ClampInt(image.Thumbnail.Height, 0, model.MaxThumbHeight)
	}

	return w.Items.CreateItem(model.Item{
		Title:       page.Title,
		Description: *extract.Extract,
		ThumbUrl:    thumbURL,
		ThumbMime:   thumbMime,
		ThumbHeight: thumbHeight,
		SourceUrl:   info.FullUrl,
		SourceName:  wikipediaSourceName,
		SourceId:    strconv.Itoa(page.PageId),
	}, viewerID, true)
}

func (w *Wikipedia) queryURL(params url.Values) string {
	return w.APIBase + "?" + params.Encode()
}
