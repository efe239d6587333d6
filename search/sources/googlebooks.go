package sources

import (
	"context"
	"net/url"
	"strconv"

	"github.com/lvoz2/weblib/model"
	"github.com/lvoz2/weblib/search/clients"
	"github.com/lvoz2/weblib/store"
	Logger "github.com/lvoz2/weblib/utils/log"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	googleBooksAPIBase    = "https://www.googleapis.com/books/v1"
	googleBooksSourceName = "Google Books"

	// The covers endpoint serves zoom-1 thumbnails at roughly this height.
	// The volumes API itself reports no pixel dimensions.
	googleBooksThumbHeight = 195
)

// GoogleBooks adapts the Google Books volumes API. The primary search call
// yields ranked volume ids; the API has no batch lookup, so each miss is
// enriched with one volume fetch plus a HEAD probe for the cover mime type.
type GoogleBooks struct {
	Items  *store.ItemStore
	Client *clients.HttpClient

	// APIBase points at the Books API root, overridable in tests.
	APIBase string
}

func NewGoogleBooks(items *store.ItemStore) *GoogleBooks {
	return &GoogleBooks{
		Items:   items,
		Client:  clients.NewDefaultHttpClient(),
		APIBase: googleBooksAPIBase,
	}
}

func (g *GoogleBooks) Name() string { return "google_books" }

type booksSearchResponse struct {
	Items []struct {
		Id string `json:"id"`
	} `json:"items"`
}

type booksVolume struct {
	Id         string `json:"id"`
	VolumeInfo struct {
		Title               string `json:"title"`
		Description         string `json:"description"`
		CanonicalVolumeLink string `json:"canonicalVolumeLink"`
		ImageLinks          *struct {
			SmallThumbnail string `json:"smallThumbnail"`
			Thumbnail      string `json:"thumbnail"`
		} `json:"imageLinks"`
	} `json:"volumeInfo"`
}

func (g *GoogleBooks) Search(ctx context.Context, query string, limit int, viewerID *int64) ([]model.ItemView, error) {
	var search booksSearchResponse
	err := g.Client.GetJSON(ctx, g.APIBase+"/volumes?"+url.Values{
		"q":          {query},
		"maxResults": {strconv.Itoa(limit)},
	}.Encode(), &search)
	if err != nil {
		return nil, err
	}

	hits := make(map[string]model.ItemView)
	missSet := make(map[string]bool)
	for _, vol := range search.Items {
		item, err := g.Items.GetItemBySource(googleBooksSourceName, vol.Id, viewerID, true)
		if err != nil {
			return nil, err
		}
		if item == nil {
			missSet[vol.Id] = true
		} else {
			hits[vol.Id] = *item
		}
	}

	created := make(map[string]model.ItemView)
	for _, vol := range search.Items {
		if !missSet[vol.Id] {
			continue
		}
		view, err := g.fetchAndCreate(ctx, vol.Id, viewerID)
		if err != nil {
			if errors.Is(err, store.ErrConsistency) {
				return nil, err
			}
			// One bad volume must not fail the batch.
			Logger.Log.WithFields(logrus.Fields{"source": "google_books", "volume": vol.Id}).
				Warnln("skipping result:", err)
			continue
		}
		created[vol.Id] = *view
	}

	// Final pass restores the upstream ranking regardless of which pass a
	// result came from.
	results := make([]model.ItemView, 0, len(search.Items))
	for _, vol := range search.Items {
		if view, ok := hits[vol.Id]; ok {
			results = append(results, view)
		} else if view, ok := created[vol.Id]; ok {
			results = append(results, view)
		}
	}
	return results, nil
}

// fetchAndCreate enriches one volume miss and submits it to the item store's
// create-or-find. The description is optional upstream and defaults to empty;
// a volume without a title or canonical link is malformed and skipped.
func (g *GoogleBooks) fetchAndCreate(ctx context.Context, volumeID string, viewerID *int64) (*model.ItemView, error) {
	var vol booksVolume
	if err := g.Client.GetJSON(ctx, g.APIBase+"/volumes/"+url.PathEscape(volumeID), &vol); err != nil {
		return nil, err
	}
	if vol.VolumeInfo.Title == "" {
		return nil, errors.New("volume carries no title")
	}
	if vol.VolumeInfo.CanonicalVolumeLink == "" {
		return nil, errors.New("volume carries no canonical link")
	}

	thumbURL := ""
	if links := vol.VolumeInfo.ImageLinks; links != nil {
		thumbURL = links.Thumbnail
		if thumbURL == "" {
			thumbURL = links.SmallThumbnail
		}
	}
	thumbMime := ""
	thumbHeight := 0
	if thumbURL != "" {
		mime, err := g.Client.ContentType(ctx, thumbURL)
		if err != nil {
			return nil, errors.Wrap(err, "thumbnail mime probe failed")
		}
		thumbMime = mime
		thumbHeight = model.MaxThumbHeight
		if googleBooksThumbHeight < model.MaxThumbHeight {
			thumbHeight = googleBooksThumbHeight
		}
	}

	return g.Items.CreateItem(model.Item{
		Title:       vol.VolumeInfo.Title,
		Description: vol.VolumeInfo.Description,
		ThumbUrl:    thumbURL,
		ThumbMime:   thumbMime,
		ThumbHeight: thumbHeight,
		SourceUrl:   vol.VolumeInfo.CanonicalVolumeLink,
		SourceName:  googleBooksSourceName,
		SourceId:    vol.Id,
	}, viewerID, true)
}
