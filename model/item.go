package model

import (
	"strconv"
	"time"
)

// MaxThumbHeight is the largest thumbnail display height in pixels. Upstream
// reported heights are clamped to [0, MaxThumbHeight] before an item is
// persisted.
const MaxThumbHeight = 135

/*

Item is a normalized search result fetched from a third-party source

Id: primary key
CreatedAt: time when entity is created

Title: item's title in plain text
Description: item's extract/description in plain text
ThumbUrl: thumbnail image url, empty string when the upstream object has none
ThumbMime: thumbnail mime type as verified against the image url itself
ThumbHeight: thumbnail display height in pixels, clamped to [0, 135], 0 when no thumbnail
SourceUrl: canonical url of the object on the source website
SourceName: source website, for example "Wikipedia", "Google Books"
SourceId: the source's native identifier, unique within a source

SavedByUsers: users that saved this item, "many-to-many" relation

An item is created exactly once per distinct (SourceName, SourceId) pair and
is immutable after creation. Recency relations reference items, they never
own them.

*/

type Item struct {
	Id          int64 `gorm:"primaryKey;autoIncrement"`
	CreatedAt   time.Time
	Title       string `gorm:"size:255"`
	Description string `gorm:"size:1023"`
	ThumbUrl    string `gorm:"size:1023"`
	ThumbMime   string `gorm:"size:255"`
	ThumbHeight int
	SourceUrl   string  `gorm:"size:1023"`
	SourceName  string  `gorm:"size:64;uniqueIndex:idx_items_source_name_source_id"`
	SourceId    string  `gorm:"size:255;uniqueIndex:idx_items_source_name_source_id"`
	SavedByUsers []*User `json:"saved_by_users" gorm:"many2many:user_item_saves;"`
}

// ItemView is the wire shape of an item handed back to the web layer. The
// saved flag is relative to the viewer of the request that produced it.
type ItemView struct {
	Id          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ThumbUrl    string `json:"thumb_url"`
	ThumbMime   string `json:"thumb_mime"`
	ThumbHeight int    `json:"thumb_height"`
	Saved       bool   `json:"saved"`
	SourceUrl   string `json:"source_url"`
	SourceName  string `json:"source_name"`
	SourceId    string `json:"source_id"`
}

func (i *Item) View(saved bool) ItemView {
	return ItemView{
		Id:          strconv.FormatInt(i.Id, 10),
		Title:       i.Title,
		Description: i.Description,
		ThumbUrl:    i.ThumbUrl,
		ThumbMime:   i.ThumbMime,
		ThumbHeight: i.ThumbHeight,
		Saved:       saved,
		SourceUrl:   i.SourceUrl,
		SourceName:  i.SourceName,
		SourceId:    i.SourceId,
	}
}
