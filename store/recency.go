package store

import (
	"fmt"
	"time"

	"github.com/lvoz2/weblib/model"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecencyKind selects which time-ordered relation a record lands in.
type RecencyKind string

const (
	KindViewed   RecencyKind = "viewed"
	KindSearched RecencyKind = "searched"
)

// RecentEntriesCap is how many entries per (user, kind) are considered live.
// Older entries are pruned on write.
const RecentEntriesCap = 20

// RecencyLedger keeps the per-user, capped, timestamp-ordered record of
// recently viewed and recently searched items. A repeat (user, item) event
// refreshes the existing entry's timestamp instead of duplicating it.
type RecencyLedger struct {
	db        *gorm.DB
	nowMicros func() int64
}

func NewRecencyLedger(db *gorm.DB) *RecencyLedger {
	return &RecencyLedger{
		db:        db,
		nowMicros: func() int64 { return time.Now().UTC().UnixMicro() },
	}
}

// Record upserts the (viewer, item) entry under kind and prunes the viewer's
// entry set to the newest RecentEntriesCap. Unknown viewer or item ids are a
// validation error.
func (l *RecencyLedger) Record(kind RecencyKind, viewerID, itemID int64) error {
	return l.db.Transaction(func(tx *gorm.DB) error {
		if err := ensureUserExists(tx, viewerID); err != nil {
			return err
		}
		if err := ensureItemExists(tx, itemID); err != nil {
			return err
		}
		return recordRecency(tx, kind, viewerID, itemID, l.nowMicros())
	})
}

// List returns the viewer's recent items for kind, at most RecentEntriesCap,
// newest first, each carrying the viewer's current saved flag. An unknown or
// absent viewer yields an empty list, not an error.
func (l *RecencyLedger) List(kind RecencyKind, viewerID int64) ([]model.ItemView, error) {
	table, _, _, err := recencyRelation(kind, viewerID, 0, 0)
	if err != nil {
		return nil, err
	}

	var items []model.Item
	if err := l.db.Model(&model.Item{}).
		Joins(fmt.Sprintf("JOIN %s r ON r.item_id = items.id", table)).
		Where("r.user_id = ?", viewerID).
		Order("r.created_at DESC, r.item_id DESC").
		Limit(RecentEntriesCap).
		Find(&items).Error; err != nil {
		return nil, err
	}

	saved, err := savedItemIDs(l.db, viewerID)
	if err != nil {
		return nil, err
	}
	views := make([]model.ItemView, 0, len(items))
	for i := range items {
		views = append(views, items[i].View(saved[items[i].Id]))
	}
	return views, nil
}

// recordRecency performs the upsert and prune inside the caller's
// transaction. Kept separate from Record so item creation can compose it into
// its own transaction boundary.
func recordRecency(tx *gorm.DB, kind RecencyKind, userID, itemID, ts int64) error {
	table, row, blank, err := recencyRelation(kind, userID, itemID, ts)
	if err != nil {
		return err
	}

	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "item_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"created_at": ts}),
	}).Create(row).Error; err != nil {
		return err
	}

	// Prune everything that fell off the live window. Ties on created_at are
	// broken by item id for determinism.
	keep := tx.Session(&gorm.Session{NewDB: true}).
		Table(table).Select("item_id").
		Where("user_id = ?", userID).
		Order("created_at DESC, item_id DESC").
		Limit(RecentEntriesCap)
	return tx.
		Where("user_id = ? AND item_id NOT IN (?)", userID, keep).
		Delete(blank).Error
}

// recencyRelation maps a kind to its join table, a populated row value for
// the upsert, and a zero value for building further statements against the
// same table. An unrecognized kind is a programming error.
func recencyRelation(kind RecencyKind, userID, itemID, ts int64) (string, interface{}, interface{}, error) {
	switch kind {
	case KindViewed:
		return "user_item_views", &model.UserItemView{UserID: userID, ItemID: itemID, CreatedAt: ts}, &model.UserItemView{}, nil
	case KindSearched:
		return "user_item_searches", &model.UserItemSearch{UserID: userID, ItemID: itemID, CreatedAt: ts}, &model.UserItemSearch{}, nil
	default:
		return "", nil, nil, errors.Errorf("unknown recency kind %q", kind)
	}
}

// savedItemIDs returns the set of item ids the user currently has saved.
func savedItemIDs(tx *gorm.DB, userID int64) (map[int64]bool, error) {
	var rows []model.UserItemSave
	if err := tx.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, err
	}
	set := make(map[int64]bool, len(rows))
	for _, r := range rows {
		set[r.ItemID] = true
	}
	return set, nil
}
