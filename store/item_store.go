package store

import (
	"time"

	"github.com/lvoz2/weblib/model"
	"github.com/lvoz2/weblib/utils"
	Logger "github.com/lvoz2/weblib/utils/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ItemStore is the dedup and upsert authority for normalized items. At most
// one item row exists per distinct (source_name, source_id) pair.
type ItemStore struct {
	db        *gorm.DB
	nowMicros func() int64
}

func NewItemStore(db *gorm.DB) *ItemStore {
	return &ItemStore{
		db:        db,
		nowMicros: func() int64 { return time.Now().UTC().UnixMicro() },
	}
}

// GetItem is a point lookup by local id. The saved flag is relative to
// viewerID, false for anonymous or unknown viewers. Returns nil when no item
// has this id.
func (s *ItemStore) GetItem(itemID int64, viewerID *int64) (*model.ItemView, error) {
	var item model.Item
	res := s.db.Where("id = ?", itemID).First(&item)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if res.Error != nil {
		return nil, res.Error
	}

	saved, err := isSaved(s.db, item.Id, viewerID)
	if err != nil {
		return nil, err
	}
	view := item.View(saved)
	return &view, nil
}

// GetItemBySource is the dedup lookup by provenance. Returns nil when no item
// matches. When recordAsSearched is set and a viewer is present, a hit also
// refreshes the viewer's "searched" recency entry in the same transaction, so
// cached results participate in recency ordering like fresh ones.
func (s *ItemStore) GetItemBySource(sourceName, sourceID string, viewerID *int64, recordAsSearched bool) (*model.ItemView, error) {
	var view *model.ItemView
	err := s.db.Transaction(func(tx *gorm.DB) error {
		item, err := findBySource(tx, sourceName, sourceID)
		if err != nil || item == nil {
			return err
		}
		if recordAsSearched && viewerID != nil {
			if err := recordRecency(tx, KindSearched, *viewerID, item.Id, s.nowMicros()); err != nil {
				return err
			}
		}
		saved, err := isSaved(tx, item.Id, viewerID)
		if err != nil {
			return err
		}
		v := item.View(saved)
		view = &v
		return nil
	})
	return view, err
}

// CreateItem is an idempotent create-or-find. The draft's provenance pair is
// re-checked inside the transaction and an existing row wins over the draft;
// the unique index on (source_name, source_id) makes concurrent creators
// converge on a single row, the loser falls back to find. The recency side
// effect commits together with the create or not at all.
func (s *ItemStore) CreateItem(draft model.Item, viewerID *int64, recordAsSearched bool) (*model.ItemView, error) {
	draft.ThumbHeight = utils.ClampInt(draft.ThumbHeight, 0, model.MaxThumbHeight)

	var view *model.ItemView
	err := s.db.Transaction(func(tx *gorm.DB) error {
		item, err := findBySource(tx, draft.SourceName, draft.SourceId)
		if err != nil {
			return err
		}
		if item == nil {
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "source_name"}, {Name: "source_id"}},
				DoNothing: true,
			}).Create(&draft)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// Lost a concurrent race on the unique index, fall back to find.
				item, err = findBySource(tx, draft.SourceName, draft.SourceId)
				if err != nil {
					return err
				}
				if item == nil {
					return errors.New("create-or-find could not locate item after conflict")
				}
			} else {
				item = &draft
			}
		}
		if recordAsSearched && viewerID != nil {
			if err := recordRecency(tx, KindSearched, *viewerID, item.Id, s.nowMicros()); err != nil {
				return err
			}
		}
		saved, err := isSaved(tx, item.Id, viewerID)
		if err != nil {
			return err
		}
		v := item.View(saved)
		view = &v
		return nil
	})
	return view, err
}

// SaveItem records the viewer saving an item. Saving an already-saved item is
// a no-op, not a duplicate.
func (s *ItemStore) SaveItem(itemID, viewerID int64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := ensureUserExists(tx, viewerID); err != nil {
			return err
		}
		if err := ensureItemExists(tx, itemID); err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "item_id"}},
			DoNothing: true,
		}).Create(&model.UserItemSave{UserID: viewerID, ItemID: itemID, CreatedAt: s.nowMicros()}).Error
	})
}

// UnsaveItem removes the saved relation. Unsaving an item that was never
// saved succeeds with no state change.
func (s *ItemStore) UnsaveItem(itemID, viewerID int64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := ensureUserExists(tx, viewerID); err != nil {
			return err
		}
		if err := ensureItemExists(tx, itemID); err != nil {
			return err
		}
		return tx.Where("user_id = ? AND item_id = ?", viewerID, itemID).
			Delete(&model.UserItemSave{}).Error
	})
}

// SavedItems lists the viewer's saved items, newest save first.
func (s *ItemStore) SavedItems(viewerID int64) ([]model.ItemView, error) {
	if err := ensureUserExists(s.db, viewerID); err != nil {
		return nil, err
	}

	var items []model.Item
	err := s.db.Model(&model.Item{}).
		Joins("JOIN user_item_saves s ON s.item_id = items.id").
		Where("s.user_id = ?", viewerID).
		Order("s.created_at DESC, s.item_id DESC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	views := make([]model.ItemView, 0, len(items))
	for i := range items {
		views = append(views, items[i].View(true))
	}
	return views, nil
}

// findBySource returns the single item matching the provenance pair, nil when
// absent, and ErrConsistency when the uniqueness invariant is already broken.
func findBySource(tx *gorm.DB, sourceName, sourceID string) (*model.Item, error) {
	var items []model.Item
	if err := tx.Where("source_name = ? AND source_id = ?", sourceName, sourceID).
		Limit(2).Find(&items).Error; err != nil {
		return nil, err
	}
	switch len(items) {
	case 0:
		return nil, nil
	case 1:
		return &items[0], nil
	default:
		Logger.Log.Errorf("multiple items found for source %q id %q", sourceName, sourceID)
		return nil, errors.Wrapf(ErrConsistency, "multiple items found for source %q id %q", sourceName, sourceID)
	}
}

// isSaved reports whether the viewer saved the item. Anonymous viewers never
// have saved items.
func isSaved(tx *gorm.DB, itemID int64, viewerID *int64) (bool, error) {
	if viewerID == nil {
		return false, nil
	}
	var count int64
	err := tx.Model(&model.UserItemSave{}).
		Where("user_id = ? AND item_id = ?", *viewerID, itemID).
		Count(&count).Error
	return count > 0, err
}

func ensureUserExists(tx *gorm.DB, userID int64) error {
	var count int64
	if err := tx.Model(&model.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return errors.Errorf("User with id \"%d\" does not exist", userID)
	}
	return nil
}

func ensureItemExists(tx *gorm.DB, itemID int64) error {
	var count int64
	if err := tx.Model(&model.Item{}).Where("id = ?", itemID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return errors.Errorf("Item with id \"%d\" does not exist", itemID)
	}
	return nil
}
