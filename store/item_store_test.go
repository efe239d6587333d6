package store

import (
	"strconv"
	"testing"

	"github.com/lvoz2/weblib/model"
	"github.com/lvoz2/weblib/utils"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func createTestUser(t *testing.T, db *gorm.DB, platformID string) *model.User {
	t.Helper()
	user := model.User{
		Email:         "test@example.com",
		Name:          "Test User",
		Username:      "testuser",
		LoginPlatform: "google",
		PlatformId:    datatypes.JSON([]byte(`{"id":"` + platformID + `"}`)),
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func testDraft(sourceID string) model.Item {
	return model.Item{
		Title:       "Australia",
		Description: "Australia, officially the Commonwealth of Australia, is a country.",
		ThumbUrl:    "https://upload.wikimedia.org/australia.svg",
		ThumbMime:   "image/svg+xml",
		ThumbHeight: 100,
		SourceUrl:   "https://en.wikipedia.org/wiki/Australia",
		SourceName:  "Wikipedia",
		SourceId:    sourceID,
	}
}

func TestCreateItemIsIdempotent(t *testing.T) {
	db := utils.CreateTempDB(t)
	s := NewItemStore(db)

	first, err := s.CreateItem(testDraft("4689264"), nil, false)
	require.NoError(t, err)
	require.Equal(t, "Australia", first.Title)

	// A second create with the same provenance but a different payload must
	// return the first row untouched.
	second := testDraft("4689264")
	second.Title = "Somewhere Else"
	second.Description = "different payload"
	got, err := s.CreateItem(second, nil, false)
	require.NoError(t, err)
	require.Equal(t, first.Id, got.Id)
	require.Equal(t, "Australia", got.Title)

	var count int64
	require.NoError(t, db.Model(&model.Item{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestCreateItemClampsThumbHeight(t *testing.T) {
	db := utils.CreateTempDB(t)
	s := NewItemStore(db)

	tall := testDraft("1")
	tall.ThumbHeight = 9999
	got, err := s.CreateItem(tall, nil, false)
	require.NoError(t, err)
	require.Equal(t, model.MaxThumbHeight, got.ThumbHeight)

	bare := testDraft("2")
	bare.ThumbUrl = ""
	bare.ThumbMime = ""
	bare.ThumbHeight = -1
	got, err = s.CreateItem(bare, nil, false)
	require.NoError(t, err)
	require.Equal(t, 0, got.ThumbHeight)
	require.Equal(t, "", got.ThumbUrl)
	require.Equal(t, "", got.ThumbMime)
}

func TestGetItemBySource(t *testing.T) {
	db := utils.CreateTempDB(t)
	s := NewItemStore(db)

	got, err := s.GetItemBySource("Wikipedia", "4689264", nil, false)
	require.NoError(t, err)
	require.Nil(t, got)

	created, err := s.CreateItem(testDraft("4689264"), nil, false)
	require.NoError(t, err)

	got, err = s.GetItemBySource("Wikipedia", "4689264", nil, false)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, created.Id, got.Id)

	// Same source id under another source name is a different object.
	got, err = s.GetItemBySource("Google Books", "4689264", nil, false)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestGetItemBySourceRecordsSearch(t *testing.T) {
	db := utils.CreateTempDB(t)
	s := NewItemStore(db)
	ledger := NewRecencyLedger(db)
	user := createTestUser(t, db, "1")

	created, err := s.CreateItem(testDraft("4689264"), nil, false)
	require.NoError(t, err)
	require.NotNil(t, created)

	_, err = s.GetItemBySource("Wikipedia", "4689264", &user.Id, true)
	require.NoError(t, err)

	recent, err := ledger.List(KindSearched, user.Id)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, created.Id, recent[0].Id)
}

func TestGetItemBySourceConsistencyViolation(t *testing.T) {
	db := utils.CreateTempDB(t)
	s := NewItemStore(db)

	// Simulate an already-broken invariant: drop the unique index and insert
	// two rows with the same provenance pair.
	require.NoError(t, db.Exec("DROP INDEX idx_items_source_name_source_id").Error)
	a, b := testDraft("4689264"), testDraft("4689264")
	require.NoError(t, db.Create(&a).Error)
	require.NoError(t, db.Create(&b).Error)

	_, err := s.GetItemBySource("Wikipedia", "4689264", nil, false)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrConsistency))
}

func TestGetItem(t *testing.T) {
	db := utils.CreateTempDB(t)
	s := NewItemStore(db)
	user := createTestUser(t, db, "1")

	got, err := s.GetItem(12345, nil)
	require.NoError(t, err)
	require.Nil(t, got)

	created, err := s.CreateItem(testDraft("4689264"), nil, false)
	require.NoError(t, err)

	id := mustItemID(t, created)
	got, err = s.GetItem(id, &user.Id)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.False(t, got.Saved)

	require.NoError(t, s.SaveItem(id, user.Id))
	got, err = s.GetItem(id, &user.Id)
	require.NoError(t, err)
	require.True(t, got.Saved)
}

func TestSaveUnsaveIdempotent(t *testing.T) {
	db := utils.CreateTempDB(t)
	s := NewItemStore(db)
	user := createTestUser(t, db, "1")

	created, err := s.CreateItem(testDraft("4689264"), nil, false)
	require.NoError(t, err)
	id := mustItemID(t, created)

	// Unsaving an item never saved is success with no state change.
	require.NoError(t, s.UnsaveItem(id, user.Id))

	require.NoError(t, s.SaveItem(id, user.Id))
	require.NoError(t, s.SaveItem(id, user.Id))

	var count int64
	require.NoError(t, db.Model(&model.UserItemSave{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	require.NoError(t, s.UnsaveItem(id, user.Id))
	require.NoError(t, db.Model(&model.UserItemSave{}).Count(&count).Error)
	require.Equal(t, int64(0), count)
}

func TestSaveUnknownIDs(t *testing.T) {
	db := utils.CreateTempDB(t)
	s := NewItemStore(db)
	user := createTestUser(t, db, "1")

	err := s.SaveItem(999, user.Id)
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not exist")

	created, err := s.CreateItem(testDraft("4689264"), nil, false)
	require.NoError(t, err)
	err = s.SaveItem(mustItemID(t, created), 999)
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not exist")
}

func TestSavedItemsNewestFirst(t *testing.T) {
	db := utils.CreateTempDB(t)
	s := NewItemStore(db)
	user := createTestUser(t, db, "1")

	ts := int64(1_000_000)
	s.nowMicros = func() int64 { ts++; return ts }

	first, err := s.CreateItem(testDraft("1"), nil, false)
	require.NoError(t, err)
	second, err := s.CreateItem(testDraft("2"), nil, false)
	require.NoError(t, err)

	require.NoError(t, s.SaveItem(mustItemID(t, first), user.Id))
	require.NoError(t, s.SaveItem(mustItemID(t, second), user.Id))

	saved, err := s.SavedItems(user.Id)
	require.NoError(t, err)
	require.Len(t, saved, 2)
	require.Equal(t, second.Id, saved[0].Id)
	require.Equal(t, first.Id, saved[1].Id)
	require.True(t, saved[0].Saved)
	require.True(t, saved[1].Saved)
}

func mustItemID(t *testing.T, view *model.ItemView) int64 {
	t.Helper()
	require.NotNil(t, view)
	id, err := strconv.ParseInt(view.Id, 10, 64)
	require.NoError(t, err)
	return id
}
