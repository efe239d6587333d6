package model

/*

UserItemSave is a "many-to-many" relation of user saving an item for later

UserID: user id
ItemID: item id
CreatedAt: microseconds since the UTC epoch when the item was saved

*/

type UserItemSave struct {
	UserID    int64 `gorm:"primaryKey"`
	ItemID    int64 `gorm:"primaryKey"`
	CreatedAt int64 `gorm:"autoCreateTime:micro"`
}

/*

UserItemView is a "many-to-many" relation of user recently viewing an item

The composite primary key makes a repeat view an update of CreatedAt rather
than a second row. Only the newest entries per user are kept, older rows are
pruned on write.

UserID: user id
ItemID: item id
CreatedAt: microseconds since the UTC epoch of the latest view

*/

type UserItemView struct {
	UserID    int64 `gorm:"primaryKey"`
	ItemID    int64 `gorm:"primaryKey"`
	CreatedAt int64 `gorm:"autoCreateTime:micro"`
}

/*

UserItemSearch is a "many-to-many" relation of an item recently coming back
in the user's search results. Same upsert and pruning semantics as
UserItemView.

UserID: user id
ItemID: item id
CreatedAt: microseconds since the UTC epoch of the latest search

*/

type UserItemSearch struct {
	UserID    int64 `gorm:"primaryKey"`
	ItemID    int64 `gorm:"primaryKey"`
	CreatedAt int64 `gorm:"autoCreateTime:micro"`
}
