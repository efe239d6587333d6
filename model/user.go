package model

import (
	"time"

	"gorm.io/datatypes"
)

/*

User is an authenticated principal, provisioned on first login

Id: primary key
CreatedAt: time when entity is created

Email: contact email reported by the login platform
Name: display name
Username: handle on the login platform
LoginPlatform: which platform authenticated the user, for example "google"
PlatformId: the platform's native identity for the user. Kept as a JSON
	key-value map because some platforms key users by more than one field.

SavedItems: items the user saved for later, "many-to-many" relation
ViewedItems: items the user recently viewed, "many-to-many" relation
SearchedItems: items recently returned to the user by a search, "many-to-many" relation

(LoginPlatform, PlatformId) uniquely identifies a user. Finding two users
with the same pair is a data-integrity bug, never resolved silently.

*/

type User struct {
	Id            int64 `gorm:"primaryKey;autoIncrement"`
	CreatedAt     time.Time
	Email         string `gorm:"size:254"`
	Name          string `gorm:"size:254"`
	Username      string `gorm:"size:254"`
	LoginPlatform string `gorm:"size:16"`
	PlatformId    datatypes.JSON
	SavedItems    []*Item `json:"saved_items" gorm:"many2many:user_item_saves;"`
	ViewedItems   []*Item `json:"viewed_items" gorm:"many2many:user_item_views;"`
	SearchedItems []*Item `json:"searched_items" gorm:"many2many:user_item_searches;"`
}
