package store

import (
	"encoding/json"

	"github.com/lvoz2/weblib/model"
	Logger "github.com/lvoz2/weblib/utils/log"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UserStore provisions and looks up authenticated principals.
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

// GetOrCreateUser finds the user identified by (platform, platformID) or
// creates one on first login. platformID is a key-value map since some
// platforms key users by more than one field; encoding/json renders it with
// sorted keys, so equal maps compare equal in the database. Finding more than
// one match is a consistency violation, never resolved by picking one.
func (s *UserStore) GetOrCreateUser(email, platform string, platformID map[string]string, name, username string) (*model.User, error) {
	if platform == "" || len(platformID) == 0 {
		return nil, errors.New("missing required login fields: platform and platform_id")
	}
	raw, err := json.Marshal(platformID)
	if err != nil {
		return nil, err
	}

	var user *model.User
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var users []model.User
		if err := tx.Where("login_platform = ? AND platform_id = ?", platform, string(raw)).
			Limit(2).Find(&users).Error; err != nil {
			return err
		}
		switch len(users) {
		case 0:
			u := model.User{
				Email:         email,
				Name:          name,
				Username:      username,
				LoginPlatform: platform,
				PlatformId:    datatypes.JSON(raw),
			}
			if err := tx.Create(&u).Error; err != nil {
				return err
			}
			user = &u
			return nil
		case 1:
			user = &users[0]
			return nil
		default:
			Logger.Log.Errorf("multiple users found for platform %q with identical platform_id", platform)
			return errors.Wrapf(ErrConsistency, "multiple users found for platform %q with identical platform_id", platform)
		}
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser is a point lookup by local id, nil when absent.
func (s *UserStore) GetUser(userID int64) (*model.User, error) {
	var user model.User
	res := s.db.Where("id = ?", userID).First(&user)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if res.Error != nil {
		return nil, res.Error
	}
	return &user, nil
}
