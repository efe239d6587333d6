// database_utils should be the canonical place to put shared DB utils.
// It should not include:
// 1. Any util that doesn't manipulate DB
// 2. Any util that contains business logic
package utils

import (
	"fmt"
	"os"
	"testing"

	"github.com/lvoz2/weblib/model"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	TestDBNameCharLength = 8

	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// GormTransaction is the callback function used during db.Transaction in Gorm.
type GormTransaction func(tx *gorm.DB) error

// GetDBConnection gets a connection to the database specified by env.
// DB_DIALECT selects the driver: "postgres" builds a DSN from the DB_* vars,
// "sqlite" (the default, matching local development) opens the file in
// DB_PATH or server.db.
func GetDBConnection() (*gorm.DB, error) {
	switch os.Getenv("DB_DIALECT") {
	case DialectPostgres:
		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
			os.Getenv("DB_HOST"), os.Getenv("DB_USER"), os.Getenv("DB_PASS"),
			os.Getenv("DB_NAME"), os.Getenv("DB_PORT"))
		return getDB(postgres.Open(dsn))
	default:
		path := os.Getenv("DB_PATH")
		if path == "" {
			path = "server.db"
		}
		return getDB(sqlite.Open(path))
	}
}

func getDB(dialector gorm.Dialector) (db *gorm.DB, err error) {
	return gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

// DatabaseSetupAndMigration registers the explicit join tables and migrates
// the schema. Join tables must be set up before AutoMigrate, otherwise gorm
// creates its own implicit ones without the timestamp column.
func DatabaseSetupAndMigration(db *gorm.DB) {
	var err error

	err = db.SetupJoinTable(&model.User{}, "SavedItems", &model.UserItemSave{})
	if err != nil {
		panic("failed to set up many2many relationship between Users and saved Items")
	}

	err = db.SetupJoinTable(&model.User{}, "ViewedItems", &model.UserItemView{})
	if err != nil {
		panic("failed to set up many2many relationship between Users and viewed Items")
	}

	err = db.SetupJoinTable(&model.User{}, "SearchedItems", &model.UserItemSearch{})
	if err != nil {
		panic("failed to set up many2many relationship between Users and searched Items")
	}

	err = db.SetupJoinTable(&model.Item{}, "SavedByUsers", &model.UserItemSave{})
	if err != nil {
		panic("failed to set up many2many relationship between Items and Users")
	}

	if err = db.AutoMigrate(&model.Item{}, &model.User{}); err != nil {
		panic("failed to migrate database schema: " + err.Error())
	}
}

// CreateTempDB creates a private in-memory sqlite database for one test case,
// migrated and ready to use. The shared cache plus a unique name keeps every
// gorm connection of the test on the same database while isolating tests
// from each other. Cleanup closes the pool, which drops the database.
func CreateTempDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:testonlydb_%s?mode=memory&cache=shared", RandomAlphabetString(TestDBNameCharLength))
	db, err := getDB(sqlite.Open(dsn))
	if err != nil {
		t.Fatalf("cannot open temp DB: %v", err)
	}
	DatabaseSetupAndMigration(db)

	t.Cleanup(func() {
		conn, _ := db.DB()
		conn.Close()
	})

	return db
}
