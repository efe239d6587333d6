package utils

import (
	"testing"

	"github.com/lvoz2/weblib/model"
	"github.com/stretchr/testify/require"
)

func TestTempDBEnforcesSourceUniqueness(t *testing.T) {
	db := CreateTempDB(t)

	first := model.Item{Title: "Australia", SourceName: "Wikipedia", SourceId: "4689264"}
	require.NoError(t, db.Create(&first).Error)

	dupe := model.Item{Title: "Australia again", SourceName: "Wikipedia", SourceId: "4689264"}
	require.Error(t, db.Create(&dupe).Error)

	// Same upstream id under a different source is a different item.
	other := model.Item{Title: "Some book", SourceName: "Google Books", SourceId: "4689264"}
	require.NoError(t, db.Create(&other).Error)
}

func TestTempDBsAreIsolated(t *testing.T) {
	first := CreateTempDB(t)
	second := CreateTempDB(t)

	require.NoError(t, first.Create(&model.Item{Title: "only here", SourceName: "Wikipedia", SourceId: "1"}).Error)

	var count int64
	require.NoError(t, second.Model(&model.Item{}).Count(&count).Error)
	require.Equal(t, int64(0), count)
}
