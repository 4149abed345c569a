package storage

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// newTestDB opens a private shared-cache in-memory SQLite database with foreign keys on
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", name)

	db, err := OpenDatabase("sqlite", dsn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { CloseDatabase(db) })
	return db
}

func strPtr(s string) *string { return &s }
