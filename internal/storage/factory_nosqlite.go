//go:build !sqlite

package storage

import "fmt"

const sqliteAvailable = false

func newSQLiteSeries(_, _ string, _ int) (Series, error) {
	return nil, fmt.Errorf("sqlite backend unavailable in this build; rebuild with -tags sqlite")
}

func openSQLiteReader(_, _ string) (RangeReader, error) {
	return nil, fmt.Errorf("sqlite backend unavailable in this build; rebuild with -tags sqlite")
}
