//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
)

func TestSQLiteSeriesRoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "lpu.db")

	s, err := NewSeries("sqlite", dbPath, "unit_gpot", 2)
	if err != nil {
		t.Fatalf("new series: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	for tick := int64(0); tick < 3; tick++ {
		if err := s.Append(ctx, tick, []float64{float64(tick), -float64(tick)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	r, err := OpenReader("sqlite", dbPath, "unit_gpot")
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	t.Cleanup(func() {
		_ = CloseIfSupported(r)
	})
	n, err := r.Count(ctx)
	if err != nil || n != 3 {
		t.Fatalf("count: got=%d err=%v", n, err)
	}
	rows, err := r.Range(ctx, 1, 10)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if !reflect.DeepEqual(rows, [][]float64{{1, -1}, {2, -2}}) {
		t.Fatalf("unexpected rows: %v", rows)
	}
}
