package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/nvandessel/gkmerge/internal/experiment"
)

func testResult(id string, kind experiment.Kind, created time.Time) *experiment.Result {
	yes, no := true, false
	return &experiment.Result{
		ID:        id,
		Kind:      kind,
		CreatedAt: created,
		Duration:  1500 * time.Millisecond,
		Attributes: map[string]any{
			"gen":            "fast_erdos_renyi",
			"contagion_mode": "simultaneous",
		},
		Points: []experiment.Point{
			{X: 0, Runs: []experiment.RunData{{DF: 0.001, AF: 0.001, Z: 0, Steps: 0}}},
			{X: 0.005, Runs: []experiment.RunData{
				{DF: 0.9, AF: 0.85, Z: 4.9, Steps: 7, LargestDefaulted: &yes},
				{DF: 0.002, AF: 0.001, Z: 5.1, Steps: 1, LargestDefaulted: &no},
			}},
		},
	}
}

// storeFactories returns one constructor per ResultStore implementation.
func storeFactories(t *testing.T) map[string]func() ResultStore {
	t.Helper()
	return map[string]func() ResultStore{
		"memory": func() ResultStore { return NewInMemoryResultStore() },
		"sqlite": func() ResultStore {
			s, err := NewSQLiteResultStore(t.TempDir())
			if err != nil {
				t.Fatalf("NewSQLiteResultStore() error = %v", err)
			}
			return s
		},
	}
}

func TestResultStore_SaveGet(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			defer s.Close()
			ctx := context.Background()

			want := testResult("r1", experiment.KindContinuousMergers, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
			if err := s.Save(ctx, want); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			got, err := s.Get(ctx, "r1")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got.ID != want.ID || got.Kind != want.Kind || !got.CreatedAt.Equal(want.CreatedAt) {
				t.Errorf("Get() header = %+v", got)
			}
			if got.Duration != want.Duration {
				t.Errorf("Duration = %v, want %v", got.Duration, want.Duration)
			}
			if !reflect.DeepEqual(got.Points, want.Points) {
				t.Errorf("Points = %+v, want %+v", got.Points, want.Points)
			}
			if got.Attributes["contagion_mode"] != "simultaneous" {
				t.Errorf("Attributes = %v", got.Attributes)
			}

			if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestResultStore_SaveReplaces(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			defer s.Close()
			ctx := context.Background()

			res := testResult("r1", experiment.KindContagionWindow, time.Now().UTC())
			if err := s.Save(ctx, res); err != nil {
				t.Fatal(err)
			}
			res.Points = res.Points[:1]
			if err := s.Save(ctx, res); err != nil {
				t.Fatalf("Save(replace) error = %v", err)
			}
			got, err := s.Get(ctx, "r1")
			if err != nil {
				t.Fatal(err)
			}
			if len(got.Points) != 1 {
				t.Errorf("len(Points) = %d after replace, want 1", len(got.Points))
			}
		})
	}
}

func TestResultStore_ListDelete(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			defer s.Close()
			ctx := context.Background()

			base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			_ = s.Save(ctx, testResult("old", experiment.KindContagionWindow, base))
			_ = s.Save(ctx, testResult("new", experiment.KindContagionWindow, base.Add(time.Hour)))
			_ = s.Save(ctx, testResult("merge", experiment.KindContinuousMergers, base.Add(30*time.Minute)))

			all, err := s.List(ctx, Filter{})
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			var ids []string
			for _, sum := range all {
				ids = append(ids, sum.ID)
			}
			if !reflect.DeepEqual(ids, []string{"new", "merge", "old"}) {
				t.Errorf("List() order = %v", ids)
			}
			if all[0].Points != 2 || all[0].Runs != 3 {
				t.Errorf("summary counts = %d points, %d runs", all[0].Points, all[0].Runs)
			}

			windows, _ := s.List(ctx, Filter{Kind: experiment.KindContagionWindow, Limit: 1})
			if len(windows) != 1 || windows[0].ID != "new" {
				t.Errorf("List(filter) = %+v", windows)
			}

			if err := s.Delete(ctx, "old"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if err := s.Delete(ctx, "old"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Delete(twice) error = %v, want ErrNotFound", err)
			}
			if rest, _ := s.List(ctx, Filter{}); len(rest) != 2 {
				t.Errorf("List() after delete = %d results", len(rest))
			}
		})
	}
}

func TestResultStore_RequiresID(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			defer s.Close()
			if err := s.Save(context.Background(), &experiment.Result{}); err == nil {
				t.Error("Save() without ID should fail")
			}
		})
	}
}

func TestSQLiteResultStore_Reopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSQLiteResultStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(context.Background(), testResult("keep", experiment.KindContagionWindow, time.Now())); err != nil {
		t.Fatal(err)
	}
	s.Close()

	if _, err := os.Stat(filepath.Join(dir, "results.db")); err != nil {
		t.Fatalf("results.db not created: %v", err)
	}
	s, err = NewSQLiteResultStore(dir)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()
	if _, err := s.Get(context.Background(), "keep"); err != nil {
		t.Errorf("Get() after reopen error = %v", err)
	}
}

func TestInMemoryResultStore_ReturnsCopies(t *testing.T) {
	s := NewInMemoryResultStore()
	ctx := context.Background()
	res := testResult("r", experiment.KindContagionWindow, time.Now())
	_ = s.Save(ctx, res)
	res.Points[0].Runs[0].DF = 0.5

	got, _ := s.Get(ctx, "r")
	if got.Points[0].Runs[0].DF != 0.001 {
		t.Error("store shares run data with the caller")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	res := testResult("j1", experiment.KindContagionWindow, time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC))
	var buf bytes.Buffer
	if err := WriteJSON(&buf, res); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"data": [`)) {
		t.Errorf("document lacks data key:\n%s", buf.String())
	}
	got, err := ReadJSON(&buf)
	if err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if !reflect.DeepEqual(got.Points, res.Points) || !got.CreatedAt.Equal(res.CreatedAt) {
		t.Errorf("ReadJSON() = %+v", got)
	}
}

func TestWriteJSONFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	path, err := WriteJSONFile(dir, "window.json", testResult("f", experiment.KindContagionWindow, time.Now()))
	if err != nil {
		t.Fatalf("WriteJSONFile() error = %v", err)
	}
	if filepath.Base(path) != "window.json" {
		t.Errorf("path = %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("file not written: %v", err)
	}
}

func TestWriteJSONFile_RejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	res := testResult("f", experiment.KindContagionWindow, time.Now())
	for _, name := range []string{"../escape", "sub/x", ""} {
		if _, err := WriteJSONFile(dir, name, res); err == nil {
			t.Errorf("WriteJSONFile(%q) should fail", name)
		}
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "escape.json")); err == nil {
		t.Error("file written outside dir")
	}
}
