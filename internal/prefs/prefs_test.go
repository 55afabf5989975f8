package prefs

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chokewatch/internal/quiet"

	"github.com/fxamacker/cbor/v2"
)

func newOwner(t *testing.T) *Repository {
	t.Helper()
	r := New(Path(t.TempDir()), RoleOwner)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestPath(t *testing.T) {
	got := Path("/data")
	want := filepath.Join("/data", "pta_prefs.db")
	if got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
}

func TestOwnerPutGet(t *testing.T) {
	ctx := context.Background()
	r := newOwner(t)

	if _, ok := r.Get(ctx); ok {
		t.Fatal("fresh store should be unset")
	}

	want := quiet.Window{Start: 22, End: 7}
	if err := r.Put(ctx, want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := r.Get(ctx)
	if !ok {
		t.Fatal("Get after Put returned unset")
	}
	if got != want {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
}

func TestPutIsUpsert(t *testing.T) {
	ctx := context.Background()
	r := newOwner(t)

	if err := r.Put(ctx, quiet.Window{Start: 22, End: 7}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := r.Put(ctx, quiet.Window{Start: 9, End: 18}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := r.Get(ctx)
	if !ok || got != (quiet.Window{Start: 9, End: 18}) {
		t.Errorf("Get() = %+v, %v; want latest window", got, ok)
	}

	db, release, err := r.conn(ctx)
	if err != nil {
		t.Fatalf("conn: %v", err)
	}
	defer release()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM prefs").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("record count = %d, want 1", n)
	}
}

func TestGetIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r := newOwner(t)
	if err := r.Put(ctx, quiet.Window{Start: 0, End: 6}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	first, ok1 := r.Get(ctx)
	second, ok2 := r.Get(ctx)
	if first != second || ok1 != ok2 {
		t.Errorf("consecutive reads differ: %+v/%v vs %+v/%v", first, ok1, second, ok2)
	}
}

func TestPutRejectsInvalidHours(t *testing.T) {
	r := newOwner(t)
	err := r.Put(context.Background(), quiet.Window{Start: 24, End: 7})
	if !errors.Is(err, quiet.ErrInvalidHour) {
		t.Errorf("Put(24, 7) error = %v, want ErrInvalidHour", err)
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	r := newOwner(t)

	if err := r.Clear(ctx); err != nil {
		t.Fatalf("Clear on empty store: %v", err)
	}
	if err := r.Put(ctx, quiet.Window{Start: 22, End: 7}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := r.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok := r.Get(ctx); ok {
		t.Error("Get after Clear should be unset")
	}
}

func TestStatReportsUpdateTime(t *testing.T) {
	ctx := context.Background()
	stamp := time.Date(2026, 1, 15, 21, 0, 0, 0, time.UTC)
	r := New(Path(t.TempDir()), RoleOwner, WithClock(func() time.Time { return stamp }))
	defer r.Close()

	if err := r.Put(ctx, quiet.Window{Start: 22, End: 7}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	_, updated, ok := r.Stat(ctx)
	if !ok {
		t.Fatal("Stat returned unset")
	}
	if !updated.Equal(stamp) {
		t.Errorf("updated = %v, want %v", updated, stamp)
	}
}

func TestReaderMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := Path(filepath.Join(dir, "nested"))
	r := New(path, RoleReadOnly)

	if _, ok := r.Get(context.Background()); ok {
		t.Fatal("reader on missing file should be unset")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("reader created %s (stat err = %v)", path, err)
	}
	if _, err := os.Stat(filepath.Dir(path)); !os.IsNotExist(err) {
		t.Errorf("reader created directory %s", filepath.Dir(path))
	}
}

func TestReaderEmptyFile(t *testing.T) {
	path := Path(t.TempDir())
	if err := os.WriteFile(path, nil, 0600); err != nil {
		t.Fatal(err)
	}

	r := New(path, RoleReadOnly)
	if _, ok := r.Get(context.Background()); ok {
		t.Fatal("reader on empty file should be unset")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("reader created %d schema objects, want 0", n)
	}
}

func TestReaderSeesOwnerWrites(t *testing.T) {
	ctx := context.Background()
	path := Path(t.TempDir())
	reader := New(path, RoleReadOnly)

	if _, ok := reader.Get(ctx); ok {
		t.Fatal("reader should start unset")
	}

	owner := New(path, RoleOwner)
	defer owner.Close()
	if err := owner.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, ok := reader.Get(ctx); ok {
		t.Fatal("initialized but empty store should be unset")
	}

	want := quiet.Window{Start: 23, End: 6}
	if err := owner.Put(ctx, want); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok := reader.Get(ctx)
	if !ok || got != want {
		t.Errorf("reader Get() = %+v, %v; want %+v", got, ok, want)
	}
}

func TestReaderRefusesWrites(t *testing.T) {
	ctx := context.Background()
	r := New(Path(t.TempDir()), RoleReadOnly)

	if err := r.Put(ctx, quiet.Window{Start: 1, End: 2}); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Put error = %v, want ErrReadOnly", err)
	}
	if err := r.Clear(ctx); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Clear error = %v, want ErrReadOnly", err)
	}
	if err := r.Initialize(ctx); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Initialize error = %v, want ErrReadOnly", err)
	}
}

func TestReaderTableMissing(t *testing.T) {
	path := Path(t.TempDir())
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("PRAGMA user_version = 1"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	r := New(path, RoleReadOnly)
	if _, ok := r.Get(context.Background()); ok {
		t.Error("store without table should be unset")
	}
}

func TestPartialRecordIsUnset(t *testing.T) {
	ctx := context.Background()
	r := newOwner(t)
	if err := r.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	start := 22
	value, err := cbor.Marshal(record{Start: &start})
	if err != nil {
		t.Fatal(err)
	}
	writeRaw(t, r, value)

	if w, ok := r.Get(ctx); ok {
		t.Errorf("partial record read as %+v, want unset", w)
	}
}

func TestOutOfRangeRecordIsUnset(t *testing.T) {
	ctx := context.Background()
	r := newOwner(t)
	if err := r.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	start, end := 30, 7
	value, err := cbor.Marshal(record{Start: &start, End: &end})
	if err != nil {
		t.Fatal(err)
	}
	writeRaw(t, r, value)

	if _, ok := r.Get(ctx); ok {
		t.Error("out-of-range record should be unset")
	}
}

func TestGarbageRecordIsUnset(t *testing.T) {
	ctx := context.Background()
	r := newOwner(t)
	if err := r.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	writeRaw(t, r, []byte("not cbor at all"))

	if _, ok := r.Get(ctx); ok {
		t.Error("undecodable record should be unset")
	}
}

func TestNewerSchemaIsUnset(t *testing.T) {
	ctx := context.Background()
	path := Path(t.TempDir())
	owner := New(path, RoleOwner)
	if err := owner.Put(ctx, quiet.Window{Start: 22, End: 7}); err != nil {
		t.Fatal(err)
	}
	owner.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	reader := New(path, RoleReadOnly)
	if _, ok := reader.Get(ctx); ok {
		t.Error("reader should not trust a newer schema")
	}

	owner = New(path, RoleOwner)
	defer owner.Close()
	if err := owner.Initialize(ctx); !errors.Is(err, ErrSchemaTooNew) {
		t.Errorf("Initialize error = %v, want ErrSchemaTooNew", err)
	}
}

func TestGetHonorsCanceledContext(t *testing.T) {
	r := newOwner(t)
	if err := r.Put(context.Background(), quiet.Window{Start: 22, End: 7}); err != nil {
		t.Fatal(err)
	}

	reader := New(r.Path(), RoleReadOnly)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := reader.Get(ctx); ok {
		t.Error("canceled lookup should read as unset")
	}
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	r := newOwner(t)
	want := quiet.Window{Start: 21, End: 5}
	if err := r.Put(ctx, want); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(t.TempDir(), "copy.db")
	if err := r.Snapshot(ctx, dst); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	got, ok := New(dst, RoleReadOnly).Get(ctx)
	if !ok || got != want {
		t.Errorf("snapshot Get() = %+v, %v; want %+v", got, ok, want)
	}
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	r := newOwner(t)
	if err := r.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if err := Check(ctx, r.Path()); err != nil {
		t.Errorf("empty store: %v", err)
	}

	if err := r.Put(ctx, quiet.Window{Start: 22, End: 7}); err != nil {
		t.Fatal(err)
	}
	if err := Check(ctx, r.Path()); err != nil {
		t.Errorf("store with record: %v", err)
	}

	writeRaw(t, r, []byte("not cbor at all"))
	if err := Check(ctx, r.Path()); err == nil {
		t.Error("undecodable record should fail the check")
	}

	junk := filepath.Join(t.TempDir(), "junk.db")
	if err := os.WriteFile(junk, []byte("this is not a database file, not even close"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := Check(ctx, junk); err == nil {
		t.Error("non-database file should fail the check")
	}
}

func TestRoleString(t *testing.T) {
	if RoleOwner.String() != "owner" || RoleReadOnly.String() != "read-only" {
		t.Errorf("unexpected role names %q %q", RoleOwner, RoleReadOnly)
	}
}

func TestReadOnlyDSN(t *testing.T) {
	got := readOnlyDSN("/tmp/a?b#c/pta_prefs.db")
	want := "file:/tmp/a%3fb%23c/pta_prefs.db?mode=ro"
	if got != want {
		t.Errorf("readOnlyDSN() = %q, want %q", got, want)
	}
}

func writeRaw(t *testing.T, r *Repository, value []byte) {
	t.Helper()
	db, release, err := r.conn(context.Background())
	if err != nil {
		t.Fatalf("conn: %v", err)
	}
	defer release()
	_, err = db.Exec(
		"INSERT INTO prefs (key, value, updated_at) VALUES (?, ?, ?) "+
			"ON CONFLICT(key) DO UPDATE SET value=excluded.value",
		QuietHoursKey, value, time.Now().UnixMilli())
	if err != nil {
		t.Fatalf("write raw record: %v", err)
	}
}
