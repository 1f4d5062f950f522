package diodb

import (
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Config{
		DBDirectory:          t.TempDir(),
		BackgroundTaskMinGap: time.Millisecond,
		NumWorkerThreads:     2,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenPutGetErase(t *testing.T) {
	db := openTestDB(t)

	db.Put([]byte("a"), []byte("foo"))

	val, err := db.Get([]byte("a"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(val) != "foo" {
		t.Fatalf("Get(a) = %q, want foo", val)
	}

	exists, err := db.Exists([]byte("a"))
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Fatalf("Exists(a) = false, want true")
	}

	db.Erase([]byte("a"))

	exists, err = db.Exists([]byte("a"))
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Fatalf("Exists(a) = true after erase, want false")
	}
}

func TestOpenRequiresDBDirectory(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Fatalf("Open with empty DBDirectory: want error")
	}
}
