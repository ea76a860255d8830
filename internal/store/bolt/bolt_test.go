package bolt

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"lumen/internal/store"
)

const testNS = "testns"

func tempStore(t *testing.T) *Store {
	t.Helper()
	s := Open(filepath.Join(t.TempDir(), "settings.db"), 64)
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInitIdempotent(t *testing.T) {
	s := tempStore(t)
	if err := s.Init(); err != nil {
		t.Fatalf("second Init should be a no-op: %v", err)
	}
	if !s.Ready() {
		t.Fatal("store should be ready after Init")
	}
}

func TestNotInitialized(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "settings.db"), 64)
	if s.Ready() {
		t.Fatal("store should not be ready before Init")
	}
	if err := s.SaveBlob(testNS, "k", []byte{1}); !errors.Is(err, store.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if _, err := s.LoadBlob(testNS, "k", -1); !errors.Is(err, store.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if err := s.EraseKey(testNS, "k"); !errors.Is(err, store.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if v := s.LoadUint8(testNS, "k", 42); v != 42 {
		t.Fatalf("scalar load on unready store should return default, got %d", v)
	}
}

func TestInitRecreatesCorruptPartition(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.db")
	// Not a bbolt file: no valid meta page.
	if err := os.WriteFile(path, []byte("garbage partition contents"), 0600); err != nil {
		t.Fatal(err)
	}

	s := Open(path, 64)
	if err := s.Init(); err != nil {
		t.Fatalf("Init should recover a corrupt partition: %v", err)
	}
	defer s.Close()

	if err := s.SaveBlob(testNS, "k", []byte{1, 2, 3}); err != nil {
		t.Fatalf("save after recovery: %v", err)
	}
	got, err := s.LoadBlob(testNS, "k", 3)
	if err != nil || len(got) != 3 {
		t.Fatalf("load after recovery: %v %v", got, err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := tempStore(t)
	data := []byte{0xde, 0xad, 0xbe, 0xef}
	if err := s.SaveBlob(testNS, "blob", data); err != nil {
		t.Fatal(err)
	}
	got, err := s.LoadBlob(testNS, "blob", len(data))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(data) {
		t.Fatalf("round trip mismatch: %v", got)
	}
}

func TestLoadNotFound(t *testing.T) {
	s := tempStore(t)
	if _, err := s.LoadBlob(testNS, "missing", -1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadSizeMismatch(t *testing.T) {
	s := tempStore(t)
	if err := s.SaveBlob(testNS, "k", []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadBlob(testNS, "k", 5); !errors.Is(err, store.ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch, got %v", err)
	}
	// expectedSize <= 0 skips the check.
	if _, err := s.LoadBlob(testNS, "k", -1); err != nil {
		t.Fatalf("unchecked load: %v", err)
	}
}

func TestBlobSize(t *testing.T) {
	s := tempStore(t)
	if _, err := s.BlobSize(testNS, "k"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.SaveBlob(testNS, "k", make([]byte, 17)); err != nil {
		t.Fatal(err)
	}
	n, err := s.BlobSize(testNS, "k")
	if err != nil || n != 17 {
		t.Fatalf("BlobSize: got %d, %v", n, err)
	}
}

func TestOverwrite(t *testing.T) {
	s := tempStore(t)
	if err := s.SaveBlob(testNS, "k", []byte("first")); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveBlob(testNS, "k", []byte("second")); err != nil {
		t.Fatal(err)
	}
	got, err := s.LoadBlob(testNS, "k", -1)
	if err != nil || string(got) != "second" {
		t.Fatalf("expected full overwrite, got %q, %v", got, err)
	}
}

func TestEraseKey(t *testing.T) {
	s := tempStore(t)
	if err := s.SaveBlob(testNS, "k", []byte{1}); err != nil {
		t.Fatal(err)
	}
	if err := s.EraseKey(testNS, "k"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadBlob(testNS, "k", -1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after erase, got %v", err)
	}
	// Erasing an absent key reports NotFound; callers treat it as success.
	if err := s.EraseKey(testNS, "k"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEraseAll(t *testing.T) {
	s := tempStore(t)
	for _, k := range []string{"a", "b", "c"} {
		if err := s.SaveBlob(testNS, k, []byte(k)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SaveBlob("otherns", "x", []byte{1}); err != nil {
		t.Fatal(err)
	}
	if err := s.EraseAll(testNS); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadBlob(testNS, "a", -1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("namespace should be empty, got %v", err)
	}
	if _, err := s.LoadBlob("otherns", "x", -1); err != nil {
		t.Fatalf("other namespaces must be untouched: %v", err)
	}
	// Absent namespace is fine.
	if err := s.EraseAll("neverused"); err != nil {
		t.Fatal(err)
	}
}

func TestInvalidNames(t *testing.T) {
	s := tempStore(t)
	cases := []struct{ ns, key string }{
		{"", "k"},
		{testNS, ""},
		{"way_too_long_namespace", "k"},
		{testNS, "way_too_long_key_name"},
		{"has space", "k"},
		{testNS, "non\x01printable"},
	}
	for _, c := range cases {
		if err := s.SaveBlob(c.ns, c.key, []byte{1}); !errors.Is(err, store.ErrInvalidKey) {
			t.Errorf("SaveBlob(%q,%q): expected ErrInvalidKey, got %v", c.ns, c.key, err)
		}
		if _, err := s.LoadBlob(c.ns, c.key, -1); !errors.Is(err, store.ErrInvalidKey) {
			t.Errorf("LoadBlob(%q,%q): expected ErrInvalidKey, got %v", c.ns, c.key, err)
		}
	}
	// 15 chars is exactly at the limit.
	if err := s.SaveBlob("fifteen_chars_x", "fifteen_chars_x", []byte{1}); err != nil {
		t.Errorf("15-char names should be accepted: %v", err)
	}
}

func TestScalars(t *testing.T) {
	s := tempStore(t)

	if v := s.LoadUint8(testNS, "b", 7); v != 7 {
		t.Fatalf("missing u8 should return default, got %d", v)
	}
	if err := s.SaveUint8(testNS, "b", 200); err != nil {
		t.Fatal(err)
	}
	if v := s.LoadUint8(testNS, "b", 7); v != 200 {
		t.Fatalf("u8: got %d", v)
	}

	if err := s.SaveUint16(testNS, "w", 0xBEEF); err != nil {
		t.Fatal(err)
	}
	if v := s.LoadUint16(testNS, "w", 0); v != 0xBEEF {
		t.Fatalf("u16: got %#x", v)
	}

	if err := s.SaveUint32(testNS, "d", 0xCAFEBABE); err != nil {
		t.Fatal(err)
	}
	if v := s.LoadUint32(testNS, "d", 0); v != 0xCAFEBABE {
		t.Fatalf("u32: got %#x", v)
	}
}

func TestScalarWidthMismatchReturnsDefault(t *testing.T) {
	s := tempStore(t)
	if err := s.SaveUint32(testNS, "k", 123456); err != nil {
		t.Fatal(err)
	}
	if v := s.LoadUint8(testNS, "k", 9); v != 9 {
		t.Fatalf("u8 read of a u32 entry should return default, got %d", v)
	}
	if v := s.LoadUint16(testNS, "k", 9); v != 9 {
		t.Fatalf("u16 read of a u32 entry should return default, got %d", v)
	}
}

func TestStats(t *testing.T) {
	s := tempStore(t)
	used, free := s.Stats()
	if used != 0 || free != 64 {
		t.Fatalf("empty store: used=%d free=%d", used, free)
	}
	if err := s.SaveBlob(testNS, "a", []byte{1}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveBlob("otherns", "b", []byte{2}); err != nil {
		t.Fatal(err)
	}
	used, free = s.Stats()
	if used != 2 || free != 62 {
		t.Fatalf("after 2 saves: used=%d free=%d", used, free)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.db")

	s := Open(path, 64)
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveBlob(testNS, "k", []byte("survives")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2 := Open(path, 64)
	if err := s2.Init(); err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	got, err := s2.LoadBlob(testNS, "k", -1)
	if err != nil || string(got) != "survives" {
		t.Fatalf("reopen: got %q, %v", got, err)
	}
}
