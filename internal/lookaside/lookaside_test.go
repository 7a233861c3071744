package lookaside

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"testing"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func writeSource(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "foo-1.0.tar.gz")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write source: %v", err)
	}
	return path
}

func TestStorePublish(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, "", testLogger())

	src := writeSource(t, "tarball content")
	if err := store.Publish(context.Background(), "user1/foo", []string{src}, true); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}

	sum := md5.Sum([]byte("tarball content"))
	dest := filepath.Join(root, "user1/foo", "foo-1.0.tar.gz",
		hex.EncodeToString(sum[:]), "foo-1.0.tar.gz")

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("stored entry missing: %v", err)
	}
	if string(data) != "tarball content" {
		t.Errorf("stored content = %q, want %q", data, "tarball content")
	}
}

func TestStorePublishIdempotent(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, "", testLogger())
	src := writeSource(t, "same bytes")

	ctx := context.Background()
	if err := store.Publish(ctx, "user1/foo", []string{src}, true); err != nil {
		t.Fatalf("first Publish() failed: %v", err)
	}

	sum := md5.Sum([]byte("same bytes"))
	dest := filepath.Join(root, "user1/foo", "foo-1.0.tar.gz",
		hex.EncodeToString(sum[:]), "foo-1.0.tar.gz")
	before, err := os.Stat(dest)
	if err != nil {
		t.Fatalf("stored entry missing: %v", err)
	}

	if err := store.Publish(ctx, "user1/foo", []string{src}, true); err != nil {
		t.Fatalf("second Publish() failed: %v", err)
	}
	after, err := os.Stat(dest)
	if err != nil {
		t.Fatalf("stored entry missing after re-publish: %v", err)
	}
	if !after.ModTime().Equal(before.ModTime()) {
		t.Error("re-publishing identical content rewrote the entry")
	}

	// Still exactly one hash directory for this filename.
	entries, err := os.ReadDir(filepath.Join(root, "user1/foo", "foo-1.0.tar.gz"))
	if err != nil {
		t.Fatalf("failed to list entries: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("entry count = %d, want 1", len(entries))
	}
}

func TestStorePublishMissingSource(t *testing.T) {
	store := NewStore(t.TempDir(), "", testLogger())
	err := store.Publish(context.Background(), "user1/foo",
		[]string{"/does/not/exist.tar.gz"}, true)
	if err == nil {
		t.Fatal("Publish() succeeded for missing source, want error")
	}
}

func TestWithGroupCurrentGroup(t *testing.T) {
	// Switching to the group we already run as is always permitted, so
	// this exercises the real setegid round trip.
	grp, err := user.LookupGroupId(strconv.Itoa(os.Getegid()))
	if err != nil {
		t.Skipf("cannot resolve current group: %v", err)
	}

	ran := false
	if err := withGroup(grp.Name, func() error { ran = true; return nil }); err != nil {
		t.Fatalf("withGroup(%q) failed: %v", grp.Name, err)
	}
	if !ran {
		t.Error("fn was not run")
	}
	if got := os.Getegid(); strconv.Itoa(got) != grp.Gid {
		t.Errorf("egid = %d after withGroup, want %s restored", got, grp.Gid)
	}
}

func TestWithGroupUnknownGroup(t *testing.T) {
	err := withGroup("no-such-group-xyz", func() error { return nil })
	if err == nil {
		t.Fatal("withGroup() succeeded for unknown group, want error")
	}
}

func TestWithGroupEmptyRunsFn(t *testing.T) {
	ran := false
	if err := withGroup("", func() error { ran = true; return nil }); err != nil {
		t.Fatalf("withGroup() failed: %v", err)
	}
	if !ran {
		t.Error("fn was not run")
	}
}

func TestUploaderPublish(t *testing.T) {
	var uploads int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("file"); err == nil {
			uploads++
			io.WriteString(w, "OK")
			return
		}
		// Existence probe: nothing stored yet.
		io.WriteString(w, "Missing")
	}))
	defer srv.Close()

	u := NewUploader(srv.URL, testLogger())
	src := writeSource(t, "remote bytes")

	if err := u.Publish(context.Background(), "user1/foo", []string{src}, false); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}
	if uploads != 1 {
		t.Errorf("uploads = %d, want 1", uploads)
	}
}

func TestUploaderSkipsExisting(t *testing.T) {
	var uploads int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("file"); err == nil {
			uploads++
			io.WriteString(w, "OK")
			return
		}
		io.WriteString(w, "Available")
	}))
	defer srv.Close()

	u := NewUploader(srv.URL, testLogger())
	src := writeSource(t, "cached bytes")

	if err := u.Publish(context.Background(), "user1/foo", []string{src}, false); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}
	if uploads != 0 {
		t.Errorf("uploads = %d, want 0 (content reported available)", uploads)
	}

	// Content identity also holds for replace: identical bytes are never
	// re-sent on re-import.
	if err := u.Publish(context.Background(), "user1/foo", []string{src}, true); err != nil {
		t.Fatalf("Publish(replace) failed: %v", err)
	}
	if uploads != 0 {
		t.Errorf("uploads = %d after replace publish, want 0", uploads)
	}
}

func TestUploaderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	u := NewUploader(srv.URL, testLogger())
	src := writeSource(t, "bytes")

	if err := u.Publish(context.Background(), "user1/foo", []string{src}, true); err == nil {
		t.Fatal("Publish() succeeded, want error")
	}
}
