package fingerprint

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/supplierflow/dedupkit/errors"
)

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("writing test file: %v", err)
	}
	return path
}

func TestComputeDeterministic(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.xlsx", []byte("supplier price data"))

	fp1, err := Compute(path, "process_file", WithUserID("user1"))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	fp2, err := Compute(path, "process_file", WithUserID("user1"))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if fp1.Key() != fp2.Key() {
		t.Errorf("Same input should yield same key: %s vs %s", fp1.Key(), fp2.Key())
	}
}

func TestComputeMissingFile(t *testing.T) {
	_, err := Compute(filepath.Join(t.TempDir(), "nope.xlsx"), "process_file")
	if err == nil {
		t.Fatal("Expected error for missing file")
	}
	if !errors.IsNotFound(err) {
		t.Errorf("Expected NOT_FOUND, got %v", err)
	}
}

func TestKeySensitivity(t *testing.T) {
	dir := t.TempDir()
	pathA := writeFile(t, dir, "a.xlsx", []byte("content A"))
	pathB := writeFile(t, dir, "b.xlsx", []byte("content B"))

	base, err := Compute(pathA, "process_file", WithUserID("user1"))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	// Different content (different file)
	other, err := Compute(pathB, "process_file", WithUserID("user1"))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if other.Key() == base.Key() {
		t.Error("Different files should yield different keys")
	}

	// Different user
	otherUser, _ := Compute(pathA, "process_file", WithUserID("user2"))
	if otherUser.Key() == base.Key() {
		t.Error("Different user should yield different key")
	}

	// Different task type
	otherType, _ := Compute(pathA, "reprocess_file", WithUserID("user1"))
	if otherType.Key() == base.Key() {
		t.Error("Different task type should yield different key")
	}

	// Different params
	otherParams, _ := Compute(pathA, "process_file", WithUserID("user1"),
		WithParams(map[string]string{"sheet": "prices"}))
	if otherParams.Key() == base.Key() {
		t.Error("Different params should yield different key")
	}
}

func TestKeyContentChange(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.csv", []byte("v1"))

	before, err := Compute(path, "process_file")
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	// Same length, different bytes
	writeFile(t, dir, "a.csv", []byte("v2"))
	after, err := Compute(path, "process_file")
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if before.Key() == after.Key() {
		t.Error("Changed content should change the key")
	}
}

func TestKeyFormat(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.bin", []byte("x"))

	fp, err := Compute(path, "process_file")
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	key := fp.Key()
	if !strings.HasPrefix(key, KeyPrefix) {
		t.Errorf("Key should start with %q, got %q", KeyPrefix, key)
	}
	digest := strings.TrimPrefix(key, KeyPrefix)
	if len(digest) != 32 {
		t.Errorf("Expected 32 hex chars, got %d in %q", len(digest), digest)
	}
}

func TestAnonymousUserNormalized(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.bin", []byte("x"))

	noUser, _ := Compute(path, "process_file")
	anon, _ := Compute(path, "process_file", WithUserID("anonymous"))

	if noUser.Key() != anon.Key() {
		t.Error(`Absent user and explicit "anonymous" should key identically`)
	}
}

func TestLargeFileSampledHash(t *testing.T) {
	cfg := HasherConfig{ChunkSize: 8, LargeFileThreshold: 64}
	h := NewHasher(cfg)
	dir := t.TempDir()

	// Two files above the threshold, identical head/middle/tail windows and
	// size, differing only in unsampled bytes: the sampled hash is expected
	// to collide. This pins the documented speed-over-robustness trade-off.
	content1 := bytes.Repeat([]byte("A"), 128)
	content2 := bytes.Repeat([]byte("A"), 128)
	content2[20] = 'B' // outside head [0,8), middle [64,72), tail [120,128)

	p1 := writeFile(t, dir, "big1", content1)
	p2 := writeFile(t, dir, "big2", content2)

	fp1, err := h.Compute(p1, "process_file")
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	fp2, err := h.Compute(p2, "process_file")
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if fp1.FileHash != fp2.FileHash {
		t.Error("Sampled hash should ignore unsampled bytes of large files")
	}

	// A change inside a sampled window must be seen
	content3 := bytes.Repeat([]byte("A"), 128)
	content3[2] = 'C'
	p3 := writeFile(t, dir, "big3", content3)
	fp3, err := h.Compute(p3, "process_file")
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if fp3.FileHash == fp1.FileHash {
		t.Error("Change inside the head window should change the hash")
	}
}

func TestLargeFileSizeMatters(t *testing.T) {
	cfg := HasherConfig{ChunkSize: 4, LargeFileThreshold: 8}
	h := NewHasher(cfg)
	dir := t.TempDir()

	p1 := writeFile(t, dir, "s1", bytes.Repeat([]byte{0}, 100))
	p2 := writeFile(t, dir, "s2", bytes.Repeat([]byte{0}, 101))

	fp1, _ := h.Compute(p1, "process_file")
	fp2, _ := h.Compute(p2, "process_file")

	if fp1.FileHash == fp2.FileHash {
		t.Error("Files of different sizes should hash differently")
	}
}

func TestRelativePathResolved(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "rel.bin", []byte("x"))

	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	defer os.Chdir(old)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}

	fp, err := Compute("rel.bin", "process_file")
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if !filepath.IsAbs(fp.FilePath) {
		t.Errorf("FilePath should be absolute, got %q", fp.FilePath)
	}
}
