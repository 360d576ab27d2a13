// Package fingerprint derives deterministic identity keys for file
// processing tasks. Two submissions of the same file, by the same user,
// with the same task type and parameters always produce the same key,
// which is what the deduplication layer keys its records on.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/supplierflow/dedupkit/errors"
)

// KeyPrefix namespaces all fingerprint-derived store keys.
const KeyPrefix = "task_fingerprint:"

// Default hashing parameters.
const (
	// DefaultChunkSize is the window read from large files at each of the
	// three sample positions.
	DefaultChunkSize = 8 * 1024

	// DefaultLargeFileThreshold is the size above which files are sampled
	// instead of hashed in full.
	DefaultLargeFileThreshold = 1024 * 1024
)

// Fingerprint identifies one logical unit of work: process this file, with
// these parameters, for this user.
type Fingerprint struct {
	TaskType string            `json:"task_type"`
	FilePath string            `json:"file_path"`
	FileSize int64             `json:"file_size"`
	FileHash string            `json:"file_hash"`
	UserID   string            `json:"user_id,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
}

// Key derives the store key for this fingerprint: a canonical serialization
// of all fields (sorted keys, no incidental whitespace) hashed with MD5 and
// prefixed with KeyPrefix. MD5 is an identity hash here, not a security
// measure; 128 bits keeps keys compact while making accidental collisions
// across distinct field values negligible.
func (f Fingerprint) Key() string {
	userID := f.UserID
	if userID == "" {
		userID = "anonymous"
	}
	params := f.Params
	if params == nil {
		params = map[string]string{}
	}

	canonical := map[string]interface{}{
		"task_type": f.TaskType,
		"file_path": f.FilePath,
		"file_size": f.FileSize,
		"file_hash": f.FileHash,
		"user_id":   userID,
		"params":    params,
	}

	// encoding/json emits map keys in sorted order with no extra
	// whitespace, which is exactly the canonical form we need.
	data, err := json.Marshal(canonical)
	if err != nil {
		// Only unmarshalable types reach here, and the map above has none.
		panic(fmt.Sprintf("fingerprint: canonical marshal: %v", err))
	}

	sum := md5.Sum(data)
	return KeyPrefix + hex.EncodeToString(sum[:])
}

// HasherConfig holds file hashing parameters.
type HasherConfig struct {
	// ChunkSize is the sample window size for large files.
	// Default: 8 KiB.
	ChunkSize int64

	// LargeFileThreshold is the size above which sampling kicks in.
	// Default: 1 MiB.
	LargeFileThreshold int64
}

// DefaultHasherConfig returns the standard hashing parameters.
func DefaultHasherConfig() HasherConfig {
	return HasherConfig{
		ChunkSize:          DefaultChunkSize,
		LargeFileThreshold: DefaultLargeFileThreshold,
	}
}

// Hasher computes file fingerprints with fixed hashing parameters.
type Hasher struct {
	config HasherConfig
}

// NewHasher creates a Hasher. Zero config fields fall back to defaults.
func NewHasher(cfg HasherConfig) *Hasher {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.LargeFileThreshold <= 0 {
		cfg.LargeFileThreshold = DefaultLargeFileThreshold
	}
	return &Hasher{config: cfg}
}

// Option configures a Compute call.
type Option func(*Fingerprint)

// WithUserID attributes the fingerprint to a user.
func WithUserID(userID string) Option {
	return func(f *Fingerprint) {
		f.UserID = userID
	}
}

// WithParams attaches extra task parameters to the fingerprint.
func WithParams(params map[string]string) Option {
	return func(f *Fingerprint) {
		f.Params = params
	}
}

// Compute builds the fingerprint for a file. The path is resolved to its
// absolute form so the same file always fingerprints identically regardless
// of the caller's working directory. Returns a NOT_FOUND error if the file
// does not exist.
func (h *Hasher) Compute(path, taskType string, opts ...Option) (Fingerprint, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Fingerprint{}, errors.WrapWithCode(err, errors.CodeInvalidInput, "resolving file path")
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return Fingerprint{}, errors.Newf(errors.CodeNotFound, "file not found: %s", abs)
		}
		return Fingerprint{}, errors.WrapWithCode(err, errors.CodeInternal, "stat file")
	}
	if info.IsDir() {
		return Fingerprint{}, errors.Newf(errors.CodeInvalidInput, "not a regular file: %s", abs)
	}

	hash, err := h.hashFile(abs, info.Size())
	if err != nil {
		return Fingerprint{}, errors.WrapWithCode(err, errors.CodeInternal, "hashing file")
	}

	fp := Fingerprint{
		TaskType: taskType,
		FilePath: abs,
		FileSize: info.Size(),
		FileHash: hash,
	}
	for _, opt := range opts {
		opt(&fp)
	}
	return fp, nil
}

// Compute builds a fingerprint with default hashing parameters.
func Compute(path, taskType string, opts ...Option) (Fingerprint, error) {
	return NewHasher(DefaultHasherConfig()).Compute(path, taskType, opts...)
}

// hashFile computes the content hash. Small files are hashed in full; large
// files are sampled at three fixed windows (head, middle, tail) plus the
// decimal size, keeping hashing cost constant regardless of file size.
// Distinct large files with identical samples and size collide; the layer
// trades that approximation for bounded cost on multi-gigabyte inputs.
func (h *Hasher) hashFile(path string, size int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sum := md5.New()

	if size <= h.config.LargeFileThreshold {
		if _, err := io.Copy(sum, f); err != nil {
			return "", err
		}
		return hex.EncodeToString(sum.Sum(nil)), nil
	}

	chunk := h.config.ChunkSize

	// Head
	if _, err := io.CopyN(sum, f, chunk); err != nil && err != io.EOF {
		return "", err
	}

	// Middle
	if _, err := f.Seek(size/2, io.SeekStart); err != nil {
		return "", err
	}
	if _, err := io.CopyN(sum, f, chunk); err != nil && err != io.EOF {
		return "", err
	}

	// Tail, only when it cannot overlap the head window
	if size > chunk*2 {
		if _, err := f.Seek(-chunk, io.SeekEnd); err != nil {
			return "", err
		}
		if _, err := io.CopyN(sum, f, chunk); err != nil && err != io.EOF {
			return "", err
		}
	}

	// Size disambiguates files whose sampled windows happen to match
	sum.Write([]byte(strconv.FormatInt(size, 10)))

	return hex.EncodeToString(sum.Sum(nil)), nil
}
