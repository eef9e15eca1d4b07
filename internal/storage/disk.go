// Package storage owns uploaded file bytes on local disk. Rows describing
// the files live in Postgres; the attachment service keeps the two sides
// reconciled.
package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
)

// sniffLen is how many leading bytes the type sniffers need. filetype
// matchers use at most 262; http.DetectContentType reads up to 512.
const sniffLen = 512

// StoredFile describes a file after it has been written to disk.
type StoredFile struct {
	StoredName string
	MimeType   string
	ByteSize   int64
}

// FileStore is the byte-storage surface the attachment service consumes.
type FileStore interface {
	// Save sniffs the MIME type from the bytes, writes them under a
	// generated name, and reports what was stored.
	Save(fileName string, data io.ReadSeeker) (*StoredFile, error)

	// Open returns a reader over a stored file's bytes.
	Open(storedName string) (io.ReadSeekCloser, error)

	// Delete removes a stored file. A file already gone is not an error.
	Delete(storedName string) error
}

// DiskStore implements FileStore on a local directory.
type DiskStore struct {
	baseDir string
	logger  *slog.Logger
}

// NewDiskStore creates the upload directory if needed.
func NewDiskStore(baseDir string, logger *slog.Logger) (*DiskStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &DiskStore{baseDir: baseDir, logger: logger}, nil
}

// Save writes data to disk under a generated uuid name, keeping the
// original extension only as a fallback when sniffing fails.
func (s *DiskStore) Save(fileName string, data io.ReadSeeker) (*StoredFile, error) {
	header := make([]byte, sniffLen)
	n, err := io.ReadFull(data, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read file header: %w", err)
	}
	header = header[:n]

	mimeType, ext := sniffType(header, fileName)

	if _, err := data.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind upload: %w", err)
	}

	storedName := uuid.NewString()
	if ext != "" {
		storedName += "." + ext
	}

	dst, err := os.Create(filepath.Join(s.baseDir, storedName))
	if err != nil {
		return nil, fmt.Errorf("create stored file: %w", err)
	}
	defer dst.Close()

	size, err := io.Copy(dst, data)
	if err != nil {
		// Half-written files are useless; do not leave them around.
		os.Remove(dst.Name())
		return nil, fmt.Errorf("write stored file: %w", err)
	}

	return &StoredFile{
		StoredName: storedName,
		MimeType:   mimeType,
		ByteSize:   size,
	}, nil
}

// Open returns a reader over a stored file's bytes.
func (s *DiskStore) Open(storedName string) (io.ReadSeekCloser, error) {
	path, err := s.resolve(storedName)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stored file: %w", err)
	}
	return f, nil
}

// Delete removes a stored file. A file already gone is not an error; the
// row is authoritative and a missing file only means less cleanup.
func (s *DiskStore) Delete(storedName string) error {
	path, err := s.resolve(storedName)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			s.logger.Warn("stored file already gone", "stored_name", storedName)
			return nil
		}
		return fmt.Errorf("remove stored file: %w", err)
	}
	return nil
}

// resolve rejects names that would escape the upload directory. Stored
// names are generated internally, so anything with a separator is hostile.
func (s *DiskStore) resolve(storedName string) (string, error) {
	if storedName == "" || strings.ContainsAny(storedName, `/\`) || strings.Contains(storedName, "..") {
		return "", fmt.Errorf("invalid stored name %q", storedName)
	}
	return filepath.Join(s.baseDir, storedName), nil
}

// sniffType determines MIME type and extension from content, preferring
// magic bytes, then stdlib detection, then the original extension.
func sniffType(header []byte, fileName string) (mimeType, ext string) {
	if t, err := filetype.Match(header); err == nil && t != filetype.Unknown {
		return t.MIME.Value, t.Extension
	}

	mimeType = http.DetectContentType(header)
	// Strip the charset parameter DetectContentType appends to text types.
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}

	ext = strings.TrimPrefix(filepath.Ext(fileName), ".")
	return mimeType, strings.ToLower(ext)
}
