package storage

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var ErrNotFound = errors.New("deliverable not found")

// DeliverableRef is the retrieval handle for a stored deliverable.
type DeliverableRef struct {
	InvoiceID string
	// Path is relative to the store root; deterministic per invoice so
	// retries overwrite instead of appending.
	Path  string
	IsDir bool
	Files []string
}

// Store persists generated artifacts on the local filesystem, namespaced by
// invoice id. An object-storage backend can replace it behind the same
// methods.
type Store struct {
	basePath string
}

func NewStore(basePath string) (*Store, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &Store{basePath: basePath}, nil
}

func (s *Store) BasePath() string {
	return s.basePath
}

// Put copies the named artifacts from workDir into the invoice's slot,
// replacing whatever a previous attempt may have left there. The destination
// key is derived purely from the invoice id.
func (s *Store) Put(invoiceID, workDir string, artifacts []string) (*DeliverableRef, error) {
	key, err := sanitizeKey(invoiceID)
	if err != nil {
		return nil, err
	}
	if len(artifacts) == 0 {
		return nil, errors.New("storage: no artifacts to store")
	}
	for _, name := range artifacts {
		if _, err := sanitizeKey(name); err != nil {
			return nil, fmt.Errorf("storage: artifact name %q: %w", name, err)
		}
	}

	// stage into a sibling directory, then swap, so a crashed write never
	// leaves a half-populated deliverable at the final key
	target := filepath.Join(s.basePath, key)
	staging := filepath.Join(s.basePath, "."+key+".tmp")
	if err := os.RemoveAll(staging); err != nil {
		return nil, fmt.Errorf("storage: clear staging: %w", err)
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create staging: %w", err)
	}
	for _, name := range artifacts {
		if err := copyFile(filepath.Join(workDir, name), filepath.Join(staging, name)); err != nil {
			os.RemoveAll(staging)
			return nil, fmt.Errorf("storage: copy artifact %q: %w", name, err)
		}
	}
	if err := os.RemoveAll(target); err != nil {
		os.RemoveAll(staging)
		return nil, fmt.Errorf("storage: replace deliverable: %w", err)
	}
	if err := os.Rename(staging, target); err != nil {
		os.RemoveAll(staging)
		return nil, fmt.Errorf("storage: commit deliverable: %w", err)
	}

	return &DeliverableRef{
		InvoiceID: invoiceID,
		Path:      key,
		IsDir:     len(artifacts) > 1,
		Files:     append([]string(nil), artifacts...),
	}, nil
}

// Get resolves the deliverable for an invoice id, rejecting traversal
// attempts before any filesystem access.
func (s *Store) Get(invoiceID string) (*DeliverableRef, error) {
	key, err := sanitizeKey(invoiceID)
	if err != nil {
		return nil, err
	}
	target := filepath.Join(s.basePath, key)
	entries, err := os.ReadDir(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return nil, ErrNotFound
	}
	return &DeliverableRef{
		InvoiceID: invoiceID,
		Path:      key,
		IsDir:     len(files) > 1,
		Files:     files,
	}, nil
}

// FilePath returns the absolute path of a single-file deliverable.
func (s *Store) FilePath(ref *DeliverableRef) string {
	if ref.IsDir || len(ref.Files) == 0 {
		return ""
	}
	return filepath.Join(s.basePath, ref.Path, ref.Files[0])
}

// Package streams the deliverable as a zip archive. Files are copied into
// the archive one at a time, so large deliverables never need to fit in
// memory before the first byte is written.
func (s *Store) Package(invoiceID string, w io.Writer) error {
	ref, err := s.Get(invoiceID)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(w)
	for _, name := range ref.Files {
		fw, err := zw.Create(name)
		if err != nil {
			return err
		}
		f, err := os.Open(filepath.Join(s.basePath, ref.Path, name))
		if err != nil {
			return err
		}
		_, err = io.Copy(fw, f)
		f.Close()
		if err != nil {
			return err
		}
	}
	return zw.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	if strings.Contains(key, "..") || strings.ContainsAny(key, "/") {
		return "", errors.New("storage: invalid key")
	}
	cleaned := filepath.Clean(key)
	if cleaned == "." || cleaned != key {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
