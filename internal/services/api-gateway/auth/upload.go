package auth

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// stagedFile is a multipart part copied to local disk. Release removes it and
// is safe to call on a nil receiver or more than once.
type stagedFile struct {
	path string
}

func (s *stagedFile) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func (s *stagedFile) Release() error {
	if s == nil || s.path == "" {
		return nil
	}
	err := os.Remove(s.path)
	s.path = ""
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// stageFormFile copies form field name into a temp file under dir. A missing
// field yields (nil, nil).
func stageFormFile(r *http.Request, name, dir string) (*stagedFile, error) {
	src, hdr, err := r.FormFile(name)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, fmt.Errorf("read form file %s: %w", name, err)
	}
	defer src.Close()
	return stage(src, hdr, dir)
}

func stage(src multipart.File, hdr *multipart.FileHeader, dir string) (*stagedFile, error) {
	ext := strings.ToLower(filepath.Ext(hdr.Filename))
	f, err := os.CreateTemp(dir, "upload-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	sf := &stagedFile{path: f.Name()}

	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		_ = sf.Release()
		return nil, fmt.Errorf("copy upload: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = sf.Release()
		return nil, fmt.Errorf("close temp file: %w", err)
	}
	return sf, nil
}
