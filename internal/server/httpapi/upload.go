package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/videohub/internal/common"
	"github.com/google/uuid"
)

// multipartMemory is how much of a multipart body is buffered in memory
// before spilling to disk.
const multipartMemory = 1 << 20

func (h *Handler) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: upload exceeds %d bytes", common.ErrorValidation, h.opts.MaxUploadBytes)
		}
		return fmt.Errorf("%w: invalid multipart form", common.ErrorValidation)
	}
	return nil
}

// saveUpload copies the named multipart file into the upload directory and
// returns its path, or "" if the field is absent.
func (h *Handler) saveUpload(r *http.Request, field string) (string, error) {
	src, hdr, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil
		}
		return "", fmt.Errorf("%w: invalid %s file", common.ErrorValidation, field)
	}
	defer src.Close()

	if err := os.MkdirAll(h.opts.UploadDir, 0o755); err != nil {
		return "", err
	}

	dst, err := os.CreateTemp(h.opts.UploadDir, uuid.NewString()+"-*"+safeExt(hdr.Filename))
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

// safeExt keeps a short alphanumeric extension of a client-supplied name.
func safeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) < 2 || len(ext) > 8 {
		return ""
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return ""
		}
	}
	return ext
}
