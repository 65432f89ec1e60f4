package models

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	dErrors "intake/pkg/domain-errors"
)

// DefaultMaxUploadBytes is the largest accepted document file.
const DefaultMaxUploadBytes int64 = 10 << 20

// knownContentTypes maps each accepted extension to the content type its bytes must sniff as.
var knownContentTypes = map[string]string{
	"pdf":  "application/pdf",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
}

// Upload is an incoming file before it is written to blob storage.
type Upload struct {
	FileName    string
	ContentType string
	Data        []byte
}

func (u Upload) Size() int64 {
	return int64(len(u.Data))
}

// UploadPolicy is the allow-list and size cap applied to every submit and reupload.
type UploadPolicy struct {
	MaxBytes int64
	allowed  map[string]string
}

// DefaultUploadPolicy accepts pdf, jpg, jpeg and png files up to 10 MiB.
func DefaultUploadPolicy() UploadPolicy {
	p, _ := NewUploadPolicy(DefaultMaxUploadBytes, []string{"pdf", "jpg", "jpeg", "png"})
	return p
}

// NewUploadPolicy builds a policy from extensions. Only extensions with a known
// content type may be allowed.
func NewUploadPolicy(maxBytes int64, extensions []string) (UploadPolicy, error) {
	if maxBytes <= 0 {
		return UploadPolicy{}, fmt.Errorf("max upload bytes must be positive, got %d", maxBytes)
	}
	if len(extensions) == 0 {
		return UploadPolicy{}, fmt.Errorf("at least one allowed file type is required")
	}
	allowed := make(map[string]string, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		ct, ok := knownContentTypes[ext]
		if !ok {
			return UploadPolicy{}, fmt.Errorf("unsupported file type in policy: %q", ext)
		}
		allowed[ext] = ct
	}
	return UploadPolicy{MaxBytes: maxBytes, allowed: allowed}, nil
}

// Validate checks size and type and returns the canonical content type for the file.
// Size is checked first so an oversized file is reported as too large whatever its type.
func (p UploadPolicy) Validate(u Upload) (string, error) {
	if u.Size() > p.MaxBytes {
		return "", dErrors.New(dErrors.CodeFileTooLarge,
			fmt.Sprintf("file is %d bytes; limit is %d", u.Size(), p.MaxBytes))
	}
	if u.Size() == 0 {
		return "", dErrors.New(dErrors.CodeValidation, "file is empty")
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(u.FileName), "."))
	expected, ok := p.allowed[ext]
	if !ok {
		return "", dErrors.New(dErrors.CodeUnsupportedFileType, "file type not allowed: "+u.FileName)
	}

	declared := normalizeContentType(u.ContentType)
	if declared != "" && declared != "application/octet-stream" && declared != expected {
		return "", dErrors.New(dErrors.CodeUnsupportedFileType,
			"declared content type "+declared+" does not match ."+ext)
	}
	if sniffed := normalizeContentType(http.DetectContentType(u.Data)); sniffed != expected {
		return "", dErrors.New(dErrors.CodeUnsupportedFileType,
			"file content does not match ."+ext)
	}
	return expected, nil
}

// MaxBytesWithSlack is the request body cap handlers apply so that multipart framing
// does not push a file at exactly MaxBytes over the limit.
func (p UploadPolicy) MaxBytesWithSlack() int64 {
	return p.MaxBytes + 1<<20
}

func normalizeContentType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "image/jpg" || ct == "image/pjpeg" {
		return "image/jpeg"
	}
	return ct
}
