package service

import (
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	appErrors "github.com/noah-isme/hrms-api/pkg/errors"
)

// DefaultMaxUploadSize is the largest accepted document in bytes (5 MiB).
const DefaultMaxUploadSize int64 = 5 * 1024 * 1024

// DefaultAllowedMIMEs lists pdf, jpeg, png, doc and docx.
var DefaultAllowedMIMEs = []string{
	"application/pdf",
	"image/jpeg",
	"image/png",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// Office formats whose content signature can degrade to the generic container
// type when the detector only sees the first bytes of the file.
var mimeContainers = map[string]string{
	"application/msword": "application/x-ole-storage",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "application/zip",
}

// FileDescriptor describes one uploaded file as declared by the client.
type FileDescriptor struct {
	FileName string
	Size     int64
	MimeType string
	Content  io.ReadSeeker
}

// UploadValidatorConfig tunes upload validation.
type UploadValidatorConfig struct {
	MaxFileSize  int64
	AllowedMIMEs []string
	SniffContent bool
}

// UploadValidator enforces size and type constraints before a document is
// stored.
type UploadValidator struct {
	maxSize int64
	allowed map[string]struct{}
	sniff   bool
}

// NewUploadValidator builds a validator, falling back to the 5 MiB limit and
// the default allow-list.
func NewUploadValidator(cfg UploadValidatorConfig) *UploadValidator {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxUploadSize
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = DefaultAllowedMIMEs
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, mt := range cfg.AllowedMIMEs {
		allowed[strings.ToLower(strings.TrimSpace(mt))] = struct{}{}
	}
	return &UploadValidator{maxSize: cfg.MaxFileSize, allowed: allowed, sniff: cfg.SniffContent}
}

// MaxFileSize returns the configured limit in bytes.
func (v *UploadValidator) MaxFileSize() int64 {
	return v.maxSize
}

// Validate checks the descriptor and returns the MIME type to store. When
// content sniffing is enabled the returned type is the detected one and the
// content reader is rewound to the start.
func (v *UploadValidator) Validate(file FileDescriptor) (string, error) {
	if file.Content == nil || file.Size <= 0 {
		return "", appErrors.Clone(appErrors.ErrMissingRequiredField, "document file is required")
	}
	if file.Size > v.maxSize {
		return "", appErrors.Clone(appErrors.ErrFileTooLarge, fmt.Sprintf("file exceeds %d bytes limit", v.maxSize))
	}
	declared := normalizeMIME(file.MimeType)
	if !v.isAllowed(declared) {
		return "", appErrors.Clone(appErrors.ErrUnsupportedFileType, fmt.Sprintf("file type %q is not supported", file.MimeType))
	}
	if !v.sniff {
		return declared, nil
	}
	return v.sniffContent(file.Content, declared)
}

func (v *UploadValidator) sniffContent(content io.ReadSeeker, declared string) (string, error) {
	if _, err := content.Seek(0, io.SeekStart); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect upload")
	}
	detected, err := mimetype.DetectReader(content)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect upload")
	}
	if _, err := content.Seek(0, io.SeekStart); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset upload stream")
	}
	for m := detected; m != nil; m = m.Parent() {
		candidate := normalizeMIME(m.String())
		if v.isAllowed(candidate) {
			return candidate, nil
		}
	}
	if container, ok := mimeContainers[declared]; ok && detected.Is(container) {
		return declared, nil
	}
	return "", appErrors.Clone(appErrors.ErrUnsupportedFileType, fmt.Sprintf("file content %q is not supported", detected.String()))
}

func (v *UploadValidator) isAllowed(mimeType string) bool {
	_, ok := v.allowed[mimeType]
	return ok
}

// normalizeMIME lower-cases the media type and drops parameters such as
// charset.
func normalizeMIME(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if mediaType, _, err := mime.ParseMediaType(raw); err == nil {
		return strings.ToLower(mediaType)
	}
	return strings.ToLower(raw)
}

// extensionFor picks a file extension for the stored object.
func extensionFor(mimeType string) string {
	if m := mimetype.Lookup(mimeType); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	return ".bin"
}
