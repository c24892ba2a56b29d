package service

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/hrms-api/pkg/errors"
)

func pdfBytes(size int) []byte {
	header := []byte("%PDF-1.7\n")
	if size < len(header) {
		return header[:size]
	}
	return append(header, bytes.Repeat([]byte{' '}, size-len(header))...)
}

func pdfDescriptor(size int) FileDescriptor {
	return FileDescriptor{
		FileName: "doc.pdf",
		Size:     int64(size),
		MimeType: "application/pdf",
		Content:  bytes.NewReader(pdfBytes(size)),
	}
}

func docxBytes(t *testing.T) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, name := range []string{"[Content_Types].xml", "_rels/.rels", "word/document.xml"} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte("<xml/>"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func codeOf(err error) string {
	return appErrors.FromError(err).Code
}

func TestUploadValidatorSizeBoundary(t *testing.T) {
	v := NewUploadValidator(UploadValidatorConfig{SniffContent: true})

	mimeType, err := v.Validate(pdfDescriptor(5 * 1024 * 1024))
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", mimeType)

	_, err = v.Validate(pdfDescriptor(5*1024*1024 + 1))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrFileTooLarge.Code, codeOf(err))
}

func TestUploadValidatorRejectsPlainText(t *testing.T) {
	v := NewUploadValidator(UploadValidatorConfig{})

	_, err := v.Validate(FileDescriptor{FileName: "notes.txt", Size: 5, MimeType: "text/plain", Content: bytes.NewReader([]byte("hello"))})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnsupportedFileType.Code, codeOf(err))
}

func TestUploadValidatorMissingFile(t *testing.T) {
	v := NewUploadValidator(UploadValidatorConfig{})

	_, err := v.Validate(FileDescriptor{MimeType: "application/pdf"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrMissingRequiredField.Code, codeOf(err))
}

func TestUploadValidatorTrustsDeclaredTypeWithoutSniffing(t *testing.T) {
	v := NewUploadValidator(UploadValidatorConfig{SniffContent: false})

	mimeType, err := v.Validate(FileDescriptor{FileName: "scan.png", Size: 4, MimeType: "Image/PNG; charset=binary", Content: bytes.NewReader([]byte("junk"))})
	require.NoError(t, err)
	assert.Equal(t, "image/png", mimeType)
}

func TestUploadValidatorSniffingRejectsDisguisedContent(t *testing.T) {
	v := NewUploadValidator(UploadValidatorConfig{SniffContent: true})

	content := []byte("#!/bin/sh\necho disguised\n")
	_, err := v.Validate(FileDescriptor{FileName: "cv.pdf", Size: int64(len(content)), MimeType: "application/pdf", Content: bytes.NewReader(content)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnsupportedFileType.Code, codeOf(err))
}

func TestUploadValidatorSniffingAcceptsDocxAndRewinds(t *testing.T) {
	v := NewUploadValidator(UploadValidatorConfig{SniffContent: true})
	raw := docxBytes(t)
	reader := bytes.NewReader(raw)

	mimeType, err := v.Validate(FileDescriptor{
		FileName: "offer.docx",
		Size:     int64(len(raw)),
		MimeType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		Content:  reader,
	})
	require.NoError(t, err)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", mimeType)

	rest, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, raw, rest)
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, ".pdf", extensionFor("application/pdf"))
	assert.Equal(t, ".png", extensionFor("image/png"))
	assert.Equal(t, ".bin", extensionFor("application/x-unknown"))
}
