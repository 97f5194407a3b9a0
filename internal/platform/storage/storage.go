// Package storage hosts uploaded images in Google Cloud Storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/config"
	"github.com/phrazzld/quill-api/internal/platform/logger"
	"google.golang.org/api/option"
)

var (
	// ErrUploadsDisabled is returned when no bucket is configured.
	ErrUploadsDisabled = errors.New("image uploads are disabled")

	// ErrUnsupportedImage is returned for content that is not jpeg, png, gif or webp.
	ErrUnsupportedImage = errors.New("unsupported image type")

	// ErrEmptyUpload is returned for a zero-length upload.
	ErrEmptyUpload = errors.New("upload is empty")
)

var imageExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// Uploader stores an image and returns its public URL.
type Uploader interface {
	UploadImage(ctx context.Context, prefix string, r io.Reader) (string, error)
}

// DetectImageType sniffs the content type of head and reports it with the
// file extension to use.
func DetectImageType(head []byte) (contentType, ext string, err error) {
	if len(head) == 0 {
		return "", "", ErrEmptyUpload
	}
	contentType = http.DetectContentType(head)
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedImage, contentType)
	}
	return contentType, ext, nil
}

// WriterFunc opens a writer for object with the given content type.
type WriterFunc func(ctx context.Context, object, contentType string) io.WriteCloser

// GCSUploader writes images to a bucket under random object names.
type GCSUploader struct {
	client    *gcs.Client
	newWriter WriterFunc
	baseURL   string
	logger    *slog.Logger
}

var _ Uploader = (*GCSUploader)(nil)

// NewGCSUploader connects to Cloud Storage using cfg. Credentials come from
// cfg.CredentialsFile when set and from the environment otherwise.
func NewGCSUploader(ctx context.Context, cfg config.StorageConfig, log *slog.Logger) (*GCSUploader, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	bucket := client.Bucket(cfg.Bucket)
	writer := func(ctx context.Context, object, contentType string) io.WriteCloser {
		w := bucket.Object(object).NewWriter(ctx)
		w.ContentType = contentType
		w.CacheControl = "public, max-age=86400"
		return w
	}

	u := NewUploader(writer, publicBaseURL(cfg), log)
	u.client = client
	return u, nil
}

// NewUploader builds an uploader around an arbitrary writer.
func NewUploader(newWriter WriterFunc, baseURL string, log *slog.Logger) *GCSUploader {
	if newWriter == nil {
		panic("writer func cannot be nil")
	}
	return &GCSUploader{
		newWriter: newWriter,
		baseURL:   strings.TrimRight(baseURL, "/"),
		logger:    log.With("component", "gcs_uploader"),
	}
}

func publicBaseURL(cfg config.StorageConfig) string {
	if cfg.PublicBaseURL != "" {
		return cfg.PublicBaseURL
	}
	return "https://storage.googleapis.com/" + cfg.Bucket
}

// UploadImage validates the image type and stores it as prefix/<uuid>.<ext>.
func (u *GCSUploader) UploadImage(ctx context.Context, prefix string, r io.Reader) (string, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	head = head[:n]

	contentType, ext, err := DetectImageType(head)
	if err != nil {
		return "", err
	}

	object := fmt.Sprintf("%s/%s.%s", strings.Trim(prefix, "/"), uuid.New(), ext)
	w := u.newWriter(ctx, object, contentType)
	if _, err := io.Copy(w, io.MultiReader(bytes.NewReader(head), r)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize object: %w", err)
	}

	logger.FromContextOrDefault(ctx, u.logger).Info("image uploaded",
		"object", object,
		"content_type", contentType)
	return u.baseURL + "/" + object, nil
}

// Close releases the storage client.
func (u *GCSUploader) Close() error {
	if u.client == nil {
		return nil
	}
	return u.client.Close()
}

// DisabledUploader rejects every upload.
type DisabledUploader struct{}

// UploadImage returns ErrUploadsDisabled.
func (DisabledUploader) UploadImage(context.Context, string, io.Reader) (string, error) {
	return "", ErrUploadsDisabled
}
