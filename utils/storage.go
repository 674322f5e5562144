package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/iemipdd12/reports_backend/config"
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	ContentType string
	Size        int64
	Metadata    map[string]string
}

// ObjectStore is the blob storage used for report attachments.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error
	Open(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	SignedGetURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	AccessURL(key string) string
}

// GCSStore keeps objects in a single Google Cloud Storage bucket.
type GCSStore struct {
	client   *storage.Client
	settings config.StorageSettings
}

// NewGCSStore prefers GCS_CREDENTIALS_JSON and falls back to ADC (Cloud Run service account).
func NewGCSStore(ctx context.Context, s config.StorageSettings) (*GCSStore, error) {
	if s.Bucket == "" {
		return nil, errors.New("GCS_BUCKET is required")
	}
	var opts []option.ClientOption
	if s.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(s.CredentialsJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &GCSStore{client: client, settings: s}, nil
}

func (g *GCSStore) Close() error {
	return g.client.Close()
}

func (g *GCSStore) object(key string) *storage.ObjectHandle {
	return g.client.Bucket(g.settings.Bucket).Object(key)
}

func (g *GCSStore) Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	wc := g.object(key).NewWriter(ctx)
	wc.ContentType = contentType
	wc.Metadata = metadata

	if _, err := io.Copy(wc, bytes.NewReader(data)); err != nil {
		_ = wc.Close()
		return fmt.Errorf("failed to upload bytes to Google Cloud Storage: %v", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %v", err)
	}
	return nil
}

func (g *GCSStore) Open(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error) {
	rc, err := g.object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, nil, ErrorRecordNotFound
		}
		return nil, nil, err
	}
	info := &ObjectInfo{
		ContentType: rc.Attrs.ContentType,
		Size:        rc.Attrs.Size,
	}
	return rc, info, nil
}

// Delete treats a missing object as already deleted.
func (g *GCSStore) Delete(ctx context.Context, key string) error {
	err := g.object(key).Delete(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			log.Printf("object does not exist: %s", key)
			return nil
		}
		return err
	}
	return nil
}

func (g *GCSStore) AccessURL(key string) string {
	return BuildObjectAccessURL(g.settings.AccessBaseURL, g.settings.Bucket, key)
}
