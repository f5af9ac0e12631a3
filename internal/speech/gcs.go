package speech

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore publishes audio to a Cloud Storage bucket. Object expiry is left
// to the bucket's lifecycle rules.
type GCSStore struct {
	client *storage.Client
	bucket string
	ttl    time.Duration
}

// NewGCSStore creates a GCSStore. An empty credentialsFile uses application
// default credentials.
func NewGCSStore(ctx context.Context, bucket, credentialsFile string, ttl time.Duration) (*GCSStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err != nil {
			return nil, fmt.Errorf("service account key not found at path %s: %w", credentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating GCS storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket, ttl: ttl}, nil
}

// Put uploads data and returns a signed GET URL valid for the store TTL.
// When the credentials cannot sign, the gs:// URI is returned instead.
func (g *GCSStore) Put(ctx context.Context, name string, data []byte, contentType string) (Download, error) {
	obj := g.client.Bucket(g.bucket).Object("speech/" + name)
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "private, no-store"

	if _, err := w.Write(data); err != nil {
		w.Close()
		return Download{}, fmt.Errorf("writing GCS object %s: %w", obj.ObjectName(), err)
	}
	if err := w.Close(); err != nil {
		return Download{}, fmt.Errorf("closing GCS writer for %s: %w", obj.ObjectName(), err)
	}

	expires := time.Now().UTC().Add(g.ttl)
	url, err := g.client.Bucket(g.bucket).SignedURL(obj.ObjectName(), &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: expires,
	})
	if err != nil {
		slog.Debug("signing GCS url", "object", obj.ObjectName(), "error", err)
		url = fmt.Sprintf("gs://%s/%s", g.bucket, obj.ObjectName())
	}
	return Download{Name: name, URL: url, ExpiresAt: expires}, nil
}

// Close releases the underlying client.
func (g *GCSStore) Close() error {
	return g.client.Close()
}
