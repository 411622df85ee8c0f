package imagestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCS stores images in a Google Cloud Storage bucket.
type GCS struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

// OpenGCS creates a GCS store. Credentials come from the environment unless
// opts override them. URLs default to https://storage.googleapis.com/<bucket>.
func OpenGCS(ctx context.Context, bucket, baseURL string, opts ...option.ClientOption) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("imagestore: gcs bucket is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("imagestore: gcs client: %w", err)
	}
	if baseURL == "" {
		baseURL = "https://storage.googleapis.com/" + bucket
	}
	return &GCS{client: client, bucket: bucket, baseURL: baseURL}, nil
}

// Put implements Store.
func (g *GCS) Put(ctx context.Context, f File) (Stored, error) {
	if err := validate(f); err != nil {
		return Stored{}, err
	}
	id := NewObjectID(f.Name)
	w := g.client.Bucket(g.bucket).Object(id).NewWriter(ctx)
	w.ContentType = f.ContentType
	w.Metadata = map[string]string{"original-name": f.Name}
	if _, err := w.Write(f.Data); err != nil {
		w.Close()
		return Stored{}, fmt.Errorf("imagestore: gcs write %s: %w", id, err)
	}
	if err := w.Close(); err != nil {
		return Stored{}, fmt.Errorf("imagestore: gcs close %s: %w", id, err)
	}
	return Stored{URL: joinURL(g.baseURL, id), ID: id}, nil
}

// Delete implements Store. Deleting a missing object is not an error.
func (g *GCS) Delete(ctx context.Context, id string) error {
	err := g.client.Bucket(g.bucket).Object(id).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("imagestore: gcs delete %s: %w", id, err)
	}
	return nil
}

// Close releases the GCS client.
func (g *GCS) Close() error {
	return g.client.Close()
}
