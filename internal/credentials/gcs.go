package credentials

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// BackendGCS is the backend name of GCSStore.
const BackendGCS = "gcs"

// DefaultGCSObject is the object name used when none is configured.
const DefaultGCSObject = "calbridge/tokens.json"

// GCSStore keeps the credentials as a JSON object in a Cloud Storage bucket.
// Object writes become visible only when the writer is closed, so a reader
// never sees a partial record.
type GCSStore struct {
	client *storage.Client
	bucket string
	object string
}

// NewGCSStore creates a GCSStore using application default credentials.
func NewGCSStore(ctx context.Context, bucket, object string) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("GCS bucket is required when using the gcs credentials backend")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, storeErr(BackendGCS, "open", err)
	}
	return NewGCSStoreWithClient(client, bucket, object), nil
}

// NewGCSStoreWithClient wraps an existing storage client.
func NewGCSStoreWithClient(client *storage.Client, bucket, object string) *GCSStore {
	if object == "" {
		object = DefaultGCSObject
	}
	return &GCSStore{client: client, bucket: bucket, object: object}
}

func (s *GCSStore) handle() *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.object)
}

func (s *GCSStore) Load(ctx context.Context) (*Credentials, error) {
	r, err := s.handle().NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(BackendGCS, "load", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, storeErr(BackendGCS, "load", err)
	}
	creds, err := unmarshal(data)
	if err != nil {
		return nil, storeErr(BackendGCS, "load", err)
	}
	return creds, nil
}

func (s *GCSStore) Save(ctx context.Context, creds *Credentials) error {
	data, err := marshal(creds)
	if err != nil {
		return storeErr(BackendGCS, "save", err)
	}

	w := s.handle().NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return storeErr(BackendGCS, "save", err)
	}
	if err := w.Close(); err != nil {
		return storeErr(BackendGCS, "save", fmt.Errorf("finalize object: %w", err))
	}
	return nil
}

// Close closes the storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
