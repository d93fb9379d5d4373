// Package objectstore provides a NATS JetStream archive for relayed audio.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	audioKeySuffix   = ".wav"
	headerAudioType  = "Content-Type"
	contentTypeAudio = "audio/wav"
	metadataSource   = "source_url"
)

// ErrNotFound indicates that no archived object exists under the key.
var ErrNotFound = errors.New("archived audio not found")

// NatsObjectStore implements core.AudioArchive on a JetStream object store bucket.
type NatsObjectStore struct {
	bucket string
	store  nats.ObjectStore
}

// New binds to bucketName, creating the bucket on first use.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*NatsObjectStore, error) {
	store, err := jetstreamContext.ObjectStore(bucketName)
	if err != nil {
		if !errors.Is(err, nats.ErrBucketNotFound) && !errors.Is(err, nats.ErrStreamNotFound) {
			return nil, fmt.Errorf("failed to bind to object store bucket '%s': %w", bucketName, err)
		}

		store, err = jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
			Bucket:      bucketName,
			Description: "Audio relayed by tts-relay.",
			TTL:         0,
			MaxBytes:    0,
			Storage:     nats.FileStorage,
			Replicas:    1,
			Placement:   nil,
			Metadata:    nil,
			Compression: false,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsObjectStore{
		bucket: bucketName,
		store:  store,
	}, nil
}

// Download retrieves an object from the bucket.
func (n *NatsObjectStore) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := n.store.Get(key, nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: '%s'", ErrNotFound, key)
		}

		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return data, nil
}

// Upload saves an object to the bucket.
func (n *NatsObjectStore) Upload(ctx context.Context, key string, data []byte) error {
	return n.put(ctx, key, data, nil)
}

// Archive stores relayed audio under a fresh key and returns the key.
func (n *NatsObjectStore) Archive(ctx context.Context, sourceURL string, audio []byte) (string, error) {
	key := uuid.NewString() + audioKeySuffix

	err := n.put(ctx, key, audio, map[string]string{metadataSource: sourceURL})
	if err != nil {
		return "", err
	}

	return key, nil
}

func (n *NatsObjectStore) put(ctx context.Context, key string, data []byte, metadata map[string]string) error {
	headers := nats.Header{}
	headers.Set(headerAudioType, contentTypeAudio)

	_, err := n.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: "",
		Headers:     headers,
		Metadata:    metadata,
		Opts:        nil,
	}, bytes.NewReader(data), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}
