package gcs

import (
	"context"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.ErrorContains(t, err, "client is required")

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer client.Close() //nolint:errcheck // test cleanup

	_, err = New(client, Config{})
	require.ErrorContains(t, err, "bucket name is required")

	store, err := New(client, Config{Bucket: "b", Prefix: "/reports/"})
	require.NoError(t, err)
	require.Equal(t, "reports/subscribe.txt", store.ObjectName("subscribe.txt"))
	require.NoError(t, store.Close())

	_, err = store.PutObject(context.Background(), "", "text/plain", nil)
	require.ErrorContains(t, err, "path is required")
}

func TestObjectNameWithoutPrefix(t *testing.T) {
	t.Parallel()

	s := &BlobStore{bucket: "b"}
	require.Equal(t, "data/subscribe.txt", s.ObjectName("/data/subscribe.txt"))
}
