package s3

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		endpoint string
		ssl      bool
		want     string
	}{
		{"", false, ""},
		{"localhost:9000", false, "http://localhost:9000"},
		{"minio.internal:9000", true, "https://minio.internal:9000"},
		{"https://storage.googleapis.com", false, "https://storage.googleapis.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, endpointURL(tt.endpoint, tt.ssl), tt.endpoint)
	}
}

func TestNewBackendRequiresBucket(t *testing.T) {
	_, err := NewBackend(context.Background(), BackendConfig{Region: "us-east-1"})
	assert.Error(t, err)
}

func TestSignedURLIsOffline(t *testing.T) {
	ctx := context.Background()
	b, err := NewBackend(ctx, BackendConfig{
		Endpoint:  "localhost:9000",
		Bucket:    "desktop",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Region:    "us-east-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "s3", b.Type())

	url, err := b.SignedURL(ctx, "users/u1/files/report.pdf", 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://localhost:9000/desktop/users/u1/files/report.pdf?"), url)
	assert.Contains(t, url, "X-Amz-Expires=600")
}

func TestNewBackendFromJSON(t *testing.T) {
	_, err := NewBackendFromJSON(context.Background(), []byte(`not json`))
	assert.Error(t, err)
}
