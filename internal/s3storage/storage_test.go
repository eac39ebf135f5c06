package s3storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/afesign/internal/apperr"
	"github.com/dharsanguruparan/afesign/internal/config"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(&config.Config{
		S3Endpoint:  "localhost:9000",
		S3AccessKey: "minio",
		S3SecretKey: "minio123",
		RawBucket:   "afe-originals",
		FinalBucket: "afe-final",
	})
	require.NoError(t, err)
	return s
}

func TestResolveMapsAreasToBuckets(t *testing.T) {
	s := newTestStorage(t)

	bucket, object, err := s.resolve("originals/abc-report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "afe-originals", bucket)
	assert.Equal(t, "abc-report.pdf", object)

	bucket, object, err = s.resolve("final/xyz-signed.pdf")
	require.NoError(t, err)
	assert.Equal(t, "afe-final", bucket)
	assert.Equal(t, "xyz-signed.pdf", object)
}

func TestResolveRejectsMalformedKeys(t *testing.T) {
	s := newTestStorage(t)
	for _, key := range []string{"", "originals", "originals/", "scratch/file.pdf"} {
		_, _, err := s.resolve(key)
		assert.True(t, apperr.Is(err, apperr.KindValidation), key)
	}
}
