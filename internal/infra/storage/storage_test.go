package storage

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/reposcan/internal/config"
	"github.com/openctemio/reposcan/pkg/logger"
)

func TestCompressZstd(t *testing.T) {
	report := bytes.Repeat([]byte(`{"severity":"high","rule":"G101"}`), 200)

	compressed := CompressZstd(report)
	assert.Less(t, len(compressed), len(report))

	out, err := DecompressZstd(compressed)
	require.NoError(t, err)
	assert.Equal(t, report, out)

	_, err = DecompressZstd([]byte("not zstd"))
	require.Error(t, err)
}

func TestNewS3ReportStore(t *testing.T) {
	ctx := context.Background()

	_, err := NewS3ReportStore(ctx, config.StorageConfig{}, logger.NewNop())
	require.Error(t, err)

	_, err = NewS3ReportStore(ctx, config.StorageConfig{Bucket: "b", Region: "us-east-1", AuthType: "magic"}, logger.NewNop())
	require.Error(t, err)

	store, err := NewS3ReportStore(ctx, config.StorageConfig{
		Bucket:          "reports",
		Region:          "us-east-1",
		Endpoint:        "http://localhost:9000",
		AuthType:        "keys",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		Prefix:          "/exports/",
	}, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "exports/org/scan.json.zst", store.objectKey("org/scan.json.zst"))

	url, _, err := store.PresignGet(ctx, "org/scan.json.zst", 0)
	require.NoError(t, err)
	assert.Contains(t, url, "http://localhost:9000/reports/exports/org/scan.json.zst")
	assert.Contains(t, url, "X-Amz-Signature=")
}
