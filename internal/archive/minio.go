package archive

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOArchiver ships closed (rotated) event files to object storage.
// Archiving is strictly additive: the local file stays in place and the
// queue never waits on an upload.
type MinIOArchiver struct {
	client *minio.Client
	bucket string
}

func NewMinIOArchiver(endpoint, accessKey, secretKey, bucket string) (*MinIOArchiver, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinIOArchiver{
		client: client,
		bucket: bucket,
	}, nil
}

// ArchiveFile uploads a closed events file under year/month/day/<name>.
func (m *MinIOArchiver) ArchiveFile(ctx context.Context, path string, closedAt time.Time) error {
	objectPath := fmt.Sprintf("%d/%02d/%02d/%s",
		closedAt.Year(),
		closedAt.Month(),
		closedAt.Day(),
		filepath.Base(path),
	)

	_, err := m.client.FPutObject(ctx, m.bucket, objectPath, path, minio.PutObjectOptions{
		ContentType: "application/x-ndjson",
	})
	if err != nil {
		return fmt.Errorf("upload to minio: %w", err)
	}

	return nil
}
