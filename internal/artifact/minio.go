package artifact

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"

	"github.com/sells-group/techpack-cli/internal/config"
	"github.com/sells-group/techpack-cli/internal/model"
)

// MinioStore keeps artifacts as objects in an S3-compatible bucket.
type MinioStore struct {
	client     *minio.Client
	bucket     string
	linkExpiry time.Duration
}

// NewMinio creates a MinioStore. It does not contact the server; call
// EnsureBucket before first use.
func NewMinio(cfg config.MinioConfig, linkExpireDays int) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, eris.Wrap(err, "artifact: create minio client")
	}
	if linkExpireDays <= 0 {
		linkExpireDays = 7
	}
	return &MinioStore{
		client:     client,
		bucket:     cfg.Bucket,
		linkExpiry: time.Duration(linkExpireDays) * 24 * time.Hour,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return eris.Wrapf(err, "artifact: check bucket %s", s.bucket)
	}
	if exists {
		return nil
	}
	return eris.Wrapf(s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}), "artifact: create bucket %s", s.bucket)
}

func (s *MinioStore) Stat(ctx context.Context, key string) (*model.Artifact, error) {
	info, err := s.client.StatObject(ctx, s.bucket, Name(key), minio.StatObjectOptions{})
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey" {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "artifact: stat %s", key)
	}
	return &model.Artifact{
		Key:        key,
		Name:       info.Key,
		Location:   s.bucket + "/" + info.Key,
		Size:       info.Size,
		ModifiedAt: info.LastModified.UTC(),
	}, nil
}

func (s *MinioStore) Save(ctx context.Context, key string, data []byte) (*model.Artifact, error) {
	_, err := s.client.PutObject(ctx, s.bucket, Name(key), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/pdf",
	})
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: upload %s", key)
	}
	return s.Stat(ctx, key)
}

func (s *MinioStore) Load(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, Name(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: get %s", key)
	}
	defer obj.Close() //nolint:errcheck

	data, err := io.ReadAll(obj)
	return data, eris.Wrapf(err, "artifact: read %s", key)
}

// Link returns a presigned GET URL valid for the configured expiry.
func (s *MinioStore) Link(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, Name(key), s.linkExpiry, nil)
	if err != nil {
		return "", eris.Wrapf(err, "artifact: presign %s", key)
	}
	return u.String(), nil
}
