package storagesvc

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/trezcool/congress/core"
)

const BackendBlob = "blob"

// Blob stores files in an S3 compatible bucket (AWS S3, MinIO..).
type Blob struct {
	client *minio.Client
	bucket string
}

var _ core.FileStorage = (*Blob)(nil)

// NewBlob connects to the object store and creates the bucket if it does not exist.
func NewBlob(ctx context.Context, conf core.StorageConfig) (*Blob, error) {
	if conf.Endpoint == "" {
		return nil, errors.New("storage endpoint is required")
	}
	if conf.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}

	endpoint, secure := conf.Endpoint, conf.UseSSL
	if u, err := url.Parse(conf.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		secure = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(conf.AccessKey, conf.SecretKey, ""),
		Secure: secure,
		Region: conf.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating blob storage client")
	}

	exists, err := client.BucketExists(ctx, conf.Bucket)
	if err != nil {
		return nil, errors.Wrap(err, "checking bucket")
	}
	if !exists {
		if err = client.MakeBucket(ctx, conf.Bucket, minio.MakeBucketOptions{Region: conf.Region}); err != nil {
			return nil, errors.Wrap(err, "creating bucket")
		}
	}
	return &Blob{client: client, bucket: conf.Bucket}, nil
}

func (s *Blob) Backend() string { return BackendBlob }

func (s *Blob) Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	return errors.Wrap(err, "uploading object")
}

func (s *Blob) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "getting object")
	}
	// GetObject is lazy: Stat surfaces missing keys
	if _, err = obj.Stat(); err != nil {
		_ = obj.Close()
		if isNotFound(err) {
			return nil, core.ErrFileNotFound
		}
		return nil, errors.Wrap(err, "getting object")
	}
	return obj, nil
}

func (s *Blob) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return errors.Wrap(err, "removing object")
	}
	return nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey"
}
