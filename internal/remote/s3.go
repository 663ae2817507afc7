package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/studypal/studypal/internal/config"
)

// objectClient defines the minimal minio.Client operations used by
// S3Adapter. This interface enables testing with mock implementations.
type objectClient interface {
	StatObject(ctx context.Context, bucket, object string) (minio.ObjectInfo, error)
	PutObject(ctx context.Context, bucket, object string, data []byte, contentType string) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucket, object string) ([]byte, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
}

// minioClientWrapper wraps *minio.Client to satisfy the objectClient
// interface. Necessary because minio.Client methods take concrete option
// types that differ from our simplified interface.
type minioClientWrapper struct {
	client *minio.Client
}

func (w *minioClientWrapper) StatObject(ctx context.Context, bucket, object string) (minio.ObjectInfo, error) {
	return w.client.StatObject(ctx, bucket, object, minio.StatObjectOptions{})
}

func (w *minioClientWrapper) PutObject(ctx context.Context, bucket, object string, data []byte, contentType string) (minio.UploadInfo, error) {
	return w.client.PutObject(ctx, bucket, object, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
}

func (w *minioClientWrapper) GetObject(ctx context.Context, bucket, object string) ([]byte, error) {
	obj, err := w.client.GetObject(ctx, bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

func (w *minioClientWrapper) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return w.client.BucketExists(ctx, bucket)
}

// S3Adapter stores the backup as a single object in S3-compatible storage.
type S3Adapter struct {
	client        objectClient
	bucket        string
	objectName    string
	authenticated atomic.Bool
}

// NewAdapter creates the appropriate Adapter based on configuration.
// Returns NoopAdapter when the bucket is empty, S3Adapter otherwise.
func NewAdapter(cfg config.RemoteConfig) (Adapter, error) {
	if !cfg.Configured() {
		return NoopAdapter{}, nil
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return &S3Adapter{
		client:     &minioClientWrapper{client: client},
		bucket:     cfg.Bucket,
		objectName: objectKey(cfg.ObjectName),
	}, nil
}

// objectKey places the backup in an application-private prefix.
func objectKey(name string) string {
	if name == "" {
		name = "studypal.db.json"
	}
	return "studypal/" + name
}

// SignIn verifies the credentials against the bucket and establishes the
// session.
func (a *S3Adapter) SignIn(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return a.mapError("sign in", err)
	}
	if !exists {
		return fmt.Errorf("sign in: bucket %q does not exist", a.bucket)
	}
	a.authenticated.Store(true)
	return nil
}

// SignOut drops the session.
func (a *S3Adapter) SignOut() {
	a.authenticated.Store(false)
}

// Authenticated reports whether a session is established.
func (a *S3Adapter) Authenticated() bool {
	return a.authenticated.Load()
}

// Ready reports that the adapter is configured.
func (a *S3Adapter) Ready() bool { return true }

// FindBackup returns metadata for the backup object, or (nil, nil) when the
// object does not exist.
func (a *S3Adapter) FindBackup(ctx context.Context) (*Metadata, error) {
	if !a.Authenticated() {
		return nil, ErrNotSignedIn
	}

	info, err := a.client.StatObject(ctx, a.bucket, a.objectName)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, a.mapError("find backup", err)
	}

	return &Metadata{
		ModifiedTime: info.LastModified,
		Size:         info.Size,
		Exists:       true,
	}, nil
}

// Upload writes the backup object and returns its server-assigned metadata.
// The object is re-stat'ed after the write: the server's LastModified is
// authoritative and some providers omit it from the put response.
func (a *S3Adapter) Upload(ctx context.Context, data []byte, isUpdate bool) (*Metadata, error) {
	if !a.Authenticated() {
		return nil, ErrNotSignedIn
	}

	if _, err := a.client.PutObject(ctx, a.bucket, a.objectName, data, "application/json"); err != nil {
		return nil, a.mapError("upload backup", err)
	}

	info, err := a.client.StatObject(ctx, a.bucket, a.objectName)
	if err != nil {
		return nil, a.mapError("stat uploaded backup", err)
	}

	return &Metadata{
		ModifiedTime: info.LastModified,
		Size:         info.Size,
		Exists:       true,
	}, nil
}

// Download returns the raw backup document bytes.
func (a *S3Adapter) Download(ctx context.Context) ([]byte, error) {
	if !a.Authenticated() {
		return nil, ErrNotSignedIn
	}

	data, err := a.client.GetObject(ctx, a.bucket, a.objectName)
	if err != nil {
		return nil, a.mapError("download backup", err)
	}
	return data, nil
}

// mapError translates provider errors. 401-equivalents force sign-out and
// surface ErrAuthExpired; everything else keeps the provider message and is
// not retried here.
func (a *S3Adapter) mapError(op string, err error) error {
	if isAuthError(err) {
		a.SignOut()
		slog.Warn("remote session expired, forcing sign-out",
			"component", "remote",
			"action", "forced_sign_out",
			"op", op,
		)
		return fmt.Errorf("%s: %w", op, ErrAuthExpired)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.StatusCode == 404
}

func isAuthError(err error) bool {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "TokenRefreshRequired":
		return true
	}
	return resp.StatusCode == 401 || resp.StatusCode == 403
}
