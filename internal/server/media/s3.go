// Package media stores user-uploaded images in an S3-compatible bucket.
package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/videohub/internal/logging"
	"github.com/google/uuid"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// Object is a stored upload.
type Object struct {
	Key         string
	URL         string
	ContentType string
	Size        int64
}

// Uploader moves a local file to media storage. It returns nil when the
// upload fails and removes the local file in every case.
type Uploader interface {
	Upload(ctx context.Context, localPath string) *Object
}

// Putter is the part of the S3 client the uploader needs.
type Putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Config struct {
	Region        string
	AccessKey     string
	SecretKey     string
	Bucket        string
	BaseEndpoint  string
	PublicBaseURL string
}

// NewS3Client builds a path-style client with static credentials, suitable for
// MinIO as well as AWS.
func NewS3Client(ctx context.Context, c S3Config) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.AccessKey,
			c.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(c.BaseEndpoint)
		}
		o.UsePathStyle = true
	}), nil
}

type S3Uploader struct {
	client        Putter
	bucket        string
	publicBaseURL string
	logger        logging.Logger
	now           func() time.Time
}

func NewS3Uploader(client Putter, c S3Config, l logging.Logger) *S3Uploader {
	return &S3Uploader{
		client:        client,
		bucket:        c.Bucket,
		publicBaseURL: strings.TrimRight(c.PublicBaseURL, "/"),
		logger:        l.With("module", "media"),
		now:           time.Now,
	}
}

func (u *S3Uploader) storageKey(ext string) string {
	d := u.now().UTC()
	return fmt.Sprintf("media/%d/%d/%d/%v%s", d.Year(), d.Month(), d.Day(), uuid.New(), strings.ToLower(ext))
}

// URL is the public address of key.
func (u *S3Uploader) URL(key string) string {
	return u.publicBaseURL + "/" + u.bucket + "/" + key
}

func (u *S3Uploader) Upload(ctx context.Context, localPath string) *Object {
	if localPath == "" {
		return nil
	}
	defer func() {
		if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
			u.logger.Warn(ctx, "remove temp file", "path", localPath, "error", err)
		}
	}()

	obj, err := u.upload(ctx, localPath)
	if err != nil {
		u.logger.Error(ctx, "upload failed", "path", localPath, "error", err)
		return nil
	}

	u.logger.Info(ctx, "uploaded", "key", obj.Key, "size", obj.Size)
	return obj
}

func (u *S3Uploader) upload(ctx context.Context, localPath string) (*Object, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	contentType := http.DetectContentType(head[:n])

	key := u.storageKey(filepath.Ext(localPath))
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(st.Size()),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("put object: %w", err)
	}

	return &Object{Key: key, URL: u.URL(key), ContentType: contentType, Size: st.Size()}, nil
}
