package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/tvoe/vidgrab/internal/config"
	"github.com/tvoe/vidgrab/internal/domain"
)

const (
	// MinPartSize is the minimum part size for multipart upload (5MB)
	MinPartSize = 5 * 1024 * 1024
	// DefaultPartSize is the default part size (50MB)
	DefaultPartSize = 50 * 1024 * 1024
	// MaxParts is the S3 limit on parts per upload
	MaxParts = 10000

	keyPrefix = "downloads"
)

// Client wraps S3 operations
type Client struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	bucket     string
	maxRetries int
}

// New creates a new S3 client
func New(cfg config.S3Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("s3 endpoint is required")
	}

	customResolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.Endpoint,
				HostnameImmutable: true,
				SigningRegion:     cfg.Region,
			}, nil
		},
	)

	awsCfg := aws.Config{
		Region:                      cfg.Region,
		Credentials:                 credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		EndpointResolverWithOptions: customResolver,
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return &Client{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		bucket:     cfg.BucketOutput,
		maxRetries: 3,
	}, nil
}

// ObjectKey returns the key a job's file is stored under
func ObjectKey(jobID uuid.UUID, fileName string) string {
	return path.Join(keyPrefix, jobID.String(), fileName)
}

// Upload uploads a file to S3 using multipart upload for large files
func (c *Client) Upload(ctx context.Context, bucket, key, srcPath string) (*UploadResult, error) {
	file, err := os.Open(srcPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	size := stat.Size()
	if size < MinPartSize {
		return c.uploadSimple(ctx, bucket, key, file, size)
	}

	return c.uploadMultipart(ctx, bucket, key, file, size)
}

// uploadSimple uploads a small file in a single request
func (c *Client) uploadSimple(ctx context.Context, bucket, key string, file *os.File, size int64) (*UploadResult, error) {
	output, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(bucket),
		Key:                aws.String(key),
		Body:               file,
		ContentLength:      aws.Int64(size),
		ContentType:        aws.String(domain.ContentTypeFor(key)),
		ContentDisposition: aws.String(contentDisposition(key)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload: %w", err)
	}

	return &UploadResult{
		Bucket: bucket,
		Key:    key,
		ETag:   aws.ToString(output.ETag),
		Size:   size,
	}, nil
}

// uploadMultipart uploads a large file using multipart upload
func (c *Client) uploadMultipart(ctx context.Context, bucket, key string, file *os.File, size int64) (*UploadResult, error) {
	createOutput, err := c.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:             aws.String(bucket),
		Key:                aws.String(key),
		ContentType:        aws.String(domain.ContentTypeFor(key)),
		ContentDisposition: aws.String(contentDisposition(key)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart upload: %w", err)
	}

	uploadID := aws.ToString(createOutput.UploadId)
	partSize, partCount := PartPlan(size)

	completedParts := make([]types.CompletedPart, 0, partCount)
	for partNum := int64(1); partNum <= partCount; partNum++ {
		offset := (partNum - 1) * partSize
		currentPartSize := partSize
		if remaining := size - offset; remaining < partSize {
			currentPartSize = remaining
		}

		etag, err := c.uploadPart(ctx, bucket, key, uploadID, int32(partNum), io.NewSectionReader(file, offset, currentPartSize))
		if err != nil {
			c.abortMultipartUpload(bucket, key, uploadID)
			return nil, fmt.Errorf("failed to upload part %d: %w", partNum, err)
		}

		completedParts = append(completedParts, types.CompletedPart{
			ETag:       etag,
			PartNumber: aws.Int32(int32(partNum)),
		})
	}

	completeOutput, err := c.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completedParts,
		},
	})
	if err != nil {
		c.abortMultipartUpload(bucket, key, uploadID)
		return nil, fmt.Errorf("failed to complete multipart upload: %w", err)
	}

	return &UploadResult{
		Bucket: bucket,
		Key:    key,
		ETag:   aws.ToString(completeOutput.ETag),
		Size:   size,
	}, nil
}

// uploadPart uploads one part, retrying with a linear backoff
func (c *Client) uploadPart(ctx context.Context, bucket, key, uploadID string, partNum int32, body *io.SectionReader) (*string, error) {
	var lastErr error
	for retry := 0; retry < c.maxRetries; retry++ {
		if _, err := body.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		output, err := c.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(key),
			UploadId:      aws.String(uploadID),
			PartNumber:    aws.Int32(partNum),
			Body:          body,
			ContentLength: aws.Int64(body.Size()),
		})
		if err == nil {
			return output.ETag, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(retry+1) * time.Second):
		}
	}
	return nil, lastErr
}

// abortMultipartUpload aborts a multipart upload, also after the caller's
// context is gone
func (c *Client) abortMultipartUpload(bucket, key, uploadID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
}

// PartPlan returns the part size and part count for a multipart upload
func PartPlan(size int64) (partSize, partCount int64) {
	partSize = DefaultPartSize
	if size > partSize*MaxParts {
		partSize = (size + MaxParts - 1) / MaxParts
	}
	partCount = (size + partSize - 1) / partSize
	return partSize, partCount
}

// PresignGet returns a time-limited download link for an object
func (c *Client) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	req, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign object: %w", err)
	}
	return req.URL, nil
}

// Health checks S3 connectivity
func (c *Client) Health(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	return err
}

// UploadResult holds the result of an upload operation
type UploadResult struct {
	Bucket string
	Key    string
	ETag   string
	Size   int64
}

func contentDisposition(key string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(key)})
}
