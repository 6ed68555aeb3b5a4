// Package archive uploads rotated event logs to an S3-compatible bucket and
// removes them locally once stored.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/types"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/util"
)

// Upload tuning.
const (
	UploadTimeout     = 5 * time.Minute
	RetryInterval     = time.Hour
	MaxUploadRetryAge = 24 * time.Hour
	queueSize         = 32
	contentType       = "application/x-ndjson"
)

// ErrNotConfigured is returned when the bucket or credentials are missing.
var ErrNotConfigured = errors.New("s3 archive is not configured")

// objectStore is the subset of the S3 client used here.
type objectStore interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// pendingUpload tracks a failed upload for retry.
type pendingUpload struct {
	localPath    string
	firstAttempt time.Time
	retryCount   int
	lastError    string
}

// Archiver uploads files queued with Enqueue from a single worker.
type Archiver struct {
	cfg    types.S3Config
	client objectStore
	queue  chan string
	now    func() time.Time

	mu         sync.Mutex
	retryQueue []pendingUpload
	uploaded   int
}

// IsConfigured reports whether cfg has enough settings to upload.
func IsConfigured(cfg types.S3Config) bool {
	return util.IsConfigured(cfg.Bucket, cfg.AccessKeyID, cfg.SecretAccessKey)
}

// New creates an archiver for the given bucket.
func New(cfg types.S3Config) (*Archiver, error) {
	if !IsConfigured(cfg) {
		return nil, ErrNotConfigured
	}
	return newArchiver(cfg, createS3Client(cfg)), nil
}

func newArchiver(cfg types.S3Config, client objectStore) *Archiver {
	return &Archiver{
		cfg:    cfg,
		client: client,
		queue:  make(chan string, queueSize),
		now:    time.Now,
	}
}

// createS3Client creates an S3 client with the given configuration.
func createS3Client(cfg types.S3Config) *s3.Client {
	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")

	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = region
		},
	}
	if cfg.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.New(s3.Options{}, options...)
}

// Enqueue schedules a file for upload. It never blocks; when the queue is
// full the file stays on disk and is picked up by the next backlog scan.
func (a *Archiver) Enqueue(localPath string) {
	select {
	case a.queue <- localPath:
		slog.Info("queued event log for upload", "file", filepath.Base(localPath))
	default:
		slog.Warn("archive upload queue full", "file", filepath.Base(localPath))
	}
}

// Run uploads queued files until ctx is cancelled, then drains the queue.
// Files in backlog are uploaded first.
func (a *Archiver) Run(ctx context.Context, backlog ...string) {
	for _, p := range backlog {
		a.upload(ctx, p)
	}

	ticker := time.NewTicker(RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.drain()
			return
		case p := <-a.queue:
			a.upload(ctx, p)
		case <-ticker.C:
			a.processRetryQueue(ctx)
		}
	}
}

// drain uploads whatever is still queued with a fresh context.
func (a *Archiver) drain() {
	ctx, cancel := context.WithTimeoutCause(context.Background(), UploadTimeout, errors.New("archive drain timeout"))
	defer cancel()
	for {
		select {
		case p := <-a.queue:
			a.upload(ctx, p)
		default:
			return
		}
	}
}

// objectKey returns the key for a local file under the configured prefix.
func (a *Archiver) objectKey(localPath string) string {
	return path.Join(a.cfg.Prefix, filepath.Base(localPath))
}

// upload stores one file and deletes it locally on success. Failures go to
// the retry queue.
func (a *Archiver) upload(ctx context.Context, localPath string) {
	if err := a.put(ctx, localPath); err != nil {
		slog.Error("event log upload failed", "file", filepath.Base(localPath), "error", err)
		a.addToRetryQueue(localPath, err.Error())
		return
	}
	a.finish(localPath)
}

func (a *Archiver) put(ctx context.Context, localPath string) error {
	ctx, cancel := context.WithTimeoutCause(ctx, UploadTimeout, errors.New("s3 upload timeout"))
	defer cancel()

	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.cfg.Bucket),
		Key:           aws.String(a.objectKey(localPath)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	return err
}

func (a *Archiver) finish(localPath string) {
	a.mu.Lock()
	a.uploaded++
	a.mu.Unlock()

	slog.Info("event log uploaded", "s3_key", a.objectKey(localPath))
	if err := os.Remove(localPath); err != nil {
		slog.Warn("failed to delete event log after upload", "path", localPath, "error", err)
	}
}

// addToRetryQueue adds a failed upload to the retry queue.
func (a *Archiver) addToRetryQueue(localPath, errMsg string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.retryQueue {
		if a.retryQueue[i].localPath == localPath {
			a.retryQueue[i].lastError = errMsg
			return
		}
	}
	a.retryQueue = append(a.retryQueue, pendingUpload{
		localPath:    localPath,
		firstAttempt: a.now(),
		lastError:    errMsg,
	})
}

// processRetryQueue retries every pending upload once. Uploads failing for
// longer than MaxUploadRetryAge are abandoned and the file is kept locally.
func (a *Archiver) processRetryQueue(ctx context.Context) {
	a.mu.Lock()
	pending := a.retryQueue
	a.retryQueue = nil
	a.mu.Unlock()

	now := a.now()
	var keep []pendingUpload
	for _, p := range pending {
		if now.Sub(p.firstAttempt) > MaxUploadRetryAge {
			slog.Warn("event log upload abandoned after 24h",
				"file", filepath.Base(p.localPath),
				"attempts", p.retryCount+1,
				"error", p.lastError)
			continue
		}

		p.retryCount++
		err := a.put(ctx, p.localPath)
		switch {
		case err == nil:
			a.finish(p.localPath)
		case errors.Is(err, os.ErrNotExist):
			slog.Warn("retry file no longer exists", "path", p.localPath)
		default:
			p.lastError = err.Error()
			keep = append(keep, p)
		}
	}

	a.mu.Lock()
	a.retryQueue = append(a.retryQueue, keep...)
	a.mu.Unlock()
}

// Pending returns the number of uploads waiting for a retry.
func (a *Archiver) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.retryQueue)
}

// Uploaded returns the number of files stored since start.
func (a *Archiver) Uploaded() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.uploaded
}

// TestConnection uploads and deletes a small object to verify access.
func TestConnection(ctx context.Context, cfg types.S3Config) error {
	if !IsConfigured(cfg) {
		return ErrNotConfigured
	}
	return testConnection(ctx, cfg, createS3Client(cfg))
}

func testConnection(ctx context.Context, cfg types.S3Config, client objectStore) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	key := path.Join(cfg.Prefix, fmt.Sprintf("test-connection-%d.txt", time.Now().UnixNano()))
	content := []byte("ZuidWest FM speaker switch connection test")

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
	})
	if err != nil {
		return fmt.Errorf("upload test file: %w", err)
	}

	if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(cfg.Bucket),
		Key:    aws.String(key),
	}); err != nil {
		slog.Warn("failed to delete test file", "key", key, "error", err)
	}
	return nil
}
