// Package s3 implements an S3-backed content store for homefs.
//
// Key layout mirrors the filesystem backend so buckets stay human-readable:
//
//	<prefix><owner>_home/.home     home marker (zero-byte object)
//	<prefix><owner>_home/<name>    file content
//
// S3 has no directories, so home existence is tracked by the marker object.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/marmos91/homefs/pkg/store/content"
)

const homeMarker = ".home"

// S3ContentStore implements content.Store using Amazon S3 or S3-compatible storage.
//
// Append is implemented as read-modify-write, which is adequate for the small
// text files homefs manages. Concurrent writers to the same object race with
// last-write-wins semantics; the engine serializes writes per owner.
type S3ContentStore struct {
	client    Client
	bucket    string
	keyPrefix string
}

// S3ContentStoreConfig contains configuration for the S3 content store.
type S3ContentStoreConfig struct {
	// Client is the configured S3 client
	Client Client

	// Bucket is the S3 bucket name
	Bucket string

	// KeyPrefix is an optional prefix for all object keys
	// Example: "homefs/" results in keys like "homefs/alice_home/a.txt"
	KeyPrefix string
}

// NewS3ContentStore creates a new S3-based content store.
//
// The bucket must already exist; access is verified with HeadBucket.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - cfg: S3 configuration
//
// Returns:
//   - *S3ContentStore: Initialized S3 content store
//   - error: Returns error if bucket access fails or context is cancelled
func NewS3ContentStore(ctx context.Context, cfg S3ContentStoreConfig) (*S3ContentStore, error) {
	// ========================================================================
	// Step 1: Check context before S3 operations
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 2: Validate configuration
	// ========================================================================

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	// ========================================================================
	// Step 3: Verify bucket access
	// ========================================================================

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return &S3ContentStore{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

// homePrefix returns the key prefix (with trailing slash) of an owner's home.
func (s *S3ContentStore) homePrefix(owner string) string {
	return s.keyPrefix + owner + content.HomeSuffix + "/"
}

func (s *S3ContentStore) markerKey(owner string) string {
	return s.homePrefix(owner) + homeMarker
}

func (s *S3ContentStore) objectKey(id content.ID) string {
	return s.homePrefix(id.Owner) + id.Name
}

func (s *S3ContentStore) EnsureHome(ctx context.Context, owner string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := content.ValidateOwner(owner); err != nil {
		return err
	}

	if err := s.put(ctx, s.markerKey(owner), nil); err != nil {
		return fmt.Errorf("failed to create home %s: %w", owner, err)
	}
	return nil
}

func (s *S3ContentStore) HomeExists(ctx context.Context, owner string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := content.ValidateOwner(owner); err != nil {
		return false, err
	}
	return s.head(ctx, s.markerKey(owner))
}

func (s *S3ContentStore) RemoveHome(ctx context.Context, owner string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := content.ValidateOwner(owner); err != nil {
		return err
	}

	keys, err := s.listKeys(ctx, s.homePrefix(owner), "")
	if err != nil {
		return fmt.Errorf("failed to list home %s: %w", owner, err)
	}

	// Delete the marker last so a partial failure leaves the home discoverable
	sort.Slice(keys, func(i, j int) bool {
		return !strings.HasSuffix(keys[i], "/"+homeMarker) && strings.HasSuffix(keys[j], "/"+homeMarker)
	})

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.delete(ctx, key); err != nil {
			return fmt.Errorf("failed to remove home %s: %w", owner, err)
		}
	}
	return nil
}

func (s *S3ContentStore) ListHome(ctx context.Context, owner string) ([]string, error) {
	exists, err := s.HomeExists(ctx, owner)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("home %s: %w", owner, content.ErrHomeNotFound)
	}

	prefix := s.homePrefix(owner)
	keys, err := s.listKeys(ctx, prefix, "/")
	if err != nil {
		return nil, fmt.Errorf("failed to list home %s: %w", owner, err)
	}

	names := make([]string, 0, len(keys))
	for _, key := range keys {
		name := strings.TrimPrefix(key, prefix)
		if name == "" || content.IsHidden(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *S3ContentStore) Create(ctx context.Context, id content.ID, data []byte) error {
	if err := content.ValidateID(id); err != nil {
		return err
	}
	exists, err := s.HomeExists(ctx, id.Owner)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("create %s: %w", id, content.ErrHomeNotFound)
	}

	if err := s.put(ctx, s.objectKey(id), data); err != nil {
		return fmt.Errorf("failed to create %s: %w", id, err)
	}
	return nil
}

func (s *S3ContentStore) Append(ctx context.Context, id content.ID, data []byte) error {
	old, err := s.Read(ctx, id)
	if err != nil {
		return err
	}

	merged := make([]byte, 0, len(old)+len(data))
	merged = append(merged, old...)
	merged = append(merged, data...)

	if err := s.put(ctx, s.objectKey(id), merged); err != nil {
		return fmt.Errorf("failed to append %s: %w", id, err)
	}
	return nil
}

func (s *S3ContentStore) Overwrite(ctx context.Context, id content.ID, data []byte) error {
	exists, err := s.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s: %w", id, content.ErrContentNotFound)
	}

	if err := s.put(ctx, s.objectKey(id), data); err != nil {
		return fmt.Errorf("failed to overwrite %s: %w", id, err)
	}
	return nil
}

func (s *S3ContentStore) Truncate(ctx context.Context, id content.ID) error {
	return s.Overwrite(ctx, id, nil)
}

func (s *S3ContentStore) Read(ctx context.Context, id content.ID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := content.ValidateID(id); err != nil {
		return nil, err
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", id, content.ErrContentNotFound)
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer func() { _ = result.Body.Close() }()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	return data, nil
}

func (s *S3ContentStore) Delete(ctx context.Context, id content.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := content.ValidateID(id); err != nil {
		return err
	}

	if err := s.delete(ctx, s.objectKey(id)); err != nil {
		return fmt.Errorf("failed to delete %s: %w", id, err)
	}
	return nil
}

func (s *S3ContentStore) Exists(ctx context.Context, id content.ID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := content.ValidateID(id); err != nil {
		return false, err
	}
	return s.head(ctx, s.objectKey(id))
}

// Close is a no-op; the S3 client has no resources to release.
func (s *S3ContentStore) Close() error {
	return nil
}

func (s *S3ContentStore) put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	return err
}

func (s *S3ContentStore) head(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to head object %s: %w", key, err)
}

// delete removes a key. S3 treats deleting a missing key as success, but some
// compatible servers answer NoSuchKey, which is mapped to success too.
func (s *S3ContentStore) delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// listKeys returns every key under prefix. With a delimiter, keys in nested
// "directories" are folded into common prefixes and omitted.
func (s *S3ContentStore) listKeys(ctx context.Context, prefix, delimiter string) ([]string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}
	if delimiter != "" {
		input.Delimiter = aws.String(delimiter)
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// isNotFound reports whether err is an S3 "missing object" error.
// GetObject returns NoSuchKey, HeadObject returns a bare NotFound.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
