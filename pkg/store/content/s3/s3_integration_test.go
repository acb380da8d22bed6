//go:build integration

package s3

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/homefs/pkg/store/content"
	contenttesting "github.com/marmos91/homefs/pkg/store/content/testing"
	"github.com/stretchr/testify/require"
)

// TestS3ContentStoreLocalstack runs the shared suite against an S3-compatible
// endpoint (Localstack, MinIO). Set HOMEFS_TEST_S3_ENDPOINT to enable it.
func TestS3ContentStoreLocalstack(t *testing.T) {
	endpoint := os.Getenv("HOMEFS_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("HOMEFS_TEST_S3_ENDPOINT not set")
	}

	ctx := context.Background()
	client, err := NewClient(ctx, ClientConfig{
		Region:          "us-east-1",
		Endpoint:        endpoint,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		UsePathStyle:    true,
	})
	require.NoError(t, err)

	bucket := fmt.Sprintf("homefs-test-%d", time.Now().UnixNano())
	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	require.NoError(t, err)

	n := 0
	suite := &contenttesting.StoreTestSuite{
		NewStore: func(t *testing.T) content.Store {
			n++
			store, err := NewS3ContentStore(ctx, S3ContentStoreConfig{
				Client:    client,
				Bucket:    bucket,
				KeyPrefix: fmt.Sprintf("run-%d/", n),
			})
			require.NoError(t, err)
			return store
		},
	}
	suite.Run(t)
}
