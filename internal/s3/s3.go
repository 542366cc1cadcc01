// Package s3 archives scan reports in an S3-compatible bucket.
package s3

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/oklog/ulid/v2"
)

type Client struct {
	mc     *minio.Client
	bucket string
}

func New(endpoint, accessKey, secretKey string, useSSL bool, bucket string) (*Client, error) {
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	return &Client{mc: mc, bucket: bucket}, nil
}

// ReportKey names the archived report for one skill. ULIDs sort by time, so
// a listing under the skill's prefix is chronological.
func ReportKey(owner, name string, at time.Time) string {
	id := ulid.MustNew(ulid.Timestamp(at), ulid.Monotonic(rand.Reader, 0))
	return fmt.Sprintf("reports/%s/%s/%s.json", clean(owner), clean(name), id.String())
}

func clean(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("/", "-", " ", "-", "..", "-").Replace(s)
}

// PutJSON stores v as an indented JSON object.
func (c *Client) PutJSON(ctx context.Context, key string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	_, err = c.mc.PutObject(ctx, c.bucket, key, bytes.NewReader(b), int64(len(b)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", c.bucket, key, err)
	}
	return nil
}

// GetJSON reads an archived object into v.
func (c *Client) GetJSON(ctx context.Context, key string, v any) error {
	obj, err := c.mc.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return err
	}
	defer obj.Close()
	if err := json.NewDecoder(obj).Decode(v); err != nil {
		return fmt.Errorf("get %s/%s: %w", c.bucket, key, err)
	}
	return nil
}

// Latest returns the newest report key under a skill's prefix, or "" when
// nothing is archived.
func (c *Client) Latest(ctx context.Context, owner, name string) (string, error) {
	prefix := fmt.Sprintf("reports/%s/%s/", clean(owner), clean(name))
	var latest string
	for obj := range c.mc.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return "", obj.Err
		}
		if obj.Key > latest {
			latest = obj.Key
		}
	}
	return latest, nil
}
