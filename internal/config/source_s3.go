package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/jellydator/ttlcache/v3"

	reelerrors "reelpipe/internal/errors"
)

// S3API is the subset of the S3 client used by ObjectStorageStore.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// configDocument is one parsed {env}/{segment}-config.json file. A nil
// body records that the object does not exist.
type configDocument struct {
	body map[string]any
}

// ObjectStorageStore reads keys from JSON documents in an S3 bucket.
// Documents are held for docTTL so that sibling keys share one GET.
type ObjectStorageStore struct {
	client S3API
	bucket string
	keys   KeyMapper
	docs   *ttlcache.Cache[string, configDocument]
}

// NewObjectStorageStore wraps an S3 client for the given bucket.
func NewObjectStorageStore(client S3API, bucket string, keys KeyMapper, docTTL time.Duration) *ObjectStorageStore {
	if docTTL <= 0 {
		docTTL = time.Minute
	}
	return &ObjectStorageStore{
		client: client,
		bucket: bucket,
		keys:   keys,
		docs: ttlcache.New(
			ttlcache.WithTTL[string, configDocument](docTTL),
			ttlcache.WithDisableTouchOnHit[string, configDocument](),
		),
	}
}

func (s *ObjectStorageStore) Source() Source {
	return SourceObjectStorage
}

func (s *ObjectStorageStore) Lookup(ctx context.Context, key string) (Value, error) {
	objectKey, path := s.keys.ObjectKey(key)
	doc, err := s.document(ctx, objectKey)
	if err != nil {
		return Null(), err
	}
	if doc.body == nil {
		return Null(), reelerrors.ErrConfigNotFound
	}
	v, ok := Object(doc.body).Lookup(path...)
	if !ok {
		return Null(), reelerrors.ErrConfigNotFound
	}
	return v, nil
}

// Forget drops every cached document.
func (s *ObjectStorageStore) Forget() {
	s.docs.DeleteAll()
}

func (s *ObjectStorageStore) document(ctx context.Context, objectKey string) (configDocument, error) {
	if item := s.docs.Get(objectKey); item != nil {
		return item.Value(), nil
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if isMissingObject(err) {
			s.docs.Set(objectKey, configDocument{}, ttlcache.DefaultTTL)
			return configDocument{}, nil
		}
		return configDocument{}, fmt.Errorf("get s3://%s/%s: %w", s.bucket, objectKey, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return configDocument{}, fmt.Errorf("read s3://%s/%s: %w", s.bucket, objectKey, err)
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return configDocument{}, fmt.Errorf("parse s3://%s/%s: %w", s.bucket, objectKey, err)
	}
	if body == nil {
		body = map[string]any{}
	}

	doc := configDocument{body: body}
	s.docs.Set(objectKey, doc, ttlcache.DefaultTTL)
	return doc, nil
}

func isMissingObject(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return true
		}
	}
	return false
}
