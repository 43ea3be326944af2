// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bucket implements a backend.Backend over an S3-compatible
// object store: each id maps to a single object under
// a caller-supplied key prefix, and the object's ETag is the
// authoritative hash used for CAS. Rename is copy-then-delete, since
// S3 has no atomic rename operation.
package bucket

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/casvault/cas/lib/backend"
	"github.com/casvault/cas/lib/ids"
)

// Backend is an S3-compatible object-store backend.Backend.
type Backend struct {
	client *s3.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// New returns a Bucket backend that stores objects in bucketName under
// keyPrefix (normalized to end in "/"), using client for all requests.
func New(client *s3.Client, bucketName, keyPrefix string) *Backend {
	if keyPrefix != "" && !strings.HasSuffix(keyPrefix, "/") {
		keyPrefix += "/"
	}
	return &Backend{client: client, bucket: bucketName, prefix: keyPrefix, logger: slog.Default()}
}

// SetLogger replaces the backend's logger. A nil logger is ignored.
func (b *Backend) SetLogger(logger *slog.Logger) {
	if logger != nil {
		b.logger = logger
	}
}

var _ backend.Backend = (*Backend)(nil)

func (b *Backend) key(id ids.ContentId) (string, error) {
	rel, err := id.Path()
	if err != nil {
		return "", err
	}
	return b.prefix + rel, nil
}

// apiErrorCode extracts the S3 error code from err, whether it arrived
// as a modeled type (types.NotFound, types.NoSuchKey, ...) or as a
// generic smithy API error for a code the SDK does not model.
func apiErrorCode(err error) (string, bool) {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode(), true
	}
	return "", false
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	if code, ok := apiErrorCode(err); ok && (code == "NotFound" || code == "NoSuchKey") {
		return true
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == 404
	}
	return false
}

// isPreconditionFailed reports whether err represents the server
// rejecting a conditional write/delete (If-Match / If-None-Match
// mismatch), surfaced as HTTP 412 or 409 depending on the
// implementation.
func isPreconditionFailed(err error) bool {
	if code, ok := apiErrorCode(err); ok && (code == "PreconditionFailed" || code == "ConditionalRequestConflict") {
		return true
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		return status == 412 || status == 409
	}
	return false
}

func (b *Backend) head(ctx context.Context, id ids.ContentId) (etag string, mimeType ids.MimeType, ok bool, err error) {
	key, err := b.key(id)
	if err != nil {
		return "", "", false, err
	}
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(b.bucket), Key: aws.String(key)})
	if err != nil {
		if isNotFound(err) {
			return "", "", false, nil
		}
		return "", "", false, fmt.Errorf("bucket: head %s: %w", key, err)
	}
	contentType := ids.OctetStream
	if out.ContentType != nil && *out.ContentType != "" {
		contentType = ids.MimeType(*out.ContentType)
	}
	return aws.ToString(out.ETag), contentType, true, nil
}

func (b *Backend) Token(ctx context.Context, id ids.ContentId) (*backend.ConflictToken, error) {
	etag, _, ok, err := b.head(ctx, id)
	if err != nil || !ok {
		return nil, err
	}
	return backend.NewConflictToken(b, etag), nil
}

func (b *Backend) Exists(ctx context.Context, id ids.ContentId) (bool, error) {
	_, _, ok, err := b.head(ctx, id)
	return ok, err
}

func (b *Backend) Type(ctx context.Context, id ids.ContentId) (ids.MimeType, bool, error) {
	_, mimeType, ok, err := b.head(ctx, id)
	return mimeType, ok, err
}

func (b *Backend) Hash(ctx context.Context, id ids.ContentId) (string, bool, error) {
	etag, _, ok, err := b.head(ctx, id)
	return etag, ok, err
}

func (b *Backend) List(ctx context.Context) (<-chan backend.ListEntry, error) {
	out := make(chan backend.ListEntry)
	go func() {
		defer close(out)
		paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(b.bucket),
			Prefix: aws.String(b.prefix),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				select {
				case out <- backend.ListEntry{Err: fmt.Errorf("bucket: listing: %w", err)}:
				case <-ctx.Done():
				}
				return
			}
			for _, object := range page.Contents {
				key := aws.ToString(object.Key)
				id, parseErr := ids.ParseContentId(filepath.Base(key))
				if parseErr != nil {
					continue
				}
				select {
				case out <- backend.ListEntry{Id: id}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *Backend) Read(ctx context.Context, id ids.ContentId) (*backend.Object, error) {
	key, err := b.key(id)
	if err != nil {
		return nil, err
	}
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(b.bucket), Key: aws.String(key)})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("bucket: get %s: %w", key, err)
	}
	defer out.Body.Close()
	content, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("bucket: reading body: %w", err)
	}
	mimeType := ids.OctetStream
	if out.ContentType != nil && *out.ContentType != "" {
		mimeType = ids.MimeType(*out.ContentType)
	}
	return &backend.Object{Content: content, Type: mimeType}, nil
}

func (b *Backend) ReadStream(ctx context.Context, id ids.ContentId) (*backend.Stream, error) {
	key, err := b.key(id)
	if err != nil {
		return nil, err
	}
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(b.bucket), Key: aws.String(key)})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("bucket: get %s: %w", key, err)
	}
	mimeType := ids.OctetStream
	if out.ContentType != nil && *out.ContentType != "" {
		mimeType = ids.MimeType(*out.ContentType)
	}
	return &backend.Stream{Reader: out.Body, Type: mimeType}, nil
}

func (b *Backend) put(ctx context.Context, id ids.ContentId, data []byte, mimeType ids.MimeType, token *backend.ConflictToken) (bool, error) {
	key, err := b.key(id)
	if err != nil {
		return false, err
	}
	input := &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(string(mimeType)),
	}
	if token == nil {
		input.IfNoneMatch = aws.String("*")
	} else {
		tokenValue, err := token.Value(b)
		if err != nil {
			return false, err
		}
		input.IfMatch = aws.String(tokenValue)
	}

	_, err = b.client.PutObject(ctx, input)
	if err != nil {
		if isPreconditionFailed(err) {
			b.logger.Warn("bucket: write conflict", "id", id, "reason", "precondition failed")
			return false, nil
		}
		return false, fmt.Errorf("bucket: put %s: %w", key, err)
	}
	b.logger.Debug("bucket: write", "id", id)
	return true, nil
}

func (b *Backend) Write(ctx context.Context, id ids.ContentId, data []byte, mimeType ids.MimeType, token *backend.ConflictToken) (bool, error) {
	return b.put(ctx, id, data, mimeType, token)
}

func (b *Backend) WriteStream(ctx context.Context, id ids.ContentId, r io.Reader, mimeType ids.MimeType, token *backend.ConflictToken) (bool, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return false, fmt.Errorf("bucket: reading stream: %w", err)
	}
	return b.put(ctx, id, data, mimeType, token)
}

func (b *Backend) Delete(ctx context.Context, id ids.ContentId, token *backend.ConflictToken) (bool, error) {
	if token == nil {
		return false, nil
	}
	key, err := b.key(id)
	if err != nil {
		return false, err
	}
	tokenValue, err := token.Value(b)
	if err != nil {
		return false, err
	}
	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket:  aws.String(b.bucket),
		Key:     aws.String(key),
		IfMatch: aws.String(tokenValue),
	})
	if err != nil {
		if isPreconditionFailed(err) {
			b.logger.Warn("bucket: delete conflict", "id", id, "reason", "precondition failed")
			return false, nil
		}
		return false, fmt.Errorf("bucket: delete %s: %w", key, err)
	}
	b.logger.Debug("bucket: delete", "id", id)
	return true, nil
}

// Rename is implemented as copy-then-delete: not atomic at
// the protocol level, an accepted limitation for object stores that
// don't natively support rename.
func (b *Backend) Rename(ctx context.Context, source, target ids.ContentId) (bool, error) {
	sourceKey, err := b.key(source)
	if err != nil {
		return false, err
	}
	targetKey, err := b.key(target)
	if err != nil {
		return false, err
	}

	sourceEtag, _, sourceOk, err := b.head(ctx, source)
	if err != nil {
		return false, err
	}
	if !sourceOk {
		return false, nil
	}
	if _, _, targetOk, err := b.head(ctx, target); err != nil {
		return false, err
	} else if targetOk {
		return false, nil
	}

	_, err = b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(b.bucket),
		Key:               aws.String(targetKey),
		CopySource:        aws.String(b.bucket + "/" + sourceKey),
		CopySourceIfMatch: aws.String(sourceEtag),
		IfNoneMatch:       aws.String("*"),
	})
	if err != nil {
		if isPreconditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("bucket: copy %s to %s: %w", sourceKey, targetKey, err)
	}

	if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket:  aws.String(b.bucket),
		Key:     aws.String(sourceKey),
		IfMatch: aws.String(sourceEtag),
	}); err != nil && !isPreconditionFailed(err) {
		return false, fmt.Errorf("bucket: deleting source after copy: %w", err)
	}
	return true, nil
}
