// Package s3 archives document revisions in an S3 compatible bucket (AWS S3
// or MinIO). Each revision is one JSON object holding the snapshot and its
// payload under <prefix>/<document>/<revision>.json.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	core "designcore/internal/archive/core"
)

const defaultPrefix = "documents"

// Config holds construction parameters. Credentials come from the default
// AWS chain.
type Config struct {
	Region    string
	Bucket    string
	Prefix    string
	Endpoint  string // optional; custom endpoint such as MinIO
	PathStyle bool
}

// Store implements core.Store on one bucket.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
	mu     sync.Mutex
}

// New creates an S3 archive from cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newStore(client, cfg.Bucket, cfg.Prefix), nil
}

func newStore(client *s3.Client, bucket, prefix string) *Store {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{client: client, bucket: bucket, prefix: prefix}
}

// Driver implements core.Store.
func (s *Store) Driver() core.Driver { return core.DriverS3 }

// Bucket returns the configured bucket.
func (s *Store) Bucket() string { return s.bucket }

func (s *Store) docPrefix(documentID string) (string, error) {
	if strings.TrimSpace(documentID) == "" || strings.Contains(documentID, "/") {
		return "", fmt.Errorf("%w: invalid document id %q", core.ErrInvalidSnapshot, documentID)
	}
	return s.prefix + "/" + documentID + "/", nil
}

func objectKey(docPrefix string, rev int) string {
	return fmt.Sprintf("%s%06d.json", docPrefix, rev)
}

// revisions lists the revision keys under docPrefix, ascending.
func (s *Store) revisions(ctx context.Context, docPrefix string) ([]int, error) {
	var revs []int
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{Bucket: &s.bucket, Prefix: aws.String(docPrefix)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", docPrefix, err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimSuffix(path.Base(aws.ToString(obj.Key)), ".json")
			n, err := strconv.Atoi(name)
			if err != nil || n <= 0 {
				continue
			}
			revs = append(revs, n)
		}
	}
	sort.Ints(revs)
	return revs, nil
}

// Save implements core.Store.
func (s *Store) Save(ctx context.Context, snap core.Snapshot) (core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix, err := s.docPrefix(snap.DocumentID)
	if err != nil {
		return core.Snapshot{}, err
	}
	revs, err := s.revisions(ctx, prefix)
	if err != nil {
		return core.Snapshot{}, err
	}
	next := 1
	if len(revs) > 0 {
		next = revs[len(revs)-1] + 1
	}
	snap, err = core.Prepare(snap, next)
	if err != nil {
		return core.Snapshot{}, err
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return core.Snapshot{}, err
	}
	key := objectKey(prefix, snap.Revision)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata:    map[string]string{"snapshot-id": snap.ID, "checksum": snap.Checksum},
	})
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("put %s: %w", key, err)
	}
	return snap, nil
}

// Latest implements core.Store.
func (s *Store) Latest(ctx context.Context, documentID string) (core.Snapshot, error) {
	prefix, err := s.docPrefix(documentID)
	if err != nil {
		return core.Snapshot{}, err
	}
	revs, err := s.revisions(ctx, prefix)
	if err != nil {
		return core.Snapshot{}, err
	}
	if len(revs) == 0 {
		return core.Snapshot{}, core.NotFound(documentID, 0)
	}
	return s.Revision(ctx, documentID, revs[len(revs)-1])
}

// Revision implements core.Store.
func (s *Store) Revision(ctx context.Context, documentID string, rev int) (core.Snapshot, error) {
	prefix, err := s.docPrefix(documentID)
	if err != nil {
		return core.Snapshot{}, err
	}
	key := objectKey(prefix, rev)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if isNotFound(err) {
		return core.Snapshot{}, core.NotFound(documentID, rev)
	}
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("get %s: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()
	body, err := io.ReadAll(out.Body)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("read %s: %w", key, err)
	}
	var snap core.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return core.Snapshot{}, fmt.Errorf("decode %s: %w", key, err)
	}
	if err := core.Verify(snap); err != nil {
		return core.Snapshot{}, err
	}
	return snap, nil
}

// Revisions implements core.Store. Every revision object is fetched, so the
// cost grows with the history length.
func (s *Store) Revisions(ctx context.Context, documentID string) ([]core.Snapshot, error) {
	prefix, err := s.docPrefix(documentID)
	if err != nil {
		return nil, err
	}
	revs, err := s.revisions(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if len(revs) == 0 {
		return nil, core.NotFound(documentID, 0)
	}
	out := make([]core.Snapshot, 0, len(revs))
	for _, rev := range revs {
		snap, err := s.Revision(ctx, documentID, rev)
		if err != nil {
			return nil, err
		}
		out = append(out, snap.Info())
	}
	return out, nil
}

// Delete implements core.Store.
func (s *Store) Delete(ctx context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix, err := s.docPrefix(documentID)
	if err != nil {
		return 0, err
	}
	revs, err := s.revisions(ctx, prefix)
	if err != nil {
		return 0, err
	}
	for i, rev := range revs {
		key := objectKey(prefix, rev)
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key}); err != nil {
			return i, fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return len(revs), nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
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
