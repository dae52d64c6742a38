package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"examgrader/internal/common/storage"
	"examgrader/internal/grading/model"

	"github.com/klauspost/compress/zstd"
)

const (
	defaultArchivePrefix = "submissions"
	archiveContentType   = "application/zstd"
)

// ArchiveRecord is the audit copy of one graded submission.
type ArchiveRecord struct {
	Submission *model.Submission `json:"submission"`
	Percentage int               `json:"percentage"`
	// DroppedQuestionIDs lists answers that referenced questions outside the bank.
	DroppedQuestionIDs []int64   `json:"droppedQuestionIds,omitempty"`
	ArchivedAt         time.Time `json:"archivedAt"`
}

// Archiver stores audit records of graded submissions.
type Archiver interface {
	Archive(ctx context.Context, record ArchiveRecord) error
}

// ObjectArchiver writes zstd-compressed JSON records to object storage.
type ObjectArchiver struct {
	storage storage.ObjectStorage
	bucket  string
	prefix  string
	encoder *zstd.Encoder
}

func NewObjectArchiver(store storage.ObjectStorage, bucket, prefix string) (*ObjectArchiver, error) {
	if store == nil {
		return nil, errors.New("storage is required")
	}
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	prefix = strings.Trim(path.Clean("/"+prefix), "/")
	if prefix == "" {
		prefix = defaultArchivePrefix
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	return &ObjectArchiver{storage: store, bucket: bucket, prefix: prefix, encoder: encoder}, nil
}

// ArchiveKey is <prefix>/<examSetId>/<submissionId>.json.zst. Ids are escaped as single
// path segments, so no id can leave the prefix.
func (a *ObjectArchiver) ArchiveKey(examSetID, submissionID string) string {
	return a.prefix + "/" + keySegment(examSetID) + "/" + keySegment(submissionID) + ".json.zst"
}

func keySegment(id string) string {
	seg := url.PathEscape(id)
	switch seg {
	case "":
		return "_"
	case ".", "..":
		return strings.ReplaceAll(seg, ".", "%2E")
	}
	return seg
}

func (a *ObjectArchiver) Archive(ctx context.Context, record ArchiveRecord) error {
	if record.Submission == nil {
		return errors.New("submission is required")
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode archive record: %w", err)
	}
	compressed := a.encoder.EncodeAll(payload, nil)
	key := a.ArchiveKey(record.Submission.ExamSetID, record.Submission.ID)
	return a.storage.PutObject(ctx, a.bucket, key, bytes.NewReader(compressed), int64(len(compressed)), archiveContentType)
}

func (a *ObjectArchiver) Close() error {
	return a.encoder.Close()
}
