/*
Package storage archives relayed messages in S3-compatible object storage.

Each message becomes one JSON object, grouped by receiver, so the archive can be listed per
conversation partner without a database. It is used when STORAGE_DRIVER is "s3".
*/
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"chatrelay/internal/app/backend"
	"chatrelay/internal/pkg/logx"
)

// KeyPrefix is the top-level folder of the archive.
const KeyPrefix = "messages"

// ServiceConfig holds the configuration required to connect to the storage service.
type ServiceConfig struct {
	S3BucketName      string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// uploader is the subset of *manager.Uploader the archive needs.
type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Archive implements backend.MessageStore on top of an S3 bucket.
type Archive struct {
	bucket   string
	uploader uploader
	logger   zerolog.Logger
}

var _ backend.MessageStore = (*Archive)(nil)

// archivedMessage is the JSON document written for every message.
type archivedMessage struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	SenderID   string    `json:"sender"`
	ReceiverID string    `json:"receiver"`
	CreatedAt  time.Time `json:"createdAt"`
}

// NewArchive connects to the bucket described by cfg and checks that it is reachable.
func NewArchive(ctx context.Context, cfg ServiceConfig) (*Archive, error) {
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := client.ping(ctx); err != nil {
		return nil, err
	}

	return newArchive(cfg.S3BucketName, client.uploader), nil
}

func newArchive(bucket string, u uploader) *Archive {
	return &Archive{
		bucket:   bucket,
		uploader: u,
		logger:   logx.Component("storage"),
	}
}

// ObjectKey returns the object key of msg: messages/<receiver>/<unix-nanos>-<id>.json.
func ObjectKey(msg backend.Message) string {
	receiver := msg.ReceiverID
	if receiver == "" {
		receiver = "_"
	}
	return fmt.Sprintf("%s/%s/%d-%s.json", KeyPrefix, url.PathEscape(receiver), msg.CreatedAt.UnixNano(), msg.ID)
}

// SaveMessage implements backend.MessageStore by uploading msg as a JSON object.
func (a *Archive) SaveMessage(ctx context.Context, msg backend.Message, _ string) error {
	body, err := json.Marshal(archivedMessage{
		ID:         msg.ID,
		Content:    msg.Content,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		CreatedAt:  msg.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode message %s: %w", msg.ID, err)
	}

	key := ObjectKey(msg)

	out, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"sender":   msg.SenderID,
			"receiver": msg.ReceiverID,
		},
	})
	if err != nil {
		return fmt.Errorf("upload message %s: %w", msg.ID, err)
	}

	a.logger.Debug().
		Str("message_id", msg.ID).
		Str("key", key).
		Str("etag", aws.ToString(out.ETag)).
		Msg("Message archived.")

	return nil
}
