package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/app/backend"
)

type fakeUploader struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeUploader) Upload(_ context.Context, input *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = input
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &manager.UploadOutput{ETag: aws.String(`"etag"`)}, nil
}

func TestObjectKey(t *testing.T) {
	created := time.Unix(1700000000, 42)

	tests := []struct {
		receiver string
		want     string
	}{
		{"B", "messages/B/1700000000000000042-m1.json"},
		{"a/b c", "messages/a%2Fb%20c/1700000000000000042-m1.json"},
		{"", "messages/_/1700000000000000042-m1.json"},
	}

	for _, tc := range tests {
		got := ObjectKey(backend.Message{ID: "m1", ReceiverID: tc.receiver, CreatedAt: created})
		require.Equal(t, tc.want, got)
	}
}

func TestArchive_SaveMessage(t *testing.T) {
	req := require.New(t)
	fake := &fakeUploader{}
	archive := newArchive("chat-archive", fake)
	msg := backend.Message{ID: "m1", Content: "hi", SenderID: "A", ReceiverID: "B", CreatedAt: time.Unix(1700000000, 0)}

	req.NoError(archive.SaveMessage(context.Background(), msg, "tok"))

	req.Equal("chat-archive", aws.ToString(fake.input.Bucket))
	req.Equal(ObjectKey(msg), aws.ToString(fake.input.Key))
	req.Equal("application/json", aws.ToString(fake.input.ContentType))
	req.Equal(map[string]string{"sender": "A", "receiver": "B"}, fake.input.Metadata)

	var stored archivedMessage
	req.NoError(json.Unmarshal(fake.body, &stored))
	req.Equal("hi", stored.Content)
	req.Equal("A", stored.SenderID)
	req.Equal("B", stored.ReceiverID)
	req.True(msg.CreatedAt.Equal(stored.CreatedAt))
}

func TestArchive_SaveMessage_UploadError(t *testing.T) {
	archive := newArchive("chat-archive", &fakeUploader{err: context.DeadlineExceeded})

	err := archive.SaveMessage(context.Background(), backend.Message{ID: "m1", Content: "hi"}, "")

	require.True(t, errors.Is(err, context.DeadlineExceeded))
}
