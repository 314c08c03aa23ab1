package storage

import (
	"context"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

const publicBaseURL = "https://storage.googleapis.com"

type CloudStorageClient struct {
	client     *storage.Client
	bucketName string
}

func NewCloudStorageClient(ctx context.Context, bucketName string, opts ...option.ClientOption) (*CloudStorageClient, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &CloudStorageClient{
		client:     client,
		bucketName: bucketName,
	}, nil
}

// UploadResult describes a stored object.
type UploadResult struct {
	URL        string
	ObjectName string
	Size       int64
}

// UploadChatImage stores an image sent in chatID by uid and makes it publicly
// readable. ext includes the leading dot.
func (c *CloudStorageClient) UploadChatImage(ctx context.Context, file io.Reader, contentType, ext, chatID, uid string) (*UploadResult, error) {
	name := chatImageObject(chatID, uid, ext, uuid.New())

	obj := c.client.Bucket(c.bucketName).Object(name)
	wc := obj.NewWriter(ctx)
	wc.ContentType = contentType
	wc.CacheControl = "public, max-age=86400"

	size, err := io.Copy(wc, file)
	if err != nil {
		wc.Close()
		return nil, fmt.Errorf("failed to copy file to GCS: %w", err)
	}

	if err := wc.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	if err := obj.ACL().Set(ctx, storage.AllUsers, storage.RoleReader); err != nil {
		return nil, fmt.Errorf("failed to set ACL: %w", err)
	}

	return &UploadResult{
		URL:        publicURL(c.bucketName, name),
		ObjectName: name,
		Size:       size,
	}, nil
}

func (c *CloudStorageClient) Close() error {
	return c.client.Close()
}

func chatImageObject(chatID, uid, ext string, id uuid.UUID) string {
	return path.Join("chats", chatID, uid+"-"+id.String()+ext)
}

func publicURL(bucket, object string) string {
	return fmt.Sprintf("%s/%s/%s", publicBaseURL, bucket, object)
}
