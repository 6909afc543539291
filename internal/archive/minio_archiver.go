// Package archive provides an optional write-behind durability extension
// that mirrors completed task results to S3-compatible object storage.
// It supplements, but never replaces, the Task Store's in-memory record,
// which remains authoritative for reads.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/example/batchgate/internal/tasks"
)

type MinIOArchiver struct {
	client *minio.Client
	bucket string
}

func NewMinIOArchiver(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinIOArchiver, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	a := &MinIOArchiver{client: client, bucket: bucket}
	go a.ensureBucket(context.Background())
	return a, nil
}

func (a *MinIOArchiver) ensureBucket(ctx context.Context) {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		log.Printf("archive: bucket check failed: %v", err)
		return
	}
	if exists {
		return
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		log.Printf("archive: bucket create failed: %v", err)
	}
}

// Archive is best-effort and asynchronous: an upload failure is logged
// and never affects the task's already-committed terminal state.
func (a *MinIOArchiver) Archive(ctx context.Context, taskID, batchID string, rec tasks.Record) {
	go func() {
		uploadCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		payload := map[string]any{
			"task_id":    rec.TaskID,
			"status":     rec.Status,
			"batch_id":   batchID,
			"result":     rec.Result,
			"error":      rec.Error,
			"created_at": rec.CreatedAt,
		}
		b, err := json.Marshal(payload)
		if err != nil {
			log.Printf("archive: marshal result for task %s: %v", taskID, err)
			return
		}
		objectName := taskID + "/result.json"
		_, err = a.client.PutObject(uploadCtx, a.bucket, objectName, bytes.NewReader(b), int64(len(b)), minio.PutObjectOptions{ContentType: "application/json"})
		if err != nil {
			log.Printf("archive: upload result for task %s: %v", taskID, err)
		}
	}()
}
