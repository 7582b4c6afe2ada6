package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	cfg "github.com/feichai0017/sheetscan/config"
	"github.com/feichai0017/sheetscan/pkg/logger"
	"github.com/feichai0017/sheetscan/pkg/storage/memory"
	"github.com/feichai0017/sheetscan/pkg/storage/minio"
	"github.com/feichai0017/sheetscan/pkg/storage/s3"
)

// StorageType 定义存储类型
type StorageType string

const (
	StorageTypeS3     StorageType = "s3"
	StorageTypeMinio  StorageType = "minio"
	StorageTypeMemory StorageType = "memory"
)

// Storage 上传文件与处理结果的对象存储
type Storage interface {
	// Put 存储对象, size 未知时传 -1
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	// Get 获取对象, 不存在时返回包装 models.ErrObjectNotFound 的错误
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// CleanupBefore 删除 prefix 下早于 threshold 的对象, 返回删除数量
	CleanupBefore(ctx context.Context, prefix string, threshold time.Time) (int, error)
}

// NewStorage 创建存储实例的工厂方法
func NewStorage(ctx context.Context, storageType StorageType, log logger.Logger) (Storage, error) {
	switch storageType {
	case StorageTypeS3:
		return s3.NewS3Storage(ctx, cfg.GetS3Config(), log)
	case StorageTypeMinio:
		return minio.NewMinioStorage(ctx, cfg.GetMinioConfig(), log)
	case StorageTypeMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}
