package publish

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/wgdzlh/orthoveg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

const (
	CONTENT_TYPE_TIF = "image/tiff"
	CONTENT_TYPE_TXT = "text/plain; charset=utf-8"
)

type Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
}

func (c Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// 对象存储的最小接口，便于测试替换
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// 将产出的影像和报告上传至S3兼容的对象存储
type Publisher struct {
	store  objectStore
	cfg    Config
	logTag string
}

func New(cfg Config) (p *Publisher, err error) {
	endpoint := strings.TrimPrefix(cfg.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}
	return newPublisher(client, cfg), nil
}

func newPublisher(store objectStore, cfg Config) *Publisher {
	return &Publisher{store: store, cfg: cfg, logTag: "Publisher:"}
}

func (p *Publisher) ensureBucket(ctx context.Context) error {
	exists, err := p.store.BucketExists(ctx, p.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("error checking bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	if err = p.store.MakeBucket(ctx, p.cfg.Bucket, minio.MakeBucketOptions{Region: p.cfg.Region}); err != nil {
		return fmt.Errorf("error creating bucket %s: %w", p.cfg.Bucket, err)
	}
	log.Info(p.logTag+"bucket created", zap.String("bucket", p.cfg.Bucket))
	return nil
}

func (p *Publisher) ObjectName(runID, file string) string {
	return path.Join(p.cfg.Prefix, runID, filepath.Base(file))
}

func contentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".tif", ".tiff":
		return CONTENT_TYPE_TIF
	case ".txt":
		return CONTENT_TYPE_TXT
	}
	if ct := mime.TypeByExtension(filepath.Ext(file)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// 上传文件，返回对象名；不存在的文件跳过
func (p *Publisher) Upload(ctx context.Context, runID string, files ...string) (objects []string, err error) {
	if err = p.ensureBucket(ctx); err != nil {
		return
	}
	for _, f := range files {
		if _, e := os.Stat(f); e != nil {
			log.Warn(p.logTag+"skip missing artifact", zap.String("file", f))
			continue
		}
		obj := p.ObjectName(runID, f)
		info, e := p.store.FPutObject(ctx, p.cfg.Bucket, obj, f, minio.PutObjectOptions{ContentType: contentType(f)})
		if e != nil {
			log.Error(p.logTag+"upload failed", zap.String("file", f), zap.Error(e))
			return objects, fmt.Errorf("failed to upload %s: %w", f, e)
		}
		log.Info(p.logTag+"artifact uploaded", zap.String("bucket", p.cfg.Bucket), zap.String("object", obj), zap.Int64("size", info.Size))
		objects = append(objects, obj)
	}
	return
}
