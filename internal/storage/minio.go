package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/rs/zerolog"

	"resume-intel-go/internal/config"
	"resume-intel-go/internal/logger"
	"resume-intel-go/internal/pipeline"
	"resume-intel-go/internal/types"
)

// 确保MinIO实现了对象存储接口
var _ pipeline.BlobStore = (*MinIO)(nil)

// MinIO 原始简历文件与归一化文本的对象存储。
// 两类对象分桶存放，各自带独立的生命周期规则。
type MinIO struct {
	client     *minio.Client
	cfg        *config.MinIOConfig
	rawBucket  string
	textBucket string
	log        zerolog.Logger
}

// NewMinIO 创建MinIO客户端并确保存储桶就绪
func NewMinIO(cfg *config.MinIOConfig) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	rawBucket := cfg.RawBucket
	if rawBucket == "" {
		rawBucket = "resume-raw"
	}
	textBucket := cfg.NormalizedTextBucket
	if textBucket == "" {
		textBucket = "resume-normalized"
	}

	m := &MinIO{
		client:     client,
		cfg:        cfg,
		rawBucket:  rawBucket,
		textBucket: textBucket,
		log:        logger.With("minio"),
	}

	if err := m.ensureBucketExists(rawBucket, cfg.Location); err != nil {
		return nil, fmt.Errorf("确保原始文件存储桶 %s 存在失败: %w", rawBucket, err)
	}
	if err := m.ensureBucketExists(textBucket, cfg.Location); err != nil {
		return nil, fmt.Errorf("确保归一化文本存储桶 %s 存在失败: %w", textBucket, err)
	}

	if cfg.RawFileExpireDays > 0 || cfg.NormalizedTextExpireDays > 0 {
		if err := m.setupLifecycleRules(context.Background()); err != nil {
			m.log.Warn().Err(err).Msg("设置对象生命周期规则失败")
		}
	}

	m.log.Info().Str("endpoint", cfg.Endpoint).
		Str("raw_bucket", rawBucket).Str("text_bucket", textBucket).
		Msg("MinIO客户端初始化完成")
	return m, nil
}

// ensureBucketExists 存储桶不存在时创建
func (m *MinIO) ensureBucketExists(bucketName, location string) error {
	exists, err := m.client.BucketExists(context.Background(), bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if !exists {
		if err := m.client.MakeBucket(context.Background(), bucketName,
			minio.MakeBucketOptions{Region: location}); err != nil {
			return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
		}
	}
	return nil
}

// setupLifecycleRules 按配置为两个存储桶设置过期规则
func (m *MinIO) setupLifecycleRules(ctx context.Context) error {
	if m.cfg.RawFileExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, m.rawBucket, "expire-raw", m.cfg.RawFileExpireDays); err != nil {
			return fmt.Errorf("为原始文件存储桶设置生命周期失败: %w", err)
		}
	}
	if m.cfg.NormalizedTextExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, m.textBucket, "expire-normalized", m.cfg.NormalizedTextExpireDays); err != nil {
			return fmt.Errorf("为归一化文本存储桶设置生命周期失败: %w", err)
		}
	}
	return nil
}

// setupBucketLifecycle 为单个存储桶设置过期天数
func (m *MinIO) setupBucketLifecycle(ctx context.Context, bucketName, ruleID string, expiryDays int) error {
	lc := lifecycle.NewConfiguration()
	lc.Rules = []lifecycle.Rule{
		{
			ID:     ruleID,
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}
	return m.client.SetBucketLifecycle(ctx, bucketName, lc)
}

// PutRaw 保存上传的原始字节，返回 "bucket/objectKey" 形式的路径
func (m *MinIO) PutRaw(ctx context.Context, resumeID string, fileType types.FileType, data []byte) (string, error) {
	objectName := fmt.Sprintf("resume/%s/original%s", resumeID, extensionFor(fileType))

	_, err := m.client.PutObject(ctx, m.rawBucket, objectName,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentTypeFor(fileType)})
	if err != nil {
		return "", fmt.Errorf("上传对象 %s/%s 失败: %w", m.rawBucket, objectName, err)
	}
	return m.rawBucket + "/" + objectName, nil
}

// GetRaw 按 "bucket/objectKey" 路径读取原始字节
func (m *MinIO) GetRaw(ctx context.Context, path string) ([]byte, error) {
	bucket, objectName, err := splitObjectPath(path)
	if err != nil {
		return nil, err
	}

	obj, err := m.client.GetObject(ctx, bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("读取对象 %s 失败: %w", path, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("读取对象 %s 内容失败: %w", path, err)
	}
	return data, nil
}

// PutNormalizedText 保存归一化文本，返回对象路径
func (m *MinIO) PutNormalizedText(ctx context.Context, resumeID, text string) (string, error) {
	objectName := fmt.Sprintf("resume/%s/normalized.txt", resumeID)

	_, err := m.client.PutObject(ctx, m.textBucket, objectName,
		strings.NewReader(text), int64(len(text)),
		minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"})
	if err != nil {
		return "", fmt.Errorf("上传对象 %s/%s 失败: %w", m.textBucket, objectName, err)
	}
	return m.textBucket + "/" + objectName, nil
}

// GetNormalizedText 按路径读取归一化文本
func (m *MinIO) GetNormalizedText(ctx context.Context, path string) (string, error) {
	data, err := m.GetRaw(ctx, path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// splitObjectPath 拆出桶名与对象键
func splitObjectPath(path string) (bucket, objectName string, err error) {
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("非法对象路径: %s", path)
	}
	return parts[0], parts[1], nil
}

// extensionFor 声明类型对应的文件后缀
func extensionFor(fileType types.FileType) string {
	switch fileType {
	case types.FileTypePDF:
		return ".pdf"
	case types.FileTypeDOCX:
		return ".docx"
	default:
		return ".bin"
	}
}

// contentTypeFor 声明类型对应的Content-Type
func contentTypeFor(fileType types.FileType) string {
	switch fileType {
	case types.FileTypePDF:
		return "application/pdf"
	case types.FileTypeDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}
