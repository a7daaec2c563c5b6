package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"tutorbox-backend/internal/config"
)

// 객체 키 접두사
const (
	PrefixRecordings = "recordings"
	PrefixExports    = "exports"
)

var ErrNotConfigured = errors.New("s3 service is not configured")

// S3Service S3 업로드/다운로드 URL 발급
type S3Service struct {
	client        *s3.Client
	presign       *s3.PresignClient
	bucket        string
	region        string
	presignExpiry time.Duration
}

// PresignedURL 발급된 업로드 URL
type PresignedURL struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewS3Service S3 클라이언트 생성. 키가 없으면 기본 자격 증명 체인을 쓴다.
func NewS3Service(ctx context.Context, cfg *config.S3Config) (*S3Service, error) {
	if cfg == nil || cfg.BucketName == "" {
		return nil, ErrNotConfigured
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	return &S3Service{
		client:        client,
		presign:       s3.NewPresignClient(client),
		bucket:        cfg.BucketName,
		region:        cfg.Region,
		presignExpiry: expiry,
	}, nil
}

// ObjectKey prefix/ownerID/uuid.ext 형식의 키 생성
func ObjectKey(prefix string, ownerID int64, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	return fmt.Sprintf("%s/%d/%s%s", prefix, ownerID, uuid.NewString(), ext)
}

// KeyBelongsTo 키가 해당 소유자 경로 아래에 있는지 확인
func KeyBelongsTo(key, prefix string, ownerID int64) bool {
	return strings.HasPrefix(key, fmt.Sprintf("%s/%d/", prefix, ownerID)) && !strings.Contains(key, "..")
}

// GenerateUploadURL 업로드용 presigned PUT URL 발급
func (s *S3Service) GenerateUploadURL(ctx context.Context, prefix string, ownerID int64, fileName, contentType string) (*PresignedURL, error) {
	if s == nil {
		return nil, ErrNotConfigured
	}
	key := ObjectKey(prefix, ownerID, fileName)

	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.presignExpiry))
	if err != nil {
		return nil, fmt.Errorf("presign put: %w", err)
	}

	return &PresignedURL{
		URL:       req.URL,
		Key:       key,
		ExpiresAt: time.Now().Add(s.presignExpiry),
	}, nil
}

// PutObject 서버에서 직접 업로드 (내보내기 결과물)
func (s *S3Service) PutObject(ctx context.Context, key, contentType string, data []byte) error {
	if s == nil {
		return ErrNotConfigured
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// GetFileURL 다운로드용 presigned GET URL 발급
func (s *S3Service) GetFileURL(ctx context.Context, key string) (string, error) {
	if s == nil {
		return "", ErrNotConfigured
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.presignExpiry))
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return req.URL, nil
}

// GetPublicURL 버킷 공개 URL
func (s *S3Service) GetPublicURL(key string) string {
	if s == nil {
		return ""
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

// DeleteFile 객체 삭제
func (s *S3Service) DeleteFile(ctx context.Context, key string) error {
	if s == nil {
		return ErrNotConfigured
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}
