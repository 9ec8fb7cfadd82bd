package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// MaxProofFileSize is the largest payment proof accepted (5MB).
	MaxProofFileSize = 5 * 1024 * 1024
	// FolderPaymentProofs is the S3 prefix for payment proof objects.
	FolderPaymentProofs = "payment-proofs"
)

// AllowedProofTypes maps accepted payment proof MIME types to their extension.
var AllowedProofTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/jpg":       ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

var proofExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".pdf":  "application/pdf",
}

// S3Config holds S3 client configuration.
type S3Config struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	PaymentProofBucket   string
	PresignExpireMinutes int
}

// S3 stores payment proofs.
type S3 struct {
	client   *s3.Client
	presign  *s3.PresignClient
	uploader *manager.Uploader
	cfg      S3Config
	logger   *zap.Logger
}

// NewS3 creates an S3 client. Static credentials are used when both keys are configured,
// otherwise the default credential chain.
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
		logger.Info("S3 client using static credentials", zap.String("region", cfg.Region), zap.String("bucket", cfg.PaymentProofBucket))
	} else {
		logger.Warn("S3 client using default credential chain")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return &S3{
		client:  client,
		presign: s3.NewPresignClient(client),
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = 5 * 1024 * 1024
		}),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// ProofContentType resolves the content type of an upload from its declared type or, failing
// that, its extension. It reports false for types that are not accepted.
func ProofContentType(contentType, filename string) (string, bool) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if _, ok := AllowedProofTypes[ct]; ok {
		return ct, true
	}
	if ct, ok := proofExtensions[strings.ToLower(path.Ext(filename))]; ok {
		return ct, true
	}
	return "", false
}

// PaymentProofKey returns payment-proofs/{event_id}/{participant_id}/{random}{ext}.
func PaymentProofKey(eventID, participantID uuid.UUID, contentType string) string {
	return path.Join(FolderPaymentProofs, eventID.String(), participantID.String(), uuid.NewString()+AllowedProofTypes[contentType])
}

// ObjectURL returns the URL of key in the payment proof bucket.
func (s *S3) ObjectURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.PaymentProofBucket, s.cfg.Region, key)
}

func (s *S3) presignExpire() time.Duration {
	if s.cfg.PresignExpireMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.cfg.PresignExpireMinutes) * time.Minute
}

// PresignedUpload is a direct-to-bucket upload grant.
type PresignedUpload struct {
	UploadURL string    `json:"upload_url"`
	ObjectURL string    `json:"object_url"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PresignPaymentProof returns a pre-signed PUT for a new payment proof object.
func (s *S3) PresignPaymentProof(ctx context.Context, eventID, participantID uuid.UUID, contentType string) (PresignedUpload, error) {
	key := PaymentProofKey(eventID, participantID, contentType)
	expires := s.presignExpire()
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.PaymentProofBucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(o *s3.PresignOptions) {
		o.Expires = expires
	})
	if err != nil {
		return PresignedUpload{}, fmt.Errorf("presign put: %w", err)
	}
	return PresignedUpload{
		UploadURL: req.URL,
		ObjectURL: s.ObjectURL(key),
		Key:       key,
		ExpiresAt: time.Now().Add(expires).UTC(),
	}, nil
}

// UploadPaymentProof streams body to the bucket and returns the object URL.
func (s *S3) UploadPaymentProof(ctx context.Context, eventID, participantID uuid.UUID, contentType string, body io.Reader, size int64) (string, error) {
	key := PaymentProofKey(eventID, participantID, contentType)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.PaymentProofBucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	s.logger.Debug("payment proof uploaded", zap.String("key", key))
	return s.ObjectURL(key), nil
}
