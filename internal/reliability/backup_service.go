// Package reliability keeps the simulator database safe: off-site backups
// and routine maintenance.
package reliability

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aristath/simtrader/internal/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

const (
	backupFilePrefix = "simtrader-"
	backupFileSuffix = ".db.gz"
	backupTimeLayout = "20060102T150405Z"

	// Rotation never removes the newest backups, whatever their age
	minBackupsToKeep = 3
)

// Source produces a consistent copy of the database at path.
// *database.DB satisfies it.
type Source interface {
	VacuumInto(ctx context.Context, path string) error
}

// Uploader is the part of the S3 upload manager used for backups
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// ObjectStore lists and deletes stored backups. *s3.Client satisfies it.
type ObjectStore interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// BackupInfo describes one stored backup
type BackupInfo struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	Checksum  string    `json:"checksum,omitempty"`
}

// BackupService uploads compressed database snapshots to S3-compatible storage
type BackupService struct {
	source     Source
	uploader   Uploader
	store      ObjectStore
	bucket     string
	prefix     string
	stagingDir string
	now        func() time.Time
	log        zerolog.Logger
}

// NewBackupService creates a backup service over explicit collaborators
func NewBackupService(
	source Source,
	uploader Uploader,
	store ObjectStore,
	bucket string,
	prefix string,
	stagingDir string,
	log zerolog.Logger,
) *BackupService {
	return &BackupService{
		source:     source,
		uploader:   uploader,
		store:      store,
		bucket:     bucket,
		prefix:     prefix,
		stagingDir: stagingDir,
		now:        time.Now,
		log:        log.With().Str("service", "backup").Logger(),
	}
}

// NewS3Client builds an S3 client from backup settings. A custom endpoint
// (Cloudflare R2, MinIO) switches the client to path-style addressing.
func NewS3Client(ctx context.Context, cfg *config.BackupConfig) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 configuration: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// NewBackupServiceFromConfig wires the service to a real S3 bucket
func NewBackupServiceFromConfig(ctx context.Context, source Source, cfg *config.Config, log zerolog.Logger) (*BackupService, error) {
	if !cfg.Backup.Enabled() {
		return nil, fmt.Errorf("backups are not configured: BACKUP_S3_BUCKET and credentials are required")
	}

	client, err := NewS3Client(ctx, cfg.Backup)
	if err != nil {
		return nil, err
	}

	return NewBackupService(
		source,
		manager.NewUploader(client),
		client,
		cfg.Backup.Bucket,
		cfg.Backup.Prefix,
		filepath.Join(cfg.DataDir, "backup-staging"),
		log,
	), nil
}

// Backup snapshots the database, compresses it and uploads it
func (s *BackupService) Backup(ctx context.Context) (*BackupInfo, error) {
	start := s.now()
	s.log.Info().Msg("Starting backup")

	if err := os.MkdirAll(s.stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	timestamp := start.UTC()
	name := backupFilePrefix + timestamp.Format(backupTimeLayout)
	dbPath := filepath.Join(s.stagingDir, name+".db")
	archivePath := filepath.Join(s.stagingDir, name+backupFileSuffix)
	defer os.Remove(dbPath)
	defer os.Remove(archivePath)

	// VACUUM INTO refuses to overwrite
	_ = os.Remove(dbPath)
	if err := s.source.VacuumInto(ctx, dbPath); err != nil {
		return nil, fmt.Errorf("failed to snapshot database: %w", err)
	}

	size, checksum, err := compress(dbPath, archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to compress snapshot: %w", err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	key := s.prefix + name + backupFileSuffix
	if _, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        archive,
		ContentType: aws.String("application/gzip"),
		Metadata:    map[string]string{"sha256": checksum},
	}); err != nil {
		return nil, fmt.Errorf("failed to upload backup: %w", err)
	}

	s.log.Info().
		Dur("duration_ms", time.Since(start)).
		Str("key", key).
		Int64("size_bytes", size).
		Msg("Backup completed")

	return &BackupInfo{Key: key, Timestamp: timestamp, SizeBytes: size, Checksum: checksum}, nil
}

// List returns stored backups, newest first
func (s *BackupService) List(ctx context.Context) ([]BackupInfo, error) {
	paginator := s3.NewListObjectsV2Paginator(s.store, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix + backupFilePrefix),
	})

	var backups []BackupInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list backups: %w", err)
		}

		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			timestamp, ok := parseBackupKey(s.prefix, *obj.Key)
			if !ok {
				s.log.Warn().Str("key", *obj.Key).Msg("Ignoring object with unexpected name")
				continue
			}

			info := BackupInfo{Key: *obj.Key, Timestamp: timestamp}
			if obj.Size != nil {
				info.SizeBytes = *obj.Size
			}
			backups = append(backups, info)
		}
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})

	return backups, nil
}

// Rotate deletes backups older than retentionDays, always keeping the
// newest few. A retention of zero keeps everything.
func (s *BackupService) Rotate(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	backups, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)
	deleted := 0
	for i, backup := range backups {
		if i < minBackupsToKeep || !backup.Timestamp.Before(cutoff) {
			continue
		}

		if _, err := s.store.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(backup.Key),
		}); err != nil {
			s.log.Error().Err(err).Str("key", backup.Key).Msg("Failed to delete old backup")
			continue
		}
		deleted++
	}

	s.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(backups)-deleted).
		Msg("Backup rotation completed")

	return deleted, nil
}

func parseBackupKey(prefix, key string) (time.Time, bool) {
	name := strings.TrimPrefix(key, prefix)
	if !strings.HasPrefix(name, backupFilePrefix) || !strings.HasSuffix(name, backupFileSuffix) {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, backupFilePrefix), backupFileSuffix)
	timestamp, err := time.Parse(backupTimeLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return timestamp, true
}

// compress gzips src into dst and returns the archive size and its sha256
func compress(src, dst string) (int64, string, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, "", err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, "", err
	}
	defer out.Close()

	hash := sha256.New()
	gz := gzip.NewWriter(io.MultiWriter(out, hash))
	if _, err := io.Copy(gz, in); err != nil {
		return 0, "", err
	}
	if err := gz.Close(); err != nil {
		return 0, "", err
	}

	info, err := out.Stat()
	if err != nil {
		return 0, "", err
	}

	return info.Size(), fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}
