package writer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	appconfig "econwatch/config"
	"econwatch/internal/metadata"
	"econwatch/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror copies archived files to a bucket under <prefix>/<source>/<file>
// and records each upload in a local manifest.
type S3Mirror struct {
	client   objectPutter
	bucket   string
	prefix   string
	version  string
	manifest *metadata.Manifest
	log      *logger.Log
}

// NewS3Mirror configures the AWS SDK from cfg.Storage.S3. Static keys are
// used when present, otherwise the default credential chain.
func NewS3Mirror(ctx context.Context, cfg *appconfig.Config) (*S3Mirror, error) {
	log := logger.GetLogger()
	s3cfg := cfg.Storage.S3

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(s3cfg.Region),
	}
	if s3cfg.AccessKeyID != "" && s3cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				s3cfg.AccessKeyID,
				s3cfg.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("s3_mirror").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if s3cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(s3cfg.Endpoint)
		}
		o.UsePathStyle = s3cfg.PathStyle
	})

	manifest, err := metadata.NewManifest(
		filepath.Join(cfg.Archive.Root, "_mirror", "manifest.json"),
		fmt.Sprintf("s3://%s/%s", s3cfg.Bucket, strings.Trim(s3cfg.Prefix, "/")),
	)
	if err != nil {
		return nil, err
	}

	log.WithComponent("s3_mirror").WithFields(logger.Fields{
		"bucket":     s3cfg.Bucket,
		"region":     s3cfg.Region,
		"endpoint":   s3cfg.Endpoint,
		"path_style": s3cfg.PathStyle,
	}).Info("s3 mirror initialized")

	return newS3Mirror(client, s3cfg.Bucket, s3cfg.Prefix, cfg.App.Version, manifest), nil
}

func newS3Mirror(client objectPutter, bucket, prefix, version string, manifest *metadata.Manifest) *S3Mirror {
	return &S3Mirror{
		client:   client,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		version:  version,
		manifest: manifest,
		log:      logger.GetLogger(),
	}
}

func objectKey(prefix, sourceID, name string) string {
	if prefix == "" {
		return path.Join(sourceID, name)
	}
	return path.Join(prefix, sourceID, name)
}

// Mirror uploads the snapshot and latest file of an archive result.
func (m *S3Mirror) Mirror(ctx context.Context, res Result) error {
	if err := m.UploadFile(ctx, res.SourceID, res.PeriodKey, res.SnapshotPath, "application/json", 0); err != nil {
		return err
	}
	if res.LatestPath == "" {
		return nil
	}
	return m.UploadFile(ctx, res.SourceID, res.LatestPeriod, res.LatestPath, "text/csv", -1)
}

// MirrorSummary uploads a summary report under <prefix>/summaries/. The
// config rejects a source with that id, so the keys never overlap.
func (m *S3Mirror) MirrorSummary(ctx context.Context, localPath string) error {
	return m.UploadFile(ctx, appconfig.ReservedSummaryID, "", localPath, "application/json", 0)
}

// UploadFile puts one local file. A negative records value counts the data
// rows of a CSV file.
func (m *S3Mirror) UploadFile(ctx context.Context, sourceID, period, localPath, contentType string, records int64) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read %s for upload: %w", localPath, err)
	}
	if records < 0 {
		records = int64(bytes.Count(data, []byte("\n")) - 1)
		if records < 0 {
			records = 0
		}
	}

	key := objectKey(m.prefix, sourceID, filepath.Base(localPath))
	log := m.log.WithComponent("s3_mirror").WithFields(logger.Fields{
		"bucket": m.bucket,
		"key":    key,
		"size":   len(data),
	})

	input := &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"source":            sourceID,
			"period":            period,
			"econwatch-version": m.version,
		},
	}
	if _, err := m.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", m.bucket, err)
	}
	log.Debug("uploaded to S3")

	if m.manifest == nil {
		return nil
	}
	partition := map[string]string{"source": sourceID}
	if period != "" {
		partition["period"] = period
	}
	return m.manifest.Add(metadata.ObjectFile{
		Path:        key,
		FileSize:    int64(len(data)),
		RecordCount: records,
		Partition:   partition,
		UploadedAt:  time.Now().UTC(),
	})
}
