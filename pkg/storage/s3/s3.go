// Package s3 handles S3 archive storage for database backup files.
package s3

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ConradKhakhria/robot-database-script/pkg/config"
	"github.com/ConradKhakhria/robot-database-script/pkg/metrics"
	"github.com/ConradKhakhria/robot-database-script/pkg/storage/local"
)

// Object describes one archived backup object in the bucket.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Client represents an S3 client
type Client struct {
	s3Client *s3.Client
	cfg      *config.AppConfig
}

// NewClient creates a new S3 client
func NewClient() (*Client, error) {
	if !config.CFG.Backups.S3.Enabled {
		return nil, fmt.Errorf("S3 archiving is not enabled in configuration")
	}

	s3Client, err := getS3Client()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 client: %w", err)
	}

	return &Client{
		s3Client: s3Client,
		cfg:      &config.CFG,
	}, nil
}

// getS3Client initializes and returns an S3 client based on configuration
func getS3Client() (*s3.Client, error) {
	ctx := context.Background()
	s3cfg := config.CFG.Backups.S3

	// Create custom HTTP client with TLS configuration
	httpClient := &http.Client{}

	// Configure TLS settings if needed
	if s3cfg.UseSSL {
		tlsConfig := &tls.Config{}

		// Load custom CA if specified
		if s3cfg.CustomCAPath != "" && !s3cfg.SkipCertValidation {
			rootCAs, _ := x509.SystemCertPool()
			if rootCAs == nil {
				rootCAs = x509.NewCertPool()
			}

			caCert, err := os.ReadFile(s3cfg.CustomCAPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read custom CA certificate: %w", err)
			}

			if ok := rootCAs.AppendCertsFromPEM(caCert); !ok {
				return nil, fmt.Errorf("failed to append custom CA certificate")
			}

			tlsConfig.RootCAs = rootCAs
			log.Printf("Using custom CA certificate from %s", s3cfg.CustomCAPath)
		}

		// Skip certificate validation if specified
		if s3cfg.SkipCertValidation {
			tlsConfig.InsecureSkipVerify = true
			log.Printf("Warning: TLS certificate validation is disabled for S3 connections")
		}

		httpClient.Transport = &http.Transport{
			TLSClientConfig: tlsConfig,
		}
	}

	sdkOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s3cfg.AccessKey, s3cfg.SecretKey, "",
		)),
		awsconfig.WithHTTPClient(httpClient),
	}

	if s3cfg.Endpoint != "" {
		// Custom S3-compatible storage; the endpoint is set on the client below
		if config.CFG.Debug {
			log.Printf("S3 Debug: endpoint=%s region=%s pathStyle=%v",
				s3cfg.Endpoint, s3cfg.Region, s3cfg.PathStyle)
		}
	} else {
		sdkOptions = append(sdkOptions, awsconfig.WithRegion(s3cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, sdkOptions...)
	if err != nil {
		return nil, fmt.Errorf("AWS SDK config initialization error: %w", err)
	}

	s3Options := []func(*s3.Options){
		func(o *s3.Options) {
			o.UsePathStyle = s3cfg.PathStyle
		},
	}

	if s3cfg.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(s3cfg.Endpoint)
		})
	}

	return s3.NewFromConfig(awsCfg, s3Options...), nil
}

// ArchiveBackup uploads a backup file to the archive bucket and returns
// the object key it was stored under.
func (c *Client) ArchiveBackup(ctx context.Context, backupPath, fileName string) (string, error) {
	objectKey := buildObjectKey(c.cfg.Backups.S3.Prefix, fileName)

	if config.CFG.Debug {
		log.Printf("S3 Debug: Starting upload of file %s to key %s", backupPath, objectKey)
	}

	file, err := os.Open(backupPath)
	if err != nil {
		metrics.S3ArchiveCount.WithLabelValues("error").Inc()
		return "", fmt.Errorf("failed to open backup file for S3 upload: %w", err)
	}
	defer file.Close()

	uploadCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	_, err = c.s3Client.PutObject(uploadCtx, &s3.PutObjectInput{
		Bucket: aws.String(c.cfg.Backups.S3.Bucket),
		Key:    aws.String(objectKey),
		Body:   file,
	})
	if err != nil {
		metrics.S3ArchiveCount.WithLabelValues("error").Inc()

		log.Printf("S3 Debug: Error during upload: %v", err)
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			log.Printf("S3 Debug: URL error: %v, URL: %v, Op: %v",
				urlErr.Err, urlErr.URL, urlErr.Op)
		}

		return "", fmt.Errorf("failed to upload backup to S3: %w", err)
	}

	metrics.S3ArchiveCount.WithLabelValues("success").Inc()
	log.Printf("Successfully archived backup to S3: s3://%s/%s", c.cfg.Backups.S3.Bucket, objectKey)
	return objectKey, nil
}

// ListArchivedBackups returns all archived backup objects under the
// configured prefix.
func (c *Client) ListArchivedBackups(ctx context.Context) ([]Object, error) {
	prefix := c.cfg.Backups.S3.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	paginator := s3.NewListObjectsV2Paginator(c.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.cfg.Backups.S3.Bucket),
		Prefix: aws.String(prefix),
	})

	var objects []Object
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list S3 objects: %w", err)
		}

		for _, obj := range page.Contents {
			object := Object{Key: aws.ToString(obj.Key)}
			if obj.Size != nil {
				object.Size = *obj.Size
			}
			if obj.LastModified != nil {
				object.LastModified = *obj.LastModified
			}
			objects = append(objects, object)
		}
	}

	return objects, nil
}

// ArchivedKeysByFileName lists the archive and maps each backup file
// name to its object key, for reconciling the catalog.
func (c *Client) ArchivedKeysByFileName(ctx context.Context) (map[string]string, error) {
	objects, err := c.ListArchivedBackups(ctx)
	if err != nil {
		return nil, err
	}

	keys := make(map[string]string, len(objects))
	for _, obj := range objects {
		if !strings.HasSuffix(obj.Key, local.BackupExtension) {
			continue
		}
		keys[path.Base(obj.Key)] = obj.Key
	}

	return keys, nil
}

// buildObjectKey builds a consistent S3 object key for a backup file.
func buildObjectKey(prefix, fileName string) string {
	if prefix != "" {
		return fmt.Sprintf("%s/%s", strings.TrimSuffix(prefix, "/"), fileName)
	}
	return fileName
}
