/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package backups

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/formsync/config"
	"github.com/jerry-enebeli/formsync/database"
)

// S3API is the part of the S3 client used for uploads.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// BackupManager dumps the form store to the backup directory and ships zipped days to S3.
type BackupManager struct {
	Config   *config.Configuration
	S3Client S3API
	now      func() time.Time
}

func NewBackupManager(cfg *config.Configuration) *BackupManager {
	return &BackupManager{Config: cfg}
}

func (bm *BackupManager) clock() time.Time {
	if bm.now != nil {
		return bm.now()
	}
	return time.Now()
}

func (bm *BackupManager) driver() string {
	d := strings.ToLower(bm.Config.DataSource.Driver)
	if d != "" {
		return d
	}
	if strings.HasPrefix(bm.Config.DataSource.Dns, "postgres") {
		return database.DriverPostgres
	}
	return database.DriverSQLite
}

func (bm *BackupManager) dayDir(day time.Time) string {
	return filepath.Join(bm.Config.BackupDir, day.Format("2006-01-02"))
}

// BackupToDisk writes a dump of the store into <backup_dir>/<yyyy-mm-dd>/ and returns its path.
func (bm *BackupManager) BackupToDisk(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	switch bm.driver() {
	case database.DriverPostgres:
		return bm.backupPostgres(ctx)
	case database.DriverSQLite:
		return bm.backupSQLite(ctx)
	default:
		return "", fmt.Errorf("backups are not supported for driver %q", bm.driver())
	}
}

func (bm *BackupManager) prepareDir() (string, error) {
	now := bm.clock()
	dir := bm.dayDir(now)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", err
	}
	return dir, nil
}

func (bm *BackupManager) backupPostgres(ctx context.Context) (string, error) {
	parsedURL, err := url.Parse(bm.Config.DataSource.Dns)
	if err != nil {
		return "", fmt.Errorf("failed to parse data source: %w", err)
	}
	if parsedURL.Scheme != "postgres" && parsedURL.Scheme != "postgresql" {
		return "", fmt.Errorf("data source is not a postgres url")
	}

	db, err := sql.Open(database.DriverPostgres, bm.Config.DataSource.Dns)
	if err != nil {
		return "", fmt.Errorf("failed to open database connection: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return "", fmt.Errorf("failed to ping database: %w", err)
	}

	var dbSize string
	if err := db.QueryRowContext(ctx, "SELECT pg_size_pretty(pg_database_size(current_database()))").Scan(&dbSize); err != nil {
		return "", err
	}
	logrus.WithField("size", dbSize).Info("starting postgres backup")

	dir, err := bm.prepareDir()
	if err != nil {
		return "", err
	}

	dbUser := parsedURL.User.Username()
	dbPassword, _ := parsedURL.User.Password()
	dbHost, dbPort, err := net.SplitHostPort(parsedURL.Host)
	if err != nil {
		dbHost, dbPort = parsedURL.Host, "5432"
	}
	dbName := strings.TrimPrefix(parsedURL.Path, "/")

	backupFilePath := filepath.Join(dir, fmt.Sprintf("formsync-%s-backup.sql", bm.clock().Format("150405")))
	cmd := exec.CommandContext(ctx, "pg_dump", "-U", dbUser, "-d", dbName, "-f", backupFilePath)
	cmd.Env = append(os.Environ(), "PGHOST="+dbHost, "PGPORT="+dbPort, "PGUSER="+dbUser, "PGPASSWORD="+dbPassword)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pg_dump failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	logrus.Infof("backup successful: %s", backupFilePath)
	return backupFilePath, nil
}

func (bm *BackupManager) backupSQLite(ctx context.Context) (string, error) {
	source := strings.TrimPrefix(bm.Config.DataSource.Dns, "file:")
	if i := strings.Index(source, "?"); i >= 0 {
		source = source[:i]
	}
	if source == "" || source == ":memory:" {
		return "", fmt.Errorf("in-memory sqlite stores cannot be backed up")
	}
	info, err := os.Stat(source)
	if err != nil {
		return "", fmt.Errorf("failed to open database file: %w", err)
	}

	db, err := sql.Open(database.DriverSQLite, bm.Config.DataSource.Dns)
	if err != nil {
		return "", fmt.Errorf("failed to open database connection: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return "", fmt.Errorf("failed to ping database: %w", err)
	}
	logrus.WithField("size_bytes", info.Size()).Info("starting sqlite backup")

	dir, err := bm.prepareDir()
	if err != nil {
		return "", err
	}

	backupFilePath := filepath.Join(dir, fmt.Sprintf("formsync-%s-backup.db", bm.clock().Format("150405")))
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", backupFilePath); err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", backupFilePath, err)
	}

	logrus.Infof("backup successful: %s", backupFilePath)
	return backupFilePath, nil
}

// BackupToS3 takes a fresh dump, zips the day's backup directory and uploads it as <yyyy-mm-dd>.zip.
func (bm *BackupManager) BackupToS3(ctx context.Context) error {
	if _, err := bm.BackupToDisk(ctx); err != nil {
		return fmt.Errorf("failed to backup to disk: %w", err)
	}

	client, err := bm.s3Client(ctx)
	if err != nil {
		return err
	}

	day := bm.clock().Format("2006-01-02")
	zipFile := filepath.Join(os.TempDir(), fmt.Sprintf("formsync-%s-%d.zip", day, bm.clock().UnixNano()))
	if err := zipDir(bm.dayDir(bm.clock()), zipFile); err != nil {
		return err
	}
	defer os.Remove(zipFile)

	if err := uploadToS3(ctx, client, zipFile, bm.Config.S3BucketName, day+".zip"); err != nil {
		return err
	}

	logrus.Infof("backup for %s zipped and uploaded to S3", day)
	return nil
}

func (bm *BackupManager) s3Client(ctx context.Context) (S3API, error) {
	if bm.S3Client != nil {
		return bm.S3Client, nil
	}
	if bm.Config.S3BucketName == "" {
		return nil, fmt.Errorf("s3 bucket name is not configured")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(bm.Config.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(bm.Config.AwsAccessKeyId, bm.Config.AwsSecretAccessKey, "")),
	)
	if err != nil {
		return nil, err
	}

	bm.S3Client = s3.NewFromConfig(cfg)
	return bm.S3Client, nil
}

func zipDir(srcDir, destZip string) error {
	zipFile, err := os.Create(destZip)
	if err != nil {
		return err
	}
	defer zipFile.Close()

	writer := zip.NewWriter(zipFile)
	defer writer.Close()

	return filepath.Walk(srcDir, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(srcDir, filePath)
		if err != nil {
			return err
		}
		zipFileWriter, err := writer.Create(relPath)
		if err != nil {
			return err
		}

		srcFile, err := os.Open(filePath)
		if err != nil {
			return err
		}
		defer srcFile.Close()

		_, err = io.Copy(zipFileWriter, srcFile)
		return err
	})
}

func uploadToS3(ctx context.Context, client S3API, filePath, bucketName, itemKey string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(itemKey),
		Body:   file,
	})

	return err
}
