// catalog-recovery rebuilds the backup catalog file from the backup files
// that still exist, on disk and optionally in the S3 archive.
package main

import (
	"fmt"
	"log"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ConradKhakhria/robot-database-script/pkg/backup/catalog"
	"github.com/ConradKhakhria/robot-database-script/pkg/config"
	"github.com/ConradKhakhria/robot-database-script/pkg/storage/local"
	"github.com/ConradKhakhria/robot-database-script/pkg/version"
)

var (
	configFile string
	outputFile string
	dryRun     bool
	includeS3  bool
)

// archiveObject is a backup file found in the S3 archive.
type archiveObject struct {
	Name         string
	Key          string
	Size         int64
	LastModified time.Time
}

// rebuildPlan is everything a rebuild would write, gathered up front so
// a dry run can report it without touching the catalog file.
type rebuildPlan struct {
	files    []local.BackupFile
	archived map[string]string // file name -> S3 object key
	s3Only   []archiveObject
}

var rootCmd = &cobra.Command{
	Use:   "catalog-recovery",
	Short: "Rebuild the backup catalog from surviving backup files",
	Long: `catalog-recovery reconstructs the backup catalog file after it has been
lost or corrupted. It scans the backup directory for backup files and
optionally lists the S3 archive, then writes a fresh catalog.`,
	SilenceUsage: true,
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Scan the backup directory and write a fresh catalog file",
	RunE:  runRebuild,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Get().String())
	},
}

func init() {
	rebuildCmd.Flags().StringVar(&configFile, "config", "", "path to the configuration file")
	rebuildCmd.Flags().StringVar(&outputFile, "output", "", "write the catalog here instead of the configured location")
	rebuildCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be cataloged without writing anything")
	rebuildCmd.Flags().BoolVar(&includeS3, "include-s3", false, "also list the S3 archive and mark archived entries")

	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runRebuild(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		os.Setenv("CONFIG_FILE", configFile)
	}
	config.LoadConfiguration()
	if err := config.ValidateBackupsConfig(); err != nil {
		return err
	}

	client, err := local.NewClient()
	if err != nil {
		return err
	}

	plan, err := buildPlan(client)
	if err != nil {
		return err
	}

	printSummary(plan)

	if dryRun {
		log.Println("Dry run completed, nothing was written")
		return nil
	}

	target := outputFile
	if target == "" {
		target = config.CFG.Backups.CatalogPath()
	}
	if _, err := os.Stat(target); err == nil {
		log.Printf("Replacing existing catalog at %s", target)
	}

	if err := writeCatalog(target, plan); err != nil {
		return err
	}

	log.Printf("Catalog written to %s", target)
	return nil
}

// buildPlan scans local storage and, when requested, the S3 archive.
func buildPlan(client *local.Client) (rebuildPlan, error) {
	plan := rebuildPlan{archived: make(map[string]string)}

	files, err := client.ListBackupFiles()
	if err != nil {
		return plan, err
	}
	plan.files = files

	if !includeS3 {
		return plan, nil
	}

	objects, err := listArchive()
	if err != nil {
		// The local scan is still useful on its own.
		log.Printf("Warning: could not list the S3 archive: %v", err)
		return plan, nil
	}

	onDisk := make(map[string]bool, len(files))
	for _, file := range files {
		onDisk[file.Name] = true
	}

	for _, obj := range objects {
		if onDisk[obj.Name] {
			plan.archived[obj.Name] = obj.Key
		} else {
			plan.s3Only = append(plan.s3Only, obj)
		}
	}

	return plan, nil
}

// listArchive lists backup files in the configured S3 bucket.
func listArchive() ([]archiveObject, error) {
	s3cfg := config.CFG.Backups.S3
	if !s3cfg.Enabled {
		return nil, fmt.Errorf("S3 archiving is not enabled in the configuration")
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(s3cfg.Region),
		Credentials: credentials.NewStaticCredentials(
			s3cfg.AccessKey,
			s3cfg.SecretKey,
			"",
		),
		Endpoint:         aws.String(s3cfg.Endpoint),
		S3ForcePathStyle: aws.Bool(s3cfg.PathStyle),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 session: %w", err)
	}

	svc := s3.New(sess)

	var objects []archiveObject
	params := &s3.ListObjectsV2Input{
		Bucket: aws.String(s3cfg.Bucket),
		Prefix: aws.String(s3cfg.Prefix),
	}

	err = svc.ListObjectsV2Pages(params, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			if !strings.HasSuffix(key, local.BackupExtension) {
				continue
			}

			objects = append(objects, archiveObject{
				Name:         path.Base(key),
				Key:          key,
				Size:         aws.Int64Value(obj.Size),
				LastModified: aws.TimeValue(obj.LastModified),
			})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects in bucket %s: %w", s3cfg.Bucket, err)
	}

	return objects, nil
}

// printSummary reports what the rebuild found.
func printSummary(plan rebuildPlan) {
	var totalSize int64
	for _, file := range plan.files {
		totalSize += file.Size
	}

	log.Println("Recovery summary:")
	log.Printf("- Backup files on disk: %d (%s)", len(plan.files), humanize.Bytes(uint64(totalSize)))
	if includeS3 {
		log.Printf("- Of those archived to S3: %d", len(plan.archived))
		log.Printf("- Archived but gone from disk: %d", len(plan.s3Only))
	}
}

// writeCatalog writes a fresh catalog at target from the plan. Files that
// only survive in the archive become missing entries with their S3 key.
func writeCatalog(target string, plan rebuildPlan) error {
	store := catalog.NewStore(target)

	for _, file := range plan.files {
		store.Upsert(file)
	}

	for name, key := range plan.archived {
		if err := store.SetS3Key(name, key); err != nil {
			log.Printf("Warning: could not mark %s as archived: %v", name, err)
		}
	}

	for _, obj := range plan.s3Only {
		entry := store.Upsert(local.BackupFile{
			Path:    obj.Key,
			Name:    obj.Name,
			Stem:    strings.TrimSuffix(obj.Name, local.BackupExtension),
			Size:    obj.Size,
			ModTime: obj.LastModified,
		})
		if err := store.MarkMissing(entry.ID); err != nil {
			log.Printf("Warning: could not mark %s as missing: %v", obj.Name, err)
			continue
		}
		if err := store.SetS3Key(obj.Name, obj.Key); err != nil {
			log.Printf("Warning: could not mark %s as archived: %v", obj.Name, err)
		}
	}

	return store.Save()
}
