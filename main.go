package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ConradKhakhria/robot-database-script/pkg/backup/catalog"
	"github.com/ConradKhakhria/robot-database-script/pkg/cmdline"
	"github.com/ConradKhakhria/robot-database-script/pkg/commands"
	"github.com/ConradKhakhria/robot-database-script/pkg/config"
	"github.com/ConradKhakhria/robot-database-script/pkg/database"
	"github.com/ConradKhakhria/robot-database-script/pkg/scheduler"
	"github.com/ConradKhakhria/robot-database-script/pkg/statusserver"
	"github.com/ConradKhakhria/robot-database-script/pkg/storage/local"
	"github.com/ConradKhakhria/robot-database-script/pkg/storage/s3"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(rawArgs []string) int {
	args, err := cmdline.Parse(rawArgs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\n%s", err, cmdline.HelpText)
		return exitUsage
	}

	command, ok := args.Command()
	if !ok {
		fmt.Fprintf(os.Stderr, "No command given\n\n%s", cmdline.HelpText)
		return exitUsage
	}

	switch command {
	case cmdline.CmdNewExperiment:
		return runNewExperiment(args)
	case cmdline.CmdDeleteExperiment:
		return report(commands.DeleteExperiment(args))
	case cmdline.CmdListBackups:
		return runListBackups(args)
	case cmdline.CmdRestoreFromBackup:
		return runRestoreFromBackup(args)
	case cmdline.CmdServe:
		return runServe(args)
	case cmdline.CmdVersion:
		commands.Version(os.Stdout)
		return exitOK
	case cmdline.CmdHelp:
		fmt.Fprint(os.Stdout, cmdline.HelpText)
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %s\n\n%s", command, cmdline.HelpText)
		return exitUsage
	}
}

// report prints err and maps it to an exit status.
func report(err error) int {
	if err == nil {
		return exitOK
	}
	if commands.IsUsageError(err) {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return exitError
}

func runNewExperiment(args cmdline.Arguments) int {
	config.LoadConfiguration()
	if err := config.ValidateDatabaseConfig(); err != nil {
		return report(err)
	}

	store, err := database.Connect()
	if err != nil {
		return report(err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("Error closing database connection: %v", err)
		}
	}()

	return report(commands.NewExperiment(context.Background(), store, args, os.Stdout))
}

func runListBackups(args cmdline.Arguments) int {
	config.LoadConfiguration()
	if err := config.ValidateBackupsConfig(); err != nil {
		return report(err)
	}

	client, err := local.NewClient()
	if err != nil {
		return report(err)
	}

	return report(commands.ListBackups(os.Stdout, client, args))
}

func runRestoreFromBackup(args cmdline.Arguments) int {
	config.LoadConfiguration()
	if err := config.ValidateBackupsConfig(); err != nil {
		return report(err)
	}

	client, err := local.NewClient()
	if err != nil {
		return report(err)
	}

	return report(commands.RestoreFromBackup(os.Stdin, os.Stdout, client, args))
}

func runServe(args cmdline.Arguments) int {
	if len(args.Rest()) > 0 {
		fmt.Fprintf(os.Stderr, "Too many arguments\n\n%s", cmdline.HelpText)
		return exitUsage
	}

	log.Println("Starting the experiments backup status server...")

	config.LoadConfiguration()
	if err := config.ValidateBackupsConfig(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	localClient, err := local.NewClient()
	if err != nil {
		log.Fatalf("Failed to open backup directory: %v", err)
	}
	if err := localClient.EnsureDirectory(); err != nil {
		log.Fatalf("Failed to create backup directory: %v", err)
	}

	if err := catalog.Initialize(); err != nil {
		log.Fatalf("Failed to initialize backup catalog: %v", err)
	}

	// First reconciliation so the pages have data immediately.
	if _, err := catalog.DefaultStore.Scan(localClient); err != nil {
		log.Printf("Warning: initial catalog scan failed: %v", err)
	}

	// The status pages degrade gracefully when the experiments database
	// is unreachable, so a connection failure is not fatal here.
	var store database.Store
	if err := config.ValidateDatabaseConfig(); err != nil {
		log.Printf("Warning: experiments database not configured: %v", err)
	} else if store, err = database.Connect(); err != nil {
		log.Printf("Warning: could not connect to the experiments database: %v", err)
		store = nil
	}

	var s3Client *s3.Client
	if config.CFG.Backups.S3.Enabled {
		s3Client, err = s3.NewClient()
		if err != nil {
			log.Printf("Warning: S3 archiving unavailable: %v", err)
		} else if archived, lerr := s3Client.ArchivedKeysByFileName(context.Background()); lerr != nil {
			log.Printf("Warning: could not list the S3 archive: %v", lerr)
		} else if updated := catalog.DefaultStore.SyncArchive(archived); updated > 0 {
			log.Printf("Linked %d cataloged backups to their S3 archive objects", updated)
		}
	}

	sched := scheduler.NewScheduler(catalog.DefaultStore, localClient, s3Client)
	if err := sched.SetupJobs(); err != nil {
		log.Fatalf("Failed to setup scheduled jobs: %v", err)
	}
	sched.Start()

	srv := statusserver.NewServer(store, localClient, s3Client, sched)
	httpServer := srv.Start()

	setupSignalHandling(sched, httpServer, store)

	log.Println("Status server is running. Press Ctrl+C to exit.")
	sched.WaitForever()
	return exitOK
}

// setupSignalHandling configures graceful shutdown on SIGINT or SIGTERM
func setupSignalHandling(sched *scheduler.Scheduler, httpServer *http.Server, store database.Store) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-c
		fmt.Printf("Received signal %s, shutting down...\n", sig)
		sched.Stop()

		if httpServer != nil {
			if err := httpServer.Close(); err != nil {
				log.Printf("Error shutting down HTTP server: %v", err)
			}
		}

		if store != nil {
			if err := store.Close(); err != nil {
				log.Printf("Error closing database connection: %v", err)
			}
		}

		os.Exit(0)
	}()
}
