// Package commands implements the experiment and backup commands behind
// the command line interface.
package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/ConradKhakhria/robot-database-script/pkg/backup"
	"github.com/ConradKhakhria/robot-database-script/pkg/cmdline"
	"github.com/ConradKhakhria/robot-database-script/pkg/database"
	"github.com/ConradKhakhria/robot-database-script/pkg/experiment"
	"github.com/ConradKhakhria/robot-database-script/pkg/metrics"
	"github.com/ConradKhakhria/robot-database-script/pkg/storage/local"
	"github.com/ConradKhakhria/robot-database-script/pkg/version"
)

// ErrNotImplemented marks commands whose database procedure has not been
// agreed with the lab yet.
var ErrNotImplemented = errors.New("not implemented")

// UsageError indicates a malformed command line. The caller prints the
// message and exits with the usage status.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// Usagef builds a UsageError from a format string.
func Usagef(format string, args ...interface{}) error {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

// IsUsageError reports whether err is a UsageError.
func IsUsageError(err error) bool {
	var usageErr *UsageError
	return errors.As(err, &usageErr)
}

// NewExperiment loads the definition file named by the -f flag and writes
// the experiment and its parameters to the database.
func NewExperiment(ctx context.Context, store database.Store, args cmdline.Arguments, out io.Writer) error {
	if len(args.Rest()) > 0 {
		return Usagef("too many arguments given to new-experiment\n\n%s", cmdline.HelpText)
	}

	fileName, ok := args.Flag("-f")
	if !ok {
		return Usagef("new-experiment requires a -f flag giving the experiment config file\n\n%s", cmdline.HelpText)
	}

	def, err := experiment.Load(fileName)
	if err != nil {
		return err
	}

	start := time.Now()
	id, err := store.CreateExperiment(ctx, def)
	metrics.StoreOperationDuration.WithLabelValues(store.Name(), "create").
		Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ExperimentsCreated.WithLabelValues(store.Name(), "error").Inc()
		return err
	}
	metrics.ExperimentsCreated.WithLabelValues(store.Name(), "success").Inc()

	fmt.Fprintf(out, "Created experiment '%s' with ID %d\n", def.UserDefinedID, id)
	return nil
}

// DeleteExperiment is not available yet. The lab has not agreed a delete
// procedure for the experiments database, so this fails rather than guess
// at one.
func DeleteExperiment(args cmdline.Arguments) error {
	return errors.Wrap(ErrNotImplemented,
		"delete-experiment: the delete procedure for the experiments database has not been agreed")
}

// ListBackups prints every backup file matching the --start, --end and
// --regex flags, oldest first.
func ListBackups(out io.Writer, client *local.Client, args cmdline.Arguments) error {
	if len(args.Rest()) > 0 {
		return Usagef("Too many arguments\n\n%s", cmdline.HelpText)
	}

	opts, err := backup.ParseListOptions(args.Flags)
	if err != nil {
		return err
	}

	files, err := backup.List(client, opts)
	if err != nil {
		return err
	}

	backup.WriteList(out, files)
	return nil
}

// RestoreFromBackup stages a database restore: it resolves the named
// backup file against the backup directory, verifies it exists, and asks
// for confirmation. The restore itself is not implemented, so a confirmed
// request fails after the prompt and a declined one leaves the database
// untouched.
func RestoreFromBackup(in io.Reader, out io.Writer, client *local.Client, args cmdline.Arguments) error {
	rest := args.Rest()
	if len(rest) != 1 {
		return Usagef("Bad syntax - expected the following\n> robot-database-script restore-from-backup [filename]")
	}

	path := client.Resolve(rest[0])
	if _, err := client.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return errors.Errorf("backup file '%s' does not exist", path)
		}
		return errors.Wrap(err, "failed to inspect backup file")
	}

	fmt.Fprintf(out, "Are you sure that this is the correct filename? '%s'\ntype 'yes' to confirm: ", path)

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return errors.Wrap(err, "failed to read confirmation")
	}

	if strings.TrimRight(line, "\r\n") == "yes" {
		return errors.Wrap(ErrNotImplemented,
			"restore-from-backup: the scheme for restoring experiments has not been agreed")
	}

	fmt.Fprintln(out, "The database has not been changed. Goodbye :)")
	return nil
}

// Version prints build information.
func Version(out io.Writer) {
	fmt.Fprintln(out, version.Get().String())
}
