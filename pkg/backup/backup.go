// Package backup implements listing and filtering of database backup files.
package backup

import (
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/pkg/errors"

	"github.com/ConradKhakhria/robot-database-script/pkg/storage/local"
)

// Timestamp layouts accepted on the command line. Both are ISO 8601:
// a bare date or a date with a time.
const (
	TimestampLayout = "2006-01-02T15:04:05"
	DateLayout      = "2006-01-02"
)

// Filter defaults. Unfiltered listings cover everything from the epoch
// to the year 9999.
const (
	DefaultStart = "1970-01-01T00:00:00"
	DefaultEnd   = "9999-01-01T00:00:00"
	DefaultRegex = ".*"
)

// Flag names understood by the list-backups command.
const (
	FlagStart = "--start"
	FlagEnd   = "--end"
	FlagRegex = "--regex"
)

// ListOptions holds the parsed search constraints for a backup listing.
type ListOptions struct {
	// Start is the earliest modification time to include
	Start time.Time
	// End is the latest modification time to include
	End time.Time
	// Pattern matches against the file name stem, anchored at the start
	Pattern *regexp.Regexp
}

// ParseListOptions builds ListOptions from command line flags, applying
// the defaults for any flag not given.
func ParseListOptions(flags map[string]string) (ListOptions, error) {
	startValue, ok := flags[FlagStart]
	if !ok {
		startValue = DefaultStart
	}
	start, err := ParseTimestamp(startValue)
	if err != nil {
		return ListOptions{}, errors.Wrapf(err, "invalid %s value %q", FlagStart, startValue)
	}

	endValue, ok := flags[FlagEnd]
	if !ok {
		endValue = DefaultEnd
	}
	end, err := ParseTimestamp(endValue)
	if err != nil {
		return ListOptions{}, errors.Wrapf(err, "invalid %s value %q", FlagEnd, endValue)
	}

	regexValue, ok := flags[FlagRegex]
	if !ok {
		regexValue = DefaultRegex
	}
	pattern, err := regexp.Compile(regexValue)
	if err != nil {
		return ListOptions{}, errors.Wrapf(err, "invalid %s value %q", FlagRegex, regexValue)
	}

	return ListOptions{Start: start, End: end, Pattern: pattern}, nil
}

// ParseTimestamp parses an ISO 8601 date or datetime in local time.
func ParseTimestamp(value string) (time.Time, error) {
	for _, layout := range []string{TimestampLayout, DateLayout} {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not an ISO 8601 date ('%s' or '%s')",
		value, DateLayout, TimestampLayout)
}

// Matches reports whether a backup file satisfies the search constraints.
// Time bounds are inclusive and the pattern must match at the start of
// the file name stem.
func (o ListOptions) Matches(file local.BackupFile) bool {
	if file.ModTime.Before(o.Start) || file.ModTime.After(o.End) {
		return false
	}
	loc := o.Pattern.FindStringIndex(file.Stem)
	return loc != nil && loc[0] == 0
}

// List returns the backup files matching the search constraints, oldest
// first.
func List(client *local.Client, opts ListOptions) ([]local.BackupFile, error) {
	files, err := client.ListBackupFiles()
	if err != nil {
		return nil, err
	}

	matched := files[:0:0]
	for _, file := range files {
		if opts.Matches(file) {
			matched = append(matched, file)
		}
	}
	return matched, nil
}

// FormatEntry renders one listing line: the modification time followed by
// the quoted path.
func FormatEntry(file local.BackupFile) string {
	return fmt.Sprintf("%s - '%s'", file.ModTime.Format(TimestampLayout), file.Path)
}

// WriteList prints one line per backup file to w.
func WriteList(w io.Writer, files []local.BackupFile) {
	for _, file := range files {
		fmt.Fprintln(w, FormatEntry(file))
	}
}
