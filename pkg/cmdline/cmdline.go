// Package cmdline implements the command-line dispatch for the
// experiments CLI: splitting a raw argument list into positional
// tokens and flag/value pairs, plus the shared help text.
package cmdline

import "fmt"

// Command names understood by the CLI.
const (
	CmdNewExperiment     = "new-experiment"
	CmdDeleteExperiment  = "delete-experiment"
	CmdListBackups       = "list-backups"
	CmdRestoreFromBackup = "restore-from-backup"
	CmdServe             = "serve"
	CmdVersion           = "version"
	CmdHelp              = "help"
)

// HelpText describes every command. Printed by the help command and
// appended to usage errors.
const HelpText = `
This utility manages experiment records in the lab database.

Commands:

- new-experiment -f [filename]:
    Adds a new experiment to the database using the definition
    given in the TOML file supplied.

- delete-experiment -f [filename]:
    Removes an experiment from the database using the experiment
    name given in the definition file.

- list-backups:
    Prints every available backup file together with the date and
    time it was created. There are a number of flags that can be
    used to filter the results:

    --start : an ISO 8601* date or datetime; only backups created
        at or after this moment are listed
    --end   : same as --start, except the latest moment to list
    --regex : a regular expression matched against the filename
        (not including path or extension)

    Sample queries:
        > robot-database-script list-backups --start 2023-02-11 --end 2023-04-01
          Lists all backups from between the 11th of February and
          the 1st of April 2023.

        > robot-database-script list-backups --start 2023-06-14T14:32:00
          Lists all backups from after the 14th of June 2023 at 2:32:00PM.

        > robot-database-script list-backups --regex .*50_Percent.*
          Lists all backups containing the substring '50_Percent'.

    *ISO 8601 means one of the following two formats:
    1. '2023-04-15' for the 15th of April 2023
    2. '2023-04-15T16:43:02' for 4:43:02PM on the 15th of April 2023

- restore-from-backup [filename]:
    Restores the database from the given backup file after an
    interactive confirmation.

- serve:
    Runs the status server: Prometheus metrics, status pages and the
    JSON API, with periodic rescans of the backup directory.

- version:
    Prints version information.

- help:
    Prints this help message.
`

// Arguments is the parsed form of a raw argument list.
type Arguments struct {
	Positional []string
	Flags      map[string]string
}

// Parse splits the argument list into an ordered slice of positional
// tokens and a map from flag name to its single following value. A
// token is a flag if and only if it is non-empty and begins with '-'.
// A flag always consumes the next token as its value, whatever that
// token looks like; a flag with nothing after it is a syntax error.
// Repeated flags keep the last value.
func Parse(args []string) (Arguments, error) {
	parsed := Arguments{Flags: make(map[string]string)}

	for i := 0; i < len(args); {
		arg := args[i]
		if len(arg) > 0 && arg[0] == '-' {
			if i+1 >= len(args) {
				return Arguments{}, fmt.Errorf("flag '%s' has no corresponding value", arg)
			}
			parsed.Flags[arg] = args[i+1]
			i += 2
			continue
		}
		parsed.Positional = append(parsed.Positional, arg)
		i++
	}

	return parsed, nil
}

// Command returns the first positional token, which names the command
// to run.
func (a Arguments) Command() (string, bool) {
	if len(a.Positional) == 0 {
		return "", false
	}
	return a.Positional[0], true
}

// Rest returns the positional tokens after the command name.
func (a Arguments) Rest() []string {
	if len(a.Positional) <= 1 {
		return nil
	}
	return a.Positional[1:]
}

// Flag returns the value of the named flag.
func (a Arguments) Flag(name string) (string, bool) {
	v, ok := a.Flags[name]
	return v, ok
}
