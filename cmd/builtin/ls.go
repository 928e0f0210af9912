package builtin

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/mwantia/s3fs/cmd"
	"github.com/mwantia/s3fs/data"
)

type LsCommand struct {
}

// Name returns the command identifier
func (ls *LsCommand) Name() string {
	return "ls"
}

// Description returns human-readable help text
func (ls *LsCommand) Description() string {
	return "List the entries of a directory"
}

// Usage returns a usage string for help (e.g. "ls -l [uri]")
func (ls *LsCommand) Usage() string {
	return "ls [-l] [-H] [uri]"
}

// Execute runs the command with parsed arguments
// Returns exit code (0 = success) and error message
func (ls *LsCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, writer io.Writer) (int, error) {
	if err := args.Require(0, 1); err != nil {
		return 2, err
	}

	records, err := api.ReadDir(ctx, args.Arg(0, ""))
	if err != nil {
		return 1, err
	}

	for _, record := range records {
		name := data.Basename(record.URI)
		if record.IsDirectory {
			name += "/"
		}

		if !args.Bool("long") {
			fmt.Fprintln(writer, name)
			continue
		}

		size := fmt.Sprintf("%d", record.Size)
		if args.Bool("human") {
			size = humanize.IBytes(record.Size)
		}
		fmt.Fprintf(writer, "%s %-16s %10s %s %s\n",
			record.Mode, record.Owner, size, record.LastModified.UTC().Format("2006-01-02 15:04"), name)
	}

	return 0, nil
}

// GetFlags returns the flag set for this command (this is optional)
func (ls *LsCommand) GetFlags() *cmd.CommandFlagSet {
	return &cmd.CommandFlagSet{
		Flags: map[string]*cmd.CommandFlag{
			"long": {
				Name:        "long",
				Short:       "l",
				Type:        "bool",
				Description: "Show mode, owner, size and modification time",
			},
			"human": {
				Name:        "human-readable",
				Short:       "H",
				Type:        "bool",
				Description: "Print sizes in binary units",
			},
		},
	}
}
