package builtin

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mwantia/s3fs/cmd"
	"github.com/mwantia/s3fs/data"
)

type StatCommand struct {
}

func (sc *StatCommand) Name() string {
	return "stat"
}

func (sc *StatCommand) Description() string {
	return "Show the cached metadata of a file or directory"
}

func (sc *StatCommand) Usage() string {
	return "stat [-q] <uri>..."
}

func (sc *StatCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, writer io.Writer) (int, error) {
	if err := args.Require(1, -1); err != nil {
		return 2, err
	}

	var flags data.StatFlags
	if args.Bool("quiet") {
		flags |= data.StatQuiet
	}

	failed := 0
	for _, uri := range args.Args {
		record, err := api.Stat(ctx, uri, flags)
		if err != nil {
			fmt.Fprintf(writer, "%s: %v\n", uri, err)
			failed++
			continue
		}

		kind := "file"
		if record.IsDirectory {
			kind = "directory"
		}

		fmt.Fprintf(writer, "  URI: %s\n", record.URI)
		fmt.Fprintf(writer, " Type: %s\n", kind)
		fmt.Fprintf(writer, " Size: %d (%s)\n", record.Size, humanize.IBytes(record.Size))
		fmt.Fprintf(writer, " Mode: %s (%o)\n", record.Mode, uint32(record.Mode))
		fmt.Fprintf(writer, "Owner: %s\n", record.Owner)
		fmt.Fprintf(writer, "Mtime: %s (%s)\n", record.LastModified.UTC().Format(time.RFC3339), humanize.Time(record.LastModified))
		if !record.Expires.IsZero() {
			fmt.Fprintf(writer, "Until: %s\n", record.Expires.UTC().Format(time.RFC3339))
		}
	}

	if failed > 0 {
		return 1, fmt.Errorf("failed to stat %d of %d entries", failed, len(args.Args))
	}
	return 0, nil
}

func (sc *StatCommand) GetFlags() *cmd.CommandFlagSet {
	return &cmd.CommandFlagSet{
		Flags: map[string]*cmd.CommandFlag{
			"quiet": {
				Name:        "quiet",
				Short:       "q",
				Type:        "bool",
				Description: "Report every failure as a missing entry",
			},
		},
	}
}
