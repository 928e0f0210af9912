package builtin

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/mwantia/s3fs/cmd"
	"github.com/mwantia/s3fs/data"
)

type RmCommand struct {
}

func (rc *RmCommand) Name() string {
	return "rm"
}

func (rc *RmCommand) Description() string {
	return "Remove files"
}

func (rc *RmCommand) Usage() string {
	return "rm [-f] <uri>..."
}

func (rc *RmCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, writer io.Writer) (int, error) {
	if err := args.Require(1, -1); err != nil {
		return 2, err
	}

	errs := data.Errors{}
	for _, uri := range args.Args {
		if !args.Bool("force") {
			if _, err := api.Stat(ctx, uri, 0); err != nil {
				errs.Add(fmt.Errorf("%s: %w", uri, err))
				continue
			}
		}
		if err := api.Unlink(ctx, uri); err != nil {
			errs.Add(fmt.Errorf("%s: %w", uri, err))
		}
	}

	if err := errs.Errors(); err != nil {
		return 1, err
	}
	return 0, nil
}

func (rc *RmCommand) GetFlags() *cmd.CommandFlagSet {
	return &cmd.CommandFlagSet{
		Flags: map[string]*cmd.CommandFlag{
			"force": {
				Name:        "force",
				Short:       "f",
				Type:        "bool",
				Description: "Skip the existence check",
			},
		},
	}
}

type MvCommand struct {
}

func (mc *MvCommand) Name() string {
	return "mv"
}

func (mc *MvCommand) Description() string {
	return "Move a file by copy and delete"
}

func (mc *MvCommand) Usage() string {
	return "mv <from> <to>"
}

func (mc *MvCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, writer io.Writer) (int, error) {
	if err := args.Require(2, 2); err != nil {
		return 2, err
	}

	from, to := args.Arg(0, ""), args.Arg(1, "")
	if err := api.Rename(ctx, from, to); err != nil {
		if errors.Is(err, data.ErrCacheDiverged) {
			fmt.Fprintf(writer, "warning: %s was moved but the metadata cache needs a refresh\n", from)
		}
		return 1, err
	}

	return 0, nil
}

func (mc *MvCommand) GetFlags() *cmd.CommandFlagSet {
	return nil
}
