package builtin

import (
	"context"
	"fmt"
	"io"

	"github.com/mwantia/s3fs/cmd"
	"github.com/mwantia/s3fs/data"
)

type MkdirCommand struct {
}

func (mc *MkdirCommand) Name() string {
	return "mkdir"
}

func (mc *MkdirCommand) Description() string {
	return "Create directories"
}

func (mc *MkdirCommand) Usage() string {
	return "mkdir [-p] <uri>..."
}

func (mc *MkdirCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, writer io.Writer) (int, error) {
	if err := args.Require(1, -1); err != nil {
		return 2, err
	}

	errs := data.Errors{}
	for _, uri := range args.Args {
		if err := api.Mkdir(ctx, uri, args.Bool("parents")); err != nil {
			errs.Add(fmt.Errorf("%s: %w", uri, err))
		}
	}

	if err := errs.Errors(); err != nil {
		return 1, err
	}
	return 0, nil
}

func (mc *MkdirCommand) GetFlags() *cmd.CommandFlagSet {
	return &cmd.CommandFlagSet{
		Flags: map[string]*cmd.CommandFlag{
			"parents": {
				Name:        "parents",
				Short:       "p",
				Type:        "bool",
				Description: "Create missing parent directories",
			},
		},
	}
}

type RmdirCommand struct {
}

func (rc *RmdirCommand) Name() string {
	return "rmdir"
}

func (rc *RmdirCommand) Description() string {
	return "Remove empty directories"
}

func (rc *RmdirCommand) Usage() string {
	return "rmdir <uri>..."
}

func (rc *RmdirCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, writer io.Writer) (int, error) {
	if err := args.Require(1, -1); err != nil {
		return 2, err
	}

	errs := data.Errors{}
	for _, uri := range args.Args {
		if err := api.Rmdir(ctx, uri); err != nil {
			errs.Add(fmt.Errorf("%s: %w", uri, err))
		}
	}

	if err := errs.Errors(); err != nil {
		return 1, err
	}
	return 0, nil
}

func (rc *RmdirCommand) GetFlags() *cmd.CommandFlagSet {
	return nil
}
