package builtin

import (
	"context"
	"fmt"
	"io"

	"github.com/mwantia/s3fs/cmd"
)

type RefreshCommand struct {
}

func (rc *RefreshCommand) Name() string {
	return "refresh"
}

func (rc *RefreshCommand) Description() string {
	return "Rebuild the metadata cache from the object store"
}

func (rc *RefreshCommand) Usage() string {
	return "refresh [-p prefix]"
}

func (rc *RefreshCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, writer io.Writer) (int, error) {
	if err := args.Require(0, 0); err != nil {
		return 2, err
	}

	result, err := api.Refresh(ctx, args.String("prefix"))
	if err != nil {
		fmt.Fprintln(writer, "S3 File System cache refresh failed. Please see log messages for details.")
		return 1, err
	}

	fmt.Fprintln(writer, result.Message())
	return 0, nil
}

func (rc *RefreshCommand) GetFlags() *cmd.CommandFlagSet {
	return &cmd.CommandFlagSet{
		Flags: map[string]*cmd.CommandFlag{
			"prefix": {
				Name:        "prefix",
				Short:       "p",
				Type:        "string",
				Default:     "",
				Description: "Only refresh keys below this prefix",
			},
		},
	}
}
