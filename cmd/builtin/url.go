package builtin

import (
	"context"
	"fmt"
	"io"

	"github.com/mwantia/s3fs/cmd"
)

type URLCommand struct {
}

func (uc *URLCommand) Name() string {
	return "url"
}

func (uc *URLCommand) Description() string {
	return "Print the external download URL of files"
}

func (uc *URLCommand) Usage() string {
	return "url [-s] <uri>..."
}

func (uc *URLCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, writer io.Writer) (int, error) {
	if err := args.Require(1, -1); err != nil {
		return 2, err
	}

	for _, uri := range args.Args {
		u, err := api.ExternalURL(ctx, uri, args.Bool("secure"))
		if err != nil {
			return 1, fmt.Errorf("%s: %w", uri, err)
		}
		fmt.Fprintln(writer, u)
	}

	return 0, nil
}

func (uc *URLCommand) GetFlags() *cmd.CommandFlagSet {
	return &cmd.CommandFlagSet{
		Flags: map[string]*cmd.CommandFlag{
			"secure": {
				Name:        "secure",
				Short:       "s",
				Type:        "bool",
				Description: "Build https URLs",
			},
		},
	}
}
