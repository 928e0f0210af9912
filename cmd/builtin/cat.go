package builtin

import (
	"context"
	"io"

	"github.com/mwantia/s3fs/cmd"
)

type CatCommand struct {
}

func (cc *CatCommand) Name() string {
	return "cat"
}

func (cc *CatCommand) Description() string {
	return "Print the content of a file"
}

func (cc *CatCommand) Usage() string {
	return "cat [-o offset] [-n length] <uri>"
}

func (cc *CatCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, writer io.Writer) (int, error) {
	if err := args.Require(1, 1); err != nil {
		return 2, err
	}

	h, err := api.OpenFile(ctx, args.Arg(0, ""), "r")
	if err != nil {
		return 1, err
	}
	defer h.Close()

	if offset := args.Int("offset"); offset > 0 {
		if _, err := h.Seek(offset, io.SeekStart); err != nil {
			return 1, err
		}
	}

	var reader io.Reader = h
	if length := args.Int("length"); length > 0 {
		reader = io.LimitReader(h, length)
	}

	if _, err := io.Copy(writer, reader); err != nil {
		return 1, err
	}

	return 0, nil
}

func (cc *CatCommand) GetFlags() *cmd.CommandFlagSet {
	return &cmd.CommandFlagSet{
		Flags: map[string]*cmd.CommandFlag{
			"offset": {
				Name:        "offset",
				Short:       "o",
				Type:        "int",
				Description: "Start reading at this byte offset",
			},
			"length": {
				Name:        "length",
				Short:       "n",
				Type:        "int",
				Description: "Read at most this many bytes",
			},
		},
	}
}
