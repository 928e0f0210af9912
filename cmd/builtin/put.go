package builtin

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mwantia/s3fs/cmd"
)

type PutCommand struct {
}

func (pc *PutCommand) Name() string {
	return "put"
}

func (pc *PutCommand) Description() string {
	return "Upload a local file, or the given text, to a remote file"
}

func (pc *PutCommand) Usage() string {
	return "put [-a] [-x] [-t text] <uri> [local-file]"
}

func (pc *PutCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, writer io.Writer) (int, error) {
	if err := args.Require(1, 2); err != nil {
		return 2, err
	}

	var source io.Reader
	switch local := args.Arg(1, ""); {
	case local != "":
		f, err := os.Open(local)
		if err != nil {
			return 1, err
		}
		defer f.Close()
		source = f
	case args.String("text") != "":
		source = strings.NewReader(args.String("text"))
	default:
		return 2, fmt.Errorf("either a local file or --text is required")
	}

	mode := "w"
	switch {
	case args.Bool("append") && args.Bool("exclusive"):
		return 2, fmt.Errorf("--append and --exclusive cannot be combined")
	case args.Bool("append"):
		mode = "a"
	case args.Bool("exclusive"):
		mode = "x"
	}

	uri := args.Arg(0, "")
	h, err := api.OpenFile(ctx, uri, mode)
	if err != nil {
		return 1, err
	}

	n, err := io.Copy(h, source)
	if err != nil {
		h.CloseContext(ctx)
		return 1, err
	}
	// Closing uploads the buffered content
	if err := h.CloseContext(ctx); err != nil {
		return 1, err
	}

	fmt.Fprintf(writer, "%s: wrote %s\n", uri, humanize.IBytes(uint64(n)))
	return 0, nil
}

func (pc *PutCommand) GetFlags() *cmd.CommandFlagSet {
	return &cmd.CommandFlagSet{
		Flags: map[string]*cmd.CommandFlag{
			"append": {
				Name:        "append",
				Short:       "a",
				Type:        "bool",
				Description: "Append to the existing content",
			},
			"exclusive": {
				Name:        "exclusive",
				Short:       "x",
				Type:        "bool",
				Description: "Fail if the file already exists",
			},
			"text": {
				Name:        "text",
				Short:       "t",
				Type:        "string",
				Description: "Upload this text instead of a local file",
			},
		},
	}
}
