package commands

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/mwantia/s3fs/cmd"
	"github.com/mwantia/s3fs/cmd/builtin"
	"github.com/spf13/cobra"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Run filesystem commands interactively on one mount",
	Long: `Mount the filesystem once and read commands line by line from stdin.
Type "help" for the command list and "exit" to leave.`,
	RunE: runShell,
}

func runShell(cc *cobra.Command, args []string) error {
	ctx := cc.Context()

	fs, unmount, err := mountFileSystem(ctx, nil)
	if err != nil {
		return err
	}
	defer unmount()

	m := cmd.NewManager(fs)
	if err := builtin.Register(m); err != nil {
		return err
	}

	out := cc.OutOrStdout()
	scanner := bufio.NewScanner(cc.InOrStdin())
	for {
		fmt.Fprintf(out, "%s> ", fs.Namespace().Root())
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "exit", "quit":
			return nil
		case "help":
			m.Help(out)
			continue
		}

		if code, err := m.Execute(ctx, out, fields...); err != nil {
			fmt.Fprintf(out, "%s: %v (exit %d)\n", fields[0], err, code)
		}
	}
}
