package commands

import (
	"time"

	"github.com/mwantia/s3fs/cmd"
	"github.com/mwantia/s3fs/cmd/builtin"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// newBuiltinCommand exposes a filesystem command as cobra subcommand.
// Flags are declared on cobra for help output and handed back to the
// command manager in their long form.
func newBuiltinCommand(c cmd.Command) *cobra.Command {
	cc := &cobra.Command{
		Use:   c.Usage(),
		Short: c.Description(),
		RunE: func(cc *cobra.Command, args []string) error {
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

			raw := []string{c.Name()}
			cc.Flags().Visit(func(f *pflag.Flag) {
				raw = append(raw, "--"+f.Name+"="+f.Value.String())
			})
			raw = append(raw, "--")
			raw = append(raw, args...)

			code, err := m.Execute(ctx, cc.OutOrStdout(), raw...)
			if err != nil || code != 0 {
				return &exitError{code: code, err: err}
			}
			return nil
		},
	}

	flagSet := c.GetFlags()
	if flagSet == nil {
		return cc
	}

	for _, flag := range flagSet.Flags {
		switch flag.Type {
		case "bool":
			def, _ := flag.Default.(bool)
			cc.Flags().BoolP(flag.Name, flag.Short, def, flag.Description)
		case "int":
			def, _ := flag.Default.(int64)
			cc.Flags().Int64P(flag.Name, flag.Short, def, flag.Description)
		case "duration":
			def, _ := flag.Default.(time.Duration)
			cc.Flags().DurationP(flag.Name, flag.Short, def, flag.Description)
		default:
			def, _ := flag.Default.(string)
			cc.Flags().StringP(flag.Name, flag.Short, def, flag.Description)
		}
		if flag.Required {
			cc.MarkFlagRequired(flag.Name)
		}
	}

	return cc
}
