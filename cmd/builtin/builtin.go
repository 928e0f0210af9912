package builtin

import (
	"github.com/mwantia/s3fs/cmd"
	"github.com/mwantia/s3fs/data"
)

// Commands returns a new instance of every builtin command.
func Commands() []cmd.Command {
	return []cmd.Command{
		&LsCommand{},
		&StatCommand{},
		&CatCommand{},
		&PutCommand{},
		&RmCommand{},
		&MvCommand{},
		&MkdirCommand{},
		&RmdirCommand{},
		&RefreshCommand{},
		&URLCommand{},
	}
}

// Register adds every builtin command to m.
func Register(m *cmd.Manager) error {
	errs := data.Errors{}
	for _, c := range Commands() {
		errs.Add(m.Register(c))
	}
	return errs.Errors()
}
