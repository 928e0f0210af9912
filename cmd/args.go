package cmd

import (
	"fmt"
	"time"
)

// CommandArgs contains parsed command arguments
type CommandArgs struct {
	// Positional arguments (command-specific)
	Args []string

	// Parsed flags keyed by their flag set name
	Flags map[string]any

	// Raw unparsed arguments (for custom parsing)
	Raw []string
}

// Arg returns the positional argument at index, or def when it is missing.
func (ca *CommandArgs) Arg(index int, def string) string {
	if index < len(ca.Args) {
		return ca.Args[index]
	}
	return def
}

// Require fails unless between min and max positional arguments were given.
func (ca *CommandArgs) Require(min, max int) error {
	if len(ca.Args) < min {
		return fmt.Errorf("expected at least %d arguments, got %d", min, len(ca.Args))
	}
	if max >= 0 && len(ca.Args) > max {
		return fmt.Errorf("expected at most %d arguments, got %d", max, len(ca.Args))
	}
	return nil
}

func (ca *CommandArgs) Bool(name string) bool {
	v, _ := ca.Flags[name].(bool)
	return v
}

func (ca *CommandArgs) String(name string) string {
	v, _ := ca.Flags[name].(string)
	return v
}

func (ca *CommandArgs) Int(name string) int64 {
	v, _ := ca.Flags[name].(int64)
	return v
}

func (ca *CommandArgs) Duration(name string) time.Duration {
	v, _ := ca.Flags[name].(time.Duration)
	return v
}

// CommandFlagSet defines the expected flags for a command
type CommandFlagSet struct {
	Flags map[string]*CommandFlag
}

// CommandFlag represents a single command-line flag
type CommandFlag struct {
	Name        string `json:"name"`              // e.g., "prefix"
	Short       string `json:"short"`             // Single-char shorthand (e.g., "p")
	Type        string `json:"type"`              // "string", "bool", "int", "duration"
	Default     any    `json:"default,omitempty"` // Default value
	Required    bool   `json:"required"`          // Must be provided
	Description string `json:"description"`       // Help text
}
