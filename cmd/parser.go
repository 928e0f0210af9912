package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parser parses raw command arguments against a flag set
type Parser struct {
	flagSet *CommandFlagSet

	long  map[string]string
	short map[string]string
}

func NewParser(flagSet *CommandFlagSet) *Parser {
	if flagSet == nil {
		flagSet = &CommandFlagSet{Flags: make(map[string]*CommandFlag)}
	}

	p := &Parser{
		flagSet: flagSet,
		long:    make(map[string]string),
		short:   make(map[string]string),
	}
	for flagName, flag := range flagSet.Flags {
		p.long[flag.Name] = flagName
		if flag.Short != "" {
			p.short[flag.Short] = flagName
		}
	}
	return p
}

func (p *Parser) Parse(raw []string) (*CommandArgs, error) {
	args := &CommandArgs{
		Flags: make(map[string]any),
		Raw:   raw,
	}

	for flagName, flag := range p.flagSet.Flags {
		if flag.Default != nil {
			args.Flags[flagName] = flag.Default
		}
	}

	for i := 0; i < len(raw); i++ {
		arg := raw[i]

		if arg == "--" {
			args.Args = append(args.Args, raw[i+1:]...)
			break
		}

		if strings.HasPrefix(arg, "--") {
			key, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
			flagName, exists := p.long[key]
			if !exists {
				return nil, fmt.Errorf("unknown flag: --%s", key)
			}

			flag := p.flagSet.Flags[flagName]
			switch {
			case flag.Type == "bool" && !hasValue:
				args.Flags[flagName] = true
				continue
			case hasValue:
			case i+1 < len(raw) && !strings.HasPrefix(raw[i+1], "-"):
				i++
				value = raw[i]
			default:
				return nil, fmt.Errorf("flag --%s requires a value", key)
			}

			v, err := coerce(value, flag.Type)
			if err != nil {
				return nil, fmt.Errorf("flag --%s: %w", key, err)
			}
			args.Flags[flagName] = v
			continue
		}

		if strings.HasPrefix(arg, "-") && len(arg) > 1 {
			shortFlags := arg[1:]

			for j, shortChar := range shortFlags {
				shortStr := string(shortChar)
				flagName, exists := p.short[shortStr]
				if !exists {
					return nil, fmt.Errorf("unknown flag: -%s", shortStr)
				}

				flag := p.flagSet.Flags[flagName]
				if flag.Type == "bool" {
					args.Flags[flagName] = true
					continue
				}

				var value string
				if j+1 < len(shortFlags) {
					value = shortFlags[j+1:]
				} else if i+1 < len(raw) && !strings.HasPrefix(raw[i+1], "-") {
					i++
					value = raw[i]
				} else {
					return nil, fmt.Errorf("flag -%s requires a value", shortStr)
				}

				v, err := coerce(value, flag.Type)
				if err != nil {
					return nil, fmt.Errorf("flag -%s: %w", shortStr, err)
				}
				args.Flags[flagName] = v
				break
			}
			continue
		}

		args.Args = append(args.Args, arg)
	}

	for flagName, flag := range p.flagSet.Flags {
		if !flag.Required {
			continue
		}
		if _, ok := args.Flags[flagName]; !ok {
			if flag.Short != "" {
				return nil, fmt.Errorf("required flag: -%s / --%s", flag.Short, flag.Name)
			}
			return nil, fmt.Errorf("required flag: --%s", flag.Name)
		}
	}

	return args, nil
}

func coerce(value string, typeStr string) (any, error) {
	switch typeStr {
	case "int":
		return strconv.ParseInt(value, 10, 64)
	case "bool":
		return strconv.ParseBool(value)
	case "duration":
		return time.ParseDuration(value)
	default:
		return value, nil
	}
}
