package chat

import (
	"fmt"
	"strings"
)

// CommandKind enumerates the slash commands accepted in the chat input.
type CommandKind int

const (
	CommandReset CommandKind = iota + 1
	CommandTopK
	CommandRows
	CommandColumns
	CommandTemperature
	CommandTokens
	CommandModel
	CommandHelp
)

var commandNames = map[string]CommandKind{
	"reset":       CommandReset,
	"topk":        CommandTopK,
	"k":           CommandTopK,
	"rows":        CommandRows,
	"cols":        CommandColumns,
	"columns":     CommandColumns,
	"temp":        CommandTemperature,
	"temperature": CommandTemperature,
	"tokens":      CommandTokens,
	"model":       CommandModel,
	"help":        CommandHelp,
}

// CommandHelpText lists the commands for the /help reply.
const CommandHelpText = "/reset  /topk <1-10>  /rows <n>  /cols <a,b,...>  /temp <0-1.5>  /tokens <32-1024>  /model <name>"

// Command is a parsed slash command.
type Command struct {
	Kind CommandKind
	Arg  string
}

// ParseCommand recognizes input starting with "/". ok is false for plain
// questions. An unknown command name is an error.
func ParseCommand(input string) (cmd Command, ok bool, err error) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return Command{}, false, nil
	}

	name, arg, _ := strings.Cut(strings.TrimPrefix(input, "/"), " ")
	kind, known := commandNames[strings.ToLower(name)]
	if !known {
		return Command{}, true, fmt.Errorf("unknown command /%s (try /help)", name)
	}

	cmd = Command{Kind: kind, Arg: strings.TrimSpace(arg)}
	switch kind {
	case CommandReset, CommandHelp:
	default:
		if cmd.Arg == "" {
			return Command{}, true, fmt.Errorf("/%s needs a value", strings.ToLower(name))
		}
	}
	return cmd, true, nil
}
