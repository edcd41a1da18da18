package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

type CommandArgs struct {
	commandName string
	params      map[string]string
}

// NewCommandArgs reads "cmd -key value ..."; args[0] is the program name.
func NewCommandArgs(args []string) *CommandArgs {
	var cmdName = ""
	var flags = make(map[string]string)
	for i := 1; i < len(args); i++ {
		var arg = args[i]
		if strings.HasPrefix(arg, "-") {
			if i < len(args)-1 {
				flags[strings.TrimPrefix(arg, "-")] = args[i+1]
				i++
			}
		} else if cmdName == "" {
			cmdName = arg
		}
	}
	return &CommandArgs{
		commandName: cmdName,
		params:      flags,
	}
}

func (ca *CommandArgs) CommandName() string {
	return ca.commandName
}

func (ca *CommandArgs) GetString(name string, defaultVal string) string {
	var val, ok = ca.params[name]
	if !ok {
		return defaultVal
	}
	return val
}

func (ca *CommandArgs) GetInt(name string, defaultVal int) int {
	var val, ok = ca.params[name]
	if !ok {
		return defaultVal
	}
	var v, err = strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return v
}

type Cli struct {
	args  *CommandArgs
	items map[string]func() error
}

func NewCli() *Cli {
	return newCli(os.Args)
}

func newCli(args []string) *Cli {
	return &Cli{
		args:  NewCommandArgs(args),
		items: make(map[string]func() error),
	}
}

func (cli *Cli) Params() *CommandArgs {
	return cli.args
}

func (cli *Cli) AddCommand(name string, handler func() error) {
	cli.items[name] = handler
}

func (cli *Cli) Execute() error {
	var commandName = cli.args.CommandName()
	handler, found := cli.items[commandName]
	if !found {
		return fmt.Errorf("command not found %q, available: %v", commandName, lo.Keys(cli.items))
	}
	return handler()
}
