package main

import (
	"os"

	"remindbot/internal/cli"
	logx "remindbot/pkg/logx"
)

var version = "dev"

func main() {
	root := cli.Root(version)
	root.SilenceErrors = true
	if err := root.Execute(); err != nil {
		logx.NewConsole("info").Error("remindbot failed", logx.String("command", commandName(os.Args)), logx.Err(err))
		os.Exit(1)
	}
}

func commandName(args []string) string {
	for _, a := range args[1:] {
		if len(a) > 0 && a[0] != '-' {
			return a
		}
	}
	return "remindbot"
}
