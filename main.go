package main

import (
	"github.com/alecthomas/kong"
	"github.com/deskstep/deskstep/cmd/cli"
)

var CLI struct {
	Run  cli.RunCmd  `cmd:"" help:"Run an evaluation suite against a remote desktop environment."`
	Lint cli.LintCmd `cmd:"" help:"Validate a suite configuration without running it."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("deskstep"),
		kong.Description("Evaluation harness for GUI-control agents on remote Windows desktops."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run())
}
