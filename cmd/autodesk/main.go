package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/fatih/color"

	"autodesk/internal/apperr"
	"autodesk/internal/cli"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.NewRootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("error:"), err)
		if p := apperr.BackupPathOf(err); p != "" {
			fmt.Fprintf(os.Stderr, "the previous schedule is saved at %s (reinstall it with: autodesk restore)\n", p)
		}
		os.Exit(apperr.ExitCode(err))
	}
}
