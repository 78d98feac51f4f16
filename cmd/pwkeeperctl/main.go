package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/pwkeeper/internal/ctl"
	"github.com/dmitrijs2005/pwkeeper/internal/logging"
	"github.com/dmitrijs2005/pwkeeper/internal/server/config"
)

func main() {

	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	cfg := config.LoadConfig()
	logger, err := logging.New(logging.FormatConsole, cfg.LogLevel, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	app := ctl.NewApp(cfg, os.Stdin, os.Stdout, logger)
	if err := app.Run(context.Background(), cmd); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

}
