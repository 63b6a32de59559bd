package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/caiofmp/tgram/internal/app"
	"github.com/caiofmp/tgram/internal/config"
	"github.com/caiofmp/tgram/internal/lock"
	"github.com/caiofmp/tgram/internal/paths"
	"go.uber.org/fx"
)

func main() {
	writeConfig := flag.Bool("write-config", false, "write the default config file and exit")
	flag.Parse()

	if *writeConfig {
		if err := config.Save(paths.ConfigPath(), config.Default()); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(paths.ConfigPath())
		return
	}

	instance := fx.New(
		app.Module(),
		fx.NopLogger,
	)
	if err := instance.Err(); err != nil {
		var held *lock.HeldError
		if errors.As(err, &held) {
			fmt.Fprintf(os.Stderr, "another instance is already running (pid %d)\n", held.PID)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	instance.Run()
}
