package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"quakebot/internal/app"
	"quakebot/internal/config"
)

func main() {
	var cfgFile string
	var once bool
	flag.StringVar(&cfgFile, "config", "", "path to the YAML overrides file (overrides CONFIG_FILE)")
	flag.BoolVar(&once, "once", false, "force one time-boxed run even if LOCAL is set")
	flag.Parse()

	// Missing .env is fine; the environment itself may already be set.
	_ = godotenv.Load()

	env, err := config.Load()
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	if cfgFile != "" {
		env.ConfigFile = cfgFile
	}
	if once {
		env.Local = false
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, env); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}
