package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"resident/internal/app"
	"resident/internal/config"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", os.Getenv(config.EnvConfig), "path to config json/yaml (optional)")
	flag.Parse()

	a, err := app.New(context.Background(), app.Options{ConfigPath: cfgPath})
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	// Run owns SIGINT/SIGTERM handling and returns once every loop has joined.
	if err := a.Run(context.Background()); err != nil {
		fmt.Println("fatal run:", err)
		os.Exit(1)
	}
}
