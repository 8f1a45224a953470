package main

import (
	"fmt"
	"os"

	"focusguard/pkg/config"
	"focusguard/pkg/logger"
)

func main() {
	cfg, err := config.Setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log := logger.Setup(cfg.Logging.Level, cfg.Logging.File)

	if err := newRootCommand(cfg, log).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
