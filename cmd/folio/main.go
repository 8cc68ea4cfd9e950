package main

import (
	"flag"
	"fmt"
	"os"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: folio [flags]\n\nServe the portfolio AI gateway.\n\nFlags:\n")
		flag.PrintDefaults()
	}

	configPath := flag.String("config", "", "path to configuration file (default: folio.yaml, or built-in defaults if missing)")
	envFile := flag.String("env", ".env", "path to .env file (ignored if missing)")
	addr := flag.String("addr", "", "listen address (overrides server.addr in config)")
	flag.Parse()

	if err := loadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := run(*configPath, *addr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
