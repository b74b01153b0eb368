package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/lucasnoah/droidscope/internal/cli"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	// .env is optional; GEMINI_API_KEY is commonly supplied this way.
	_ = godotenv.Load()

	cli.SetVersion(Version)
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
