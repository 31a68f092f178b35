package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/odyssey-erp/agency-erp/cmd/agencyctl/cli"
)

func main() {
	_ = godotenv.Load()
	if err := cli.NewRootCommand(cli.DefaultRuntime()).Execute(); err != nil {
		os.Exit(1)
	}
}
