package main

import (
	"os"

	"github.com/dmitrijs2005/offpay/internal/client/cli"
)

// buildVersion is set with -ldflags "-X main.buildVersion=...".
var buildVersion = "dev"

func main() {
	if err := cli.Execute(buildVersion); err != nil {
		os.Exit(1)
	}
}
