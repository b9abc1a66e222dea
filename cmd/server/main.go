package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/offpay/internal/server"
	"github.com/dmitrijs2005/offpay/internal/server/config"
)

// buildVersion is set with -ldflags "-X main.buildVersion=...".
var buildVersion = "dev"

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("offpay ledger %s: startup failed: %v", buildVersion, err)
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("offpay ledger %s: %v", buildVersion, err)
	}
}
