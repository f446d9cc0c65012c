package main

import (
	_ "github.com/joho/godotenv/autoload"

	"github.com/shipway/shipway/cmd"
	"github.com/shipway/shipway/pkg/version"
)

// Build information, injected via -ldflags at release time.
var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

func main() {
	version.Set(buildVersion, buildCommit, buildDate)
	cmd.Execute()
}
