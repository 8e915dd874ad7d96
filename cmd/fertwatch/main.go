package main

import (
	"github.com/joho/godotenv"

	"fert-price-monitor/internal/cli"
)

func main() {
	// Local overrides for API keys and DSNs; missing files are fine.
	_ = godotenv.Load(".env", ".env.local")
	cli.Execute()
}
