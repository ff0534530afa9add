// Command auth serves organization, user and session endpoints for
// tenantauth. Configuration comes from the environment and an optional
// .env file.
package main

import (
	"log/slog"
	"os"

	"github.com/aussiebroadwan/tenantauth/internal/auth/app"
)

func main() {
	os.Exit(serve())
}

func serve() int {
	server, err := app.New(app.LoadConfig())
	if err != nil {
		slog.Error("auth server refused to start", "error", err)
		return 1
	}
	if err := server.Run(); err != nil {
		slog.Error("auth server exited", "error", err)
		return 1
	}
	return 0
}
