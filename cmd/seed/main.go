// Command seed loads the TechCorp Solutions demo organization into the
// configured store. It reads the same environment as the auth service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/aussiebroadwan/tenantauth/internal/auth/app"
)

func main() {
	cfg := app.LoadConfig()

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}
	defer func() { _ = application.Close() }()

	org, err := application.SeedDemoData(context.Background())
	if errors.Is(err, app.ErrAlreadySeeded) {
		fmt.Println("demo data already present, nothing to do")
		return
	}
	if err != nil {
		log.Fatalf("seed failed: %v", err)
	}

	fmt.Printf("Created %s (%s)\n\n", org.Name, org.ID)
	fmt.Println("Demo credentials, password for all users:", app.DemoPassword)
	fmt.Println("  admin@techcorp.com      all domains, MFA")
	fmt.Println("  developer@techcorp.com  dev and internal domains, MFA")
	fmt.Println("  user1@techcorp.com      internal domain only")
	fmt.Println("  user2@techcorp.com      Google and internal domains")
}
