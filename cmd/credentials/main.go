// Command credentials issues an API credential directly against the database.
// It is how the first administrator credential is created, before any
// credential exists to call POST /admin/credentials with.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rizonesoft/isotone-sub002/internal/auth"
	"github.com/rizonesoft/isotone-sub002/internal/config"
	"github.com/rizonesoft/isotone-sub002/internal/database"
	"github.com/rizonesoft/isotone-sub002/internal/models"
	"github.com/rizonesoft/isotone-sub002/internal/repositories"
	"github.com/rizonesoft/isotone-sub002/internal/services"
	pkglogger "github.com/rizonesoft/isotone-sub002/pkg/logger"
)

func main() {
	owner := flag.String("owner", "bootstrap", "owner id recorded on the credential")
	name := flag.String("name", "admin", "display name")
	perms := flag.String("permissions", models.PermissionAll, "comma separated permissions")
	env := flag.String("env", models.CredentialEnvLive, "credential environment (live or test)")
	ttl := flag.Duration("ttl", 0, "expire the credential after this long (0 never expires)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	if err := run(logger, *owner, *name, *perms, *env, *ttl); err != nil {
		logger.Error("failed to issue credential", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger, owner, name, perms, env string, ttl time.Duration) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cfg.Database.AutoMigrate {
		if err := db.RunMigrations(ctx); err != nil {
			return err
		}
	}

	svc := services.NewCredentialService(services.CredentialDeps{
		Repo:       repositories.NewAPICredentialRepository(db),
		Manager:    auth.NewCredentialManager(cfg.Security.BcryptCost),
		AdminAudit: pkglogger.NewAuditLogger(logger),
		Logger:     logger,
	}, cfg.Security.StoreTimeout)

	input := services.CreateCredentialInput{
		OwnerID:     owner,
		Name:        name,
		Permissions: splitList(perms),
		Env:         env,
		CreatedBy:   "cli",
	}
	if ttl > 0 {
		expires := time.Now().Add(ttl)
		input.ExpiresAt = &expires
	}

	generated, err := svc.CreateCredential(ctx, input)
	if err != nil {
		return err
	}

	// The secret goes to stdout only, so it can be piped into a vault
	fmt.Fprintln(os.Stdout, generated.Secret)
	logger.Info("credential issued",
		slog.String("credential_id", generated.Credential.ID),
		slog.String("prefix", generated.Credential.SecretPrefix),
	)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
