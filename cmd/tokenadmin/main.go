// Command tokenadmin inspects and revokes stored API tokens.
//
//	tokenadmin revoke --user ID
//	tokenadmin show --user ID
//	tokenadmin hash-password [--cost N] < password
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/spec-kit/api-token-service/internal/auth"
	"github.com/spec-kit/api-token-service/internal/config"
	"github.com/spec-kit/api-token-service/internal/observability"
	"github.com/spec-kit/api-token-service/internal/persistence"
	"github.com/spec-kit/api-token-service/internal/repository"
)

var errUsage = errors.New("usage: tokenadmin <revoke|show|hash-password> [flags]")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "hash-password":
		fs := pflag.NewFlagSet(cmd, pflag.ContinueOnError)
		cost := fs.Int("cost", 12, "bcrypt cost")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		return hashPassword(stdin, stdout, *cost)
	case "revoke", "show":
		fs := pflag.NewFlagSet(cmd, pflag.ContinueOnError)
		userID := fs.String("user", "", "user id")
		settings := fs.String("settings", os.Getenv("SETTINGS_FILE"), "path to the persisted settings file (YAML)")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *userID == "" {
			return fmt.Errorf("%s: --user is required", cmd)
		}
		store, closeStore, err := openStore(ctx, *settings)
		if err != nil {
			return err
		}
		defer closeStore()
		if cmd == "revoke" {
			return revoke(ctx, store, *userID, stdout)
		}
		return show(ctx, store, *userID, stdout, time.Now())
	default:
		return errUsage
	}
}

func openStore(ctx context.Context, settingsPath string) (repository.TokenStore, func(), error) {
	cfg, err := config.Load(settingsPath)
	if err != nil {
		return nil, nil, err
	}
	// Keep stdout for command output; only warnings are logged.
	cfg.Logger.Level = "warn"
	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Auth.TokenStore {
	case config.StorePostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, nil, err
		}
		if pg.PoolHandle() == nil {
			return nil, nil, errors.New("POSTGRES_DSN is required")
		}
		return repository.NewTokenRepository(pg.PoolHandle()), pg.Close, nil
	case config.StoreRedis:
		rdb := persistence.NewRedis(ctx, cfg.Redis, logger)
		return repository.NewRedisTokenStore(rdb.Client, cfg.Redis.KeyPrefix), rdb.Close, nil
	default:
		logger.Warn("token store is process local; nothing to administer", zap.String("backend", cfg.Auth.TokenStore))
		return nil, nil, fmt.Errorf("token store %q cannot be administered", cfg.Auth.TokenStore)
	}
}

// revoke deletes the user's record; the gate rejects the token from then on.
func revoke(ctx context.Context, store repository.TokenStore, userID string, out io.Writer) error {
	deleted, err := store.Delete(ctx, userID)
	if err != nil {
		return err
	}
	if !deleted {
		fmt.Fprintf(out, "no token stored for user %s\n", userID)
		return nil
	}
	fmt.Fprintf(out, "revoked token of user %s\n", userID)
	return nil
}

func show(ctx context.Context, store repository.TokenStore, userID string, out io.Writer, now time.Time) error {
	rec, err := store.Find(ctx, userID)
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Fprintf(out, "no token stored for user %s\n", userID)
		return nil
	}
	fmt.Fprintf(out, "user:        %s\n", rec.UserID)
	fmt.Fprintf(out, "fingerprint: %s\n", observability.Fingerprint(rec.Token))
	fmt.Fprintf(out, "expires:     %s\n", rec.ExpirationDate.UTC().Format(time.RFC3339))
	fmt.Fprintf(out, "expired:     %t\n", rec.Expired(now))
	return nil
}

func hashPassword(in io.Reader, out io.Writer, cost int) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("hash-password: empty password on stdin")
	}
	hash, err := auth.HashPassword(password, cost)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, hash)
	return nil
}
