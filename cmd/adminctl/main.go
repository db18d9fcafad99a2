package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"portfolio/api/internal/cache"
	"portfolio/api/internal/config"
	"portfolio/api/internal/database"
	"portfolio/api/internal/log"
	"portfolio/api/internal/models"
	"portfolio/api/internal/ratelimit"
	"portfolio/api/internal/repository"
	"portfolio/api/internal/security"
	"portfolio/api/internal/service"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger zerolog.Logger
	Config *config.AppConfig
}

func commands() map[string]command {
	return map[string]command{
		"create-admin": {
			description: "Create the dashboard admin account",
			run:         runCreateAdmin,
		},
		"reset-password": {
			description: "Set a new password for an existing admin",
			run:         runResetPassword,
		},
		"clear-rate-limit": {
			description: "Drop all counters from the shared Redis rate limit store",
			run:         runClearRateLimit,
		},
	}
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	name := os.Args[1]
	cmd, ok := commands()[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
		printUsage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cmdCtx := &commandContext{Ctx: ctx, Logger: log.New(cfg.Environment), Config: cfg}
	if err := cmd.run(cmdCtx, os.Args[2:]); err != nil {
		cmdCtx.Logger.Error().Err(err).Str("command", name).Msg("command failed")
		os.Exit(1)
	}
}

func printUsage() {
	names := make([]string, 0, len(commands()))
	for name := range commands() {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(os.Stderr, "usage: adminctl <command> [flags]")
	fmt.Fprintln(os.Stderr)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-18s %s\n", name, commands()[name].description)
	}
}

type credentials struct {
	email    string
	password string
}

func (c credentials) validate() (string, error) {
	email, err := service.ValidateEmail(c.email)
	if err != nil {
		return "", err
	}
	if len(c.password) < service.MinPasswordLen {
		return "", fmt.Errorf("password must be at least %d characters long", service.MinPasswordLen)
	}
	return email, nil
}

func openAdmins(ctx *commandContext) (*repository.AdminRepository, func(), error) {
	pool, err := database.NewPostgresPool(ctx.Ctx, ctx.Config.Postgres)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewAdminRepository(pool), pool.Close, nil
}

func runCreateAdmin(ctx *commandContext, args []string) error {
	fs := flag.NewFlagSet("create-admin", flag.ContinueOnError)
	var creds credentials
	fs.StringVar(&creds.email, "email", "", "admin email")
	fs.StringVar(&creds.password, "password", os.Getenv("PORTFOLIO_ADMIN_PASSWORD"), "admin password (defaults to $PORTFOLIO_ADMIN_PASSWORD)")
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	email, err := creds.validate()
	if err != nil {
		return err
	}
	if strings.TrimSpace(*first) == "" || strings.TrimSpace(*last) == "" {
		return errors.New("first and last name are required")
	}

	hash, err := security.HashPassword(creds.password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	admins, closeDB, err := openAdmins(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	admin, err := admins.Create(ctx.Ctx, models.Admin{
		Email:        email,
		PasswordHash: hash,
		FirstName:    *first,
		LastName:     *last,
	})
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	ctx.Logger.Info().Str("admin_id", admin.ID).Str("email", admin.Email).Msg("admin created")
	return nil
}

func runResetPassword(ctx *commandContext, args []string) error {
	fs := flag.NewFlagSet("reset-password", flag.ContinueOnError)
	var creds credentials
	fs.StringVar(&creds.email, "email", "", "admin email")
	fs.StringVar(&creds.password, "password", os.Getenv("PORTFOLIO_ADMIN_PASSWORD"), "new password (defaults to $PORTFOLIO_ADMIN_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	email, err := creds.validate()
	if err != nil {
		return err
	}

	hash, err := security.HashPassword(creds.password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	admins, closeDB, err := openAdmins(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	admin, err := admins.FindByEmail(ctx.Ctx, email)
	if err != nil {
		return fmt.Errorf("find admin: %w", err)
	}
	if err := admins.UpdatePassword(ctx.Ctx, admin.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	ctx.Logger.Info().Str("admin_id", admin.ID).Msg("admin password reset")
	return nil
}

func runClearRateLimit(ctx *commandContext, args []string) error {
	fs := flag.NewFlagSet("clear-rate-limit", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := cache.NewRedisClient(ctx.Ctx, ctx.Config.Redis)
	if err != nil {
		return err
	}
	if client == nil {
		return errors.New("redis is disabled; the in-memory store lives inside the api process")
	}
	defer client.Close()

	if err := ratelimit.NewRedisStore(client).Clear(ctx.Ctx); err != nil {
		return fmt.Errorf("clear rate limit store: %w", err)
	}

	ctx.Logger.Info().Msg("rate limit store cleared")
	return nil
}
