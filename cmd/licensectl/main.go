package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/poyrazK/licensegate/internal/adapters/events"
	"github.com/poyrazK/licensegate/internal/adapters/repository"
	"github.com/poyrazK/licensegate/internal/core/domain"
	"github.com/poyrazK/licensegate/internal/core/ports"
	"github.com/poyrazK/licensegate/internal/core/services"
	"github.com/poyrazK/licensegate/internal/infrastructure/config"
)

const usage = "expected 'create', 'list', 'show', 'revoke', 'logs' or 'sweep' subcommands"

// licenseAdmin is the service surface the CLI drives.
type licenseAdmin interface {
	ports.LicenseService
	SweepExpired(ctx context.Context) ([]string, error)
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.LoadStore()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx := context.Background()
	repo, closeStore, err := repository.Open(ctx, cfg.Store, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Printf("failed to close store: %v", err)
		}
	}()

	publisher, closePublisher := newPublisher(cfg, logger)
	defer func() {
		if err := closePublisher(); err != nil {
			log.Printf("failed to close event bus: %v", err)
		}
	}()

	svc := services.NewLicenseService(repo, publisher, logger)
	if err := dispatch(ctx, svc, os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

// newPublisher returns a Redis publisher when an address is configured and a
// NoopPublisher otherwise, together with a func releasing it.
func newPublisher(cfg *config.StoreConfig, logger *slog.Logger) (ports.EventPublisher, func() error) {
	if cfg.RedisAddr == "" {
		return events.NoopPublisher{}, func() error { return nil }
	}
	rp := events.NewRedisPublisher(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
	return rp, rp.Close
}

func dispatch(ctx context.Context, svc licenseAdmin, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	switch args[0] {
	case "create":
		fs := newFlagSet("create", out)
		key := fs.String("key", "", "License key (generated when empty)")
		owner := fs.String("owner", "", "Owner of the license")
		days := fs.Int("days", 0, "Validity in days (0 never expires)")
		maxGuilds := fs.Int("max-guilds", 1, "Recorded guild allowance")
		notes := fs.String("notes", "", "Free-form notes")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return createLicense(ctx, svc, out, *key, *owner, *days, *maxGuilds, *notes)
	case "list":
		return listLicenses(ctx, svc, out)
	case "show":
		fs := newFlagSet("show", out)
		key := fs.String("key", "", "License key")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return showLicense(ctx, svc, out, *key)
	case "revoke":
		fs := newFlagSet("revoke", out)
		key := fs.String("key", "", "License key to deactivate")
		ban := fs.Bool("ban", false, "Also ban the license")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return revokeLicense(ctx, svc, out, *key, *ban)
	case "logs":
		fs := newFlagSet("logs", out)
		key := fs.String("key", "", "License key")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return printLogs(ctx, svc, out, *key)
	case "sweep":
		return sweep(ctx, svc, out)
	default:
		return errors.New(usage)
	}
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func generateKey() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(raw)), nil
}

func createLicense(ctx context.Context, svc licenseAdmin, out io.Writer, key, owner string, days, maxGuilds int, notes string) error {
	if key == "" {
		generated, err := generateKey()
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}
		key = generated
	}
	if days < 0 {
		return errors.New("days must not be negative")
	}

	in := domain.CreateLicenseInput{Key: key, Owner: owner, MaxGuilds: &maxGuilds, Notes: notes}
	if days > 0 {
		expires := time.Now().UTC().AddDate(0, 0, days).Truncate(time.Second)
		in.ExpiresAt = &expires
	}

	license, err := svc.Create(ctx, in)
	if err != nil {
		return fmt.Errorf("failed to create license: %w", err)
	}

	fmt.Fprintf(out, "License Created Successfully!\n")
	fmt.Fprintf(out, "---------------------------\n")
	writeLicense(out, license)
	fmt.Fprintf(out, "---------------------------\n")
	return nil
}

func listLicenses(ctx context.Context, svc licenseAdmin, out io.Writer) error {
	licenses, err := svc.List(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%-32s %-20s %-8s %-20s %-20s\n", "Key", "Owner", "Status", "Guild", "Expires")
	for i := range licenses {
		l := &licenses[i]
		fmt.Fprintf(out, "%-32s %-20s %-8s %-20s %-20s\n", l.Key, l.Owner, status(l), guild(l), expires(l))
	}
	return nil
}

func showLicense(ctx context.Context, svc licenseAdmin, out io.Writer, key string) error {
	if key == "" {
		return errors.New("key is required")
	}
	license, err := svc.Get(ctx, key)
	if err != nil {
		return err
	}
	writeLicense(out, license)
	return nil
}

func revokeLicense(ctx context.Context, svc licenseAdmin, out io.Writer, key string, ban bool) error {
	if key == "" {
		return errors.New("key is required for revocation")
	}
	patch := domain.LicensePatch{IsActive: domain.Some(false)}
	if ban {
		patch.Banned = domain.Some(true)
	}
	if _, err := svc.Update(ctx, key, patch); err != nil {
		return err
	}
	fmt.Fprintf(out, "License %s revoked\n", key)
	return nil
}

func printLogs(ctx context.Context, svc licenseAdmin, out io.Writer, key string) error {
	if key == "" {
		return errors.New("key is required")
	}
	logs, err := svc.AuditLog(ctx, key)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Audit log for %s\n", key)
	fmt.Fprintf(out, "%-20s %-8s %-6s %s\n", "Time", "Action", "Actor", "Message")
	for _, e := range logs {
		fmt.Fprintf(out, "%-20s %-8s %-6s %s\n", e.CreatedAt.Format(time.RFC3339), e.Action, e.Actor, e.Message)
	}
	return nil
}

func sweep(ctx context.Context, svc licenseAdmin, out io.Writer) error {
	keys, err := svc.SweepExpired(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Deactivated %d expired license(s)\n", len(keys))
	for _, k := range keys {
		fmt.Fprintf(out, "  %s\n", k)
	}
	return nil
}

func writeLicense(out io.Writer, l *domain.License) {
	fmt.Fprintf(out, "Key:        %s\n", l.Key)
	fmt.Fprintf(out, "Owner:      %s\n", l.Owner)
	fmt.Fprintf(out, "Status:     %s\n", status(l))
	fmt.Fprintf(out, "Guild:      %s\n", guild(l))
	fmt.Fprintf(out, "Max guilds: %d\n", l.MaxGuilds)
	fmt.Fprintf(out, "Expires:    %s\n", expires(l))
	if l.Notes != "" {
		fmt.Fprintf(out, "Notes:      %s\n", l.Notes)
	}
}

func status(l *domain.License) string {
	switch {
	case l.Banned:
		return "banned"
	case !l.IsActive:
		return "inactive"
	default:
		return "active"
	}
}

func guild(l *domain.License) string {
	if !l.IsBound() {
		return "-"
	}
	return *l.GuildID
}

func expires(l *domain.License) string {
	if l.ExpiresAt == nil {
		return "never"
	}
	return l.ExpiresAt.Format(time.RFC3339)
}
