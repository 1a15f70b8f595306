package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gasledger/backend/libs/logging"
	"gasledger/backend/libs/secret"
	"gasledger/backend/services/ingest-service/internal/app"
	"gasledger/backend/services/ingest-service/internal/auth"
	"gasledger/backend/services/ingest-service/internal/config"
)

const usage = `usage: ingest-ctl <command> [flags]

commands:
  keygen     print a new key for sealing the portal password
  seal       seal a password read from stdin with -key
  token      issue an API token signed with INGEST_JWT_SECRET
  run-once   run one ingestion cycle with the service configuration and print the report
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "keygen":
		err = keygen()
	case "seal":
		err = seal(os.Args[2:])
	case "token":
		err = token(os.Args[2:])
	case "run-once":
		err = runOnce()
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingest-ctl %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func keygen() error {
	key, err := secret.GenerateKey()
	if err != nil {
		return err
	}
	fmt.Println(key.String())
	return nil
}

func seal(args []string) error {
	fs := flag.NewFlagSet("seal", flag.ExitOnError)
	rawKey := fs.String("key", os.Getenv("INGEST_PORTAL_SECRET_KEY"), "base64 key from keygen")
	_ = fs.Parse(args)

	key, err := secret.ParseKey(*rawKey)
	if err != nil {
		return err
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("empty password")
	}

	sealed, err := secret.Seal(key, password)
	if err != nil {
		return err
	}
	fmt.Println(sealed)
	return nil
}

func token(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	subject := fs.String("subject", "dashboard", "token subject")
	scopes := fs.String("scopes", auth.ScopeRead, "comma separated scopes (read, refresh)")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "token lifetime")
	_ = fs.Parse(args)

	jwtSecret := os.Getenv("INGEST_JWT_SECRET")
	if jwtSecret == "" {
		return errors.New("INGEST_JWT_SECRET is not set")
	}

	var granted []string
	for _, s := range strings.Split(*scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			granted = append(granted, s)
		}
	}

	signed, err := auth.NewTokenService(jwtSecret, *ttl).GenerateToken(*subject, granted...)
	if err != nil {
		return err
	}
	fmt.Println(signed)
	return nil
}

func runOnce() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger("ingest-ctl")
	if err != nil {
		return err
	}
	defer logger.Sync()

	application, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	report, err := application.RunOnce(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
