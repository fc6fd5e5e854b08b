// Command issue-token signs an access token for an existing, active profile.
// It is an operator tool for local environments; the API never issues tokens.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/internal/repository"
	"github.com/noah-isme/campus-events-api/internal/service"
	"github.com/noah-isme/campus-events-api/pkg/config"
	"github.com/noah-isme/campus-events-api/pkg/database"
)

type options struct {
	PrincipalID string
	TTL         time.Duration
}

type principalResolver interface {
	Resolve(ctx context.Context, principalID string) (*models.Principal, error)
}

type tokenIssuer interface {
	Issue(profile *models.Profile) (string, time.Time, error)
}

type issuedToken struct {
	AccessToken  string              `json:"access_token"`
	ExpiresAt    time.Time           `json:"expires_at"`
	PrincipalID  string              `json:"principal_id"`
	Role         models.Role         `json:"role"`
	Capabilities []models.Capability `json:"capabilities"`
}

func main() {
	opts, err := parseOptions(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if opts.TTL > 0 {
		cfg.JWT.AccessTTL = opts.TTL
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer db.Close()

	store := repository.NewStore(db, cfg.Storage, repository.WithStoreLogger(zap.NewNop()))
	registry := service.NewRoleRegistry(repository.NewProfileRepository(store), validator.New(), nil)

	if err := issue(ctx, registry, service.NewTokenService(cfg.JWT), opts, os.Stdout); err != nil {
		log.Fatalf("issue token: %v", err)
	}
}

func parseOptions(fs *flag.FlagSet, args []string) (options, error) {
	var opts options
	fs.StringVar(&opts.PrincipalID, "principal", "", "profile id to issue the token for")
	fs.DurationVar(&opts.TTL, "ttl", 0, "token lifetime (defaults to JWT_ACCESS_TTL)")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.PrincipalID == "" {
		return options{}, errors.New("-principal is required")
	}
	if opts.TTL < 0 {
		return options{}, errors.New("-ttl must not be negative")
	}
	return opts, nil
}

// issue resolves the principal so inactive or corrupt profiles never receive
// a token, then writes the signed token as JSON to out.
func issue(ctx context.Context, principals principalResolver, tokens tokenIssuer, opts options, out io.Writer) error {
	principal, err := principals.Resolve(ctx, opts.PrincipalID)
	if err != nil {
		return err
	}
	token, expiresAt, err := tokens.Issue(&principal.Profile)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(issuedToken{
		AccessToken:  token,
		ExpiresAt:    expiresAt,
		PrincipalID:  principal.ID,
		Role:         principal.Role,
		Capabilities: principal.Capabilities.List(),
	}); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}
