// Command tokengen prints a signed bearer token for a test account, using
// the same JWT settings as the API server.
package main

import (
	"fmt"
	"os"
	"time"

	"bistro/internal/auth"
	"bistro/internal/config"
	"bistro/internal/model"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("tokengen", flag.ContinueOnError)
	id := fs.String("id", "", "account id (random when empty)")
	email := fs.StringP("email", "e", "", "account email")
	admin := fs.Bool("admin", false, "issue an admin token")
	ttl := fs.Duration("ttl", 0, "token lifetime (defaults to JWT_TOKEN_TTL)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" {
		return fmt.Errorf("--email is required")
	}
	if *id == "" {
		*id = uuid.NewString()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if *ttl > 0 {
		cfg.Auth.TokenTTL = *ttl
	}

	role := model.RoleUser
	if *admin {
		role = model.RoleAdmin
	}

	token, exp, err := auth.NewManager(cfg.Auth).Issue(model.Account{ID: *id, Email: *email, Role: role})
	if err != nil {
		return err
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "account %s (%s, %s) expires %s\n", *id, *email, role, exp.Format(time.RFC3339))
	return nil
}
