// Command devtoken mints an HS256 bearer token accepted by the content and
// billing services when they run with a shared jwtSecret.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"personapost/internal/usertoken"
	"personapost/pkg/domain"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "devtoken:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("devtoken", flag.ContinueOnError)
	secret := fs.String("secret", os.Getenv("JWT_SECRET"), "HS256 signing secret (default $JWT_SECRET)")
	user := fs.String("user", "", "user id placed in the sub claim")
	role := fs.String("role", string(domain.RoleUser), "user or admin")
	issuer := fs.String("issuer", usertoken.DefaultIssuer, "iss claim")
	audience := fs.String("audience", usertoken.DefaultAudience, "aud claim")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*user) == "" {
		return fmt.Errorf("-user is required")
	}
	r := domain.UserRole(strings.ToLower(strings.TrimSpace(*role)))
	if r != domain.RoleUser && r != domain.RoleAdmin {
		return fmt.Errorf("-role must be %q or %q", domain.RoleUser, domain.RoleAdmin)
	}
	signer, err := usertoken.NewSigner(*secret, *issuer, *audience)
	if err != nil {
		return err
	}
	token, err := signer.Sign(*user, r, *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
