// Package main prints a bearer token minted by the local identity provider, for
// calling a development GraphQL server by hand.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mapflag/mapflag-client/internal/auth"
	"github.com/mapflag/mapflag-client/internal/clock"
)

func main() {
	dataPath := flag.String("data-path", os.ExpandEnv("$HOME/.mapflag"), "Directory holding auth.key")
	uid := flag.String("uid", "local-dev", "Subject of the token")
	name := flag.String("name", "Local Developer", "Display name claim")
	email := flag.String("email", "dev@localhost", "Email claim")
	ttl := flag.Duration("ttl", time.Hour, "Token lifetime")
	flag.Parse()

	identity := auth.LocalIdentity{UID: *uid, Name: *name, Email: *email}
	if err := run(*dataPath, identity, *ttl, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
		os.Exit(1)
	}
}

// run mints a token, decrypts it again with the same key, and prints it.
func run(dataPath string, identity auth.LocalIdentity, ttl time.Duration, stdout, stderr io.Writer) error {
	key, err := auth.LoadOrGenerateKey(dataPath)
	if err != nil {
		return err
	}

	tokens, err := auth.NewTokenService(key, ttl, clock.NewSystem())
	if err != nil {
		return err
	}

	token, expiresAt, err := tokens.Mint(identity)
	if err != nil {
		return err
	}

	claims, err := tokens.Verify(token)
	if err != nil {
		return fmt.Errorf("minted token does not verify: %w", err)
	}
	if claims.UID != identity.UID {
		return fmt.Errorf("minted token carries subject %q, want %q", claims.UID, identity.UID)
	}

	fmt.Fprintln(stdout, token)
	fmt.Fprintf(stderr, "subject %s, expires %s\n", claims.UID, expiresAt.Format(time.RFC3339))
	return nil
}
