package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"studytrack/internal/middleware"
)

// runToken implements `server token -user <id> [-ttl 720h]`, which prints an
// access token for the tracker's API_TOKEN.
func runToken(auth *middleware.JWTAuth, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(out)
	user := fs.String("user", "", "user id the token is issued for")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	userID, err := uuid.Parse(*user)
	if err != nil {
		return fmt.Errorf("invalid -user %q: %w", *user, err)
	}
	if *ttl <= 0 {
		return errors.New("-ttl must be positive")
	}

	token, err := auth.GenerateAccessToken(userID, *ttl)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}
	fmt.Fprintln(out, token)
	return nil
}
