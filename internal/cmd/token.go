/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/acronis/task-gateway/internal/auth"
)

const envJWTSecret = "TASKGW_GATEWAY_AUTH_JWTSECRET"

type tokenFlags struct {
	secret  string
	subject string
	email   string
	roles   []string
	ttl     time.Duration
}

// newTokenCommand issues a bearer token the gateway accepts. It is meant for local development
// when the identity service is not running.
func newTokenCommand() *cobra.Command {
	var flags tokenFlags
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := flags.secret
			if secret == "" {
				secret = os.Getenv(envJWTSecret)
			}
			if secret == "" {
				return fmt.Errorf("secret is required: pass --secret or set %s", envJWTSecret)
			}
			if flags.ttl <= 0 {
				return fmt.Errorf("ttl should be positive, got %s", flags.ttl)
			}
			subject := flags.subject
			if subject == "" {
				subject = uuid.NewString()
			}
			token, err := auth.Issue([]byte(secret), auth.Claims{
				Subject:   subject,
				Email:     flags.email,
				Roles:     flags.roles,
				ExpiresAt: time.Now().Add(flags.ttl),
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	tokenCmd.Flags().StringVar(&flags.secret, "secret", "", "HS256 signing secret (default $"+envJWTSecret+")")
	tokenCmd.Flags().StringVar(&flags.subject, "subject", "", "user id put into the token (random UUID by default)")
	tokenCmd.Flags().StringVar(&flags.email, "email", "dev@example.com", "email put into the token")
	tokenCmd.Flags().StringSliceVar(&flags.roles, "role", []string{"user"}, "role put into the token, may be repeated")
	tokenCmd.Flags().DurationVar(&flags.ttl, "ttl", auth.DefaultTokenTTL, "token lifetime")
	return tokenCmd
}
