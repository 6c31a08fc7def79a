package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	pkgconfig "github.com/weiawesome/wes-canvas-live/pkg/config"
	"github.com/weiawesome/wes-canvas-live/pkg/jwt"
)

func tokenCmd() *cobra.Command {
	var (
		secret string
		issuer string
		user   string
		name   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development room credential",
		Long: `Sign a room credential with the shared secret of the services.

Examples:
  canvas-agent token --user u1 --name Alice
  JWT_SECRET=dev canvas-agent token --user u2 --ttl 1h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" {
				return errors.New("--user is required")
			}
			m, err := jwt.NewManager(secret, ttl, issuer)
			if err != nil {
				return err
			}
			token, exp, err := m.Generate(user, user, name)
			if err != nil {
				return err
			}
			fmt.Println(token)
			fmt.Fprintf(os.Stderr, "expires %s\n", exp.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "shared HMAC secret")
	cmd.Flags().StringVar(&issuer, "issuer", pkgconfig.GetEnv("JWT_ISSUER", "wes-canvas-live"), "token issuer")
	cmd.Flags().StringVarP(&user, "user", "u", "", "user id")
	cmd.Flags().StringVarP(&name, "name", "n", "", "display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")

	return cmd
}
