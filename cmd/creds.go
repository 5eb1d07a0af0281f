package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/court-scheduler/internal/config"
	"github.com/example/court-scheduler/internal/creds"
	"github.com/example/court-scheduler/internal/crypto"
	"github.com/example/court-scheduler/internal/db"
	"github.com/example/court-scheduler/internal/migrate"
)

func newCredsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "creds",
		Short: "Manage the venue session credentials",
	}
	cmd.AddCommand(newCredsSetCmd())
	return cmd
}

func newCredsSetCmd() *cobra.Command {
	var cookie string

	c := &cobra.Command{
		Use:   "set",
		Short: "Store the venue session cookie (captured from an authenticated browser session)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cookie = strings.TrimSpace(cookie)
			if cookie == "" {
				return fmt.Errorf("--cookie is empty")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			_, _, credKey, err := cfg.Session.Keys()
			if err != nil {
				return err
			}
			aead, err := crypto.New(credKey)
			if err != nil {
				return err
			}

			ctx := context.Background()
			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := migrate.Up(ctx, d); err != nil {
				return err
			}

			if err := creds.NewStore(d, aead).SetSessionCookie(ctx, cookie); err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, "venue session cookie stored")
			return nil
		},
	}

	c.Flags().StringVar(&cookie, "cookie", "", "raw Cookie header value for the venue site")
	_ = c.MarkFlagRequired("cookie")
	return c
}
