package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/court-scheduler/internal/auth"
	"github.com/example/court-scheduler/internal/config"
	"github.com/example/court-scheduler/internal/creds"
	"github.com/example/court-scheduler/internal/crypto"
	"github.com/example/court-scheduler/internal/db"
	"github.com/example/court-scheduler/internal/executor"
	"github.com/example/court-scheduler/internal/migrate"
	"github.com/example/court-scheduler/internal/notify"
	"github.com/example/court-scheduler/internal/scheduler"
	"github.com/example/court-scheduler/internal/tasks"
	"github.com/example/court-scheduler/internal/venue"
	"github.com/example/court-scheduler/internal/web"
)

func newServeCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the task submission API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := d.Ping(ctx); err != nil {
				return fmt.Errorf("db ping: %w", err)
			}
			if migrateUp {
				if err := migrate.Up(ctx, d); err != nil {
					return err
				}
			}

			hashKey, blockKey, credKey, err := cfg.Session.Keys()
			if err != nil {
				return err
			}
			aead, err := crypto.New(credKey)
			if err != nil {
				return err
			}

			authStore := auth.NewStore(auth.NewPGUsers(d), hashKey, blockKey)
			credStore := creds.NewStore(d, aead)

			client := venue.New(cfg.Venue.BaseURL, cfg.Venue.VenueNo, credStore)
			session := venue.NewSession(client, log)
			go session.Verify(ctx)

			dispatcher := notify.NewDispatcher(notify.NewSMTPMailer(notify.SMTPConfig{
				Host:     cfg.SMTP.Host,
				Port:     cfg.SMTP.Port,
				UseTLS:   cfg.SMTP.UseTLS,
				From:     cfg.SMTP.From,
				Password: cfg.SMTP.Password,
			}), log)

			sched := scheduler.New(
				executor.New(client, log),
				dispatcher,
				tasks.NewStore(d),
				log,
				scheduler.WithWorkers(cfg.Scheduler.Workers),
			)
			if err := sched.Start(); err != nil {
				return err
			}
			defer sched.Shutdown()

			if err := sched.Restore(ctx); err != nil {
				return fmt.Errorf("restore tasks: %w", err)
			}

			srv := &web.Server{
				Auth:    authStore,
				Tasks:   sched,
				Session: session,
				Log:     log,
			}
			return web.Start(ctx, cfg.HTTPAddr, srv.Routes(), log)
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	return cmd
}
