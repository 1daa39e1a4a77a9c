package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lantelyes/curiosity-engine/internal/auth"
	"github.com/lantelyes/curiosity-engine/internal/config"
	"github.com/lantelyes/curiosity-engine/internal/earnings"
	"github.com/lantelyes/curiosity-engine/internal/httpserver"
	"github.com/lantelyes/curiosity-engine/internal/openai"
	"github.com/lantelyes/curiosity-engine/internal/store"
	"github.com/lantelyes/curiosity-engine/internal/topics"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "curiosity-engine",
		Short: "Curiosity Engine — paid voice conversations",
		Long:  "Curiosity Engine runs voice conversations with an AI interviewer and pays users per minute of conversation.",
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newCallCmd())
	cmd.AddCommand(newTopicsCmd())
	return cmd
}

func newTopicsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topics",
		Short: "List available conversation topics",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			for _, t := range topics.All() {
				fmt.Fprintf(out, "%-16s %s %s: $%.2f/min, ~%.0f min ($%.2f)\n",
					t.ID, t.Icon, t.Name, t.RatePerMinute, t.EstimatedMinutes, t.ProjectedValue())
			}
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "curiosity-engine %s (commit: %s)\n", Version, Commit)
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the ledger tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			st, err := store.Open(cfg.DBDriver, cfg.DBDSN)
			if err != nil {
				return err
			}
			if err := st.AutoMigrate(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d tables\n", len(store.AllModels()))
			return nil
		},
	}
}

func runServe() error {
	cfg := config.Load()

	secret := cfg.AuthSecret
	if secret == "" {
		secret = uuid.NewString()
	}
	sessions, err := auth.NewManager(secret, auth.DefaultTTL)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	if err := st.AutoMigrate(); err != nil {
		return err
	}

	var ledger earnings.Ledger = earnings.NewFallbackLedger(st)

	vendor := openai.NewRealtimeClient(cfg.OpenAIKey, cfg.RealtimeModel, cfg.OpenAIBaseURL)

	srv, err := httpserver.New(httpserver.Config{
		Auth:     sessions,
		Realtime: vendor,
		Ledger:   ledger,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
	return nil
}

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
