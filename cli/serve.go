package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesu/settlement-engine/api"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "Listen address (overrides config)")
	serveCmd.Flags().String("db", "", "SQLite database path (overrides config)")
	serveCmd.Flags().Bool("no-scheduler", false, "Disable the background sweep scheduler")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Run the HTTP API server with the background sweep scheduler.

The dashboard endpoint settles eligible events opportunistically on every
visit; the scheduler covers accounts nobody visits. Idempotent receipts
make the overlap harmless.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	dbOverride, _ := cmd.Flags().GetString("db")
	cfg, err := loadConfig(dbOverride)
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}

	store, eng, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	handler := api.NewHandler(eng)
	router := api.NewRouter(handler)

	scheduler := api.NewSweepScheduler(eng)
	if noSched, _ := cmd.Flags().GetBool("no-scheduler"); noSched {
		scheduler.Enabled = false
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on %s", cfg.Server.Listen)
		log.Printf("API available at http://localhost%s/api", cfg.Server.Listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return err
	}

	log.Println("Server stopped")
	return nil
}
