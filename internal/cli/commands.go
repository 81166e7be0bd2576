package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pix-gateway/internal/db"
	"pix-gateway/internal/model"
	"pix-gateway/internal/reconcile"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the charge, status, reconciliation and webhook HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		server := &http.Server{
			Addr:              ":" + a.cfg.Server.Port,
			Handler:           a.handler().Routes(a.cfg.Server),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errs := make(chan error, 1)
		go func() {
			a.logger.Info("Server starting", "port", a.cfg.Server.Port)
			errs <- server.ListenAndServe()
		}()

		select {
		case err := <-errs:
			return err
		case <-ctx.Done():
		}

		a.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if err := db.RunMigrations(db.GetConnStr(cfg.Database)); err != nil {
			return err
		}
		logger.Info("Migrations applied")
		return nil
	},
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Check one page of generated transactions against their acquirers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.poller.Batch(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <txid>",
	Short: "Check a single transaction against its acquirer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.poller.Check(cmd.Context(), args[0])
		if errors.Is(err, db.ErrNotFound) {
			return errors.Errorf("transaction %s not found", args[0])
		}
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

var reconcileFlags struct {
	acquirer string
	from     string
	to       string
	ids      []string
	merchant string
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Import acquirer transactions missing from the ledger",
	Example: `  pixctl reconcile --acquirer spedpay --from 2024-05-01 --to 2024-05-07
  pixctl reconcile --acquirer ativus --ids a1b2c3d4e5f6g7h8i9j0,k1l2m3n4o5p6q7r8s9t0 --merchant <uuid>`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := reconcileRequest()
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.engine.Run(cmd.Context(), req)
		if err != nil {
			return err
		}
		return printJSON(cmd, report)
	},
}

func init() {
	flags := reconcileCmd.Flags()
	flags.StringVar(&reconcileFlags.acquirer, "acquirer", "", "Acquirer to reconcile (spedpay, inter, ativus)")
	flags.StringVar(&reconcileFlags.from, "from", "", "Start of the period, YYYY-MM-DD or RFC 3339")
	flags.StringVar(&reconcileFlags.to, "to", "", "End of the period, inclusive")
	flags.StringSliceVar(&reconcileFlags.ids, "ids", nil, "Acquirer transaction ids, comma separated")
	flags.StringVar(&reconcileFlags.merchant, "merchant", "", "Merchant id every imported record is assigned to")
	_ = reconcileCmd.MarkFlagRequired("acquirer")
}

func reconcileRequest() (reconcile.Request, error) {
	from, to, err := reconcile.ParsePeriod(reconcileFlags.from, reconcileFlags.to)
	if err != nil {
		return reconcile.Request{}, err
	}

	req := reconcile.Request{
		Acquirer: model.Acquirer(strings.ToLower(strings.TrimSpace(reconcileFlags.acquirer))),
		From:     from,
		To:       to,
		IDs:      reconcileFlags.ids,
	}
	if reconcileFlags.merchant != "" {
		merchantID, err := uuid.Parse(reconcileFlags.merchant)
		if err != nil {
			return reconcile.Request{}, errors.Wrap(reconcile.ErrInvalidRequest, "merchant must be a uuid")
		}
		req.MerchantID = &merchantID
	}
	return req, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
