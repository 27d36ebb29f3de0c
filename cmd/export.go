package cmd

import (
	"fmt"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"
	"github.com/stellar/go-stellar-sdk/support/log"

	"github.com/pesaplay/mpesa-sim/db"
	"github.com/pesaplay/mpesa-sim/internal/data"
)

// ExportCommand writes a project's transaction history to a CSV file.
type ExportCommand struct{}

func (c *ExportCommand) Command() *cobra.Command {
	root := &cobra.Command{
		Use:   "export",
		Short: "Export sandbox data",
	}
	root.AddCommand(c.transactionsCommand())
	return root
}

type transactionRow struct {
	ID              string
	TransactionType string
	Status          data.TransactionStatus
	AmountCents     int64
	FeeCents        int64
	Currency        string
	ReversalOf      string
	CreatedAt       string
}

func (c *ExportCommand) transactionsCommand() *cobra.Command {
	var projectID int64
	var outPath string
	var limit int

	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "Export a project's transaction history as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			dbConnectionPool, err := db.OpenDBConnectionPool(globalOptions.databaseURL)
			if err != nil {
				return fmt.Errorf("opening database connection pool: %w", err)
			}
			defer dbConnectionPool.Close()

			models, err := data.NewModels(dbConnectionPool)
			if err != nil {
				return fmt.Errorf("creating data models: %w", err)
			}

			project, err := models.Projects.GetByID(ctx, dbConnectionPool, projectID)
			if err != nil {
				return fmt.Errorf("loading project %d: %w", projectID, err)
			}
			business, err := models.Businesses.GetByID(ctx, dbConnectionPool, project.BusinessID)
			if err != nil {
				return fmt.Errorf("loading business %d: %w", project.BusinessID, err)
			}

			transactions, err := models.Transactions.GetByAccount(ctx, dbConnectionPool, business.MmfAccountID, limit)
			if err != nil {
				return fmt.Errorf("loading transactions for business %d: %w", business.ID, err)
			}

			rows := make([]transactionRow, 0, len(transactions))
			for _, txn := range transactions {
				reversalOf := ""
				if txn.ReversalOf != nil {
					reversalOf = *txn.ReversalOf
				}
				rows = append(rows, transactionRow{
					ID:              txn.ID,
					TransactionType: txn.TransactionType,
					Status:          txn.Status,
					AmountCents:     txn.AmountCents,
					FeeCents:        txn.FeeCents,
					Currency:        txn.Currency,
					ReversalOf:      reversalOf,
					CreatedAt:       txn.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
				})
			}

			out, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("creating output file %s: %w", outPath, err)
			}
			defer out.Close()

			if err := gocsv.Marshal(rows, out); err != nil {
				return fmt.Errorf("writing csv: %w", err)
			}

			log.Infof("exported %d transactions for project %d to %s", len(rows), projectID, outPath)
			return nil
		},
	}

	cmd.Flags().Int64Var(&projectID, "project-id", 0, "the project to export")
	cmd.Flags().StringVar(&outPath, "out", "transactions.csv", "output file path")
	cmd.Flags().IntVar(&limit, "limit", 1000, "maximum rows to export")
	_ = cmd.MarkFlagRequired("project-id")

	return cmd
}
