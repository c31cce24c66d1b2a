package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"liverymarket/internal/catalog"
	"liverymarket/internal/repository"
	"liverymarket/internal/service"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(outboxCmd)

	catalogCmd.AddCommand(catalogSearchCmd)
	outboxCmd.AddCommand(outboxListCmd)
	outboxCmd.AddCommand(outboxRequeueCmd)

	pendingCmd.Flags().Int("limit", 50, "maximum rows to list")
	approveCmd.Flags().String("notes", "", "note stored with the decision")
	rejectCmd.Flags().String("notes", "", "note stored with the decision")
	catalogSearchCmd.Flags().Int("limit", 20, "maximum results")
	outboxListCmd.Flags().Int("limit", 50, "maximum rows to list")
}

// requireAdmin checks the --admin flag against the configured admin list.
func requireAdmin() error {
	if adminID == 0 {
		return fmt.Errorf("--admin is required")
	}
	if !cfg.Admin.IsAdmin(adminID) {
		return fmt.Errorf("%d is not in admin.ids", adminID)
	}
	return nil
}

func newTabWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
}

// ─── pending ────────────────────────────────────────────────────────────────

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List top-ups waiting for review, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		rows, err := service.NewTopupService(db, cfg, logger).ListPending(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Println("No pending top-ups.")
			return nil
		}

		w := newTabWriter()
		fmt.Fprintln(w, "ID\tCODE\tCHAT\tPRODUCT\tAMOUNT\tPROOF\tCREATED")
		for _, r := range rows {
			proof := "-"
			if r.ProofRef != nil {
				proof = *r.ProofRef
			}
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\t%s\n",
				r.ID, r.Code, r.ChatID, r.ProductName, r.Amount.StringFixed(2), proof,
				r.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

// ─── approve / reject ───────────────────────────────────────────────────────

var approveCmd = &cobra.Command{
	Use:   "approve TRANSACTION_ID",
	Short: "Approve a pending top-up and credit its owner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return decide(cmd, args[0], true)
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject TRANSACTION_ID",
	Short: "Reject a pending top-up",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return decide(cmd, args[0], false)
	},
}

func decide(cmd *cobra.Command, rawID string, approve bool) error {
	if err := requireAdmin(); err != nil {
		return err
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid transaction id %q", rawID)
	}
	notes, _ := cmd.Flags().GetString("notes")

	svc := service.NewTopupService(db, cfg, logger)
	var result *service.DecisionResponse
	if approve {
		result, err = svc.Approve(cmd.Context(), id, adminID, notes)
	} else {
		result, err = svc.Reject(cmd.Context(), id, adminID, notes)
	}
	if err != nil {
		return err
	}

	fmt.Printf("%s %s, owner balance %d\n", result.Transaction.Code, result.Transaction.Status, result.Balance)
	return nil
}

// ─── stats ──────────────────────────────────────────────────────────────────

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show account and top-up totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := service.NewTopupService(db, cfg, logger).Stats(cmd.Context())
		if err != nil {
			return err
		}
		w := newTabWriter()
		fmt.Fprintf(w, "Accounts\t%d\n", stats.TotalAccounts)
		fmt.Fprintf(w, "Transactions\t%d\n", stats.TotalTransactions)
		fmt.Fprintf(w, "Pending\t%d\n", stats.PendingTransactions)
		fmt.Fprintf(w, "Approved revenue\t%s\n", stats.ApprovedRevenue.StringFixed(2))
		return w.Flush()
	},
}

// ─── catalog ────────────────────────────────────────────────────────────────

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the livery catalog",
}

var catalogSearchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search liveries by livery or car name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		svc := catalog.NewService(catalog.NewHTTPSource(&cfg.Catalog), logger)
		results, err := svc.Search(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Printf("No liveries match %q.\n", args[0])
			return nil
		}

		w := newTabWriter()
		fmt.Fprintln(w, "ID\tLIVERY\tCAR\tPRICE")
		for _, l := range results {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", l.ID, l.Name, l.CarName, l.Price.String())
		}
		return w.Flush()
	},
}

// ─── outbox ─────────────────────────────────────────────────────────────────

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Manage undelivered notifications",
}

var outboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List parked outbox messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		messages, err := repository.NewOutboxRepository(db).GetFailedMessages(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			fmt.Println("No parked messages.")
			return nil
		}

		w := newTabWriter()
		fmt.Fprintln(w, "ID\tTOPIC\tEVENT\tKEY\tRETRIES\tUPDATED")
		for _, m := range messages {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
				m.ID, m.Topic, m.EventType, m.MessageKey, m.RetryCount, m.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var outboxRequeueCmd = &cobra.Command{
	Use:   "requeue",
	Short: "Move parked outbox messages back to pending",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := repository.NewOutboxRepository(db).Requeue(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%d message(s) requeued\n", n)
		return nil
	},
}
