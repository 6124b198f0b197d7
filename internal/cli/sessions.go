package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/projectfr33d0m2025/whispertype-sub000/internal/catalog"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded sessions from the catalog",
	RunE:  runSessionsList,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Remove a session record from the catalog",
	Long: `Delete removes the catalog record only; chunk files and transcripts on
disk are left in place.`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionsDelete,
}

func init() {
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20,
		"maximum number of sessions to list")
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}

func openCatalog() (*catalog.Catalog, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Open(cfg.Storage.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open session catalog: %w", err)
	}
	return cat, nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	cat, err := openCatalog()
	if err != nil {
		return err
	}
	defer cat.Close()

	records, err := cat.ListSessions(sessionsLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No recorded sessions.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATE\tDURATION\tCHUNKS\tSTARTED\tDIRECTORY")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			rec.ID,
			truncate(rec.Title, 32),
			rec.State,
			formatDuration(rec.DurationSecs),
			rec.ChunkCount,
			rec.StartedAt.Local().Format(time.DateTime),
			rec.SessionDir,
		)
	}
	return w.Flush()
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	cat, err := openCatalog()
	if err != nil {
		return err
	}
	defer cat.Close()

	id := args[0]
	rec, err := cat.GetSession(id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("session %s not found", id)
	}

	if err := cat.DeleteSession(id); err != nil {
		return err
	}
	fmt.Printf("Deleted session %s from the catalog.\n", id)
	if rec.SessionDir != "" {
		fmt.Printf("Files in %s were not removed.\n", rec.SessionDir)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
