package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/projectfr33d0m2025/whispertype-sub000/internal/transcript"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Export a session's transcript as markdown",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "",
		"write to file instead of stdout")
}

func runExport(cmd *cobra.Command, args []string) error {
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
	if rec.SessionDir == "" {
		return fmt.Errorf("session %s has no stored files (state: %s)", id, rec.State)
	}

	store := transcript.NewStore(rec.ID, rec.SessionDir)
	if err := store.Load(); err != nil {
		return fmt.Errorf("failed to load transcript for session %s: %w", id, err)
	}

	md := store.ExportToMarkdown()
	if exportOutput == "" {
		fmt.Print(md)
		return nil
	}

	if err := os.WriteFile(exportOutput, []byte(md), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", exportOutput, err)
	}
	fmt.Printf("Exported %d transcript entries to %s\n", store.Count(), exportOutput)
	return nil
}
