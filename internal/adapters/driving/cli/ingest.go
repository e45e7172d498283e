package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	ingestDocID string
	ingestForce bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Ingest a document",
	Long: `Loads a document, splits it into chunks and builds its search index.
Pass "-" as the path to read plain text from stdin (requires --doc-id).`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestDocID, "doc-id", "d", "", "document identifier (default: derived from the file name)")
	ingestCmd.Flags().BoolVarP(&ingestForce, "force", "f", false, "rebuild the index even if the document is unchanged")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	assistant, err := assistantService()
	if err != nil {
		return err
	}

	source := args[0]
	ctx := cmd.Context()

	if source == "-" {
		if ingestDocID == "" {
			return fmt.Errorf("--doc-id is required when reading from stdin")
		}
		text, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		result, err := assistant.IngestText(ctx, ingestDocID, string(text), ingestForce)
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}
		cmd.Printf("Ingested %s (%d chunks)\n", result.DocID, result.NumChunks)
		return nil
	}

	result, err := assistant.Ingest(ctx, source, ingestDocID, ingestForce)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	cmd.Printf("Ingested %s (%d chunks)\n", result.DocID, result.NumChunks)
	return nil
}
