package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ramble-labs/lectern/internal/core/ports/driving"
)

var (
	queryDocID   string
	querySession string
	queryTopK    int
	queryJSON    bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask a question about an ingested document",
	Long: `Retrieves the document passages most relevant to the question and
synthesises an answer from them. Pass --session to continue an earlier
conversation; without it a new session is started.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryDocID, "doc-id", "d", "", "document to query (required)")
	queryCmd.Flags().StringVarP(&querySession, "session", "s", "", "session to attribute this turn to")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of passages to retrieve (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output the result as JSON")
	_ = queryCmd.MarkFlagRequired("doc-id")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	assistant, err := assistantService()
	if err != nil {
		return err
	}

	result, err := assistant.Query(cmd.Context(), querySession, queryDocID, args[0], queryTopK)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		return outputQueryJSON(cmd, result)
	}
	outputQueryText(cmd, result)
	return nil
}

func outputQueryJSON(cmd *cobra.Command, result *driving.QueryResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputQueryText(cmd *cobra.Command, result *driving.QueryResult) {
	if !result.Found {
		cmd.Println(result.Warning)
		cmd.Printf("\nSession: %s\n", result.SessionID)
		return
	}

	if result.Answer != "" {
		cmd.Println(result.Answer)
		cmd.Println()
	}
	if result.Warning != "" {
		cmd.Printf("Warning: %s\n\n", result.Warning)
	}

	cmd.Println("Sources:")
	for i, s := range result.Snippets {
		cmd.Printf("  [%d] %s (%.2f)\n", i+1, s.Chunk.ID, s.Score)
		cmd.Printf("      %s\n", excerpt(s.Chunk.Text, 160))
	}
	cmd.Printf("\nSession: %s\n", result.SessionID)
}

// excerpt truncates text to at most n runes on a single line.
func excerpt(text string, n int) string {
	runes := []rune(text)
	if len(runes) > n {
		runes = append(runes[:n], '…')
	}
	out := make([]rune, 0, len(runes))
	for _, r := range runes {
		if r == '\n' || r == '\t' {
			r = ' '
		}
		out = append(out, r)
	}
	return string(out)
}
