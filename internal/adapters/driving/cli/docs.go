package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Manage ingested documents",
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested documents",
	Args:  cobra.NoArgs,
	RunE:  runDocsList,
}

var docsDeleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Delete a document's index and metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocsDelete,
}

func init() {
	docsCmd.AddCommand(docsListCmd)
	docsCmd.AddCommand(docsDeleteCmd)
	rootCmd.AddCommand(docsCmd)
}

func runDocsList(cmd *cobra.Command, _ []string) error {
	assistant, err := assistantService()
	if err != nil {
		return err
	}

	docs, err := assistant.ListDocuments(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if len(docs) == 0 {
		cmd.Println("No documents ingested.")
		return nil
	}
	for _, id := range docs {
		cmd.Println(id)
	}
	return nil
}

func runDocsDelete(cmd *cobra.Command, args []string) error {
	assistant, err := assistantService()
	if err != nil {
		return err
	}

	deleted, err := assistant.Delete(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if deleted {
		cmd.Printf("Deleted %s\n", args[0])
	} else {
		cmd.Printf("No such document: %s\n", args[0])
	}
	return nil
}
