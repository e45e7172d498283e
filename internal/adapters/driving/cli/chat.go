package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var chatDocID string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive question answering",
	Long: `Starts an interactive loop that keeps a single conversation session
open, so follow-up questions see the earlier exchanges. Exit with "quit"
or Ctrl-D.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatDocID, "doc-id", "d", "", "document to chat about (required)")
	_ = chatCmd.MarkFlagRequired("doc-id")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	cmd.Printf("Chatting about %s. Type a question, or \"quit\" to exit.\n", chatDocID)

	sessionID := ""
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		cmd.Print("> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "quit" || question == "exit" {
			break
		}

		// Resolve fresh each turn; a config reload may have swapped the
		// service graph.
		assistant, err := assistantService()
		if err != nil {
			return err
		}

		result, err := assistant.Query(cmd.Context(), sessionID, chatDocID, question, 0)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			continue
		}
		sessionID = result.SessionID

		switch {
		case !result.Found:
			cmd.Println(result.Warning)
		case result.Answer != "":
			cmd.Println(result.Answer)
		default:
			cmd.Printf("(%s)\n", result.Warning)
			for i, s := range result.Snippets {
				cmd.Printf("  [%d] %s\n", i+1, excerpt(s.Chunk.Text, 160))
			}
		}
		cmd.Println()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}
