package cli

import (
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage conversation sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete [session-id]",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runSessionsList(cmd *cobra.Command, _ []string) error {
	sessions, err := sessionService()
	if err != nil {
		return err
	}

	summaries := sessions.List()
	if len(summaries) == 0 {
		cmd.Println("No active sessions.")
		return nil
	}
	for _, s := range summaries {
		cmd.Printf("%s  messages=%d  last_activity=%s\n",
			s.ID, s.MessageCount, s.LastActivity.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	sessions, err := sessionService()
	if err != nil {
		return err
	}

	if sessions.Delete(args[0]) {
		cmd.Printf("Deleted session %s\n", args[0])
	} else {
		cmd.Printf("No such session: %s\n", args[0])
	}
	return nil
}
