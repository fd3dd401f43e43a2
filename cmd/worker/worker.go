package worker

import "github.com/spf13/cobra"

// NewWorkerCmd returns the parent "worker" command.
func NewWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run background workers (outbox dispatch mode)",
	}
	// attach subcommands
	cmd.AddCommand(senderCmd)
	cmd.AddCommand(relayCmd)

	return cmd
}
