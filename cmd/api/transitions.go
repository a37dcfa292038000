package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pkordes/transit-dispatch/internal/lifecycle"
)

func newTransitionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "transitions",
		Short: "Print the trip transition table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), renderTransitions())
			return nil
		},
	}
}

func renderTransitions() string {
	var rows [][]string
	for _, t := range lifecycle.Transitions() {
		rows = append(rows, []string{string(t.From), string(t.Action), string(t.To), t.Actor(), t.Effect})
	}
	return renderTable([]string{"From", "Action", "To", "Actor", "Effect"}, rows, nil)
}
