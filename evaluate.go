package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/xiaot623/mockinterview/internal/domain"
	"github.com/xiaot623/mockinterview/internal/evaluation"
)

func newEvaluateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate <turns.json>",
		Short: "Score a question/answer history offline",
		Long: `Score a question/answer history without running a session.

The input is a JSON array of {"question": "...", "answer": "..."} objects.
Use "-" to read from stdin. The linguistic metrics are printed as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open turns file: %w", err)
				}
				defer f.Close()
				in = f
			}
			return evaluate(in, cmd.OutOrStdout())
		},
	}
	return cmd
}

func evaluate(in io.Reader, out io.Writer) error {
	var pairs []domain.QAPair
	if err := json.NewDecoder(in).Decode(&pairs); err != nil {
		return fmt.Errorf("failed to decode turns: %w", err)
	}

	metrics := evaluation.EvaluateTranscript(pairs)
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(metrics)
}
