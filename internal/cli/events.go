package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/egv/autotask/internal/contracts"
)

const maxDecodeFailures = 3

func newEventsCommand(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events [path]",
		Short: "Print a JSONL event log in readable form",
		Long:  `Reads events written by events.path, from the given file, the configured path, or stdin when neither is set. Up to three consecutive malformed lines are reported and skipped.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := o.loadConfig(cmd)
				if err != nil {
					return err
				}
				path = cfg.Events.Path
			}

			in := cmd.InOrStdin()
			if strings.TrimSpace(path) != "" && path != "-" {
				file, err := os.Open(path)
				if err != nil {
					return err
				}
				defer file.Close()
				in = file
			}
			return renderEvents(in, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	return cmd
}

func renderEvents(in io.Reader, out io.Writer, errOut io.Writer) error {
	decoder := contracts.NewEventDecoder(in)
	failures := 0
	for {
		event, err := decoder.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			failures++
			fmt.Fprintln(errOut, "event decode warning:", err)
			if failures >= maxDecodeFailures {
				return fmt.Errorf("failed to decode event stream after %d errors: %w", failures, err)
			}
			continue
		}
		failures = 0
		if _, err := fmt.Fprintln(out, formatEvent(event)); err != nil {
			return err
		}
	}
}

func formatEvent(event contracts.Event) string {
	parts := []string{event.Timestamp.UTC().Format(time.RFC3339), string(event.Type)}
	if event.Source != "" {
		parts = append(parts, event.Source)
	}
	if event.Version > 0 {
		parts = append(parts, fmt.Sprintf("v%d", event.Version))
	}
	if event.TaskID != "" {
		parts = append(parts, "task="+event.TaskID)
	}
	keys := make([]string, 0, len(event.Metadata))
	for key := range event.Metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		parts = append(parts, key+"="+event.Metadata[key])
	}
	if event.Message != "" {
		parts = append(parts, event.Message)
	}
	return strings.Join(parts, " ")
}
