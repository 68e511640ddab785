package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hum-tech/tsoam/internal/domain"
	"github.com/hum-tech/tsoam/internal/search"
	"github.com/spf13/cobra"
)

var queueSyncNow bool

var queueCmd = &cobra.Command{
	Use:   "queue <module> <CREATE|UPDATE|DELETE> [json|-]",
	Short: "Queue an operation for replay",
	Long: `Queue a create, update or delete against a module. The payload is a
JSON object given inline or read from stdin with "-". UPDATE and DELETE
payloads must carry an "id" field.

Examples:
  tsoam queue members create '{"name":"Grace Wanjiru"}'
  tsoam queue events update '{"id":12,"title":"Harvest Sunday"}'
  cat txn.json | tsoam queue transactions create -`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		module := strings.ToLower(args[0])
		kind, err := domain.ParseOperationKind(args[1])
		if err != nil {
			return err
		}

		var payload json.RawMessage
		if len(args) == 3 {
			payload, err = readPayload(args[2], cmd.InOrStdin())
			if err != nil {
				return err
			}
		}

		ctx := cmd.Context()
		return withApp(ctx, func(a *app) error {
			if err := checkModule(a, module); err != nil {
				return err
			}

			op, err := a.svc.QueueOperation(ctx, module, kind, payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued %s %s as %s\n", op.Module, op.Kind, op.ID)

			if queueSyncNow {
				return runSync(ctx, a, cmd.OutOrStdout())
			}
			return nil
		})
	},
}

func init() {
	queueCmd.Flags().BoolVar(&queueSyncNow, "sync", false, "run a sync cycle right after queuing")
	rootCmd.AddCommand(queueCmd)
}

// readPayload returns arg as JSON, or stdin when arg is "-".
func readPayload(arg string, stdin io.Reader) (json.RawMessage, error) {
	data := []byte(arg)
	if arg == "-" {
		var err error
		data, err = io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload: %w", err)
		}
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	return json.RawMessage(data), nil
}

// checkModule rejects unknown modules with a suggestion.
func checkModule(a *app, module string) error {
	if _, err := a.svc.Registry().Endpoint(module); err == nil {
		return nil
	}
	var hint string
	if hints := search.SuggestModules(module, a.svc.Registry().Modules()); len(hints) > 0 {
		hint = fmt.Sprintf(" (did you mean %q?)", hints[0])
	}
	return fmt.Errorf("%w: %q%s", domain.ErrUnknownModule, module, hint)
}

// printJSON writes v indented
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
