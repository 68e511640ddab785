package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/hum-tech/tsoam/internal/domain"
	"github.com/hum-tech/tsoam/internal/search"
	"github.com/hum-tech/tsoam/internal/tui/styles"
	"github.com/spf13/cobra"
)

var (
	cacheJSON  bool
	cacheLimit int
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Read and write the offline record cache",
}

var cacheGetCmd = &cobra.Command{
	Use:   "get <module> <key>",
	Short: "Print one cached record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app) error {
			data, found, err := a.svc.GetOfflineData(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("no cached record for %s", domain.CacheKey(args[0], args[1]))
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		})
	},
}

var cachePutCmd = &cobra.Command{
	Use:   "put <module> <key> <json|->",
	Short: "Cache a record locally without queuing an operation",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := readPayload(args[2], cmd.InOrStdin())
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		return withApp(ctx, func(a *app) error {
			if err := a.svc.StoreOfflineData(ctx, args[0], args[1], payload); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cached %s\n", domain.CacheKey(args[0], args[1]))
			return nil
		})
	},
}

var cacheListCmd = &cobra.Command{
	Use:   "list [module]",
	Short: "List cached records, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app) error {
			var (
				records []domain.CachedRecord
				err     error
			)
			if len(args) == 1 {
				records, err = a.svc.GetModuleData(ctx, args[0])
			} else {
				records, err = a.svc.AllOfflineData(ctx)
			}
			if err != nil {
				return err
			}
			if cacheLimit > 0 && len(records) > cacheLimit {
				records = records[:cacheLimit]
			}

			w := cmd.OutOrStdout()
			if cacheJSON {
				return printJSON(w, records)
			}
			if len(records) == 0 {
				fmt.Fprintln(w, "No cached records")
				return nil
			}
			for _, rec := range records {
				modified := time.UnixMilli(rec.LastModified).Local().Format("2006-01-02 15:04:05")
				fmt.Fprintf(w, "%-30s %s  %s\n", rec.Key, modified, styles.Truncate(string(rec.Data), 60))
			}
			return nil
		})
	},
}

var cacheSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Fuzzy search cached records",
	Long: `Search cached records by key and field values.

Examples:
  tsoam cache search grace
  tsoam cache search "harvest sunday"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		ctx := cmd.Context()
		return withApp(ctx, func(a *app) error {
			records, err := a.svc.AllOfflineData(ctx)
			if err != nil {
				return err
			}

			idx := search.NewService(logger)
			idx.Index(records)
			results := idx.Find(query)
			if cacheLimit > 0 && len(results) > cacheLimit {
				results = results[:cacheLimit]
			}

			w := cmd.OutOrStdout()
			if cacheJSON {
				out := make([]domain.CachedRecord, len(results))
				for i, r := range results {
					out[i] = r.Record
				}
				return printJSON(w, out)
			}
			if len(results) == 0 {
				fmt.Fprintln(w, "No results found")
				return nil
			}
			highlight := isTerminal()
			for _, r := range results {
				text := r.Text
				if highlight {
					text = styles.HighlightMatches(text, r.MatchedIndexes)
				}
				fmt.Fprintf(w, "[%s] %s\n", r.Record.Module, text)
			}
			return nil
		})
	},
}

func init() {
	cacheCmd.PersistentFlags().BoolVar(&cacheJSON, "json", false, "output as JSON")
	cacheCmd.PersistentFlags().IntVarP(&cacheLimit, "limit", "n", 0, "maximum number of records (0 = all)")

	cacheCmd.AddCommand(cacheGetCmd, cachePutCmd, cacheListCmd, cacheSearchCmd)
	rootCmd.AddCommand(cacheCmd)
}
