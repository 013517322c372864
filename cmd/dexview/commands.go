package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/dexview/internal/api"
	"github.com/kalambet/dexview/internal/catalog"
	"github.com/kalambet/dexview/internal/config"
	"github.com/kalambet/dexview/internal/session"
)

func parseID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid item id %q", arg)
	}
	return id, nil
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog items matching a search term and type",
	Long: `List catalog items matching a search term and type.

The search is a case-insensitive substring of the name. Both filters apply
together and become the server's current criteria.

Examples:
  dexview list
  dexview list --search saur
  dexview list --search char --type fire`,
	RunE: func(cmd *cobra.Command, args []string) error {
		search, _ := cmd.Flags().GetString("search")
		category, _ := cmd.Flags().GetString("type")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.patch(cmd.Context(), "/catalog/filter", api.FilterRequest{
			Search:   &search,
			Category: &category,
		})
		if err != nil {
			return err
		}

		var snap session.Snapshot
		if err := decodeJSON(resp, &snap); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON {
			return writeIndented(out, snap.Items)
		}
		if printNotReady(out, snap) {
			printItems(out, snap.Items)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().String("search", "", "case-insensitive name substring")
	listCmd.Flags().String("type", catalog.AllCategories, `type to filter on, or "all"`)
	listCmd.Flags().Bool("json", false, "print items as JSON")
}

// --- show ---

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the details of one item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/catalog/items/%d", id))
		if err != nil {
			return err
		}

		var it catalog.Item
		if err := decodeJSON(resp, &it); err != nil {
			return err
		}

		printItem(cmd.OutOrStdout(), it)
		return nil
	},
}

// --- categories ---

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List every type present in the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/catalog/categories")
		if err != nil {
			return err
		}

		var cats []string
		if err := decodeJSON(resp, &cats); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(cats) == 0 {
			fmt.Fprintln(out, "No types loaded")
			return nil
		}
		for _, c := range cats {
			fmt.Fprintln(out, badge(c))
		}
		return nil
	},
}

// --- select / close ---

var selectCmd = &cobra.Command{
	Use:   "select <id>",
	Short: "Open the detail view of an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.put(cmd.Context(), "/catalog/selection", api.SelectRequest{ID: id})
		if err != nil {
			return err
		}

		var snap session.Snapshot
		if err := decodeJSON(resp, &snap); err != nil {
			return err
		}
		if snap.Selected == nil {
			return fmt.Errorf("item %d was not selected", id)
		}

		printItem(cmd.OutOrStdout(), *snap.Selected)
		return nil
	},
}

var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Close the open detail view",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/catalog/selection")
		if err != nil {
			return err
		}

		var snap session.Snapshot
		if err := decodeJSON(resp, &snap); err != nil {
			return err
		}

		printSuccess("Closed item view")
		return nil
	},
}

// --- reload ---

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Discard the catalog and fetch it again",
	RunE: func(cmd *cobra.Command, args []string) error {
		wait, _ := cmd.Flags().GetBool("wait")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/catalog/reload", nil)
		if err != nil {
			return err
		}

		var snap session.Snapshot
		if err := decodeJSON(resp, &snap); err != nil {
			return err
		}
		printStep("Reloading catalog (session %s)", snap.SessionID)
		if !wait {
			return nil
		}

		snap, err = waitReady(cmd.Context(), client, 500*time.Millisecond)
		if err != nil {
			return err
		}
		if printNotReady(cmd.OutOrStdout(), snap) {
			printSuccess("Catalog ready: %d items, %d types", snap.Total, len(snap.Categories))
		}
		return nil
	},
}

func init() {
	reloadCmd.Flags().Bool("wait", false, "wait until the new catalog is ready or has failed")
}

// waitReady polls the server until the current session leaves Loading.
func waitReady(ctx context.Context, client *apiClient, every time.Duration) (session.Snapshot, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		resp, err := client.get(ctx, "/catalog")
		if err != nil {
			return session.Snapshot{}, err
		}
		var snap session.Snapshot
		if err := decodeJSON(resp, &snap); err != nil {
			return session.Snapshot{}, err
		}
		if snap.Status != catalog.StatusLoading {
			return snap, nil
		}

		select {
		case <-ctx.Done():
			return session.Snapshot{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// --- fetch ---

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch the catalog once and print it, without a server",
	Long: `Fetch the catalog once and print it, without a server.

Examples:
  dexview fetch
  dexview fetch --type water
  dexview fetch --search pi --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		search, _ := cmd.Flags().GetString("search")
		category, _ := cmd.Flags().GetString("type")
		asJSON, _ := cmd.Flags().GetBool("json")

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		level := "warn"
		if strings.EqualFold(cfg.Log.Level, "debug") {
			level = "debug"
		}
		logger := newLogger(level, os.Stderr)

		store := session.New(newAcquirer(cfg, nil, logger), session.WithLogger(logger))
		defer store.Close()

		store.Start(cmd.Context())
		status, err := store.Wait(cmd.Context())
		if status != catalog.StatusReady {
			printNotReady(cmd.OutOrStdout(), store.Snapshot())
			if err == nil {
				err = fmt.Errorf("catalog is %s", status)
			}
			return err
		}

		snap, err := store.SetCriteria(catalog.Criteria{Search: search, Category: category})
		if err != nil {
			return fmt.Errorf("%w (known types: %s)", err, strings.Join(snap.Categories, ", "))
		}

		out := cmd.OutOrStdout()
		if asJSON {
			return writeIndented(out, snap.Items)
		}
		printItems(out, snap.Items)
		return nil
	},
}

func init() {
	fetchCmd.Flags().String("search", "", "case-insensitive name substring")
	fetchCmd.Flags().String("type", catalog.AllCategories, `type to filter on, or "all"`)
	fetchCmd.Flags().Bool("json", false, "print items as JSON")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorGray, "("+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: "Set a configuration value in the config file.\n\nValid keys: " +
		strings.Join(config.ValidKeys(), ", "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
