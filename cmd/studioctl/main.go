package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"cinemastudio/internal/bootstrap"
	"cinemastudio/internal/domain"
	"cinemastudio/internal/infra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*infra.Config, infra.Logger, error) {
	_ = godotenv.Load()
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, infra.Logger{}, fmt.Errorf("loading config: %w", err)
	}
	return cfg, infra.NewLogger(cfg.AppEnv), nil
}

// newRuntime wires the studio without metrics. The caller must defer rt.Close().
func newRuntime(ctx context.Context) (*bootstrap.Runtime, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	rt, err := bootstrap.NewRuntime(ctx, cfg, logger, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing studio: %w", err)
	}
	return rt, nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func printMedia(items []domain.MediaItem) {
	if len(items) == 0 {
		fmt.Println("No media found.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tFAV\tCREATED\tURL")
	for _, m := range items {
		fav := ""
		if m.IsFavorite {
			fav = "*"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", m.ID, m.Kind, fav, m.CreatedAt.Format("2006-01-02 15:04:05"), m.Locator)
	}
	w.Flush()
}

var rootCmd = &cobra.Command{
	Use:          "studioctl",
	Short:        "Cinema studio admin tool",
	SilenceUsage: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		stores, err := bootstrap.OpenStores(cmd.Context(), cfg, logger)
		if err != nil {
			return fmt.Errorf("migrating %s database: %w", cfg.DatabaseDriver, err)
		}
		stores.Close()
		fmt.Printf("Database (%s) is up to date\n", cfg.DatabaseDriver)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List top-level media, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		rt, err := newRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		items, err := rt.Service.History(cmd.Context(), limit)
		if err != nil {
			return err
		}
		printMedia(items)
		return nil
	},
}

var proxiesCmd = &cobra.Command{
	Use:   "proxies <parent-id>",
	Short: "List the multishot proxies of a media item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parentID, err := parseID(args[0])
		if err != nil {
			return err
		}
		rt, err := newRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		items, err := rt.Service.Proxies(cmd.Context(), parentID)
		if err != nil {
			return err
		}
		printMedia(items)
		return nil
	},
}

var multishotCmd = &cobra.Command{
	Use:   "multishot <source-id>",
	Short: "Generate proxy angles for a source image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sourceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		rt, err := newRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		ids, err := rt.Service.Multishot(cmd.Context(), sourceID)
		if err != nil {
			return err
		}
		fmt.Printf("Generated %d of %d angles: %v\n", len(ids), len(rt.Service.Catalog()), ids)
		return nil
	},
}

var anglesCmd = &cobra.Command{
	Use:   "angles",
	Short: "Show the multishot angle catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		for i, a := range rt.Service.Catalog() {
			fmt.Printf("%d. %-24s %s\n", i+1, a.Label, a.Clause)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of items to show")
	rootCmd.AddCommand(proxiesCmd)
	rootCmd.AddCommand(multishotCmd)
	rootCmd.AddCommand(anglesCmd)
}
