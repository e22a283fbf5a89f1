package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tasktally/internal/config"
	"tasktally/internal/db"
	"tasktally/internal/history"
	"tasktally/internal/schedule"
	"tasktally/internal/server"
	"tasktally/internal/sheet"
	"tasktally/internal/taskapi"
	"tasktally/internal/tally"
)

var rootCmd = &cobra.Command{
	Use:   "tt",
	Short: "tasktally CLI",
	Long: `tasktally syncs task-completion tallies from a project-management API
into fixed cells of a spreadsheet-like store.
Per project it fetches all top-level tasks, expands every subtask at any
depth, counts totals and completed items, and writes a (timestamp, total,
completed) triple to the project's sheet row: timestamp in column A,
total in column C, completed in column D.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKTALLY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(sheetCmd())
	rootCmd.AddCommand(projectsCmd())
	rootCmd.AddCommand(configCmd())
}

func syncCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle",
		Long:  "Fetches every configured project's task tree, tallies totals, and writes each result to its sheet row.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSyncer(cmd.Context(), func(ctx context.Context, cfg *config.Config, s tally.Syncer) error {
				projects := cfg.Projects
				if projectID != "" {
					projects = nil
					for _, p := range cfg.Projects {
						if p.ID == projectID {
							projects = append(projects, p)
						}
					}
					if len(projects) == 0 {
						return fmt.Errorf("project %s not configured", projectID)
					}
				}
				results := s.SyncAll(ctx, projects)
				if len(results) < len(projects) {
					fmt.Fprintf(os.Stderr, "%d of %d projects failed; see log output\n", len(projects)-len(results), len(projects))
				}
				if viper.GetBool("json") {
					return printJSON(results)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Project", "Sheet", "Row", "Timestamp", "Total", "Completed"})
				for _, r := range results {
					tw.AppendRow(table.Row{r.ProjectID, r.Sheet, r.Row, r.Timestamp.Format(time.RFC3339), r.Total, r.Completed})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "sync only this project id")
	return cmd
}

func daemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Sync on a recurring schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withSyncer(ctx, func(ctx context.Context, cfg *config.Config, s tally.Syncer) error {
				runner := schedule.Runner{
					Syncer:   s,
					Projects: cfg.Projects,
					Interval: cfg.Interval(),
				}
				fmt.Printf("Syncing %d projects every %s\n", len(cfg.Projects), cfg.Interval())
				if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the read-only status API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withStore(ctx, func(ctx context.Context, cfg *config.Config, st storeDeps) error {
				authCfg := server.AuthConfig{JWTSecret: os.Getenv("TASKTALLY_JWT_SECRET")}
				if authCfg.JWTSecret == "" {
					return fmt.Errorf("TASKTALLY_JWT_SECRET is required for bearer auth")
				}
				handler, err := server.New(server.Config{
					Projects: cfg.Projects,
					History:  st.History,
					Sheets:   st.Sheets,
					BasePath: basePath,
					Auth:     authCfg,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving tasktally API on http://%s%s\n", addr, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func historyCmd() *cobra.Command {
	var projectID, cursor string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded sync runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, cfg *config.Config, st storeDeps) error {
				page, err := st.History.Runs(ctx, projectID, limit, cursor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Run", "Project", "Timestamp", "Total", "Completed"})
				for _, r := range page.Items {
					tw.AppendRow(table.Row{r.RunID, r.ProjectID, r.TS, r.Total, r.Completed})
				}
				tw.Render()
				if page.NextCursor != "" {
					fmt.Printf("next: tt history --cursor %s\n", page.NextCursor)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id filter")
	cmd.Flags().IntVar(&limit, "limit", 20, "page size")
	cmd.Flags().StringVar(&cursor, "cursor", "", "pagination cursor")
	return cmd
}

func sheetCmd() *cobra.Command {
	s := &cobra.Command{
		Use:   "sheet",
		Short: "Inspect destination sheets",
	}
	s.AddCommand(sheetShowCmd())
	return s
}

func sheetShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <sheet>",
		Short: "Show populated rows of a sheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			return withStore(cmd.Context(), func(ctx context.Context, cfg *config.Config, st storeDeps) error {
				rows, err := st.Sheets.Rows(ctx, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Row", "A (timestamp)", "C (total)", "D (completed)"})
				for _, r := range rows {
					tw.AppendRow(table.Row{r.Row, r.Cells[sheet.ColTimestamp], r.Cells[sheet.ColTotal], r.Cells[sheet.ColCompleted]})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func projectsCmd() *cobra.Command {
	p := &cobra.Command{
		Use:   "projects",
		Short: "Configured projects",
	}
	p.AddCommand(projectsListCmd())
	return p
}

func projectsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured project bindings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg.Projects)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Label", "Sheet", "Row"})
			for _, p := range cfg.Projects {
				tw.AppendRow(table.Row{p.ID, p.Label, p.Sheet, p.Row})
			}
			tw.Render()
			return nil
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default tasktally.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(projectID)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "1234567890", "project id to seed")
	return cmd
}

// --- helpers ---

type storeDeps struct {
	Sheets  sheet.Store
	History history.Writer
}

func withStore(ctx context.Context, fn func(context.Context, *config.Config, storeDeps) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	conn, err := db.Open(workspace)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, cfg, storeDeps{
		Sheets:  sheet.Store{DB: conn},
		History: history.Writer{DB: conn},
	})
}

func withSyncer(ctx context.Context, fn func(context.Context, *config.Config, tally.Syncer) error) error {
	return withStore(ctx, func(ctx context.Context, cfg *config.Config, st storeDeps) error {
		token, err := cfg.Token()
		if err != nil {
			return err
		}
		client := taskapi.New(cfg.API.BaseURL, token)
		client.PageLimit = cfg.PageLimit()
		logger := log.New(os.Stderr, "", log.LstdFlags)
		client.Logger = logger
		s := tally.Syncer{
			Source:  client,
			Sink:    st.Sheets,
			History: st.History,
			Logger:  logger,
		}
		return fn(ctx, cfg, s)
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
