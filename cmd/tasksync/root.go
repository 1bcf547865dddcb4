package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/pathwise/tasksync/config"
	"github.com/pathwise/tasksync/internal/app"
	"github.com/pathwise/tasksync/internal/version"
)

// rootFlags holds the persistent flags shared by every command.
type rootFlags struct {
	configPath string
	user       string
	driver     string
	path       string
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "tasksync",
		Short:         "Local-first career task list",
		Long:          `Manage your to-do tasks locally, import roadmap milestones, and mirror changes to the remote task service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVarP(&flags.user, "user", "u", envOr("TASKSYNC_USER", "local"), "user whose tasks to manage")
	cmd.PersistentFlags().StringVar(&flags.driver, "storage-driver", "", "override storage.driver")
	cmd.PersistentFlags().StringVar(&flags.path, "storage-path", "", "override storage.path")

	cmd.AddCommand(
		newListCommand(flags),
		newAddCommand(flags),
		newUpdateCommand(flags),
		newDeleteCommand(flags),
		newClearCommand(flags),
		newImportCommand(flags),
		newMilestoneCommand(flags),
		newVersionCommand(),
	)
	return cmd
}

// open builds the core from the config file and flag overrides. Logs go to
// stderr at warn unless the config asks for more.
func (f *rootFlags) open() (*app.App, error) {
	cfg := config.DefaultConfig()
	cfg.LogLevel = "warn"
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg.ApplyEnv()
	}
	if f.driver != "" {
		cfg.Storage.Driver = f.driver
	}
	if f.path != "" {
		cfg.Storage.Path = f.path
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if f.user == "" {
		return nil, fmt.Errorf("--user must not be empty")
	}
	return app.New(cfg, app.NewLogger(os.Stderr, cfg.LogLevel))
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tasksync %s (commit %s, built %s)\n",
				version.Version, version.Commit, version.BuildDate)
		},
	}
}

// label turns an enum value like "in_progress" into "In Progress".
func label(s string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(s, "_", " "))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
