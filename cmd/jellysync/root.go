package main

import (
	"github.com/spf13/cobra"
)

type globalFlags struct {
	config   string
	profile  string
	host     string
	token    string
	userID   string
	mediaDir string
	logLevel string
	json     bool
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	ctx := newCommandContext(flags)

	rootCmd := &cobra.Command{
		Use:           "jellysync",
		Short:         "Mirror Jellyfin media into a local library",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "Configuration file path")
	pf.StringVarP(&flags.profile, "profile", "p", "", "Server profile to use")
	pf.StringVar(&flags.host, "host", "", "Jellyfin server URL (overrides the profile)")
	pf.StringVar(&flags.token, "token", "", "Access token (overrides the profile)")
	pf.StringVar(&flags.userID, "user-id", "", "Jellyfin user id (overrides the profile)")
	pf.StringVar(&flags.mediaDir, "media-dir", "", "Local media directory (overrides paths.media_dir)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.BoolVar(&flags.json, "json", false, "Write machine-readable JSON to stdout")

	rootCmd.AddCommand(newDownloadCommand(ctx))
	rootCmd.AddCommand(newPlanCommand(ctx))
	rootCmd.AddCommand(newSearchCommand(ctx))
	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newInfoCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newCheckCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
