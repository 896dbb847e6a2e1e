package main

import (
	"fmt"
	"os"

	"github.com/sandevgo/ctxkeeper/internal/config"
	"github.com/sandevgo/ctxkeeper/internal/service/installer"
	"github.com/sandevgo/ctxkeeper/pkg/log"
	"github.com/spf13/cobra"
)

var (
	initForce          bool
	initNonInteractive bool
)

var initCmd = &cobra.Command{
	Use:           "init",
	Short:         "Set up the backend and write the runtime .env",
	Long:          "Walks through provider, URL, API key, model, context window and profile, then writes them to the runtime .env.\nWith --non-interactive the effective settings from the environment are written as they are.",
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()
		logger := log.FromCtx(ctx)

		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		profiles, err := config.LoadProfiles(cfg.GetProfilesPath())
		if err != nil {
			return err
		}

		state := installer.NewState(cfg, profiles, initForce)
		if _, err := os.Stat(state.EnvPath); err == nil && !initForce {
			return fmt.Errorf("%s already exists, use --force to overwrite", state.EnvPath)
		}

		if initNonInteractive {
			err = state.Save()
		} else {
			logger.Info().Msg("starting setup wizard")
			err = installer.RunWizard(state)
		}
		if err != nil {
			return err
		}

		logger.Info().
			Str("path", state.EnvPath).
			Str("provider", cfg.Backend.Provider).
			Str("model", cfg.Backend.Model).
			Msg("configuration written")
		fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s. Start chatting with 'ctxkeeper chat'.\n", cfg.GetRuntimePath())
		return nil
	},
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List personality profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		profiles, err := config.LoadProfiles(cfg.GetProfilesPath())
		if err != nil {
			return err
		}
		for _, key := range profiles.Keys() {
			p := profiles[key]
			mark := " "
			if key == cfg.Profile {
				mark = "*"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %-14s %s\n", mark, key, p.Description)
		}
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing .env")
	initCmd.Flags().BoolVar(&initNonInteractive, "non-interactive", false, "skip the wizard and write the current settings")
	rootCmd.AddCommand(initCmd, profilesCmd)
}
