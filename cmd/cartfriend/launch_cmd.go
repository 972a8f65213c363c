package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/session"
)

var (
	launchSRAM   string
	launchNoSave bool
)

func init() {
	launchCmd := &cobra.Command{
		Use:   "launch <slot>",
		Short: "Prepare save data and hand over to a game slot",
		Args:  cobra.ExactArgs(1),
		RunE:  runLaunch,
	}
	launchCmd.Flags().StringVar(&launchSRAM, "sram", "", "SRAM slot to use instead of the mapped one")
	launchCmd.Flags().BoolVar(&launchNoSave, "no-save-data", false, "The game does not use SRAM")
	rootCmd.AddCommand(launchCmd)
}

func runLaunch(cmd *cobra.Command, args []string) error {
	slot, err := parseGameSlot(args[0])
	if err != nil {
		return err
	}

	var opts []session.LaunchOption
	if launchNoSave {
		opts = append(opts, session.WithoutSaveData())
	}
	if launchSRAM != "" {
		target, err := parseSRAMTarget(launchSRAM, false)
		if err != nil {
			return err
		}
		opts = append(opts, session.WithSRAMSlot(target))
	}

	return withImage(true, func(env *cartEnv) error {
		if err := env.session.Launch(slot, opts...); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "🚀 slot %d ready, sram %s\n", slot, env.record().ActiveSRAMSlot)
		return nil
	})
}
