package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/cartfriend/cartfriend/go/cartfriend/internal/workenv"
	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/cart"
)

var (
	initLaunchSlot int
	initPlainFlash bool
)

func init() {
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create an erased cartridge image",
		Args:  cobra.NoArgs,
		RunE:  runInit,
	}
	initCmd.Flags().IntVar(&initLaunchSlot, "launch-slot", 0, "Slot the firmware boots from (-1 for none)")
	initCmd.Flags().BoolVar(&initPlainFlash, "no-compress", false, "Store the flash image without bzip2 compression")
	rootCmd.AddCommand(initCmd)

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show image and settings location details",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withImage(false, func(env *cartEnv) error {
				printInfo(cmd, env)
				return nil
			})
		},
	}
	rootCmd.AddCommand(infoCmd)

	unlockCmd := &cobra.Command{
		Use:   "unlock",
		Short: "Remove the image lock left behind by a crashed process",
		Args:  cobra.NoArgs,
		RunE:  runUnlock,
	}
	rootCmd.AddCommand(unlockCmd)
}

func runUnlock(cmd *cobra.Command, args []string) error {
	fs := afero.NewOsFs()
	dir := imagePath()
	if _, err := workenv.ReadManifest(fs, dir); err != nil {
		return fmt.Errorf("image %q: %w", dir, err)
	}
	if err := workenv.Clean(fs, dir); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "🔓 Unlocked image %s\n", imageName)
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	launch := uint16(cart.NoSlot)
	if initLaunchSlot >= 0 {
		launch = uint16(initLaunchSlot)
	}

	m := workenv.NewManifest(imageName, launch)
	if initPlainFlash {
		m.FlashFile = "flash.img"
	}
	if err := workenv.CreateImageDir(afero.NewOsFs(), imagePath(), m); err != nil {
		return err
	}

	// the first boot writes the default settings
	return withImage(true, func(env *cartEnv) error {
		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✅ Created image %s at %s\n", imageName, env.dir)
		return nil
	})
}

func printInfo(cmd *cobra.Command, env *cartEnv) {
	out := cmd.OutOrStdout()
	bold := color.New(color.Bold)
	store := env.store()

	bold.Fprintf(out, "Image %s\n", env.manifest.Name)
	fmt.Fprintf(out, "  directory:   %s\n", env.dir)
	fmt.Fprintf(out, "  created:     %s\n", env.manifest.Created.Format("2006-01-02 15:04:05Z"))
	if env.manifest.LaunchSlot == cart.NoSlot {
		fmt.Fprintf(out, "  launch slot: none\n")
	} else {
		fmt.Fprintf(out, "  launch slot: %d\n", env.manifest.LaunchSlot)
	}
	fmt.Fprintf(out, "  used banks:  %d\n", len(env.image.UsedBanks()))

	bold.Fprintf(out, "Settings\n")
	fmt.Fprintf(out, "  source:      %s\n", env.loaded.Source)
	if env.loaded.Slot >= 0 {
		bank, offset := store.Ring().Locate(store.Cursor())
		fmt.Fprintf(out, "  ring slot:   %d (bank 0x%02X offset 0x%04X)\n", store.Cursor(), bank, offset)
		fmt.Fprintf(out, "  stored as:   version %d\n", env.loaded.StoredVersion)
	}
	if env.loaded.Err != nil {
		color.New(color.FgYellow).Fprintf(out, "  defaults used: %v\n", env.loaded.Err)
	}
	fmt.Fprintf(out, "  active sram: %s\n", env.record().ActiveSRAMSlot)
	fmt.Fprintf(out, "  slot system: %v\n", env.session.Swapper().Capable())
}
