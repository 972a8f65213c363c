package main

import (
	"fmt"

	"github.com/cespare/xxhash"
	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/bankswap"
	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/cart"
	cferrors "github.com/cartfriend/cartfriend/go/cartfriend/pkg/errors"
	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/settings"
)

func init() {
	sramCmd := &cobra.Command{
		Use:   "sram",
		Short: "Move, erase and inspect save data",
	}

	sramCmd.AddCommand(&cobra.Command{
		Use:   "switch <slot|none>",
		Short: "Make an SRAM slot resident, backing up the current one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseSRAMTarget(args[0], false)
			if err != nil {
				return err
			}
			return withImage(true, func(env *cartEnv) error {
				env.session.SwitchSRAM(target)
				fmt.Fprintf(cmd.OutOrStdout(), "active sram: %s\n", env.record().ActiveSRAMSlot)
				return nil
			})
		},
	})

	sramCmd.AddCommand(&cobra.Command{
		Use:   "erase <slot|all|none>",
		Short: "Erase a slot's backup, every backup, or the SRAM itself (none)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseSRAMTarget(args[0], true)
			if err != nil {
				return err
			}
			return withImage(true, func(env *cartEnv) error {
				env.session.EraseSRAM(target)
				return nil
			})
		},
	})

	sramCmd.AddCommand(&cobra.Command{
		Use:   "adopt <slot>",
		Short: "Claim the current SRAM contents for a slot without copying",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseSRAMTarget(args[0], false)
			if err != nil {
				return err
			}
			if !target.IsIndex() {
				return fmt.Errorf("sram slot %q: %w", args[0], cferrors.ErrInvalidSRAMSlot)
			}
			return withImage(true, func(env *cartEnv) error {
				env.session.ResetFirstBoot()
				env.session.SwitchSRAM(target)
				return nil
			})
		},
	})

	sramCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show SRAM slot residency and content digests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withImage(false, func(env *cartEnv) error {
				return printSRAMStatus(cmd, env)
			})
		},
	})

	sramCmd.AddCommand(&cobra.Command{
		Use:   "selftest <slot>",
		Short: "Run the destructive SRAM read/write test through a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := settings.ParseSRAMSlot(args[0])
			n, ok := target.Index()
			if err != nil || !ok {
				return fmt.Errorf("invalid sram slot %q", args[0])
			}
			return withImage(true, func(env *cartEnv) error {
				engine, ok := env.session.Engine()
				if !ok {
					return fmt.Errorf("self-test: %w", cferrors.ErrNotSupported)
				}
				if err := engine.SelfTest(n); err != nil {
					return err
				}
				color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✅ SRAM self-test passed on slot %d\n", n)
				return nil
			})
		},
	})

	sramCmd.AddCommand(&cobra.Command{
		Use:   "export <file>",
		Short: "Write the SRAM contents to a host file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withImage(false, func(env *cartEnv) error {
				return afero.WriteFile(afero.NewOsFs(), args[0], env.image.SRAM.Bytes(), 0o644)
			})
		},
	})

	sramCmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Load the SRAM contents from a host file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := afero.ReadFile(afero.NewOsFs(), args[0])
			if err != nil {
				return err
			}
			if len(data) > cart.SRAMSize {
				return fmt.Errorf("%s is %d bytes, SRAM holds %d", args[0], len(data), cart.SRAMSize)
			}
			return withImage(true, func(env *cartEnv) error {
				env.image.SRAM.Load(data)
				return nil
			})
		},
	})

	rootCmd.AddCommand(sramCmd)
}

func printSRAMStatus(cmd *cobra.Command, env *cartEnv) error {
	out := cmd.OutOrStdout()
	bold := color.New(color.Bold)
	active := color.New(color.FgGreen, color.Bold)
	dim := color.New(color.Faint)
	rec := env.record()

	bold.Fprintf(out, "SRAM window\n")
	fmt.Fprintf(out, "  resident: %s\n", rec.ActiveSRAMSlot)
	fmt.Fprintf(out, "  xxhash:   %016x\n", xxhash.Sum64(env.image.SRAM.Bytes()))

	engine, ok := env.session.Engine()
	if !ok {
		dim.Fprintf(out, "no slot system, no backups\n")
		return nil
	}

	bold.Fprintf(out, "Backups\n")
	for n := 0; n < cart.SRAMSlots; n++ {
		first := engine.SlotBank(n)
		digest := xxhash.New()
		used := 0
		for b := uint16(0); b < bankswap.SlotBanks; b++ {
			data := env.image.BankData(env.manifest.LaunchSlot, first+b)
			digest.Write(data)
			if !isErased(data) {
				used++
			}
		}

		game := "unbound"
		if g := rec.SRAMSlotMapping[n]; g != settings.Unbound {
			game = fmt.Sprintf("game %d", g)
		}
		line := fmt.Sprintf("  %2d  banks 0x%02X-0x%02X  %-9s %d/%d used  %016x", n, first, first+bankswap.SlotBanks-1, game, used, bankswap.SlotBanks, digest.Sum64())
		switch {
		case rec.ActiveSRAMSlot == settings.Index(n):
			active.Fprintln(out, line+"  (resident)")
		case used == 0:
			dim.Fprintln(out, line)
		default:
			fmt.Fprintln(out, line)
		}
	}
	return nil
}

// parseSRAMTarget accepts a logical slot or none, and all when allowAll is
// set. first-boot is never a target.
func parseSRAMTarget(arg string, allowAll bool) (settings.SRAMSlot, error) {
	target, err := settings.ParseSRAMSlot(arg)
	if err != nil {
		return settings.None, err
	}
	switch {
	case target == settings.None:
	case target == settings.All && allowAll:
	case target.IsIndex() && target.Valid():
	default:
		return settings.None, fmt.Errorf("sram slot %q: %w", arg, cferrors.ErrInvalidSRAMSlot)
	}
	return target, nil
}

func isErased(data []byte) bool {
	for _, v := range data {
		if v != cart.ErasedByte {
			return false
		}
	}
	return true
}
