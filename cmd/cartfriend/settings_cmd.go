package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/cart"
	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/settings"
)

func init() {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the persisted settings",
	}

	settingsCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the settings record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withImage(false, func(env *cartEnv) error {
				printRecord(cmd, env.record())
				return nil
			})
		},
	})

	settingsCmd.AddCommand(&cobra.Command{
		Use:   "theme <n>",
		Short: "Set the colour theme",
		Args:  cobra.ExactArgs(1),
		RunE: editRecord(func(r *settings.Record, args []string) error {
			v, err := parseByte(args[0])
			r.ColorTheme = v
			return err
		}),
	})

	settingsCmd.AddCommand(&cobra.Command{
		Use:   "language <n>",
		Short: "Set the interface language",
		Args:  cobra.ExactArgs(1),
		RunE: editRecord(func(r *settings.Record, args []string) error {
			v, err := parseByte(args[0])
			r.Language = v
			return err
		}),
	})

	settingsCmd.AddCommand(&cobra.Command{
		Use:   "flag <name> on|off",
		Short: "Set or clear a settings flag",
		Args:  cobra.ExactArgs(2),
		RunE: editRecord(func(r *settings.Record, args []string) error {
			f, err := settings.ParseFlag(args[0])
			if err != nil {
				return err
			}
			switch args[1] {
			case "on":
				r.Flags1 |= f
			case "off":
				r.Flags1 &^= f
			default:
				return fmt.Errorf("expected on or off, got %q", args[1])
			}
			return nil
		}),
	})

	settingsCmd.AddCommand(&cobra.Command{
		Use:   "slot-type <slot> <type>",
		Short: "Set the role of a game slot",
		Args:  cobra.ExactArgs(2),
		RunE: editRecord(func(r *settings.Record, args []string) error {
			slot, err := parseGameSlot(args[0])
			if err != nil {
				return err
			}
			t, err := settings.ParseSlotType(args[1])
			if err != nil {
				return err
			}
			r.SlotTypes[slot] = t
			return nil
		}),
	})

	settingsCmd.AddCommand(&cobra.Command{
		Use:   "map <sram-slot> <game-slot|none|next|prev>",
		Short: "Bind an SRAM slot to a game slot",
		Args:  cobra.ExactArgs(2),
		RunE: editRecord(func(r *settings.Record, args []string) error {
			sram, err := strconv.Atoi(args[0])
			if err != nil || sram < 0 || sram >= cart.SRAMSlots {
				return fmt.Errorf("invalid sram slot %q", args[0])
			}
			switch args[1] {
			case "next":
				r.CycleMapping(sram, 1)
				return nil
			case "prev":
				r.CycleMapping(sram, -1)
				return nil
			case "none":
				return r.MapSRAMSlot(sram, settings.Unbound)
			}
			game, err := parseGameSlot(args[1])
			if err != nil {
				return err
			}
			return r.MapSRAMSlot(sram, uint8(game))
		}),
	})

	settingsCmd.AddCommand(&cobra.Command{
		Use:   "name <slot> [name]",
		Short: "Set or clear the display name of a game slot",
		Args:  cobra.RangeArgs(1, 2),
		RunE: editRecord(func(r *settings.Record, args []string) error {
			slot, err := parseGameSlot(args[0])
			if err != nil {
				return err
			}
			name := ""
			if len(args) == 2 {
				name = args[1]
			}
			r.SetName(slot, name)
			return nil
		}),
	})

	rootCmd.AddCommand(settingsCmd)
}

// editRecord runs edit on the loaded record and saves it.
func editRecord(edit func(r *settings.Record, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withImage(true, func(env *cartEnv) error {
			if err := edit(env.record(), args); err != nil {
				return err
			}
			env.store().MarkChanged()
			env.store().Refresh()
			return nil
		})
	}
}

func parseByte(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	return uint8(v), nil
}

func parseGameSlot(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n >= cart.GameSlots {
		return 0, fmt.Errorf("invalid game slot %q", s)
	}
	return n, nil
}

func printRecord(cmd *cobra.Command, r *settings.Record) {
	out := cmd.OutOrStdout()
	bold := color.New(color.Bold)
	dim := color.New(color.Faint)

	bold.Fprintf(out, "Settings v%d\n", r.Version)
	fmt.Fprintf(out, "  theme:       %d\n", r.ColorTheme)
	fmt.Fprintf(out, "  language:    %d\n", r.Language)
	fmt.Fprintf(out, "  flags:       %s\n", r.Flags1)
	fmt.Fprintf(out, "  active sram: %s\n", r.ActiveSRAMSlot)

	bold.Fprintf(out, "Game slots\n")
	for i, t := range r.SlotTypes {
		name, ok := r.Name(i)
		if !ok {
			name = dim.Sprint("-")
		}
		var saves []string
		for s := 0; s < cart.SRAMSlots; s++ {
			if int(r.SRAMSlotMapping[s]) == i {
				saves = append(saves, strconv.Itoa(s))
			}
		}
		fmt.Fprintf(out, "  %2d %-16s %-24s sram %s\n", i, t, name, strings.Join(saves, ","))
	}
}
