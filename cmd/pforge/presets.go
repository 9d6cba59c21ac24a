package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"promptforge/internal/preset"
)

var (
	presetInstruction string
	presetRounds      int
	presetCount       int
	presetTranslate   bool
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "Manage instruction presets",
	Long: `Presets bundle an instruction with run parameters under a name.
They live in the preset YAML file (editable by hand, live-reloaded)
and are mirrored into the store so 'run --preset' works even when the
file is missing.`,
}

var presetsAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Create or update a preset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if presetInstruction == "" {
			return fmt.Errorf("--instruction is required")
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		p := preset.Preset{
			Name:            args[0],
			Instruction:     presetInstruction,
			OutputsPerRound: presetCount,
			Rounds:          presetRounds,
			Translation:     presetTranslate,
		}

		lib, err := a.library()
		if err != nil {
			return err
		}
		if err := lib.Set(p); err != nil {
			return err
		}
		if err := lib.Save(); err != nil {
			return err
		}
		if err := a.store.SavePreset(p); err != nil {
			return err
		}

		fmt.Printf("saved preset %q\n", p.Name)
		return nil
	},
}

var presetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		lib, err := a.library()
		if err != nil {
			return err
		}

		presets := lib.List()
		if len(presets) == 0 {
			fmt.Println("no presets defined")
			return nil
		}

		for _, p := range presets {
			line := fmt.Sprintf("%-16s %s", p.Name, p.Instruction)
			if p.Rounds > 0 {
				line += fmt.Sprintf("  rounds=%d", p.Rounds)
			}
			if p.OutputsPerRound > 0 {
				line += fmt.Sprintf("  count=%d", p.OutputsPerRound)
			}
			if p.Translation {
				line += "  translate"
			}
			fmt.Println(line)
		}
		return nil
	},
}

var presetsRemoveCmd = &cobra.Command{
	Use:   "remove [name]",
	Short: "Delete a preset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		lib, err := a.library()
		if err != nil {
			return err
		}

		inFile := lib.Remove(args[0])
		if inFile {
			if err := lib.Save(); err != nil {
				return err
			}
		}
		inStore, err := a.store.DeletePreset(args[0])
		if err != nil {
			return err
		}
		if !inFile && !inStore {
			return fmt.Errorf("no preset named %q", args[0])
		}

		fmt.Printf("removed preset %q\n", args[0])
		return nil
	},
}

func init() {
	presetsAddCmd.Flags().StringVar(&presetInstruction, "instruction", "", "instruction text (required)")
	presetsAddCmd.Flags().IntVar(&presetRounds, "rounds", 0, "target rounds per item")
	presetsAddCmd.Flags().IntVar(&presetCount, "count", 0, "outputs per round")
	presetsAddCmd.Flags().BoolVar(&presetTranslate, "translate", false, "request paired translations")

	presetsCmd.AddCommand(presetsAddCmd)
	presetsCmd.AddCommand(presetsListCmd)
	presetsCmd.AddCommand(presetsRemoveCmd)
}
