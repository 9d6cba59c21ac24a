package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"promptforge/internal/batch"
)

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Manage the work queue",
}

var itemsAddCmd = &cobra.Command{
	Use:   "add [text]",
	Short: "Add one work item",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		id := a.queue.Add(strings.Join(args, " "))
		if err := a.save(); err != nil {
			return err
		}
		fmt.Printf("added %s\n", id)
		return nil
	},
}

var itemsAddFileCmd = &cobra.Command{
	Use:   "add-file [path]",
	Short: "Add one work item per non-empty line of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		ids := a.queue.AddBulk(string(data))
		if err := a.save(); err != nil {
			return err
		}
		fmt.Printf("added %d item(s)\n", len(ids))
		return nil
	},
}

var itemsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued work items",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		items := a.queue.Items()
		if len(items) == 0 {
			fmt.Println("queue is empty")
			return nil
		}

		for _, item := range items {
			line := fmt.Sprintf("%s  [%s]  %s", item.ID, item.Status, firstLine(item.SourceText))
			if item.Status == batch.StatusError {
				line += fmt.Sprintf("  (%s)", item.Error)
			}
			if n := len(item.Outputs); n > 0 {
				line += fmt.Sprintf("  %d output(s)", n)
			}
			fmt.Println(line)
		}
		return nil
	},
}

var itemsRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Remove a work item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		if !a.queue.Remove(args[0]) {
			return fmt.Errorf("no work item with ID %s", args[0])
		}
		if err := a.save(); err != nil {
			return err
		}
		fmt.Printf("removed %s\n", args[0])
		return nil
	},
}

var itemsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all work items",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		n := a.queue.Len()
		a.queue.Clear()
		if err := a.save(); err != nil {
			return err
		}
		fmt.Printf("cleared %d item(s)\n", n)
		return nil
	},
}

var itemsRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-queue failed items, keeping their partial outputs",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		n := a.queue.RetryErrors()
		if err := a.save(); err != nil {
			return err
		}
		fmt.Printf("re-queued %d failed item(s)\n", n)
		return nil
	},
}

var itemsEditCmd = &cobra.Command{
	Use:   "edit [id] [text]",
	Short: "Replace a work item's source text",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.queue.EditSource(args[0], strings.Join(args[1:], " ")); err != nil {
			return err
		}
		if err := a.save(); err != nil {
			return err
		}
		fmt.Printf("updated %s\n", args[0])
		return nil
	},
}

var (
	setInstruction string
	setRounds      int
	setCount       int
)

var itemsSetCmd = &cobra.Command{
	Use:   "set [id]",
	Short: "Set per-item run overrides",
	Long: `Overrides shadow the run configuration for one item. Only the
flags given are changed; passing a zero or empty value clears that
override. During a run, override changes apply from the item's next
round.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		item, ok := a.queue.Get(args[0])
		if !ok {
			return fmt.Errorf("no work item with ID %s", args[0])
		}

		ov := mergeOverrides(item.Overrides,
			flagString(cmd, "instruction", setInstruction),
			flagInt(cmd, "rounds", setRounds),
			flagInt(cmd, "count", setCount),
		)
		if err := a.queue.SetOverrides(args[0], ov); err != nil {
			return err
		}
		if err := a.save(); err != nil {
			return err
		}
		fmt.Printf("updated overrides on %s\n", args[0])
		return nil
	},
}

// mergeOverrides applies only the requested changes; nil means the flag
// was not given and the stored override is kept.
func mergeOverrides(existing batch.Overrides, instruction *string, rounds, count *int) batch.Overrides {
	if instruction != nil {
		existing.Instruction = *instruction
	}
	if rounds != nil {
		existing.Rounds = *rounds
	}
	if count != nil {
		existing.OutputsPerRound = *count
	}
	return existing
}

func flagString(cmd *cobra.Command, name string, v string) *string {
	if cmd.Flags().Changed(name) {
		return &v
	}
	return nil
}

func flagInt(cmd *cobra.Command, name string, v int) *int {
	if cmd.Flags().Changed(name) {
		return &v
	}
	return nil
}

var itemsRegenerateCmd = &cobra.Command{
	Use:   "regenerate [id]",
	Short: "Reset an item's outputs and rounds for a fresh run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.queue.Regenerate(args[0]); err != nil {
			return err
		}
		if err := a.save(); err != nil {
			return err
		}
		fmt.Printf("reset %s\n", args[0])
		return nil
	},
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func init() {
	itemsSetCmd.Flags().StringVar(&setInstruction, "instruction", "", "override the instruction for this item")
	itemsSetCmd.Flags().IntVar(&setRounds, "rounds", 0, "override target rounds for this item")
	itemsSetCmd.Flags().IntVar(&setCount, "count", 0, "override outputs per round for this item")

	itemsCmd.AddCommand(itemsAddCmd)
	itemsCmd.AddCommand(itemsAddFileCmd)
	itemsCmd.AddCommand(itemsListCmd)
	itemsCmd.AddCommand(itemsRemoveCmd)
	itemsCmd.AddCommand(itemsClearCmd)
	itemsCmd.AddCommand(itemsRetryCmd)
	itemsCmd.AddCommand(itemsEditCmd)
	itemsCmd.AddCommand(itemsSetCmd)
	itemsCmd.AddCommand(itemsRegenerateCmd)
}
