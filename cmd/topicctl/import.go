package main

import (
	"fmt"
	"io"
	"os"

	"github.com/VadimShubkin/ii/application/commands"
	"github.com/VadimShubkin/ii/application/moderation"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import topic names, one per line",
	Long:  `Creates every topic named in the file that does not exist yet. Use "-" to read standard input.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Drop cached topic lookups on every instance",
	Args:  cobra.NoArgs,
	RunE:  runReload,
}

func init() {
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(reloadCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()
		in = f
	}
	body, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("failed to read topics: %w", err)
	}

	result, err := container.CommandBus.Send(operatorContext(cmd.Context()), commands.NewImportTopicsCommand(string(body)))
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	outcome, ok := result.(*moderation.Outcome)
	if !ok {
		cmd.Println("Import complete")
		return nil
	}
	if outcome.Pending() {
		cmd.Printf("Import queued for moderation: %s\n", outcome.PendingID)
		return nil
	}
	if res, ok := outcome.Result.(*commands.ImportResult); ok {
		cmd.Printf("Imported %d topics\n", res.Imported)
		return nil
	}
	cmd.Println("Import complete")
	return nil
}

func runReload(cmd *cobra.Command, args []string) error {
	if err := container.Topics.Reload(cmd.Context()); err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}
	cmd.Println("Topic index reloaded")
	return nil
}
