package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/studypal/studypal/internal/backup"
	"github.com/studypal/studypal/internal/config"
)

var exportContent bool

func init() {
	exportCmd.Flags().BoolVar(&exportContent, "content", false,
		"Retain material binary payloads in the exported document")
}

// exportCmd and importCmd are the user-initiated local file escape hatch.
// They reuse the serializer directly and never touch the remote adapter.
var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write the full database as a JSON document to a local file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		data, err := a.serializer.Export(cmd.Context(), backup.ExportOptions{IncludeContent: exportContent})
		if err != nil {
			return err
		}

		if err := os.WriteFile(args[0], data, 0644); err != nil {
			return fmt.Errorf("write export file: %w", err)
		}
		fmt.Printf("exported %d bytes to %s\n", len(data), args[0])
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace local collections with a JSON document from a local file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read import file: %w", err)
		}

		if err := a.serializer.Import(cmd.Context(), data); err != nil {
			return err
		}
		fmt.Printf("imported %s\n", args[0])
		return nil
	},
}
