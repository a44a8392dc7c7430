package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/talgya/segsim/internal/config"
)

func newSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.SchemaJSON()
			if err != nil {
				return err
			}

			outPath, _ := cmd.Flags().GetString("out")
			if outPath == "" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			return writeFileAtomic(outPath, data)
		},
	}
	cmd.Flags().String("out", "", "Write the schema to this path instead of stdout")
	return cmd
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}
	return nil
}
