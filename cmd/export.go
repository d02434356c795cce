package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/employee-management/internal/audit"
	"github.com/frahmantamala/employee-management/pkg/export"
)

var (
	exportFormat string
	exportDir    string
	exportAction string
	exportSince  time.Duration
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the audit log to a csv, xlsx or pdf file",
	Long:  `Export the audit log for offline review. The export is itself recorded in the audit log.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := export.ParseFormat(exportFormat)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		deps, err := initializeDependencies(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize dependencies: %w", err)
		}
		defer deps.Close()

		now := time.Now()
		filter := audit.Filter{Action: exportAction}
		if exportSince > 0 {
			from := now.Add(-exportSince)
			filter.From = &from
		}

		file, err := deps.Audit.Export(ctx, format, filter, now)
		if err != nil {
			return err
		}

		path := filepath.Join(exportDir, file.Name)
		if err := os.WriteFile(path, file.Data, 0o600); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		deps.Logger.Info("audit export written", "path", path, "rows", file.Rows)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "csv, xlsx or pdf")
	exportCmd.Flags().StringVarP(&exportDir, "out", "o", ".", "directory to write the file to")
	exportCmd.Flags().StringVar(&exportAction, "action", "", "only entries with this action")
	exportCmd.Flags().DurationVar(&exportSince, "since", 0, "only entries newer than this, e.g. 720h")
}
