package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/retirectl/retirectl/internal/artifact"
	"github.com/retirectl/retirectl/internal/config"
	"github.com/retirectl/retirectl/internal/eligibility"
	"github.com/retirectl/retirectl/internal/inventory"
	"github.com/retirectl/retirectl/pkg/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type ExportOptions struct {
	GlobalOptions

	CriteriaFile  string
	InventoryFile string
	OutputFile    string
}

func DefaultExportOptions() *ExportOptions {
	return &ExportOptions{
		GlobalOptions: DefaultGlobalOptions(),
		OutputFile:    "review.csv",
	}
}

func NewCmdExport() *cobra.Command {
	o := DefaultExportOptions()
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the review artifact: candidates pre-selected by the eligibility criteria, ready for Keep/Delete decisions.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context())
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *ExportOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	fs.StringVar(&o.CriteriaFile, "criteria", o.CriteriaFile, "Eligibility criteria file (YAML).")
	fs.StringVar(&o.InventoryFile, "inventory", o.InventoryFile, "Inventory export file (YAML or JSON).")
	fs.StringVarP(&o.OutputFile, "output", "o", o.OutputFile, "Path of the review CSV to write.")
}

func (o *ExportOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if o.CriteriaFile == "" {
		return fmt.Errorf("--criteria is required")
	}
	if o.InventoryFile == "" {
		return fmt.Errorf("--inventory is required")
	}
	return nil
}

func (o *ExportOptions) Run(ctx context.Context) error {
	logger := log.InitLogs()
	if _, err := o.LoadConfig(logger); err != nil {
		return err
	}

	provider, err := inventory.NewFileProvider(o.InventoryFile)
	if err != nil {
		return err
	}
	devices, err := provider.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("listing devices: %w", err)
	}

	criteria, err := config.LoadCriteria(o.CriteriaFile)
	if err != nil {
		return err
	}

	filter := eligibility.NewFilter(logger, provider)
	eligible, excluded, err := filter.Select(ctx, devices, *criteria)
	if err != nil {
		return err
	}

	file, err := os.OpenFile(o.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating review file: %v", err)
	}
	defer file.Close()
	if err := artifact.ExportForReview(file, eligible, excluded); err != nil {
		return err
	}

	logger.Infof("wrote %d candidate and %d excluded rows", len(eligible), len(excluded))
	fmt.Println(o.OutputFile)
	return nil
}
