package cli

import (
	"fmt"
	"os"
	"slices"

	"github.com/retirectl/retirectl/internal/report"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var reportFormats = []string{"json", "csv", "html"}

type ReportOptions struct {
	GlobalOptions

	Format string
}

func DefaultReportOptions() *ReportOptions {
	return &ReportOptions{
		GlobalOptions: DefaultGlobalOptions(),
		Format:        "html",
	}
}

func NewCmdReport() *cobra.Command {
	o := DefaultReportOptions()
	cmd := &cobra.Command{
		Use:   "report AUDIT_FILE",
		Short: "Re-render an audit artifact as JSON, CSV or HTML on stdout.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(args[0])
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *ReportOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	fs.StringVarP(&o.Format, "output", "o", o.Format, "Output format: json, csv or html.")
}

func (o *ReportOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if !slices.Contains(reportFormats, o.Format) {
		return fmt.Errorf("output format must be one of: json, csv, html")
	}
	return nil
}

func (o *ReportOptions) Run(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening audit artifact: %v", err)
	}
	defer file.Close()

	summary, err := report.ReadJSON(file)
	if err != nil {
		return err
	}

	switch o.Format {
	case "json":
		return report.WriteJSON(os.Stdout, summary)
	case "csv":
		return report.WriteCSV(os.Stdout, summary)
	default:
		return report.WriteHTML(os.Stdout, summary)
	}
}
