package cli

import (
	"fmt"
	"slices"

	"github.com/retirectl/retirectl/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"sigs.k8s.io/yaml"
)

var legalVersionOutputTypes = []string{"json", "yaml"}

type VersionOptions struct {
	Output string
}

func DefaultVersionOptions() *VersionOptions {
	return &VersionOptions{
		Output: "",
	}
}

func NewCmdVersion() *cobra.Command {
	o := DefaultVersionOptions()
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print retirectl version information.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run()
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *VersionOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.Output, "output", "o", o.Output, "Output format. One of: (json, yaml).")
}

func (o *VersionOptions) Validate(args []string) error {
	if len(o.Output) > 0 && !slices.Contains(legalVersionOutputTypes, o.Output) {
		return fmt.Errorf("output format must be one of (%s)", legalVersionOutputTypes)
	}
	return nil
}

func (o *VersionOptions) Run() error {
	info := version.Get()
	switch o.Output {
	case "json":
		marshalled, err := yaml.Marshal(&info)
		if err != nil {
			return err
		}
		marshalled, err = yaml.YAMLToJSON(marshalled)
		if err != nil {
			return err
		}
		fmt.Println(string(marshalled))
	case "yaml":
		marshalled, err := yaml.Marshal(&info)
		if err != nil {
			return err
		}
		fmt.Print(string(marshalled))
	default:
		fmt.Printf("retirectl version: %s\n", info.GitVersion)
	}
	return nil
}
