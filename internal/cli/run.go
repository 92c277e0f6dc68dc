package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	api "github.com/retirectl/retirectl/api/v1alpha1"
	"github.com/retirectl/retirectl/internal/aggregate"
	"github.com/retirectl/retirectl/internal/artifact"
	"github.com/retirectl/retirectl/internal/client"
	"github.com/retirectl/retirectl/internal/config"
	"github.com/retirectl/retirectl/internal/eligibility"
	"github.com/retirectl/retirectl/internal/instrumentation"
	"github.com/retirectl/retirectl/internal/inventory"
	"github.com/retirectl/retirectl/internal/orchestrator"
	"github.com/retirectl/retirectl/internal/report"
	"github.com/retirectl/retirectl/internal/store"
	"github.com/retirectl/retirectl/pkg/log"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type RunOptions struct {
	GlobalOptions

	CriteriaFile           string
	DecisionArtifactFile   string
	InventoryFile          string
	SessionFile            string
	RemoveFromProvisioning bool
	RemoveFromDirectory    bool
	GateCleanupOnWipe      bool
	DryRun                 bool
	Confirm                bool
	Concurrency            int
	At                     string
	OutputDir              string
	MetricsAddress         string

	runAt time.Time
}

func DefaultRunOptions() *RunOptions {
	return &RunOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdRun() *cobra.Command {
	o := DefaultRunOptions()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a retirement run: wipe eligible devices and tear down their registry records.",
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

func (o *RunOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	fs.StringVar(&o.CriteriaFile, "criteria", o.CriteriaFile, "Eligibility criteria file (YAML). Selects candidates automatically.")
	fs.StringVar(&o.DecisionArtifactFile, "decision-artifact", o.DecisionArtifactFile, "Reviewed decision artifact (CSV). When given, it is authoritative over automatic selection.")
	fs.StringVar(&o.InventoryFile, "inventory", o.InventoryFile, "Inventory export file (YAML or JSON) with devices and group names.")
	fs.StringVar(&o.SessionFile, "session", o.SessionFile, "Session file with endpoints and token for the external systems.")
	fs.BoolVar(&o.RemoveFromProvisioning, "remove-from-provisioning", false, "Remove devices from the zero-touch provisioning registry.")
	fs.BoolVar(&o.RemoveFromDirectory, "remove-from-directory", false, "Remove device objects from the directory service.")
	fs.BoolVar(&o.GateCleanupOnWipe, "gate-cleanup-on-wipe", false, "Skip registry/directory cleanup for a device whose wipe did not succeed.")
	fs.BoolVar(&o.DryRun, "dry-run", false, "Preview the phase plan; no external call is made.")
	fs.BoolVar(&o.Confirm, "confirm", false, "Ask for one interactive confirmation before the batch starts.")
	fs.IntVar(&o.Concurrency, "concurrency", 0, "Devices processed in parallel (0 uses the configured default).")
	fs.StringVar(&o.At, "at", o.At, "Delay the run until this RFC3339 time; the run executes once.")
	fs.StringVar(&o.OutputDir, "output", o.OutputDir, "Directory for the audit artifact (defaults to the configured output dir).")
	fs.StringVar(&o.MetricsAddress, "metrics-address", o.MetricsAddress, "Expose prometheus metrics on this address for the duration of the run.")
}

func (o *RunOptions) Complete(cmd *cobra.Command, args []string) error {
	if err := o.GlobalOptions.Complete(cmd, args); err != nil {
		return err
	}
	if o.At != "" {
		at, err := time.Parse(time.RFC3339, o.At)
		if err != nil {
			return fmt.Errorf("parsing --at: %v", err)
		}
		o.runAt = at
	}
	return nil
}

func (o *RunOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if o.CriteriaFile == "" && o.DecisionArtifactFile == "" {
		return fmt.Errorf("either --criteria or --decision-artifact is required")
	}
	if o.DecisionArtifactFile != "" && o.CriteriaFile == "" {
		// without criteria there is no automatic selection to compare the
		// artifact against; the artifact alone still fully defines the run
		fmt.Fprintln(os.Stderr, "note: no criteria given, the decision artifact alone selects devices")
	}
	if o.InventoryFile == "" {
		return fmt.Errorf("--inventory is required")
	}
	if o.SessionFile == "" && !o.DryRun {
		return fmt.Errorf("--session is required unless --dry-run is set")
	}
	if o.At != "" && o.runAt.Before(time.Now()) {
		return fmt.Errorf("--at must be a future time")
	}
	return nil
}

func (o *RunOptions) Run(ctx context.Context) error {
	logger := log.InitLogs()
	cfg, err := o.LoadConfig(logger)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	runLog := log.WithRunID(runID, logger)

	if o.At != "" {
		runLog.Infof("waiting until %s to start the run", o.runAt.Format(time.RFC3339))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(o.runAt)):
		}
	}

	provider, err := inventory.NewFileProvider(o.InventoryFile)
	if err != nil {
		return err
	}
	devices, err := provider.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("listing devices: %w", err)
	}
	runLog.Infof("inventory lists %d devices", len(devices))

	candidates, excluded, noDecision, err := o.selectCandidates(ctx, runLog, devices, provider)
	if err != nil {
		return err
	}
	runLog.Infof("%d candidates selected, %d excluded, %d without decision", len(candidates), len(excluded), len(noDecision))

	retireConfig := api.RetirementConfig{
		DryRun:                   o.DryRun,
		RemoveFromProvisioning:   o.RemoveFromProvisioning,
		RemoveFromDirectory:      o.RemoveFromDirectory,
		GateCleanupOnWipeSuccess: o.GateCleanupOnWipe,
		ConfirmationRequired:     o.Confirm,
		Concurrency:              o.Concurrency,
	}
	if retireConfig.Concurrency == 0 && cfg.Retirement != nil {
		retireConfig.Concurrency = cfg.Retirement.Concurrency
	}

	orch, metrics, err := o.buildOrchestrator(runLog)
	if err != nil {
		return err
	}

	metricsCtx, stopMetrics := context.WithCancel(ctx)
	defer stopMetrics()
	if address := o.metricsAddress(cfg); address != "" && metrics != nil {
		go func() {
			if err := metrics.Serve(metricsCtx, runLog, address); err != nil {
				runLog.WithError(err).Warn("metrics listener failed")
			}
		}()
	}

	startedAt := time.Now().UTC()
	results, err := orch.Retire(ctx, candidates, retireConfig)
	if err != nil {
		return err
	}

	summary := aggregate.Aggregate(runID, startedAt, results, retireConfig)
	summary.Excluded = excluded
	summary.NoDecision = noDecision

	o.persistRun(ctx, runLog, cfg, &summary)

	path, err := report.SaveArtifact(o.outputDir(cfg), &summary)
	if err != nil {
		return err
	}
	// the artifact path is the one output callers can always rely on
	fmt.Println(path)

	if err := report.NewLogNotifier(runLog).Notify(ctx, &summary); err != nil {
		runLog.WithError(err).Warn("notification failed")
	}

	if failed := summary.DevicesFailed(); failed > 0 {
		return fmt.Errorf("%d device(s) ended the run with status Failed", failed)
	}
	return nil
}

// selectCandidates runs automatic selection and, when a decision artifact is
// supplied, lets it override: the artifact's Delete rows are the batch, and
// auto-selected devices the artifact does not decide are reported, not
// processed.
func (o *RunOptions) selectCandidates(ctx context.Context, runLog logrus.FieldLogger, devices []api.DeviceRecord, groups inventory.GroupLookup) ([]api.DeviceRecord, []api.IneligibleDevice, []string, error) {
	var autoSelected []api.DeviceRecord
	var excluded []api.IneligibleDevice

	if o.CriteriaFile != "" {
		criteria, err := config.LoadCriteria(o.CriteriaFile)
		if err != nil {
			return nil, nil, nil, err
		}
		filter := eligibility.NewFilter(runLog, groups)
		autoSelected, excluded, err = filter.Select(ctx, devices, *criteria)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	if o.DecisionArtifactFile == "" {
		return autoSelected, excluded, nil, nil
	}

	file, err := os.Open(o.DecisionArtifactFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening decision artifact: %v", err)
	}
	defer file.Close()
	decisions, err := artifact.Ingest(file)
	if err != nil {
		return nil, nil, nil, err
	}
	runLog.Infof("decision artifact: %d delete, %d keep, %d unset", len(decisions.Delete), len(decisions.Keep), len(decisions.Unset))

	candidates, noDecision := decisions.SelectDevices(devices, autoSelected)
	return candidates, excluded, noDecision, nil
}

func (o *RunOptions) buildOrchestrator(runLog logrus.FieldLogger) (*orchestrator.Orchestrator, *instrumentation.RetirementMetrics, error) {
	var management orchestrator.ManagementService
	var registry orchestrator.ProvisioningRegistry
	var directory orchestrator.DirectoryService

	if o.SessionFile != "" {
		c, err := client.NewFromConfigFile(o.SessionFile)
		if err != nil {
			return nil, nil, err
		}
		management, registry, directory = c.Management(), c.Provisioning(), c.Directory()
	}
	// with --dry-run and no session the collaborators stay nil; a dry run
	// records its plan without ever calling them

	metrics := instrumentation.NewRetirementMetrics()
	orch := orchestrator.NewOrchestrator(runLog, management, registry, directory).WithMetrics(metrics)
	if o.Confirm {
		orch = orch.WithConfirmer(newPromptConfirmer(os.Stdin, os.Stderr))
	}
	return orch, metrics, nil
}

// persistRun records the audit in the database when one is configured. The
// JSON artifact is the durable record; a storage failure is logged and does
// not fail the run.
func (o *RunOptions) persistRun(ctx context.Context, runLog logrus.FieldLogger, cfg *config.Config, summary *api.AuditSummary) {
	if !cfg.DatabaseConfigured() {
		return
	}
	db, err := store.InitDB(cfg, runLog)
	if err != nil {
		runLog.WithError(err).Warn("audit database unavailable")
		return
	}
	audit := store.NewAudit(db, runLog)
	if err := audit.InitialMigration(ctx); err != nil {
		runLog.WithError(err).Warn("audit schema migration failed")
		return
	}
	if err := audit.RecordRun(ctx, summary); err != nil {
		runLog.WithError(err).Warn("recording run in audit database failed")
	}
}

func (o *RunOptions) outputDir(cfg *config.Config) string {
	if o.OutputDir != "" {
		return o.OutputDir
	}
	return cfg.OutputDir()
}

func (o *RunOptions) metricsAddress(cfg *config.Config) string {
	if o.MetricsAddress != "" {
		return o.MetricsAddress
	}
	return cfg.MetricsAddress()
}
