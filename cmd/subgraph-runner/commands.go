package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/woxQAQ/subgraph-abi/internal/config"
	"github.com/woxQAQ/subgraph-abi/internal/runner"
	"github.com/woxQAQ/subgraph-abi/internal/subgraph"
	"github.com/woxQAQ/subgraph-abi/pkg/asc"
	"github.com/woxQAQ/subgraph-abi/pkg/host"
)

// app carries what every command needs once flags are parsed.
type app struct {
	configPath string
	cfg        *config.RunnerConfig
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "subgraph-runner",
		Short: "Run subgraph mappings against recorded chain fixtures",
		Long: `subgraph-runner loads AssemblyScript subgraph mappings into a local host,
validates them against the host import table and feeds fixture blocks through
their event, call and block handlers.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				a.logger.Sync()
			}
		},
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Path to configuration file")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("network", "mainnet", "Network whose data sources run")
	flags.String("store", config.StoreMemory, "Entity store backend (memory, sqlite)")
	flags.String("store-path", "./data/entities.db", "SQLite database path")
	flags.String("ipfs-gateway", "http://127.0.0.1:8080", "IPFS HTTP gateway")
	flags.Duration("timeout", 0, "Handler execution timeout (0 keeps the configured value)")
	flags.String("wasm-cache", "", "Compilation cache directory")
	flags.StringSlice("subgraph-path", nil, "Directories scanned for subgraphs")

	root.AddCommand(a.checkCmd(), a.runCmd(), a.importsCmd(), a.versionCmd())
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.LoadRunnerConfig(a.configPath, cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	zcfg := zap.NewProductionConfig()
	if level == zapcore.DebugLevel {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	a.logger = logger.With(zap.String("version", version))
	return nil
}

func (a *app) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [dir...]",
		Short: "Load subgraphs and validate their mappings",
		Long: `Parse subgraph.yaml, compile every mapping and check its imports against
the host import table of its apiVersion and its exports against the handlers
the manifest names. Without arguments the configured subgraph paths are
scanned.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, err := runner.New(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer r.Close(ctx)

			manager := r.Manager()
			if len(args) == 0 {
				if err := manager.LoadAll(ctx); err != nil {
					return err
				}
			}
			for _, dir := range args {
				if _, err := manager.Load(ctx, dir); err != nil {
					return err
				}
			}

			subgraphs := manager.Registry().List()
			if len(subgraphs) == 0 {
				return fmt.Errorf("no subgraphs found")
			}
			return renderSubgraphs(cmd, subgraphs)
		},
	}
}

func renderSubgraphs(cmd *cobra.Command, subgraphs []*subgraph.Subgraph) error {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Subgraph", "Data source", "Kind", "Network", "API version", "Handlers")
	for _, sg := range subgraphs {
		add := func(ds *subgraph.DataSource, kind string) error {
			return table.Append([]string{sg.Name(), ds.Name, kind, ds.Network, ds.Version().String(),
				strings.Join(ds.Handlers(), ", ")})
		}
		for i := range sg.Manifest.DataSources {
			if err := add(&sg.Manifest.DataSources[i], "data source"); err != nil {
				return err
			}
		}
		for i := range sg.Manifest.Templates {
			if err := add(&sg.Manifest.Templates[i], "template"); err != nil {
				return err
			}
		}
	}
	return table.Render()
}

func (a *app) runCmd() *cobra.Command {
	var fixturePath string
	var entityTypes []string
	cmd := &cobra.Command{
		Use:   "run <dir>",
		Short: "Feed a fixture through a subgraph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			fx, err := runner.LoadFixture(fixturePath)
			if err != nil {
				return err
			}

			r, err := runner.New(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer r.Close(ctx)

			sg, err := r.Load(ctx, args[0])
			if err != nil {
				return err
			}
			rep, err := r.Run(ctx, sg, fx)
			if err != nil {
				return err
			}
			if err := renderReport(cmd, rep); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, entityType := range entityTypes {
				entities, err := r.Store().List(ctx, entityType)
				if err != nil {
					return err
				}
				for _, e := range entities {
					b, err := json.Marshal(e)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s %s\n", entityType, b)
				}
			}

			if n := rep.Failed(); n > 0 {
				return fmt.Errorf("%d of %d handler invocations failed", n, len(rep.Results))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&fixturePath, "fixtures", "f", "", "Fixture file (YAML)")
	cmd.Flags().StringSliceVar(&entityTypes, "entities", nil, "Entity types to print after the run")
	cmd.MarkFlagRequired("fixtures")
	return cmd
}

func renderReport(cmd *cobra.Command, rep *runner.Report) error {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Block", "Data source", "Trigger", "Handler", "Outcome", "Error")
	for _, res := range rep.Results {
		msg := ""
		if res.Err != nil {
			msg = res.Err.Error()
		}
		if err := table.Append([]string{fmt.Sprint(res.Block), res.DataSource, res.Trigger, res.Handler,
			res.Outcome.String(), msg}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d blocks, %d invocations, %d failed, %d data sources created\n",
		rep.Subgraph, rep.Blocks, len(rep.Results), rep.Failed(), len(rep.Created))
	return nil
}

func (a *app) importsCmd() *cobra.Command {
	var apiVersion string
	cmd := &cobra.Command{
		Use:   "imports",
		Short: "Print the host import table",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := asc.ParseVersion(apiVersion)
			if err != nil {
				return err
			}
			if !v.Supported() {
				return fmt.Errorf("unsupported apiVersion %s", v)
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("Import", "Signature", "Objects", "Nullable", "Since")
			for _, d := range host.Table(v) {
				since := ""
				if !d.Since.IsZero() {
					since = d.Since.String()
				}
				if err := table.Append([]string{d.QualifiedName(), d.Signature(), d.Shapes(), fmt.Sprint(d.Nullable), since}); err != nil {
					return err
				}
			}
			return table.Render()
		},
	}
	cmd.Flags().StringVar(&apiVersion, "api-version", asc.Latest.String(), "Mapping apiVersion")
	return cmd
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "subgraph-runner %s (commit %s, built %s)\n", version, commit, date)
			fmt.Fprintf(cmd.OutOrStdout(), "apiVersions: %s\n", supportedVersions())
		},
	}
}

func supportedVersions() string {
	var out []string
	for _, v := range asc.SupportedVersions() {
		out = append(out, v.String())
	}
	return strings.Join(out, ", ")
}
