package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/hupe1980/episodb"
	"github.com/hupe1980/episodb/remote"
)

// app is the state shared by all commands, built before each one runs.
type app struct {
	configPath string
	root       string
	logLevel   string
	jsonOutput bool

	cfg      *Config
	logger   *episodb.Logger
	registry *episodb.Registry
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "episodb",
		Short:         "Manage offline reinforcement-learning datasets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default $EPISODB_CONFIG or ~/.episodb/config.yaml)")
	flags.StringVar(&a.root, "root", "", "datasets directory (overrides config and $EPISODB_DATASETS_PATH)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVar(&a.jsonOutput, "json", false, "print JSON instead of text")

	root.AddCommand(
		a.listCmd(),
		a.showCmd(),
		a.deleteCmd(),
		a.combineCmd(),
		a.pushCmd(),
		a.pullCmd(),
		a.remoteListCmd(),
		versionCmd(),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	path, required := a.configPath, a.configPath != ""
	if path == "" {
		path = defaultConfigPath()
	}
	cfg, err := loadConfig(path, required)
	if err != nil {
		return err
	}
	if a.root != "" {
		cfg.DatasetsPath = a.root
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	a.cfg = cfg

	if a.logger, err = cfg.logger(); err != nil {
		return err
	}
	a.registry, err = cfg.registry(a.logger)
	return err
}

func (a *app) printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// datasetSummary is the printed form of a dataset's attributes.
type datasetSummary struct {
	Name             string   `json:"name"`
	EnvSpec          string   `json:"env_spec,omitempty"`
	FormatVersion    string   `json:"format_version"`
	TotalEpisodes    uint64   `json:"total_episodes"`
	TotalSteps       uint64   `json:"total_steps"`
	ObservationSpace string   `json:"observation_space,omitempty"`
	ActionSpace      string   `json:"action_space,omitempty"`
	CombinedDatasets []string `json:"combined_datasets,omitempty"`
	Author           string   `json:"author,omitempty"`
	CodeURL          string   `json:"code_url,omitempty"`
}

func (a *app) listCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List local datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			datasets, err := a.registry.List(cmd.Context(), !all)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(datasets))
			for name := range datasets {
				names = append(names, name)
			}
			slices.Sort(names)

			summaries := make([]datasetSummary, len(names))
			for i, name := range names {
				d := datasets[name]
				summaries[i] = datasetSummary{
					Name:             name,
					EnvSpec:          d.EnvSpec,
					FormatVersion:    d.FormatVersion,
					TotalEpisodes:    d.TotalEpisodes,
					TotalSteps:       d.TotalSteps,
					CombinedDatasets: d.CombinedDatasets,
					Author:           d.Author,
					CodeURL:          d.CodeURL,
				}
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput {
				return a.printJSON(out, summaries)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tEPISODES\tSTEPS\tENV\tVERSION")
			for _, s := range summaries {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", s.Name, s.TotalEpisodes, s.TotalSteps, s.EnvSpec, s.FormatVersion)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include datasets with an unsupported format version")
	return cmd
}

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a dataset's metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := a.registry.Load(cmd.Context(), args[0], episodb.WithReadOnly(true))
			if err != nil {
				return err
			}
			defer ds.Close()

			spec := ds.Spec()
			s := datasetSummary{
				Name:             spec.Name,
				EnvSpec:          spec.EnvSpec,
				FormatVersion:    spec.FormatVersion,
				TotalEpisodes:    spec.TotalEpisodes,
				TotalSteps:       spec.TotalSteps,
				ObservationSpace: spec.ObservationSpace.String(),
				ActionSpace:      spec.ActionSpace.String(),
				CombinedDatasets: spec.CombinedDatasets,
				Author:           spec.Author,
				CodeURL:          spec.CodeURL,
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput {
				return a.printJSON(out, s)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "Name:\t%s\n", s.Name)
			fmt.Fprintf(tw, "Env spec:\t%s\n", s.EnvSpec)
			fmt.Fprintf(tw, "Format version:\t%s\n", s.FormatVersion)
			fmt.Fprintf(tw, "Episodes:\t%d\n", s.TotalEpisodes)
			fmt.Fprintf(tw, "Steps:\t%d\n", s.TotalSteps)
			fmt.Fprintf(tw, "Observation space:\t%s\n", s.ObservationSpace)
			fmt.Fprintf(tw, "Action space:\t%s\n", s.ActionSpace)
			if len(s.CombinedDatasets) > 0 {
				fmt.Fprintf(tw, "Combined from:\t%s\n", strings.Join(s.CombinedDatasets, ", "))
			}
			if s.Author != "" {
				fmt.Fprintf(tw, "Author:\t%s\n", s.Author)
			}
			if s.CodeURL != "" {
				fmt.Fprintf(tw, "Code:\t%s\n", s.CodeURL)
			}
			return tw.Flush()
		},
	}
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>...",
		Short: "Delete local datasets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range args {
				if err := a.registry.Delete(cmd.Context(), name); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", name)
			}
			return nil
		},
	}
}

func (a *app) combineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "combine <new-name> <dataset> <dataset>...",
		Short: "Combine local datasets into a new one",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var inputs []*episodb.Dataset
			defer func() {
				for _, ds := range inputs {
					_ = ds.Close()
				}
			}()
			for _, name := range args[1:] {
				ds, err := a.registry.Load(ctx, name, episodb.WithReadOnly(true))
				if err != nil {
					return err
				}
				inputs = append(inputs, ds)
			}

			combined, err := a.registry.Combine(ctx, args[0], inputs)
			if err != nil {
				return err
			}
			defer combined.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "created %s with %d episodes\n", args[0], combined.Len())
			return nil
		},
	}
}

func (a *app) remoteOptions() []remote.Option {
	return []remote.Option{
		remote.WithConcurrency(a.cfg.Remote.Concurrency),
		remote.WithBandwidth(a.cfg.Remote.BytesPerSec),
		remote.WithLogger(a.logger.Logger),
	}
}

func (a *app) pushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push <name>",
		Short: "Upload a local dataset to the configured remote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name := args[0]

			// Loading validates the dataset before anything is uploaded.
			ds, err := a.registry.Load(ctx, name, episodb.WithReadOnly(true))
			if err != nil {
				return err
			}
			_ = ds.Close()

			store, err := a.cfg.Remote.openStore(ctx)
			if err != nil {
				return err
			}
			m, err := remote.Push(ctx, store, a.registry.DataPath(name), name, a.remoteOptions()...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pushed %s (%d files, %d bytes)\n", name, len(m.Files), m.TotalSize())
			return nil
		},
	}
}

func (a *app) pullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull <name>",
		Short: "Download a dataset from the configured remote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name := args[0]

			store, err := a.cfg.Remote.openStore(ctx)
			if err != nil {
				return err
			}
			m, err := remote.Pull(ctx, store, name, a.registry.DataPath(name), a.remoteOptions()...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pulled %s (%d files, %d bytes)\n", name, len(m.Files), m.TotalSize())
			return nil
		},
	}
}

func (a *app) remoteListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remote-list",
		Short: "List datasets in the configured remote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.cfg.Remote.openStore(cmd.Context())
			if err != nil {
				return err
			}
			names, err := remote.List(cmd.Context(), store)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(cmd.OutOrStdout(), names)
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the dataset format version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "format %s (reads %s..%s)\n",
				episodb.FormatVersion, episodb.SupportedRange.Min, episodb.SupportedRange.Max)
			return nil
		},
	}
}
