package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/san-kum/remdrive/internal/config"
	"github.com/san-kum/remdrive/internal/driver"
	"github.com/san-kum/remdrive/internal/engine"
	"github.com/san-kum/remdrive/internal/history"
	"github.com/san-kum/remdrive/internal/metrics"
	"github.com/san-kum/remdrive/internal/permute"
	"github.com/san-kum/remdrive/internal/session"
	"github.com/san-kum/remdrive/internal/storage"
	"github.com/san-kum/remdrive/internal/viz"
)

var (
	dataDir  string
	logLevel string

	steps        int
	rounds       int
	property     string
	seed         int64
	quiet        bool
	save         bool
	pretty       bool
	settingsFile string

	asJSON       bool
	historyLimit int
	force        bool
)

// main runs the driver against input-remd_direct.xml when called without a
// subcommand. Any failure is logged to stderr and exits with status 1.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "remdrive",
		Short:         "drive a replica molecular dynamics session",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setLogLevel(logLevel)
		},
		RunE: runDriver,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".remdrive", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run [config.xml]",
		Short: "advance, query, shuffle and advance again",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runDriver,
	}
	runCmd.Flags().IntVar(&steps, "steps", config.DefaultSteps, "steps per advance")
	runCmd.Flags().IntVar(&rounds, "rounds", config.DefaultRounds, "advance/query rounds")
	runCmd.Flags().StringVar(&property, "property", config.DefaultProperty, "property to query after each advance")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 = time seeded shuffle, config seed for the engine)")
	runCmd.Flags().BoolVar(&quiet, "quiet", false, "do not echo the configuration")
	runCmd.Flags().BoolVar(&save, "save", false, "store the run under the data directory")
	runCmd.Flags().BoolVar(&pretty, "pretty", false, "print a checkpoint table and chart to stderr")
	runCmd.Flags().StringVar(&settingsFile, "settings", "", "driver settings file (yaml)")

	watchCmd := &cobra.Command{
		Use:   "watch [config.xml]",
		Short: "advance a session live in the terminal",
		Args:  cobra.MaximumNArgs(1),
		RunE:  watchSession,
	}
	watchCmd.Flags().IntVar(&steps, "steps", config.DefaultSteps, "steps per advance")
	watchCmd.Flags().IntVar(&rounds, "rounds", 0, "stop after this many rounds (0 = until quit)")
	watchCmd.Flags().StringVar(&property, "property", config.DefaultProperty, "property to chart")
	watchCmd.Flags().Int64Var(&seed, "seed", 0, "random seed")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "show a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}
	showCmd.Flags().BoolVar(&asJSON, "json", false, "print the run as JSON")

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot the checkpoints of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "list recorded runs from the history database",
		Args:  cobra.NoArgs,
		RunE:  showHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs (0 = all)")

	propertiesCmd := &cobra.Command{
		Use:   "properties [config.xml]",
		Short: "list the properties a configuration can be queried for",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listProperties,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [name]",
		Short: "list built-in configurations or print one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				text, ok := config.GetPreset(args[0])
				if !ok {
					return fmt.Errorf("unknown preset: %s (available: %v)", args[0], config.ListPresets())
				}
				fmt.Fprint(out, text)
				return nil
			}
			for _, p := range config.ListPresets() {
				fmt.Fprintf(out, "  %s\n", p)
			}
			return nil
		},
	}

	initCmd := &cobra.Command{
		Use:   "init [preset] [path]",
		Short: "write a built-in configuration and driver settings",
		Args:  cobra.MaximumNArgs(2),
		RunE:  initConfig,
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")

	rootCmd.AddCommand(runCmd, watchCmd, listCmd, showCmd, plotCmd, historyCmd, propertiesCmd, presetsCmd, initCmd)
	return rootCmd
}

func setLogLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetOutput(os.Stderr)
	logrus.SetLevel(lvl)
	return nil
}

// loadSettings merges the settings file, if any, with flags the user set.
func loadSettings(cmd *cobra.Command, args []string) (*config.Settings, error) {
	s := config.DefaultSettings()
	if settingsFile != "" {
		var err error
		if s, err = config.LoadSettings(settingsFile); err != nil {
			return nil, fmt.Errorf("failed to load settings: %w", err)
		}
		if !cmd.Flags().Changed("log") && s.Log != "" {
			if err := setLogLevel(s.Log); err != nil {
				return nil, err
			}
		}
	}

	flags := cmd.Flags()
	if flags.Changed("steps") {
		s.Steps = steps
	}
	if flags.Changed("rounds") {
		s.Rounds = rounds
	}
	if flags.Changed("property") {
		s.Property = property
	}
	if flags.Changed("seed") {
		s.Seed = seed
	}
	if flags.Changed("quiet") {
		s.Quiet = quiet
	}
	if flags.Changed("save") {
		s.Save = save
	}
	if len(args) > 0 {
		s.Config = args[0]
	}
	return s, nil
}

func engineOptions(path string, seed int64) []engine.Option {
	opts := []engine.Option{engine.WithBaseDir(filepath.Dir(path))}
	if seed != 0 {
		opts = append(opts, engine.WithSeed(seed))
	}
	return opts
}

func shuffler(seed int64) permute.Source {
	if seed == 0 {
		return permute.NewRandom()
	}
	return permute.New(permute.Derive(seed, "shuffle"))
}

func runDriver(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	src := shuffler(s.Seed)
	d := driver.New(engine.Constructor(engineOptions(s.Config, s.Seed)...), driver.Options{
		ConfigPath: s.Config,
		Steps:      s.Steps,
		Rounds:     s.Rounds,
		Property:   s.Property,
		Quiet:      s.Quiet,
		Shuffler:   src,
		Metrics:    metrics.DefaultMetrics(),
		Out:        cmd.OutOrStdout(),
	})

	start := time.Now()
	res, err := d.Run(ctx)
	if res != nil && res.Session != nil {
		defer session.Close(res.Session)
	}
	if err != nil {
		return err
	}
	logrus.Infof("run finished in %v", time.Since(start))

	if pretty {
		errOut := cmd.ErrOrStderr()
		fmt.Fprintln(errOut, viz.Summary(res.Checkpoints, res.Permutations))
		if chart := viz.Plot(checkpointValues(res.Checkpoints), s.Property); chart != "" {
			fmt.Fprintln(errOut, chart)
		}
	}

	if s.Save {
		meta := storage.RunMetadata{
			Config:       s.Config,
			Timestamp:    time.Now(),
			Seed:         s.Seed,
			Steps:        s.Steps,
			Rounds:       s.Rounds,
			Property:     s.Property,
			Permutations: res.Permutations,
			Metrics:      res.Metrics,
		}
		if e, ok := res.Session.(*engine.Engine); ok {
			meta.Seed = e.Seed()
		}
		if r, ok := src.(*permute.Rand); ok {
			meta.ShuffleSeed = r.Seed()
		}
		runID, err := saveRun(ctx, meta, res)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "run id: %s\n", runID)
	}
	return nil
}

func saveRun(ctx context.Context, meta storage.RunMetadata, res *driver.Result) (string, error) {
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return "", err
	}
	runID, err := st.Save(meta, res.Checkpoints, res.Structures)
	if err != nil {
		return "", fmt.Errorf("failed to save run: %w", err)
	}

	if err := recordRun(ctx, runID, meta, res); err != nil {
		if rerr := st.Remove(runID); rerr != nil {
			logrus.Warnf("failed to remove run %s: %v", runID, rerr)
		}
		return "", err
	}
	return runID, nil
}

func recordRun(ctx context.Context, runID string, meta storage.RunMetadata, res *driver.Result) error {
	ledger, err := history.Open(filepath.Join(dataDir, "history.db"))
	if err != nil {
		return err
	}
	defer ledger.Close()

	err = ledger.Record(ctx, history.Run{
		ID:          runID,
		Config:      meta.Config,
		CreatedAt:   meta.Timestamp,
		Seed:        meta.Seed,
		Steps:       meta.Steps,
		Rounds:      meta.Rounds,
		Property:    meta.Property,
		Replicas:    len(res.Structures),
		Checkpoints: res.Checkpoints,
	})
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

func checkpointValues(cps []metrics.Checkpoint) []float64 {
	values := make([]float64, len(cps))
	for i, c := range cps {
		values[i] = c.Value
	}
	return values
}

func configPath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return config.DefaultInput
}

func watchSession(cmd *cobra.Command, args []string) error {
	path := configPath(args)
	text, err := driver.ReadConfig(path)
	if err != nil {
		return err
	}
	eng, err := engine.New(text, engineOptions(path, seed)...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	m := viz.NewWatchModel(ctx, eng, viz.WatchOptions{
		Title:    filepath.Base(path),
		Property: property,
		Steps:    steps,
		Rounds:   rounds,
		Shuffler: shuffler(seed),
	})
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return err
	}
	return m.Err()
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tCONFIG\tREPLICAS\tROUNDS\tSTEPS\tPROPERTY")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			run.ID,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Config,
			run.Replicas,
			run.Rounds,
			run.Steps,
			run.Property,
		)
	}
	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	out := cmd.OutOrStdout()
	if asJSON {
		return st.Export(out, args[0])
	}

	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	cps, err := st.LoadCheckpoints(args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "run: %s\n", meta.ID)
	fmt.Fprintf(out, "config: %s\n", meta.Config)
	fmt.Fprintf(out, "seed: %d\n", meta.Seed)
	fmt.Fprintf(out, "replicas: %d\n\n", meta.Replicas)
	fmt.Fprintln(out, viz.Summary(cps, meta.Permutations))
	if len(meta.Metrics) > 0 {
		fmt.Fprintln(out, "\nmetrics:")
		for name, val := range meta.Metrics {
			fmt.Fprintf(out, "  %s: %.6f\n", name, val)
		}
	}
	return nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	cps, err := st.LoadCheckpoints(args[0])
	if err != nil {
		return err
	}

	caption := config.DefaultProperty
	if len(cps) > 0 {
		caption = cps[0].Property
	}
	chart := viz.Plot(checkpointValues(cps), caption)
	if chart == "" {
		return errors.New("not enough checkpoints to plot")
	}
	fmt.Fprintln(cmd.OutOrStdout(), chart)
	return nil
}

func showHistory(cmd *cobra.Command, args []string) error {
	ledger, err := history.Open(filepath.Join(dataDir, "history.db"))
	if err != nil {
		return err
	}
	defer ledger.Close()

	runs, err := ledger.Runs(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tCONFIG\tSEED\tLAST")
	for _, r := range runs {
		cps, err := ledger.Checkpoints(cmd.Context(), r.ID)
		if err != nil {
			return err
		}
		last := "-"
		if len(cps) > 0 {
			c := cps[len(cps)-1]
			last = fmt.Sprintf("%s=%s", c.Property, driver.FormatValue(c.Value))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Config, r.Seed, last)
	}
	return w.Flush()
}

func listProperties(cmd *cobra.Command, args []string) error {
	path := configPath(args)
	cfg, text, err := config.Load(path)
	if err != nil {
		return err
	}
	sess, err := engine.New(text, engineOptions(path, 0)...)
	if err != nil {
		return err
	}
	defer session.Close(sess)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "replicas: %d\n", len(cfg.Systems))
	for i, sys := range cfg.Systems {
		fmt.Fprintf(out, "  %d  %s  T=%g  %s\n", i, sys.Prefix, sys.Ensemble.Temperature, sys.Motion.Dynamics.Mode)
	}
	fmt.Fprintln(out, "properties:")
	printNames(out, sess)
	return nil
}

func printNames(out io.Writer, s session.Session) {
	lister, ok := s.(session.PropertyLister)
	if !ok {
		return
	}
	for _, name := range lister.PropertyNames() {
		fmt.Fprintf(out, "  %s\n", name)
	}
}

func initConfig(cmd *cobra.Command, args []string) error {
	name := "remd_direct"
	if len(args) > 0 {
		name = args[0]
	}
	path := config.DefaultInput
	if len(args) > 1 {
		path = args[1]
	}

	text, ok := config.GetPreset(name)
	if !ok {
		return fmt.Errorf("unknown preset: %s (available: %v)", name, config.ListPresets())
	}
	if err := writeNew(path, []byte(text)); err != nil {
		return err
	}

	settingsPath := filepath.Join(filepath.Dir(path), "driver.yaml")
	s := config.DefaultSettings()
	s.Config = path
	if _, err := os.Stat(settingsPath); err == nil && !force {
		logrus.Infof("keeping existing %s", settingsPath)
	} else if err := config.SaveSettings(settingsPath, s); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s)\n", path, name)
	return nil
}

func writeNew(path string, data []byte) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	return os.WriteFile(path, data, 0644)
}
