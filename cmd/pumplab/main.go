package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/arvel-h/pumplab/internal/config"
	"github.com/arvel-h/pumplab/internal/control"
	"github.com/arvel-h/pumplab/internal/engine"
	"github.com/arvel-h/pumplab/internal/plant"
	"github.com/arvel-h/pumplab/internal/scenario"
	"github.com/arvel-h/pumplab/internal/sim"
	"github.com/arvel-h/pumplab/internal/sink"
	"github.com/arvel-h/pumplab/internal/storage"
	"github.com/arvel-h/pumplab/internal/tui"
)

var (
	dataDir    string
	configFile string
	preset     string
	verbose    bool

	setpoint  float64
	steps     int
	seed      int64
	plantKind string

	kp      float64
	ki      float64
	kd      float64
	noClamp bool
	bound   float64

	glitches int
	jitter   float64
	timeline string

	engineCmd      string
	programFile    string
	engineInputs   int
	showTranscript bool

	mqttBroker string
	mqttTopic  string
)

var log *slog.Logger

func main() {
	// .env is optional; real settings come from flags and PUMPLAB_* vars.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "pumplab",
		Short: "piston pump control lab",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".pumplab", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the pump under PID control",
		RunE:  runPID,
	}
	addScenarioFlags(runCmd)
	addPIDFlags(runCmd)
	runCmd.Flags().StringVar(&mqttBroker, "mqtt-broker", os.Getenv("PUMPLAB_MQTT_BROKER"), "publish steps to this MQTT broker")
	runCmd.Flags().StringVar(&mqttTopic, "mqtt-topic", "pumplab/steps", "MQTT topic for step messages")

	compareCmd := &cobra.Command{
		Use:   "compare",
		Short: "run PID and the external engine side by side",
		RunE:  runCompare,
	}
	addScenarioFlags(compareCmd)
	addPIDFlags(compareCmd)
	addEngineFlags(compareCmd)

	windupCmd := &cobra.Command{
		Use:   "windup",
		Short: "demonstrate integral windup against a load blockage",
		RunE:  runWindup,
	}
	windupCmd.Flags().IntVar(&steps, "steps", 400, "number of steps")
	windupCmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	windupCmd.Flags().Float64Var(&setpoint, "target", config.DefaultSetpoint, "volume setpoint")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "watch a run in the terminal",
		RunE:  runLive,
	}
	addScenarioFlags(liveCmd)
	addPIDFlags(liveCmd)
	addEngineFlags(liveCmd)

	genCmd := &cobra.Command{
		Use:   "gen [file]",
		Short: "generate a disturbance timeline CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  genTimeline,
	}
	addScenarioFlags(genCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id] [controller]",
		Short: "plot a stored measurement series",
		Args:  cobra.ExactArgs(2),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run metadata as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	rootCmd.AddCommand(runCmd, compareCmd, windupCmd, liveCmd, genCmd, listCmd, plotCmd, exportCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addScenarioFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&setpoint, "target", config.DefaultSetpoint, "volume setpoint")
	cmd.Flags().IntVar(&steps, "steps", config.DefaultSteps, "number of steps")
	cmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "random seed")
	cmd.Flags().IntVar(&glitches, "glitches", 2, "number of injected fault events")
	cmd.Flags().Float64Var(&jitter, "jitter", config.DefaultJitter, "sensor noise sigma")
	cmd.Flags().StringVar(&timeline, "timeline", "", "load a disturbance timeline CSV instead of generating one")
	cmd.Flags().StringVar(&plantKind, "plant", "piston", "actuator model (piston or inertial)")
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
}

func addPIDFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&kp, "kp", config.DefaultKp, "pid kp")
	cmd.Flags().Float64Var(&ki, "ki", config.DefaultKi, "pid ki")
	cmd.Flags().Float64Var(&kd, "kd", config.DefaultKd, "pid kd")
	cmd.Flags().BoolVar(&noClamp, "no-clamp", false, "disable the anti-windup clamp")
	cmd.Flags().Float64Var(&bound, "bound", config.DefaultBound, "integral clamp bound")
}

func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&engineCmd, "engine", os.Getenv("PUMPLAB_ENGINE"), "external engine executable")
	cmd.Flags().StringVar(&programFile, "program", os.Getenv("PUMPLAB_PROGRAM"), "control program file for the engine")
	cmd.Flags().IntVar(&engineInputs, "engine-inputs", 1, "values sent per step (1 or 2)")
	cmd.Flags().BoolVar(&showTranscript, "transcript", false, "dump the engine wire transcript after the run")
}

// effectiveConfig folds preset, config file and flags into one Config.
// Flags that were set explicitly win over both.
func effectiveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if preset != "" {
		p, ok := config.Preset(preset)
		if !ok {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.PresetNames())
		}
		cfg = p
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if cmd.Flags().Changed("target") {
		cfg.Setpoint = setpoint
	}
	if cmd.Flags().Changed("steps") {
		cfg.Steps = steps
	}
	if cmd.Flags().Changed("seed") || cfg.Seed == 0 {
		cfg.Seed = seed
	}
	if cmd.Flags().Changed("plant") {
		cfg.Plant.Kind = plantKind
	}
	if cmd.Flags().Changed("kp") {
		cfg.PID.Kp = kp
	}
	if cmd.Flags().Changed("ki") {
		cfg.PID.Ki = ki
	}
	if cmd.Flags().Changed("kd") {
		cfg.PID.Kd = kd
	}
	if cmd.Flags().Changed("bound") {
		cfg.PID.Bound = bound
	}
	if noClamp {
		cfg.PID.Clamp = false
	}
	if cmd.Flags().Changed("glitches") {
		cfg.Scenario.Glitches = glitches
	}
	if cmd.Flags().Changed("jitter") {
		cfg.Scenario.Jitter = jitter
	}
	if engineCmd != "" {
		cfg.Engine.Command = engineCmd
	}
	if programFile != "" {
		cfg.Engine.Program = programFile
	}
	if cmd.Flags().Changed("engine-inputs") {
		cfg.Engine.Inputs = engineInputs
	}

	return cfg, cfg.Validate()
}

func makeSamples(cfg *config.Config) ([]sim.Sample, error) {
	if timeline != "" {
		return scenario.Load(timeline)
	}
	gen := scenario.New(cfg.Steps, cfg.Scenario.Glitches, cfg.Seed)
	gen.Jitter = cfg.Scenario.Jitter
	return gen.Generate(), nil
}

func makePlant(cfg *config.Config) sim.Plant {
	switch cfg.Plant.Kind {
	case "inertial":
		return plant.NewInertialPump()
	default:
		p := plant.NewPistonPump()
		if cfg.Plant.LagGain > 0 {
			p.LagGain = cfg.Plant.LagGain
		}
		return p
	}
}

func makePID(cfg *config.Config) *control.PID {
	pid := control.NewPID(cfg.PID.Kp, cfg.PID.Ki, cfg.PID.Kd)
	pid.Clamp = cfg.PID.Clamp
	if cfg.PID.Bound > 0 {
		pid.Bound = cfg.PID.Bound
	}
	return pid
}

func makeBridge(cfg *config.Config) (*engine.Bridge, error) {
	if cfg.Engine.Command == "" {
		return nil, fmt.Errorf("no engine configured: set --engine or PUMPLAB_ENGINE")
	}
	if cfg.Engine.Program == "" {
		return nil, fmt.Errorf("no control program: set --program or PUMPLAB_PROGRAM")
	}
	program, err := os.ReadFile(cfg.Engine.Program)
	if err != nil {
		return nil, fmt.Errorf("failed to read program: %w", err)
	}
	return engine.New(cfg.Engine.Command, string(program), engine.Options{
		Inputs:        cfg.Engine.Inputs,
		ReadyTimeout:  cfg.Engine.ReadyTimeout,
		AcceptTimeout: cfg.Engine.AcceptTimeout,
		Logger:        log,
	})
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runPID(cmd *cobra.Command, args []string) error {
	cfg, err := effectiveConfig(cmd)
	if err != nil {
		return err
	}
	samples, err := makeSamples(cfg)
	if err != nil {
		return err
	}

	pair := &sim.Pair{Name: "pid", Plant: makePlant(cfg), Controller: makePID(cfg)}
	loop := sim.New(sim.Config{Setpoint: cfg.Setpoint, AmpMax: plant.AmpMax}, pair)

	broker, topic := mqttBroker, mqttTopic
	if broker == "" {
		broker = cfg.MQTT.Broker
	}
	if !cmd.Flags().Changed("mqtt-topic") && cfg.MQTT.Topic != "" {
		topic = cfg.MQTT.Topic
	}

	mem := sink.NewMemory(len(samples))
	out := sim.Sink(mem)
	if broker != "" {
		mq, err := sink.NewMQTT(broker, "pumplab-run", topic, log)
		if err != nil {
			return err
		}
		defer mq.Close()
		out = sink.Fanout{mem, mq}
	}

	ctx, cancel := signalContext()
	defer cancel()

	log.Info("starting run", "steps", len(samples), "target", cfg.Setpoint, "plant", cfg.Plant.Kind)
	start := time.Now()
	result, err := loop.Run(ctx, samples, out)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save("run", cfg.Setpoint, cfg.Seed, []string{"pid"}, result)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	printSummary(cfg.Setpoint, []string{"pid"}, result)
	plotSeries("pid volume", mem.Series(0), cfg.Setpoint)
	return nil
}

func runCompare(cmd *cobra.Command, args []string) error {
	cfg, err := effectiveConfig(cmd)
	if err != nil {
		return err
	}
	samples, err := makeSamples(cfg)
	if err != nil {
		return err
	}

	bridge, err := makeBridge(cfg)
	if err != nil {
		return err
	}
	defer bridge.Close()
	if bridge.Phase() == engine.PhaseRejected {
		return fmt.Errorf("engine rejected the control program")
	}

	pidPair := &sim.Pair{Name: "pid", Plant: makePlant(cfg), Controller: makePID(cfg)}
	engPair := &sim.Pair{Name: "engine", Plant: makePlant(cfg), Controller: bridge}
	loop := sim.New(sim.Config{Setpoint: cfg.Setpoint, AmpMax: plant.AmpMax}, pidPair, engPair)

	mem := sink.NewMemory(len(samples))

	ctx, cancel := signalContext()
	defer cancel()

	log.Info("starting comparison", "steps", len(samples), "engine", cfg.Engine.Command)
	start := time.Now()
	result, err := loop.Run(ctx, samples, mem)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	if showTranscript {
		fmt.Fprintln(os.Stderr, bridge.Recorder().Transcript())
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	controllers := []string{"pid", "engine"}
	runID, err := st.Save("compare", cfg.Setpoint, cfg.Seed, controllers, result)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	printSummary(cfg.Setpoint, controllers, result)
	plotSeries("pid volume", mem.Series(0), cfg.Setpoint)
	plotSeries("engine volume", mem.Series(1), cfg.Setpoint)
	return nil
}

// runWindup runs the same blocked-load profile twice, once with the
// integral clamp and once without, and prints both integral histories.
func runWindup(cmd *cobra.Command, args []string) error {
	samples := scenario.Windup(steps, seed)

	clamped := control.NewPID(config.DefaultKp, 1.5, config.DefaultKd)
	open := control.NewPID(config.DefaultKp, 1.5, config.DefaultKd)
	open.Clamp = false

	pairs := []*sim.Pair{
		{Name: "clamped", Plant: plant.NewPistonPump(), Controller: clamped},
		{Name: "unclamped", Plant: plant.NewPistonPump(), Controller: open},
	}
	loop := sim.New(sim.Config{Setpoint: setpoint, AmpMax: plant.AmpMax}, pairs...)

	integrals := make([][]float64, 2)
	rec := sink.Func(func(step sim.Step) {
		integrals[0] = append(integrals[0], clamped.Integral())
		integrals[1] = append(integrals[1], open.Integral())
	})

	mem := sink.NewMemory(len(samples))

	ctx, cancel := signalContext()
	defer cancel()

	result, err := loop.Run(ctx, samples, sink.Fanout{mem, rec})
	if err != nil {
		return err
	}

	printSummary(setpoint, []string{"clamped", "unclamped"}, result)
	plotSeries("clamped integral", integrals[0], 0)
	plotSeries("unclamped integral", integrals[1], 0)
	fmt.Printf("final integral: clamped %.2f, unclamped %.2f\n",
		clamped.Integral(), open.Integral())
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := effectiveConfig(cmd)
	if err != nil {
		return err
	}
	samples, err := makeSamples(cfg)
	if err != nil {
		return err
	}

	pairs := []*sim.Pair{{Name: "pid", Plant: makePlant(cfg), Controller: makePID(cfg)}}
	names := []string{"pid"}

	if cfg.Engine.Command != "" {
		bridge, err := makeBridge(cfg)
		if err != nil {
			return err
		}
		defer bridge.Close()
		pairs = append(pairs, &sim.Pair{Name: "engine", Plant: makePlant(cfg), Controller: bridge})
		names = append(names, "engine")
	}

	loop := sim.New(sim.Config{Setpoint: cfg.Setpoint, AmpMax: plant.AmpMax}, pairs...)
	return tui.Run(loop, samples, names, cfg.Setpoint)
}

func genTimeline(cmd *cobra.Command, args []string) error {
	cfg, err := effectiveConfig(cmd)
	if err != nil {
		return err
	}
	gen := scenario.New(cfg.Steps, cfg.Scenario.Glitches, cfg.Seed)
	gen.Jitter = cfg.Scenario.Jitter
	samples := gen.Generate()

	if err := scenario.Save(args[0], samples); err != nil {
		return err
	}
	fmt.Printf("wrote %d samples to %s\n", len(samples), args[0])
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tTARGET\tSTEPS\tCONTROLLERS")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%d\t%v\n",
			run.ID,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Setpoint,
			run.Steps,
			run.Controllers,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID, controller := args[0], args[1]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	series, err := st.Series(runID, controller)
	if err != nil {
		return err
	}
	if len(series) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("samples: %d\n\n", len(series))
	plotSeries(controller+" volume", series, meta.Setpoint)
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func printSummary(target float64, controllers []string, result *sim.Result) {
	fmt.Printf("steps: %d\n\nmetrics:\n", result.StepsTaken)
	for key, val := range storage.Summarize(target, controllers, result) {
		fmt.Printf("  %s: %.6f\n", key, val)
	}
}

func plotSeries(caption string, data []float64, target float64) {
	if len(data) < 2 {
		return
	}
	if target > 0 {
		caption = fmt.Sprintf("%s (target %.2f)", caption, target)
	}
	graph := asciigraph.Plot(data,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption(caption),
	)
	fmt.Println(graph)
	fmt.Println()
}
