// Command adanet is the CLI launcher of spec.md §6: it wires together one
// agent's Solver, Switchboard, NetworkManager, Sources/Sinks, peer
// discovery, and control loop, then runs until signalled or --duration
// elapses. Grounded on admin/cmd/admin/main.go's flag-then-env-override
// pattern.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/clock"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/config"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/debugsrv"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/discovery"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/engine"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/extlogger"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/logger"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/metrics"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/model"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/netw"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/netw/pipe"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/problemfile"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/queue"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/shutdown"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/simulation"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/sink"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/solver"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/source"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/switchboard"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load() // optional .env, ignored if absent

	agentFlag := flag.String("agent", "", "agent name, used for logging and diagnostics")
	solverFlag := flag.String("solver", config.DefaultSolver, "allocator to use (source role only)")
	problemFlag := flag.String("problem", "", "path to the problem YAML file")
	durationFlag := flag.Float64("duration", 0, "bound the run to this many seconds (0 = unbounded)")
	simulationFlag := flag.Bool("simulation", false, "replace live Sources/Sinks with synthetic ones driven by the problem's simulation block")
	loggerFlag := flag.String("logger", "", `external metrics sink ("wb" to enable)`)
	flag.Parse()

	if v := os.Getenv("ADANET_AGENT"); v != "" {
		*agentFlag = v
	}
	if v := os.Getenv("ADANET_PROBLEM"); v != "" {
		*problemFlag = v
	}

	if flag.NArg() < 1 {
		return fmt.Errorf("usage: %s <role> --agent <name> --problem <path> [flags]", os.Args[0])
	}
	role, ok := model.ParseAgentRole(flag.Arg(0))
	if !ok {
		return fmt.Errorf("unknown role %q: must be \"source\" or \"sink\"", flag.Arg(0))
	}
	if *problemFlag == "" {
		return fmt.Errorf("--problem is required")
	}
	if *durationFlag > 0 && *durationFlag < 2 {
		return fmt.Errorf("--duration must be at least 2 seconds")
	}

	env := config.Load()
	c := clock.New(env.TimeSpeed)
	log := logger.New(env.Debug, c)
	if *agentFlag == "" {
		*agentFlag = role.String()
	}
	log = log.With("agent", *agentFlag, "role", role.String())

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: dsn}); err != nil {
			log.Error("sentry: init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	base, err := problemfile.Load(*problemFlag)
	if err != nil {
		return fmt.Errorf("loading problem file: %w", err)
	}

	solv, err := resolveSolver(role, *solverFlag)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *durationFlag > 0 {
		var cancelDuration context.CancelFunc
		ctx, cancelDuration = context.WithTimeout(ctx, time.Duration(*durationFlag*float64(time.Second)))
		defer cancelDuration()
	}

	registry := shutdown.New()

	sinks := sink.New(log)
	sb := switchboard.New(log, nil, sinks)

	disco, err := discovery.New(log, c, role, "")
	if err != nil {
		return fmt.Errorf("starting peer discovery: %w", err)
	}
	go disco.Run()
	registry.Register("discovery", 10, func() { _ = disco.Close() })

	adapterCfg := netw.AdapterConfig{
		BandwidthCheckEvery:  env.IfaceBandwidthCheckEverySecs,
		PingCheckEvery:       env.IfacePingCheckEverySecs,
		BandwidthWindowSize:  config.BandwidthWindowSize,
		MinBandwidthBytesSec: config.IfaceMinBandwidthBytesSec,
		BandwidthOptimism:    config.IfaceBandwidthOptimism,
		ForceReconnectAfter:  config.ForceReconnectAfter,
		Pinger:               netw.ICMPPinger{},
	}

	var mgr *netw.Manager
	newAdapter := func(iface, remote string) *netw.Adapter {
		p := pipe.New(c, config.PipeHeartbeatEverySec)
		a := netw.NewAdapter(log, c, adapterCfg, role, iface, remote, p, mgr)
		go func() {
			if err := a.Start(ctx, ":0"); err != nil {
				log.Error("adapter: failed to start", "interface", iface, "error", err)
				return
			}
			wireDiscovery(ctx, c, env, log, disco, role, a)
		}()
		return a
	}
	mgr = netw.NewManager(log, c, role, env, netw.OSInterfaceLister{}, sb, newAdapter)
	sb.SetNetwork(mgr)
	registry.Register("network manager", 20, func() { _ = mgr.Close() })

	liveSources := make(map[string]*source.Source, len(base.Channels))
	var closers []io.Closer
	for _, ch := range base.Channels {
		q, err := newChannelQueue(env, ch)
		if err != nil {
			return fmt.Errorf("channel %q: %w", ch.Name, err)
		}
		switch role {
		case model.RoleSource:
			src := source.New(log, c, ch.Name, ch.Frequency, q, sb)
			if ch.QoS != nil && ch.QoS.FrequencyCap != nil {
				src.SetPaceLimit(*ch.QoS.FrequencyCap)
			}
			liveSources[ch.Name] = src
			go src.RunWindmill()
			closers = append(closers, src)
			wireSourceBackend(ctx, c, log, env, ch, src, *simulationFlag)
		case model.RoleSink:
			wireSinkBackend(log, sinks, ch, q)
		}
	}
	registry.Register("windmills", 30, func() {
		for _, closer := range closers {
			_ = closer.Close()
		}
	})

	solutionSinks := make(map[string]engine.SolutionSink, len(liveSources))
	frequencySources := make(map[string]engine.FrequencySource, len(liveSources))
	for name, src := range liveSources {
		solutionSinks[name] = src
		frequencySources[name] = src
	}

	// Formulate, spec.md §4.1 step 1: --simulation runs drive Links/Channels
	// from the problem file's scripted overrides; a real run instead pulls
	// live link state from the NetworkManager and live channel frequency
	// from each Source. The Sink role never formulates (engine.Config.Role
	// skips its control loop straight to stats aggregation), so its
	// Formulator is immaterial; StaticFormulator is still the simplest
	// correct placeholder for it.
	var formulator engine.Formulator = &engine.StaticFormulator{Problem: base}
	switch {
	case *simulationFlag:
		sim, err := simulation.New(c, base.Simulation)
		if err != nil {
			return fmt.Errorf("compiling simulation block: %w", err)
		}
		formulator = simulation.NewFormulator(base, sim)
	case role == model.RoleSource:
		formulator = engine.NewLiveFormulator(base, mgr, frequencySources)
	}

	var external extlogger.Logger = extlogger.Noop{}
	if strings.EqualFold(*loggerFlag, "wb") {
		external = extlogger.NewSlog(log)
	}

	e, err := engine.New(engine.Config{
		Logger:      log,
		Clock:       c,
		Role:        role,
		Solver:      solv,
		Formulator:  formulator,
		Switchboard: sb,
		Manager:     mgr,
		Metrics:     metrics.NewRecorder(),
		Sources:     solutionSinks,
		External:    external,
		Whitelist:   whitelistInterfaces(base),
	})
	if err != nil {
		return fmt.Errorf("constructing engine: %w", err)
	}

	if env.Debug {
		dbg, err := debugsrv.New(debugsrv.Config{Logger: log, Manager: mgr, Enabled: true})
		if err != nil {
			return fmt.Errorf("constructing debug server: %w", err)
		}
		go func() {
			if err := dbg.Run(ctx); err != nil {
				log.Error("debug server stopped", "error", err)
			}
		}()
	}

	log.Info("adanet: starting", "problem", base.Name, "channels", len(base.Channels), "links", len(base.Links))
	runErr := e.Run(ctx)
	registry.Shutdown()
	if runErr != nil && ctx.Err() == nil {
		return fmt.Errorf("engine run: %w", runErr)
	}
	return nil
}

// resolveSolver picks the Allocator by name, spec.md §6. The sink role
// never solves on its own account (it only dispatches what it receives),
// so an unrecognized --solver there is accepted rather than fatal.
func resolveSolver(role model.AgentRole, name string) (solver.Solver, error) {
	s := solver.New(config.PlanningWindow, config.CapacityFloorBytes, false)
	if role == model.RoleSink {
		return s, nil
	}
	if name != "" && name != config.DefaultSolver {
		return nil, fmt.Errorf("unknown solver %q", name)
	}
	return s, nil
}

// newChannelQueue selects the windmill queue backend for one channel,
// spec.md §4.5: a `disk` channel is backed by the persistent on-disk
// queue (it is the replay/capture backend already), everything else uses
// the in-memory cache queue sized by qos.queue_size.
func newChannelQueue(env config.Env, ch model.Channel) (queue.Queue, error) {
	size := 1
	if ch.QoS != nil && ch.QoS.QueueSize > 0 {
		size = ch.QoS.QueueSize
	}
	kind := model.QueueCache
	if ch.Kind == model.ChannelDisk {
		kind = model.QueuePersistent
	}
	return queue.New(kind, size, filepath.Join(env.QueuePath, string(ch.Kind), ch.Name), ch.Name)
}

// wireSourceBackend attaches the producer appropriate to ch.Kind,
// spec.md §1's abstract Source contract.
func wireSourceBackend(ctx context.Context, c *clock.Clock, log *slog.Logger, env config.Env, ch model.Channel, src *source.Source, simulating bool) {
	switch ch.Kind {
	case model.ChannelROS:
		source.NewRosKindStub(src)
		log.Debug("source: ros channel awaits an external publisher", "channel", ch.Name)
	case model.ChannelDisk:
		path := env.QueuePath + "/replay/" + strings.ReplaceAll(ch.Name, "/", "_")
		tail := source.NewDiskTail(path, src)
		go func() {
			if err := tail.Run(ctx); err != nil {
				log.Debug("source: disk replay stopped", "channel", ch.Name, "error", err)
			}
		}()
	case model.ChannelSimulated:
		if !simulating {
			return
		}
		sim := source.NewSimulated(src, func() []byte { return make([]byte, ch.Size) })
		go func() {
			hz := ch.Frequency
			if hz <= 0 {
				hz = 1
			}
			period := time.Duration(float64(time.Second) / hz)
			ticker := c.NewTicker(period)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.Chan():
					sim.Tick()
				}
			}
		}()
	}
}

// wireSinkBackend attaches the consumer appropriate to ch.Kind, spec.md
// §1's abstract Sink contract.
func wireSinkBackend(log *slog.Logger, sinks *sink.Registry, ch model.Channel, q queue.Queue) {
	switch ch.Kind {
	case model.ChannelROS:
		stub := sink.NewRosKindStub(log, ch.Name, func(messageType string, data []byte) error {
			log.Debug("sink: ros publish awaits an external subscriber", "message_type", messageType, "bytes", len(data))
			return nil
		})
		sinks.Register(ch.Name, stub)
	case model.ChannelDisk:
		sinks.Register(ch.Name, sink.NewDiskSink(q))
	case model.ChannelSimulated:
		sinks.Register(ch.Name, sink.NewSimulated(nil))
	}
}

// wireDiscovery makes a, once it has an IPv4 address, participate in peer
// discovery: a Sink periodically announces itself, a Source listens for
// a complementary-role peer on the same network and adopts its address,
// spec.md §4.7.
func wireDiscovery(ctx context.Context, c *clock.Clock, env config.Env, log *slog.Logger, disco *discovery.Service, role model.AgentRole, a *netw.Adapter) {
	ip, ipnet, ok := netw.IPv4Address(a.Name())
	if !ok {
		log.Debug("discovery: interface has no IPv4 address yet", "interface", a.Name())
		return
	}
	switch role {
	case model.RoleSink:
		go func() {
			ticker := c.NewTicker(env.NetworkIfacesDiscoveryEverySecs)
			defer ticker.Stop()
			for {
				if err := disco.Announce(a.Name(), ip, ipnet, a.Port()); err != nil {
					log.Debug("discovery: announce failed", "interface", a.Name(), "error", err)
				}
				select {
				case <-ctx.Done():
					return
				case <-ticker.Chan():
				}
			}
		}()
	case model.RoleSource:
		disco.OnMatch(a.Name(), ipnet, func(ann discovery.Announcement) {
			a.SetPeerAddress(fmt.Sprintf("%s:%d", ann.Address, ann.Port))
		})
	}
}

// whitelistInterfaces extracts the links declared in the problem file as
// an interface allow-list for NetworkManager's discovery loop; an empty
// Problem.Links means "no whitelist, use everything" (spec.md §6).
func whitelistInterfaces(p *model.Problem) []string {
	if len(p.Links) == 0 {
		return nil
	}
	out := make([]string, 0, len(p.Links))
	for _, l := range p.Links {
		out = append(out, l.Interface)
	}
	return out
}
