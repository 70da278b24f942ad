//go:build linux

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/romshark/hwsim-medium/config"
	"github.com/romshark/hwsim-medium/logging"
	"github.com/romshark/hwsim-medium/medium"
	"github.com/romshark/hwsim-medium/radiostat"
)

func loadConfig() (*config.Config, time.Duration, error) {
	fConfig := flag.String("config", "medium.yaml", "path to config YAML file")
	fPPS := flag.Int64("r", -1, "per radio tx cap in frames/s (<0 falls back to config)")
	fNoRing := flag.Bool("no-ring", false, "deliver frames inline instead of through the ring")
	fLevel := flag.String("log-level", "", "log level override")
	fStats := flag.Duration("stats", 0, "print counters at this interval (0 = off)")
	flag.Parse()

	conf, err := config.Load(*fConfig)
	if err != nil {
		return nil, 0, err
	}
	if *fPPS >= 0 {
		conf.Medium.MaxPPS = uint64(*fPPS)
	}
	if *fNoRing {
		*conf.Ring.Enabled = false
	}
	if *fLevel != "" {
		conf.Log.Level = *fLevel
	}
	return conf, *fStats, nil
}

func fatalIf(err error, msgf string, a ...any) {
	if err != nil {
		fmt.Fprintf(os.Stderr, msgf+": %v\n", append(a, err)...)
		os.Exit(1)
	}
}

func main() {
	conf, statsEvery, err := loadConfig()
	fatalIf(err, "reading config")

	logger, err := logging.Setup(conf.Log)
	fatalIf(err, "setting up logging")
	defer func() { _ = logger.Sync() }()

	b, err := yaml.Marshal(conf)
	fatalIf(err, "encoding final YAML config")
	logger.Debug("config", zap.ByteString("yaml", b))

	reg, err := conf.Registry()
	fatalIf(err, "building topology")

	env := &medium.LinuxEnvironment{Isolate: *conf.Medium.Isolate}
	var ringOrder uint32
	if *conf.Ring.Enabled {
		env.RingDevice = conf.Ring.Device
		env.Ring = conf.Ring.Config()
		ringOrder = uint32(*conf.Ring.Order)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := radiostat.NewSet()
	aliases := make(map[string]string, len(conf.Radios))
	for _, r := range reg.Radios() {
		aliases[r.Name] = r.PermAddr.String()
		stats.Radio(r.Name)
	}

	if statsEvery > 0 {
		go printPeriodic(ctx, stats, statsEvery)
	}

	start := time.Now()
	runErr := medium.Run(ctx, medium.Options{
		Registry:   reg,
		Env:        env,
		Logger:     logger,
		Stats:      stats,
		SNR:        *conf.Medium.SNR,
		NoiseFloor: *conf.Medium.NoiseFloor,
		QueueSize:  conf.Medium.QueueSize,
		MaxPPS:     conf.Medium.MaxPPS,
		RingOrder:  ringOrder,
	})
	if runErr != nil {
		logger.Error("some radios failed", zap.Error(runErr))
	}

	final := stats.Snapshot()
	printFinalReport(final, time.Since(start))
	fmt.Fprintf(os.Stderr, "\nRADIO COUNTERS:\n")
	err = radiostat.Print(os.Stderr, final, aliases)
	fatalIf(err, "printing radio counters")
	fmt.Fprintln(os.Stderr)
}

func printPeriodic(ctx context.Context, stats *radiostat.Set, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	last := stats.Snapshot()
	lastTime := time.Now()
	p := message.NewPrinter(language.English)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			cur := stats.Snapshot()
			delta := cur.Since(last)
			elapsed := now.Sub(lastTime).Seconds()
			p.Fprintf(os.Stderr,
				"tx=%d rx=%d | cur=%.0f fps | drops queue=%d rate=%d\n",
				cur.Total(radiostat.TxFrames),
				cur.Total(radiostat.RxFrames),
				float64(delta.Total(radiostat.RxFrames))/elapsed,
				cur.Total(radiostat.QueueDrops),
				cur.Total(radiostat.RateDrops),
			)
			last, lastTime = cur, now
		}
	}
}

func printFinalReport(s radiostat.Stats, elapsed time.Duration) {
	txFrames := s.Total(radiostat.TxFrames)
	rxFrames := s.Total(radiostat.RxFrames)
	secs := elapsed.Seconds()

	p := message.NewPrinter(language.English)
	p.Fprint(os.Stderr, "\nFINAL REPORT\n")
	p.Fprintf(os.Stderr, " Elapsed:           %.3f s\n", secs)
	p.Fprintf(os.Stderr, " Radios:            %d\n", len(s))
	p.Fprintf(os.Stderr, " Transmitted:       %d frames\n", txFrames)
	p.Fprintf(os.Stderr, " Received:          %d frames\n", rxFrames)
	if secs > 0 {
		p.Fprintf(os.Stderr, " TX Avg FPS:        %.0f\n", float64(txFrames)/secs)
		p.Fprintf(os.Stderr, " RX Avg FPS:        %.0f\n", float64(rxFrames)/secs)
	}
	p.Fprintf(os.Stderr, " Queue drops:       %d\n", s.Total(radiostat.QueueDrops))
	p.Fprintf(os.Stderr, " Rate drops:        %d\n", s.Total(radiostat.RateDrops))
	p.Fprintf(os.Stderr, " Routing misses:    %d\n", s.Total(radiostat.RoutingMisses))
	p.Fprintf(os.Stderr, " Errors:            %d\n", s.Total(radiostat.Errors))
}
