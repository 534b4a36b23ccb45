// Command netzd runs the PRUDP/RMC/Kerberos-ticket core as one or more
// UDP services described by a TOML config file.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"net/http/pprof"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/netzcore/netzd/internal/config"
	"github.com/netzcore/netzd/internal/log"
	"github.com/netzcore/netzd/internal/metrics"
	"github.com/netzcore/netzd/pkg/netz"
	"github.com/netzcore/netzd/pkg/qcrypto"
)

var opt struct {
	Help      bool
	SecretEnv string
}

func init() {
	pflag.BoolVarP(&opt.Help, "help", "h", false, "Show this help text")
	pflag.StringVarP(&opt.SecretEnv, "secrets", "s", "", "Env file with secret overrides (NETZD_MASTER_SECRET_SEED, NETZD_ACCESS_KEY_<N>)")
}

func main() {
	pflag.Parse()

	if pflag.NArg() != 1 || opt.Help {
		fmt.Printf("usage: %s [options] config.toml\n\noptions:\n%s", os.Args[0], pflag.CommandLine.FlagUsages())
		if opt.Help {
			os.Exit(2)
		}
		os.Exit(0)
	}

	c, err := config.Load(pflag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}
	if opt.SecretEnv != "" {
		if err := c.ApplySecretsOverlay(opt.SecretEnv); err != nil {
			fmt.Fprintf(os.Stderr, "error: load secrets: %v\n", err)
			os.Exit(1)
		}
	}

	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := log.New(log.Config{Level: level, Pretty: c.LogPretty})

	if len(c.MasterSecretSeed) == 0 {
		logger.Warn().Msg("no master secret seed configured; generating an ephemeral one")
	}
	qcrypto.InitMasterSecret(c.MasterSecretSeed)

	s, err := netz.NewServer(c, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: initialize server: %v\n", err)
		os.Exit(1)
	}

	if c.MetricsAddr != "" {
		dbg := http.NewServeMux()
		dbg.HandleFunc("/debug/pprof/", pprof.Index)
		dbg.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		dbg.HandleFunc("/debug/pprof/profile", pprof.Profile)
		dbg.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		dbg.HandleFunc("/debug/pprof/trace", pprof.Trace)
		dbg.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.WritePrometheus(w)
		})
		go func() {
			logger.Warn().Str("addr", c.MetricsAddr).Msg("running insecure debug server")
			if err := http.ListenAndServe(c.MetricsAddr, dbg); err != nil {
				logger.Error().Err(err).Msg("debug server failed")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hch := make(chan os.Signal, 1)
	signal.Notify(hch, syscall.SIGHUP)
	go func() {
		for range hch {
			logger.Info().Msg("got SIGHUP, reloading principal directory")
			if fresh, err := config.Load(pflag.Arg(0)); err == nil {
				s.ReloadPrincipals(fresh.Principals)
			} else {
				logger.Error().Err(err).Msg("reload config")
			}
		}
	}()

	if err := superviseEndpoints(ctx, s, logger); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "error: run server: %v\n", err)
		os.Exit(1)
	}
}

// superviseEndpoints runs every endpoint's listener loop with independent
// exponential backoff (100ms -> 5s) restarts: a crashed
// listener goroutine is restarted rather than taking the whole process
// down, since a bug isolated to one virtual-connection table shouldn't
// interrupt every other service.
func superviseEndpoints(ctx context.Context, s *netz.Server, logger zerolog.Logger) error {
	done := make(chan struct{})
	for _, ep := range s.Endpoints {
		ep := ep
		go func() {
			backoff := 100 * time.Millisecond
			for {
				logger.Info().Str("endpoint", ep.Name).Str("listen", ep.ListenAddr).Msg("listening")
				err := func() (err error) {
					defer func() {
						if r := recover(); r != nil {
							err = fmt.Errorf("listener panic: %v", r)
						}
					}()
					return ep.ListenAndServe(ctx, ep.ListenAddr)
				}()
				if ctx.Err() != nil {
					return
				}
				logger.Error().Err(err).Str("endpoint", ep.Name).Dur("backoff", backoff).Msg("listener crashed, restarting")
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return
				}
				if backoff < 5*time.Second {
					backoff *= 2
					if backoff > 5*time.Second {
						backoff = 5 * time.Second
					}
				}
			}
		}()
	}
	go func() {
		<-ctx.Done()
		close(done)
	}()
	<-done
	return ctx.Err()
}
