// Command actord serves counters held through the actor package and talks to
// a running server from the command line.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/enverbisevac/actors/actor"
	"github.com/enverbisevac/actors/httputil"
	"github.com/enverbisevac/actors/lock"
	"github.com/enverbisevac/actors/metrics"
	_ "github.com/enverbisevac/actors/state/pgblob"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

type app struct {
	v   *viper.Viper
	cfg config
	log logr.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{v: newViper()}

	root := &cobra.Command{
		Use:          "actord",
		Short:        "Counter service on top of actor entities",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			file, _ := cmd.Flags().GetString("config")
			cfg, err := loadConfig(a.v, file)
			if err != nil {
				return err
			}
			a.cfg = cfg

			stdr.SetVerbosity(cfg.Verbosity)
			a.log = stdr.New(log.New(cmd.ErrOrStderr(), "", log.LstdFlags)).WithName("actord")
			cmd.SetContext(logr.NewContext(cmd.Context(), a.log))
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (yaml, json or toml)")
	pf.Int("verbosity", 0, "log verbosity")
	pf.String("server", "http://localhost:8080", "server used by the client commands")

	root.AddCommand(
		a.serveCommand(),
		a.incrementCommand(),
		a.getCommand(),
	)
	return root
}

func (a *app) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if err := a.cfg.validate(); err != nil {
				return err
			}

			handler, closeFn, err := a.handler(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := closeFn(); err != nil {
					a.log.Error(err, "close backends")
				}
			}()

			srv := &http.Server{
				Addr:              a.cfg.Listen,
				Handler:           handler,
				ReadHeaderTimeout: 5 * time.Second,
			}
			a.log.Info("listening", "addr", a.cfg.Listen)
			return serve(ctx, srv)
		},
	}
	serverFlags(cmd.Flags())
	return cmd
}

// handler wires backends, metrics and the counter client into a router.
func (a *app) handler(ctx context.Context) (http.Handler, func() error, error) {
	b, err := openBackends(ctx, a.cfg)
	if err != nil {
		return nil, nil, err
	}

	reg := prometheus.NewRegistry()
	collector := metrics.New("")
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collector,
	)

	counters, err := newCounters(a.cfg, b, collector)
	if err != nil {
		_ = b.Close()
		return nil, nil, err
	}
	return newRouter(a.log, counters, reg), b.Close, nil
}

func newCounters(cfg config, b *backends, observer actor.Observer) (*actor.Client[Counter], error) {
	mode, err := actor.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	return actor.NewClient[Counter](b.stores,
		actor.WithMode(mode),
		actor.WithObserver(observer),
		actor.WithLockOptions(
			lock.WithRetry(cfg.Retry),
			lock.WithRetryInterval(cfg.RetryInterval),
			lock.WithRetryAttempts(cfg.RetryAttempts),
			lock.WithTimeout(cfg.Timeout),
		),
	)
}

func (a *app) incrementCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "increment <name>",
		Short: "Increment a counter on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rec actor.Record[Counter]
			client := httputil.NewClient(a.cfg.Server)
			if err := client.Post(cmd.Context(), "update/"+url.PathEscape(args[0]), nil, &rec); err != nil {
				return err
			}
			return printJSON(cmd, rec)
		},
	}
}

func (a *app) getCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Read a counter without locking it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rec actor.Record[Counter]
			client := httputil.NewClient(a.cfg.Server)
			if err := client.Get(cmd.Context(), "get/"+url.PathEscape(args[0]), &rec); err != nil {
				return err
			}
			return printJSON(cmd, rec)
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
