// Command ftsim is the simulator's command-line front end: validate a
// scenario file, run it headless to completion, or serve it live over a
// websocket so a browser-based viewer can watch and steer it. HTTP
// wiring follows the same shape as an ordinary cobra+pflag CLI service.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lucaskim/ftsim/internal/engine"
	"github.com/lucaskim/ftsim/internal/loader"
	"github.com/lucaskim/ftsim/internal/protocols/echo"
	"github.com/lucaskim/ftsim/internal/telemetryws"
	"github.com/lucaskim/ftsim/pkg/sdk"
	"github.com/lucaskim/ftsim/pkg/simtime"
	"github.com/lucaskim/ftsim/pkg/telemetry"
)

func defaultRegistry() *sdk.Registry {
	reg := sdk.NewRegistry()
	reg.Register("echo", echo.ProtoTag, func() sdk.ProtocolDyn { return sdk.Adapt[echo.Msg](echo.New()) })
	return reg
}

func newRootCmd() *cobra.Command {
	log := logrus.New()

	root := &cobra.Command{
		Use:   "ftsim",
		Short: "Deterministic distributed-systems fault-injection simulator",
	}

	var stopAtMs uint64

	runCmd := &cobra.Command{
		Use:   "run <scenario-file>",
		Short: "Run a scenario headless to completion (or to --stop-at-ms)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loader.LoadFile(args[0])
			if err != nil {
				return err
			}
			tel := telemetry.NewBus(prometheus.NewRegistry(), s.Initial.Nodes, log)
			sim, err := engine.Build(s, defaultRegistry(), tel, log)
			if err != nil {
				return err
			}
			stopAt := simtime.Max
			if s.StopAt != nil {
				stopAt = *s.StopAt
			}
			if stopAtMs != 0 {
				stopAt = simtime.FromMillis(stopAtMs)
			}
			if err := sim.RunUntil(stopAt); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "simulation %q completed at %s\n", s.Name, sim.Now())
			return nil
		},
	}
	runCmd.Flags().Uint64Var(&stopAtMs, "stop-at-ms", 0, "override the scenario's stop_at, in milliseconds")
	root.AddCommand(runCmd)

	validateCmd := &cobra.Command{
		Use:   "validate <scenario-file>",
		Short: "Parse and validate a scenario file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loader.LoadFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scenario %q is valid: %d nodes, %d directives\n", s.Name, s.Initial.Nodes, len(s.Directives))
			return nil
		},
	}
	root.AddCommand(validateCmd)

	var addr string
	serveCmd := &cobra.Command{
		Use:   "serve <scenario-file>",
		Short: "Run a scenario live, streaming telemetry and accepting control over websocket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loader.LoadFile(args[0])
			if err != nil {
				return err
			}
			reg := prometheus.NewRegistry()
			tel := telemetry.NewBus(reg, s.Initial.Nodes, log)
			sim, err := engine.Build(s, defaultRegistry(), tel, log)
			if err != nil {
				return err
			}

			hub := telemetryws.NewHub(sim.ControlChannel())
			tel.Subscribe(hub)
			go hub.Run()

			mux := http.NewServeMux()
			mux.Handle("/ws", telemetryws.NewHandler(hub))
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintf(w, `{"status":"ok","clients":%d}`, hub.ClientCount())
			})

			go func() {
				if err := sim.Run(); err != nil {
					log.WithError(err).Error("simulation run failed")
				}
			}()

			log.WithField("addr", addr).Info("serving")
			return http.ListenAndServe(addr, mux)
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", ":8090", "http listen address")
	root.AddCommand(serveCmd)

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
