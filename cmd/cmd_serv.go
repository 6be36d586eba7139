package main

import (
	"context"
	"fmt"
	"os"

	"github.com/patel-ankitb/nestproject-sub000/core"
	"github.com/patel-ankitb/nestproject-sub000/plugin/otel"
	"github.com/patel-ankitb/nestproject-sub000/serv"
	"github.com/spf13/cobra"
)

var tracing bool

const (
	colorCyan  = "\033[36m"
	colorReset = "\033[0m"
)

func printBanner() {
	cyan, reset := colorCyan, colorReset
	if os.Getenv("NO_COLOR") != "" {
		cyan, reset = "", ""
	}

	fmt.Printf(`%s
 ╔╦╗╔═╗╔╗╔╔═╗╔╗╔╔╦╗╔╦╗╔╗
  ║ ║╣ ║║║╠═╣║║║ ║  ║║╠╩╗
  ╩ ╚═╝╝╚╝╩ ╩╝╚╝ ╩ ═╩╝╚═╝
%s
`, cyan, reset)
}

// servCmd is the cobra CLI command for the serve subcommand
func servCmd() *cobra.Command {
	c := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"serv"},
		Short:   "Run the TenantDB service",
		Run:     cmdServ,
	}
	c.Flags().BoolVar(&tracing, "trace", false, "Export OpenTelemetry spans")
	return c
}

func cmdServ(*cobra.Command, []string) {
	printBanner()
	setup(cpath)

	opts, err := servOptions(context.Background(), conf)
	if err != nil {
		log.Fatalf("%s", err)
	}

	svc, err := serv.NewHttpService(conf, opts...)
	if err != nil {
		log.Fatalf("%s", err)
	}

	if err := svc.Start(); err != nil {
		log.Fatalf("%s", err)
	}
}

// servOptions wires tracing when --trace is set or an exporter is
// configured. The provider is shut down with the service.
func servOptions(c context.Context, conf *serv.Config) ([]serv.Option, error) {
	tc := conf.Telemetry.Tracing
	if !tracing && tc.Exporter == "" {
		return nil, nil
	}
	if tc.Exporter == "" {
		tc.Exporter = "otlp"
	}

	tp, err := otel.NewProvider(c, otel.ProviderConfig{
		Exporter:       tc.Exporter,
		Endpoint:       tc.Endpoint,
		Sample:         tc.Sample,
		Insecure:       tc.Insecure,
		ServiceName:    conf.AppName,
		ServiceVersion: version,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	otel.SetGlobal(tp)

	return []serv.Option{
		serv.OptionSetTrace(otel.NewWithProvider(tp)),
		serv.OptionSetMiddleware(otel.HTTPMiddleware("tenantdb", tp)),
		serv.OptionOnClose(tp.Shutdown),
	}, nil
}

// pingCmd checks that the central database is reachable
func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check the central database connection",
		Run:   cmdPing,
	}
}

func cmdPing(*cobra.Command, []string) {
	setup(cpath)

	e, err := core.NewEngine(&conf.Core, core.OptionSetLogger(log))
	if err != nil {
		log.Fatalf("%s", err)
	}

	c, cancel := context.WithTimeout(context.Background(), conf.PingTimeout)
	defer cancel()
	defer e.Close(context.Background()) //nolint:errcheck

	if err := e.Ping(c); err != nil {
		log.Fatalf("central database unreachable: %s", err)
	}
	log.Infof("central database %q is reachable", conf.Central.Database)
}
