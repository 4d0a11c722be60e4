// Command heartbeat runs the liveness ledger, the monitor that polls it, and
// the read-only status API as one node process.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kelbelss/heartbeat-avs/alert"
	"github.com/kelbelss/heartbeat-avs/api"
	"github.com/kelbelss/heartbeat-avs/config/params"
	"github.com/kelbelss/heartbeat-avs/ledger"
	"github.com/kelbelss/heartbeat-avs/monitor"
	"github.com/kelbelss/heartbeat-avs/runtime"
)

var log = logrus.WithField("prefix", "node")

func main() {
	var (
		datadir   = flag.String("datadir", "./heartbeat-data", "Directory holding the ledger database")
		httpAddr  = flag.String("http-addr", ":8080", "Listen address for the status API")
		operators = flag.String("operators", "", "Comma-separated operator addresses to register and monitor")
		minimal   = flag.Bool("minimal-config", false, "Use the short-interval minimal configuration")
		remediate = flag.Bool("remediate", false, "Invoke penalties when operators become overdue instead of alerting only")
		verbosity = flag.String("verbosity", "info", "Logging verbosity (trace, debug, info, warn, error)")
	)
	flag.Parse()

	level, err := logrus.ParseLevel(*verbosity)
	if err != nil {
		log.WithError(err).Fatalf("Invalid verbosity %q", *verbosity)
	}
	logrus.SetLevel(level)

	cfg := params.MainnetConfig()
	if *minimal {
		cfg = params.MinimalConfig()
	}
	if *remediate {
		cfg.Remediation = params.RemediationAlertAndPenalize
	}
	params.OverrideHeartbeatConfig(cfg)

	seed, err := parseOperators(*operators)
	if err != nil {
		log.WithError(err).Fatal("Could not parse operator list")
	}

	ctx := context.Background()
	store, err := ledger.NewStore(*datadir)
	if err != nil {
		log.WithError(err).Fatal("Could not open ledger database")
	}
	ledgerSvc, err := ledger.NewService(ctx, &ledger.ServiceConfig{Store: store})
	if err != nil {
		log.WithError(err).Fatal("Could not initialize liveness ledger")
	}
	for _, op := range seed {
		if err := ledgerSvc.Register(ctx, op); err != nil {
			log.WithError(err).WithField("operator", op.Hex()).Fatal("Could not register operator")
		}
	}

	// Monitor everything the ledger knows about, including operators restored
	// from a previous run.
	monitored, err := ledgerSvc.Operators(ctx)
	if err != nil {
		log.WithError(err).Fatal("Could not list operators")
	}
	monitorSvc, err := monitor.NewService(ctx, &monitor.ServiceConfig{
		Reader:           ledgerSvc,
		Invoker:          ledgerSvc,
		Alerts:           alert.LogSink{},
		Operators:        monitored,
		OperatorNotifier: ledgerSvc,
	})
	if err != nil {
		log.WithError(err).Fatal("Could not initialize liveness monitor")
	}
	apiSrv := api.NewServer(monitorSvc, *httpAddr)

	services := runtime.NewServiceRegistry()
	for _, svc := range []runtime.Service{ledgerSvc, monitorSvc, apiSrv} {
		if err := services.RegisterService(svc); err != nil {
			log.WithError(err).Fatal("Could not register service")
		}
	}
	services.StartAll()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigc
	log.WithField("signal", sig.String()).Info("Shutting down")
	services.StopAll()
}

func parseOperators(list string) ([]common.Address, error) {
	if list == "" {
		return nil, nil
	}
	var out []common.Address
	for _, raw := range strings.Split(list, ",") {
		raw = strings.TrimSpace(raw)
		if !common.IsHexAddress(raw) {
			return nil, errors.Errorf("invalid operator address %q", raw)
		}
		out = append(out, common.HexToAddress(raw))
	}
	return out, nil
}
