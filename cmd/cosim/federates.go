package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/cosim/internal/broker"
	"github.com/san-kum/cosim/internal/building"
	"github.com/san-kum/cosim/internal/cosim"
	"github.com/san-kum/cosim/internal/experiment"
	"github.com/san-kum/cosim/internal/transport"
	"github.com/san-kum/cosim/internal/viz"
)

func runBroker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var b *broker.Broker
	if coreInit != "" {
		b, err = broker.NewFromCoreInit(coreInit, reg)
	} else {
		b, err = broker.New(broker.Config{Federates: cfg.Broker.Federates, Registerer: reg})
	}
	if err != nil {
		return err
	}
	log := logrus.WithField("broker", b.ID())
	log.Infof("serving federation on %s", cfg.Broker.Addr)

	serveCtx, cancelServe := context.WithCancel(ctx)
	defer cancelServe()

	g, gctx := errgroup.WithContext(serveCtx)
	g.Go(func() error {
		return transport.NewServer(b).ListenAndServe(gctx, cfg.Broker.Addr)
	})
	if cfg.Broker.MetricsAddr != "" {
		g.Go(func() error {
			return transport.ServeMetrics(gctx, cfg.Broker.MetricsAddr, reg)
		})
	}
	g.Go(func() error {
		defer cancelServe()
		err := b.Wait(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	err = g.Wait()
	for _, st := range b.Status() {
		log.WithFields(logrus.Fields{
			"federate": st.Name,
			"mode":     st.Mode,
			"granted":  st.Granted,
		}).Info("federate status")
	}
	if err != nil {
		return err
	}
	log.Info("federation finished")
	return nil
}

func dial(ctx context.Context, addr string) (*transport.Client, error) {
	client, err := transport.Dial(ctx, addr, transport.DefaultDialOptions())
	if err != nil {
		return nil, fmt.Errorf("connect to broker %s: %w", addr, err)
	}
	return client, nil
}

func runController(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	registry := experiment.NewRegistry()
	policy, err := registry.Policy(cfg)
	if err != nil {
		return err
	}

	client, err := dial(ctx, cfg.Broker.Addr)
	if err != nil {
		return err
	}
	defer client.Close()

	runner, err := cosim.NewRunner(ctx, client, cfg, policy)
	if err != nil {
		return err
	}
	for _, m := range registry.DefaultMetrics(cfg) {
		runner.AddMetric(m)
	}

	res, err := runner.Run(ctx, cfg.Name, cfg.TotalSeconds())
	if err != nil {
		return err
	}

	fmt.Printf("\n%s %d steps\n\n", viz.StatusDone.Render("controller done:"), res.StepsTaken)
	fmt.Print(viz.MetricsTable(res.Metrics))
	if noSave {
		return nil
	}
	return saveRun(cfg, "", res)
}

func runBuilding(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	model, err := experiment.NewRegistry().Model("", cfg)
	if err != nil {
		return err
	}

	client, err := dial(ctx, cfg.Broker.Addr)
	if err != nil {
		return err
	}
	defer client.Close()

	bld, err := building.New(ctx, client, cfg, model)
	if err != nil {
		return err
	}
	if err := bld.Run(ctx, cfg.TotalSeconds()); err != nil {
		return err
	}

	fmt.Printf("\n%s %d steps\n", viz.StatusDone.Render("building done:"), len(bld.Results.Time))
	if graph := viz.Plot(bld.Results.Energy, "facility demand (W)", viz.DefaultPlotHeight, viz.DefaultPlotWidth); graph != "" {
		fmt.Println()
		fmt.Println(graph)
	}
	return nil
}
