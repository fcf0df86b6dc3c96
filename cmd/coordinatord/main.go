package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/nyxdb/contractcoord/internal/config"
	"github.com/nyxdb/contractcoord/internal/contract"
	"github.com/nyxdb/contractcoord/internal/coordinator"
	"github.com/nyxdb/contractcoord/internal/coordstate"
	coordstategrpc "github.com/nyxdb/contractcoord/internal/coordstate/grpc"
	"github.com/nyxdb/contractcoord/internal/observability/metrics"
)

func main() {
	configPath := flag.String("config", "/etc/contractcoord/coordinator.yaml", "path to the coordinator config file")
	flag.Parse()

	cfg, err := config.LoadCoordinatorConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	self, err := cfg.SelfServerID()
	if err != nil {
		log.Fatalf("parse self server id: %v", err)
	}

	tableConfig, err := cfg.Table.ToContractConfig()
	if err != nil {
		log.Fatalf("parse table config: %v", err)
	}

	store, err := coordstate.Open(cfg.Data.Dir)
	if err != nil {
		log.Fatalf("open coordstate: %v", err)
	}
	defer store.Close()

	collector := metrics.NewCoordinatorCollector(nil, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Address != "" {
		if err := metrics.StartServer(ctx, cfg.Metrics.Address); err != nil {
			log.Fatalf("start metrics server: %v", err)
		}
	}

	grpcServer := grpc.NewServer()
	apiServer := coordstategrpc.NewServer(store, collector)
	coordstategrpc.Register(grpcServer, apiServer)

	lis, err := net.Listen("tcp", cfg.GRPC.Address)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	log.Printf("coordinatord listening on %s", cfg.GRPC.Address)

	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()

	interval := time.Duration(cfg.Tick.IntervalMillis) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	go runCalculationLoop(ctx, store, apiServer, tableConfig, self, collector, interval)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	cancel()
	grpcServer.GracefulStop()
	_ = store.Close()
	log.Println("coordinatord stopped")
}

// runCalculationLoop re-runs CalculateAllContracts on a fixed tick,
// applying each resulting diff to the durable contract set and
// publishing it for GetLatestDiff.
func runCalculationLoop(
	ctx context.Context,
	store *coordstate.Store,
	apiServer *coordstategrpc.Server,
	tableConfig contract.TableConfig,
	self contract.ServerID,
	collector *metrics.CoordinatorCollector,
	interval time.Duration,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce(store, apiServer, tableConfig, self, collector)
		}
	}
}

func runOnce(
	store *coordstate.Store,
	apiServer *coordstategrpc.Server,
	tableConfig contract.TableConfig,
	self contract.ServerID,
	collector *metrics.CoordinatorCollector,
) {
	contracts, err := store.LoadContracts()
	if err != nil {
		log.Printf("coordinatord: load contracts: %v", err)
		return
	}
	branches, err := store.LoadBranches()
	if err != nil {
		log.Printf("coordinatord: load branches: %v", err)
		return
	}
	history, err := store.LoadHistory()
	if err != nil {
		log.Printf("coordinatord: load history: %v", err)
		return
	}

	state := coordinator.TableState{
		Contracts:       contracts,
		Config:          tableConfig,
		CurrentBranches: branches,
		History:         history,
	}

	start := time.Now()
	diff := coordinator.CalculateAllContracts(coordinator.CalculateAllContractsInput{
		State:        state,
		Acks:         store,
		Connectivity: store.Connectivity(),
		Self:         self,
		LogPrefix:    "coordinatord",
		Logger:       coordinator.StdoutLogger,
	})
	elapsed := time.Since(start)

	if err := store.ApplyDiff(diff); err != nil {
		log.Printf("coordinatord: apply diff: %v", err)
		return
	}
	apiServer.SetLatestDiff(coordstate.EncodeDiff(diff))
	collector.ObserveCalculation(elapsed, diff, len(contracts)-len(diff.RemoveContracts)+len(diff.AddContracts))
}
