// Command radcoin runs a single node: the HTTP API server, the sync
// client, and (optionally) the miner, all sharing one durable badger
// store. It is grounded on the teacher's cmd/gochain/main.go — a single
// cobra.Command with a RunE that wires storage, chain, and network
// actors together and waits on an interrupt signal — narrowed to the
// five flags the wire protocol's CLI surface specifies.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gochain/radcoin/internal/config"
	"github.com/gochain/radcoin/internal/logging"
	"github.com/gochain/radcoin/pkg/api"
	"github.com/gochain/radcoin/pkg/chain"
	"github.com/gochain/radcoin/pkg/miner"
	"github.com/gochain/radcoin/pkg/peer"
	"github.com/gochain/radcoin/pkg/storage"
	syncclient "github.com/gochain/radcoin/pkg/sync"
	"github.com/gochain/radcoin/pkg/wallet"
)

var log = logging.Get("cmd")

var (
	flagInitialize    bool
	flagCfgPath       string
	flagAdvertizeAddr string
	flagLogLevel      string
	flagRunMiner      bool
)

func main() {
	root := &cobra.Command{
		Use:   "radcoin",
		Short: "radcoin is a peer-to-peer proof-of-work UTXO node",
		RunE:  run,
	}

	root.PersistentFlags().BoolVar(&flagInitialize, "initialize", false, "mine genesis and write a fresh config, then exit")
	root.PersistentFlags().StringVar(&flagCfgPath, "cfg_path", "", "path to the node's YAML config file")
	root.PersistentFlags().StringVar(&flagAdvertizeAddr, "advertize_addr", "", "override the address this node advertises to peers")
	root.PersistentFlags().StringVar(&flagLogLevel, "log_level", "", "override the configured log level")
	root.PersistentFlags().BoolVar(&flagRunMiner, "run_miner", false, "override the configured run_miner setting")
	root.MarkPersistentFlagRequired("cfg_path")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagCfgPath, config.Default())
	if err != nil {
		return fmt.Errorf("radcoin: load config: %w", err)
	}
	if flagAdvertizeAddr != "" {
		cfg.AdvertizeAddr = flagAdvertizeAddr
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagRunMiner {
		cfg.RunMiner = true
	}

	logFile, err := os.OpenFile(cfg.LogDBPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("radcoin: open log file: %w", err)
	}
	defer logFile.Close()
	logging.Configure(logFile, logging.ParseLevel(cfg.LogLevel))

	chainStore, err := storage.OpenBadgerStore(cfg.ChainDBPath)
	if err != nil {
		return fmt.Errorf("radcoin: open chain store: %w", err)
	}
	defer chainStore.Close()

	peerStore, err := storage.OpenBadgerStore(cfg.PeerDBPath)
	if err != nil {
		return fmt.Errorf("radcoin: open peer store: %w", err)
	}
	defer peerStore.Close()

	w, err := wallet.LoadOrCreate(cfg.WalletPath)
	if err != nil {
		return fmt.Errorf("radcoin: load wallet: %w", err)
	}

	engine := chain.NewEngine(chainStore)
	peers := peer.New(peerStore, cfg.AdvertizeAddr)
	if gw := cfg.GatewayAddr(); gw != "" {
		if err := peers.Add(peer.Peer{Address: gw, Port: cfg.GatewayPort}); err != nil {
			log.WithError(err).WithField("peer", gw).Warn("failed to seed gateway peer")
		}
	}

	selfPeerID := cfg.PeerID

	if flagInitialize {
		return initializeNode(cmd.Context(), engine, cfg)
	}

	if _, hasHead, err := engine.Head(); err != nil {
		return fmt.Errorf("radcoin: read head: %w", err)
	} else if !hasHead {
		return fmt.Errorf("radcoin: store has no genesis block; run with --initialize first")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	minerProcs := cfg.MinerProcs
	if cfg.RunMiner && minerProcs < 1 {
		minerProcs = 1
	}
	var wg sync.WaitGroup
	errs := make(chan error, 2+minerProcs)

	apiServer := api.New(engine, peers, selfPeerID, cfg.ListenAddr())
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := apiServer.Run(ctx); err != nil {
			errs <- fmt.Errorf("api server: %w", err)
		}
	}()

	syncCfg := syncclient.Config{
		PollDelay:      time.Duration(cfg.PollDelaySeconds) * time.Second,
		PeerSampleSize: cfg.PeerSampleSize,
		SelfPeerID:     selfPeerID,
		Advertize:      cfg.AdvertizeSelf,
		AdvertizeAddr:  cfg.AdvertizeAddr,
	}
	syncClient := syncclient.New(engine, peers, syncCfg)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := syncClient.Run(ctx); err != nil {
			errs <- fmt.Errorf("sync client: %w", err)
		}
	}()

	if cfg.RunMiner {
		minerCfg := miner.DefaultConfig(w.Address())
		minerCfg.Throttle = cfg.MinerThrottle
		for i := 0; i < minerProcs; i++ {
			m := miner.New(engine, minerCfg)
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := m.Run(ctx); err != nil {
					errs <- fmt.Errorf("miner: %w", err)
				}
			}()
		}
	}

	log.WithField("advertize_addr", cfg.AdvertizeAddr).Info("radcoin node started")
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// initializeNode submits the network's hardcoded genesis block and
// persists the resolved config, matching the wire protocol's --initialize
// mode: a one-shot setup step rather than a long-running node.
func initializeNode(ctx context.Context, engine *chain.Engine, cfg config.Config) error {
	if _, hasHead, err := engine.Head(); err != nil {
		return fmt.Errorf("radcoin: read head: %w", err)
	} else if hasHead {
		return fmt.Errorf("radcoin: store already has a genesis block")
	}

	if err := miner.MineGenesis(ctx, engine); err != nil {
		return fmt.Errorf("radcoin: mine genesis: %w", err)
	}
	if err := config.Save(cfg, flagCfgPath); err != nil {
		return fmt.Errorf("radcoin: save config: %w", err)
	}
	log.Info("genesis mined and config written")
	return nil
}
