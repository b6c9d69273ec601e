package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/vaultmesh/recovery-backend/anchor"
	"github.com/vaultmesh/recovery-backend/api/recoveryhandler"
	"github.com/vaultmesh/recovery-backend/cmd/flags"
	"github.com/vaultmesh/recovery-backend/cryptoutils"
	"github.com/vaultmesh/recovery-backend/httpserver"
	"github.com/vaultmesh/recovery-backend/storage"
	"github.com/vaultmesh/recovery-backend/wallet"
)

var RecoveryServiceLogFlag = flags.LogServiceFlagFn("recoveryd")

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "recoveryd",
		Usage: "Serve the guardian recovery API",
		Flags: append([]cli.Flag{
			flags.ListenAddrFlag,
			flags.StoreDirFlag,
			flags.AnchorRpcFlag,
			flags.AnchorKeyFlag,
			flags.AnchorAddrFlag,
			flags.AnchorIntervalFlag,
			RecoveryServiceLogFlag,
		}, flags.CommonFlags...),
		Action: runService,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runService(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	listenAddr := cCtx.String(flags.ListenAddrFlag.Name)

	var store wallet.Store
	if dir := cCtx.String(flags.StoreDirFlag.Name); dir != "" {
		fileStore, err := wallet.NewFileStore(dir)
		if err != nil {
			logger.Error("Failed to open wallet store", "err", err)
			return err
		}
		logger.Info("Using file wallet store", "dir", dir)
		store = fileStore
	} else {
		logger.Info("Using in-memory wallet store")
		store = wallet.NewMemoryStore()
	}

	manager, err := wallet.NewManager(wallet.Config{
		Store:  store,
		Crypto: cryptoutils.NewProvider(),
		Log:    logger,
	})
	if err != nil {
		logger.Error("Failed to create wallet manager", "err", err)
		return err
	}

	handler, err := recoveryhandler.New(recoveryhandler.Config{
		Manager:        manager,
		StorageFactory: storage.NewStorageBackendFactory(logger),
		Log:            logger,
	})
	if err != nil {
		logger.Error("Failed to create API handler", "err", err)
		return err
	}

	srv, err := httpserver.New(flags.ConfigureServer(cCtx, logger, listenAddr), handler)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if rpcAddr := cCtx.String(flags.AnchorRpcFlag.Name); rpcAddr != "" {
		checkpointer, err := setupAnchoring(cCtx, rpcAddr, store, logger)
		if err != nil {
			logger.Error("Failed to set up audit anchoring", "err", err)
			return err
		}
		go checkpointer.Run(ctx)
		logger.Info("Audit anchoring enabled",
			"rpc", rpcAddr,
			"interval", cCtx.Duration(flags.AnchorIntervalFlag.Name).String())
	}

	srv.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	cancel()
	srv.Shutdown()
	logger.Info("Server shutdown complete")

	return nil
}

func setupAnchoring(cCtx *cli.Context, rpcAddr string, store wallet.Store, logger *slog.Logger) (*anchor.Checkpointer, error) {
	keyHex := cCtx.String(flags.AnchorKeyFlag.Name)
	if keyHex == "" {
		return nil, errors.New("anchor-rpc is set but no anchor key was provided")
	}
	key, err := anchor.LoadKey(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parsing anchor key: %w", err)
	}

	addrHex := cCtx.String(flags.AnchorAddrFlag.Name)
	if !ethcommon.IsHexAddress(addrHex) {
		return nil, fmt.Errorf("invalid anchor address %q", addrHex)
	}

	return anchor.New(anchor.Config{
		RPCURL:     rpcAddr,
		PrivateKey: key,
		To:         ethcommon.HexToAddress(addrHex),
		Interval:   cCtx.Duration(flags.AnchorIntervalFlag.Name),
		Source:     store,
		Log:        logger,
	})
}
