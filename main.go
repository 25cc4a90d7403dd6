// Command mintchat prints a holder-concentration snapshot for one mint
// without starting the server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/RichardoC/mintchat/internal/chain"
	"github.com/RichardoC/mintchat/internal/config"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	configPath := flag.String("config", "", "path to YAML config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config file] <mint>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	mint := chain.NativeMint
	if flag.NArg() > 0 {
		mint = flag.Arg(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	rpc, err := chain.NewClient(chain.Config{RPCURL: cfg.Chain.RPCURL, Timeout: cfg.Chain.Timeout}, nil)
	if err != nil {
		logger.Fatal("failed to initialize RPC client", zap.Error(err))
	}

	snap, err := chain.NewBuilder(rpc, cfg.Chain.Timeout, cfg.Chain.MaxHolders, logger, nil).
		BuildSnapshot(context.Background(), mint)
	if err != nil {
		logger.Fatal("failed to build snapshot", zap.String("mint", mint), zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		logger.Fatal("failed to encode snapshot", zap.Error(err))
	}
}
