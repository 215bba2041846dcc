// Command devnode starts a standalone EVM execution adapter over an
// in-memory or forked store, the way the teacher's cmd/geth wires flags into
// node construction — generalized here from "start a full p2p node" down to
// "construct one Adapter, log that it is ready, and exit": no server or loop
// is started to keep the Adapter open for a caller to drive.
package main

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/urfave/cli/v2"

	"github.com/clydemeng/evmadapter/core/adapter"
	"github.com/clydemeng/evmadapter/core/forkclient"
	"github.com/clydemeng/evmadapter/core/forks"
	"github.com/clydemeng/evmadapter/core/forkstore"
	"github.com/clydemeng/evmadapter/core/memstore"
	evmstate "github.com/clydemeng/evmadapter/core/state"
	gointerp "github.com/clydemeng/evmadapter/core/vm"
	"github.com/clydemeng/evmadapter/nativevm"
)

var (
	chainIDFlag               = &cli.Uint64Flag{Name: "chain-id", Value: 1337, Usage: "chain id new blocks are signed/executed under"}
	networkIDFlag             = &cli.Uint64Flag{Name: "network-id", Value: 1337, Usage: "network id reported to clients"}
	hardforkFlag              = &cli.StringFlag{Name: "hardfork", Value: string(forks.Cancun), Usage: "hardfork rules to execute under"}
	backendFlag               = &cli.StringFlag{Name: "backend", Value: "interpreted", Usage: "execution backend: interpreted|native"}
	unlimitedContractSizeFlag = &cli.BoolFlag{Name: "unlimited-contract-size", Usage: "disable the EIP-170 contract size limit"}
	forkURLFlag               = &cli.StringFlag{Name: "fork-url", Usage: "JSON-RPC endpoint to fork state from"}
	forkBlockFlag             = &cli.Uint64Flag{Name: "fork-block-number", Usage: "block number to pin forked reads at"}
	genesisBalanceFlag        = &cli.StringFlag{Name: "genesis-balance-addr", Usage: "address:wei pair to seed with a starting balance (one pair only)"}
	verbosityFlag             = &cli.StringFlag{Name: "verbosity", Value: "info", Usage: "log level: trace|debug|info|warn|error"}
)

func main() {
	app := &cli.App{
		Name:  "devnode",
		Usage: "host an EVM execution adapter for local development",
		Flags: []cli.Flag{
			chainIDFlag, networkIDFlag, hardforkFlag, backendFlag,
			unlimitedContractSizeFlag, forkURLFlag, forkBlockFlag,
			genesisBalanceFlag, verbosityFlag,
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "devnode:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	setLogLevel(c.String(verbosityFlag.Name))

	cfg := adapter.Config{
		ChainID:                    c.Uint64(chainIDFlag.Name),
		NetworkID:                  c.Uint64(networkIDFlag.Name),
		Hardfork:                   forks.Hardfork(c.String(hardforkFlag.Name)),
		AllowUnlimitedContractSize: c.Bool(unlimitedContractSizeFlag.Name),
		Backend:                    c.String(backendFlag.Name),
	}

	if addr := c.String(genesisBalanceFlag.Name); addr != "" {
		ga, err := parseGenesisBalance(addr)
		if err != nil {
			return fmt.Errorf("devnode: %w", err)
		}
		cfg.GenesisAccounts = append(cfg.GenesisAccounts, ga)
	}

	store, err := buildStore(c, &cfg)
	if err != nil {
		return err
	}

	backend, err := buildBackend(cfg.Backend)
	if err != nil {
		return err
	}

	selector := forks.NewSelector([]forks.ActivationPoint{{Block: 0, Hardfork: cfg.Hardfork}})

	vm, err := adapter.New(store, backend, cfg, selector)
	if err != nil {
		return fmt.Errorf("devnode: constructing adapter: %w", err)
	}

	log.Info("devnode adapter ready", "engine", vm.Engine(), "chainId", cfg.ChainID,
		"hardfork", cfg.Hardfork, "stateRoot", vm.GetStateRoot())
	return nil
}

func buildStore(c *cli.Context, cfg *adapter.Config) (evmstate.Store, error) {
	if url := c.String(forkURLFlag.Name); url != "" {
		blockNumber := c.Uint64(forkBlockFlag.Name)
		client, err := forkclient.Dial(c.Context, url, blockNumber)
		if err != nil {
			return nil, fmt.Errorf("devnode: dialing fork url: %w", err)
		}
		networkID, err := client.GetNetworkID(c.Context)
		if err != nil {
			return nil, fmt.Errorf("devnode: querying fork network id: %w", err)
		}
		cfg.Fork = &adapter.ForkConfig{URL: url, ForkNetworkID: networkID, ForkBlockNumber: blockNumber}
		return forkstore.New(client, blockNumber), nil
	}
	return memstore.New(), nil
}

func buildBackend(name string) (adapter.Backend, error) {
	switch name {
	case "", "interpreted":
		return gointerp.NewBackend(), nil
	case "native":
		return nativevm.NewBackend(), nil
	default:
		return nil, fmt.Errorf("devnode: unknown backend %q", name)
	}
}

func parseGenesisBalance(spec string) (adapter.GenesisAccount, error) {
	var addrStr, balStr string
	for i := len(spec) - 1; i >= 0; i-- {
		if spec[i] == ':' {
			addrStr, balStr = spec[:i], spec[i+1:]
			break
		}
	}
	if addrStr == "" || balStr == "" {
		return adapter.GenesisAccount{}, fmt.Errorf("genesis balance must be address:wei, got %q", spec)
	}
	balance, err := uint256.FromDecimal(balStr)
	if err != nil {
		return adapter.GenesisAccount{}, fmt.Errorf("parsing balance %q: %w", balStr, err)
	}
	return adapter.GenesisAccount{Address: common.HexToAddress(addrStr), Balance: balance}, nil
}

// legacyLevel maps the flag's human names onto the old Lvl numbering
// log.FromLegacyLevel still accepts, matching the teacher's own verbosity
// flag convention (an integer legacy level) without asking operators to
// spell out a CLI flag in terms of it.
func legacyLevel(level string) int {
	switch level {
	case "trace":
		return 5
	case "debug":
		return 4
	case "warn":
		return 2
	case "error":
		return 1
	default:
		return 3 // info
	}
}

func setLogLevel(level string) {
	glogger := log.NewGlogHandler(log.NewTerminalHandler(os.Stderr, true))
	glogger.Verbosity(log.FromLegacyLevel(legacyLevel(level)))
	log.SetDefault(log.NewLogger(glogger))
}
