package main

import "github.com/urfave/cli/v2"

// Flags follows the teacher's own cmd/utils/flags_rollup.go shape: plain
// cli.StringFlag/cli.IntFlag values grouped into a slice consumed by
// cli.App.Flags, rather than a generated flag set.
var (
	DataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for the RPC node (sequencer state itself is held in memory)",
		Value: "./basedseq-data",
	}
	CacheAccountsFlag = &cli.IntFlag{
		Name:  "cache.accounts",
		Usage: "Number of accounts to keep in Base's read cache",
		Value: 4096,
	}
	CacheStorageFlag = &cli.IntFlag{
		Name:  "cache.storage",
		Usage: "Number of storage slots to keep in Base's read cache",
		Value: 16384,
	}
	ChainIDFlag = &cli.Uint64Flag{
		Name:  "chain.id",
		Usage: "Chain id this sequencer builds blocks for",
		Value: 1,
	}
	RegolithTimeFlag = &cli.Uint64Flag{
		Name:  "rollup.regolith-time",
		Usage: "Unix timestamp at which the Regolith deposit-nonce rule activates (0 disables)",
	}
	FallbackRPCFlag = &cli.StringFlag{
		Name:  "fallback.rpc",
		Usage: "Upstream RPC endpoint for block-sync catch-up and reads Frag can't answer, eg. http://127.0.0.1:8545",
	}
	SimWorkersFlag = &cli.IntFlag{
		Name:  "sim.workers",
		Usage: "Number of simulator worker goroutines (defaults to the number of CPUs)",
	}
	FragDurationMsFlag = &cli.IntFlag{
		Name:  "sorting.frag-duration-ms",
		Usage: "Wall-clock deadline for one frag's sorting window",
		Value: 200,
	}
	SimsPerLoopFlag = &cli.IntFlag{
		Name:  "sorting.sims-per-loop",
		Usage: "Candidate heads dispatched for in-sort simulation per Tick iteration",
		Value: 8,
	}
	HTTPPortFlag = &cli.IntFlag{
		Name:  "http.port",
		Usage: "Port for the public Eth API HTTP listener",
		Value: 8545,
	}
	WSPortFlag = &cli.IntFlag{
		Name:  "ws.port",
		Usage: "Port for the public Eth API WS listener",
		Value: 8546,
	}
	AuthPortFlag = &cli.IntFlag{
		Name:  "authrpc.port",
		Usage: "Port for the JWT-authenticated engine API listener",
		Value: 8551,
	}
	JWTSecretFlag = &cli.StringFlag{
		Name:  "authrpc.jwtsecret",
		Usage: "Path to a hex-encoded 32-byte JWT secret file for the engine API listener",
	}
	TestModeFlag = &cli.BoolFlag{
		Name:  "test-mode",
		Usage: "Run without a fallback RPC endpoint without warning about it at startup",
	}
)

var appFlags = []cli.Flag{
	DataDirFlag,
	CacheAccountsFlag,
	CacheStorageFlag,
	ChainIDFlag,
	RegolithTimeFlag,
	FallbackRPCFlag,
	SimWorkersFlag,
	FragDurationMsFlag,
	SimsPerLoopFlag,
	HTTPPortFlag,
	WSPortFlag,
	AuthPortFlag,
	JWTSecretFlag,
	TestModeFlag,
}
