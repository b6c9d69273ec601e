// Package main (cmd/recoveryd) implements the guardian recovery service daemon.
//
// The daemon serves the HTTP recovery API: wallet creation with Shamir share
// distribution, recovery attempt coordination, seed reconstruction ceremonies,
// guardian share retrieval, audit chain queries, and replication of wallet
// state to content-addressed storage backends.
//
// Wallet state is kept in an on-disk store when --store-dir is set, and in
// memory otherwise. The in-memory store is only suitable for development since
// all wallets are lost on restart.
//
// When --anchor-rpc is set the daemon periodically publishes audit chain
// checkpoints (wallet id, entry count, Merkle root) to an Ethereum-compatible
// chain, giving wallet owners an external timestamped commitment that the
// audit history has not been rewritten. Anchoring requires a funded key
// (--anchor-key or ANCHOR_PRIVATE_KEY) and a sink address (--anchor-addr).
//
// The server implements graceful shutdown on receiving termination signals
// (SIGINT/SIGTERM) and supports health checks, connection draining, metrics
// collection, and optional profiling endpoints.
//
// Example usage with a persistent store:
//
//	recoveryd --listen-addr=0.0.0.0:8080 \
//	    --store-dir=/var/lib/recoveryd \
//	    --metrics-addr=0.0.0.0:8090
//
// Example usage with on-chain checkpointing:
//
//	recoveryd --store-dir=/var/lib/recoveryd \
//	    --anchor-rpc=http://localhost:8545 \
//	    --anchor-addr=0x00000000000000000000000000000000c0ffee00 \
//	    --anchor-interval=30m
package main
