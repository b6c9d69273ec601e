// Package wallet implements the wallet lifecycle of the guardian recovery
// protocol: creation with Shamir splitting and per-guardian share encryption,
// the recovery attempt state machine, threshold-gated seed reconstruction and
// the signed audit trail behind all of it.
//
// The Manager is the single entry point. It owns a per-wallet mutex, so every
// state transition for a wallet is serialized; persistence goes through the
// injected Store and replication through content-addressed storage backends.
// The master seed exists only inside CreateWallet and ReconstructSeed call
// frames and is never written anywhere.
package wallet
