// Package auditlog implements the tamper-evident event log for guardian
// recovery wallets.
//
// Every security-relevant action against a wallet is recorded as a signed
// entry in an append-only chain. Three independent mechanisms make the log
// tamper-evident:
//
//   - Hash chaining: each entry records the signature of its predecessor, so
//     removing or reordering entries breaks the link structure.
//   - Merkle root: a tree over all entry content hashes is recomputed on
//     every append and stamped into the entries, so modifying any payload
//     changes the root. The tree pairs leaves bottom-up and duplicates the
//     last node of odd levels.
//   - Actor signatures: each entry is signed by the acting party's private
//     key over the entry's canonical JSON encoding, so entries cannot be
//     forged without that key.
//
// Serialization uses canonical JSON (sorted keys, shortest number forms) so
// hashes and signatures stay stable across export, storage and import.
//
// # Usage
//
// Create a chain and record events:
//
//	chain := auditlog.New(walletID, cryptoutils.NewProvider())
//	entry, err := chain.Append(ctx, interfaces.AuditWalletCreated, ownerID,
//		interfaces.WalletCreatedEvent{WalletName: "family-savings", Threshold: 3, TotalGuardians: 5},
//		ownerSigningKey, nil)
//
// Verify integrity and prove inclusion:
//
//	report := chain.VerifyChain(ctx, manifest)
//	proof, err := chain.GenerateMerkleProof(entry.ID)
//	ok := chain.VerifyMerkleProof(proof)
//
// Chains round-trip through Export and Import; Import re-verifies the whole
// chain and rejects any inconsistency.
package auditlog
