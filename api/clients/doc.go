/*
Package clients provides client libraries for the guardian recovery API.

Two client types cover the two roles in the protocol:

1. OwnerClient - wallet administration with the owner credential
2. GuardianClient - signed guardian operations with an issued key pair

# OwnerClient Features

OwnerClient wraps the owner-credential endpoints:

- CreateWallet - split a master seed and enroll guardians
- Status - query wallet and recovery state
- RevokeGuardian - remove a compromised or unavailable guardian
- RecordProofOfLife - append an owner check-in to the audit chain
- SyncWallet - replicate wallet state to a storage backend
- AuditChain / VerifyAuditChain - inspect and verify the audit log

# GuardianClient Features

GuardianClient signs every mutating request with the guardian's private
key and exposes the recovery workflow:

- InitiateRecovery - open a recovery attempt for a wallet
- SignRecovery - approve an attempt after verifying the requestor
- FetchEncryptedShare / DecryptShare - retrieve the guardian's share
- SubmitOwnShare - contribute the share to an open ceremony
- FetchSeed - read the reconstructed seed once the ceremony completes
- DestroyCeremony - wipe the reconstructed seed from the server
- WaitForCompletion - poll an attempt until it resolves

# Request Signing

Guardian requests carry three headers: the guardian ID, a random nonce
and a base64 ECDSA signature over the request path, the nonce and the
body. CreateSignedGuardianRequest builds such a request for callers that
need to drive the API directly.

# Example Usage

	owner := clients.NewOwnerClient("https://vault.example.com", passphrase)
	created, err := owner.CreateWallet("Family Vault", seed, guardians, 3)

	g := clients.NewGuardianClient(
	    "https://vault.example.com",
	    created.GuardianCredentials[0].GuardianID,
	    []byte(created.GuardianCredentials[0].PrivateKey),
	)
	attempt, err := g.InitiateRecovery(created.WalletID, "keys_lost", "heir@example.com")
*/
package clients
