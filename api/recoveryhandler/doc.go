// Package recoveryhandler implements the HTTP API for wallet setup, guardian
// management and the recovery ceremony.
//
// # Endpoint groups
//
// Owner operations (create wallet, revoke guardian, proof of life, sync)
// carry the owner credential in the request body. The manager re-derives the
// owner signing key from it and rejects credentials whose public half does
// not match the manifest, so these endpoints need no separate transport
// authentication.
//
// Guardian operations (initiate recovery, sign recovery, submit shares,
// fetch the encrypted share or the reconstructed seed) are authenticated per
// request: the guardian signs SHA-256(path || nonce || body) with their
// issued private key and sends the ASN.1 DER signature base64 encoded in
// X-Guardian-Signature, together with X-Guardian-ID and a fresh
// X-Guardian-Nonce. Nonces are single use per guardian; replays are rejected
// from an LRU window.
//
// Read endpoints (status, guardian list, recovery attempts, the audit chain
// and its proofs) are open. They expose only public material: manifests,
// ciphertext hashes and signatures.
//
// # Reconstruction ceremony
//
// Once a recovery attempt has collected its threshold of approval
// signatures, guardians decrypt their shares locally and submit the
// plaintext over TLS. The ceremony state lives only in process memory: each
// share is signature-verified, held until the threshold is reached, then
// combined, checked against the seed commitment and wiped. The reconstructed
// seed stays available to authenticated guardians until the ceremony is
// destroyed with DELETE, which wipes it.
package recoveryhandler
