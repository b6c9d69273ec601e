/*
Package api defines the HTTP surface of the guardian recovery service.

This package is organized into two main subpackages:

1. recoveryhandler - Request processing for wallet, recovery and audit operations
2. clients - Client libraries for owners and guardians

Together they expose the wallet manager over HTTP: wallet creation with
share distribution, the guardian approval workflow, the in-memory seed
reconstruction ceremony and the audit chain endpoints.

# System Components

The API works with the following components:

- Manager: wallet lifecycle, recovery state machine and audit recording
- StorageBackendFactory: replication targets for the sync endpoint
- Guardians: keyholders who approve recoveries and contribute shares
- Owner: the credential holder who administers the wallet

# Request Authentication

Three authentication levels apply across the endpoints:

- Owner operations carry the owner credential in the request body and are
  verified against the key fingerprint recorded in the wallet manifest.
- Guardian operations are signed ECDSA requests using the guardian's
  issued private key, with per-request nonces to prevent replay.
- Read-only endpoints (status, recovery listing, audit chain) are open,
  since they serve only public material.

# Wire Conventions

All payloads are JSON. Binary values (the master secret at creation time,
encrypted and plaintext shares, share signatures) travel base64 encoded.
Durations in requests use Go duration strings such as "72h".
*/
package api
