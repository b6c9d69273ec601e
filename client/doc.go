/*
Package client exposes the recovery protocol as a single façade.

Client composes the wallet manager, the crypto provider and the configured
sync backends into one operation per protocol capability: wallet creation
and loading, recovery initiation, signing and seed reconstruction, guardian
key management, data signing and verification, audit chain access and
wallet replication.

# Configuration

New validates the configuration before returning a client:

  - timeout and retry bounds must be positive
  - every sync backend URI must build and answer an availability probe
  - a configured service domain must resolve through DNS SRV records

Validation failures surface as ProtocolError values with the
config_invalid or storage_unavailable code.

# Error contract

Every operation returns either a typed result or one of the typed protocol
errors. Errors that already carry a stable code pass through unchanged;
anything else is wrapped into a ProtocolError with the operation_failed
code. Error context never includes seed or share material.

# Example Usage

	c, err := client.New(client.Config{
		StorageFactory: storage.NewStorageBackendFactory(logger),
		SyncBackends:   []string{"file:///var/lib/recovery"},
		Log:            logger,
	})
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	created, err := c.CreateWallet(ctx, wallet.CreateWalletRequest{
		Name:            "Family Vault",
		Secret:          seed,
		Threshold:       3,
		Guardians:       guardians,
		OwnerCredential: []byte(passphrase),
	})
*/
package client
