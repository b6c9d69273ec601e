/*
Package anchor gives audit chains an external timestamping witness.

A Checkpointer publishes each wallet's {wallet id, entry count, Merkle root}
as JSON calldata in a signed Ethereum transaction. Once a root is on chain,
a guardian holding a Merkle proof can show that an audit entry existed no
later than the anchoring block, without trusting the recovery service.

Anchoring is best effort and per wallet: a submission failure lands in the
receipt for that wallet and the round continues. Unchanged roots are skipped
so quiet wallets do not burn gas.

Run periodically anchors every wallet from a ChainSource, typically the
wallet store of the running service.
*/
package anchor
