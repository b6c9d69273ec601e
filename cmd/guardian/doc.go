// Package main (cmd/guardian) implements the guardian client for the recovery service.
//
// The guardian client provides command-line tools for the people entrusted
// with encrypted seed shares. It covers the full guardian lifecycle: key
// generation for enrollment, recovery initiation and approval, share retrieval
// and submission, and reading the reconstructed seed from a completed
// ceremony.
//
// Commands:
//
//	status              - Query wallet status (guardian counts, open recoveries)
//	generate-key        - Generate a guardian key pair for out-of-band enrollment
//	initiate            - Open a recovery attempt for a wallet
//	sign                - Approve a recovery attempt after verifying the requestor
//	wait                - Poll a recovery attempt until it completes or fails
//	fetch-share         - Retrieve this guardian's encrypted share and save to file
//	submit-share        - Decrypt the stored share and submit it to an open ceremony
//	fetch-seed          - Read the reconstructed master seed from a completed ceremony
//	destroy-ceremony    - Wipe the reconstructed seed from the service
//
// Most commands load the guardian credential issued at wallet creation
// (--credential-file, a JSON document holding the guardian id and private
// key). Requests are authenticated with ECDSA signatures over the request
// body, so a guardian can only retrieve and submit their own share.
//
// Example recovery workflow:
//
//  1. A guardian opens a recovery attempt on behalf of the owner's heir:
//     guardian initiate --wallet=<id> --reason=owner_deceased --contact=heir@example.com
//
//  2. Each guardian verifies the requestor and approves:
//     guardian sign --wallet=<id> --recovery=<id> --method=video_call
//
//  3. Once the threshold is met, each guardian submits their share:
//     guardian fetch-share --wallet=<id>
//     guardian submit-share --wallet=<id> --recovery=<id>
//
//  4. The reconstructed seed is read out once and the ceremony destroyed:
//     guardian fetch-seed --wallet=<id> --recovery=<id> --out=seed.bin
//     guardian destroy-ceremony --wallet=<id> --recovery=<id>
package main
