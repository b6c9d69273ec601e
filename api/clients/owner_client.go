package clients

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/vaultmesh/recovery-backend/api"
	"github.com/vaultmesh/recovery-backend/interfaces"
	"github.com/vaultmesh/recovery-backend/wallet"
)

// OwnerClient performs the wallet owner's operations. Owner endpoints carry
// the credential in the request body and the service verifies it against the
// owner key on record, so no request signing happens here.
type OwnerClient struct {
	baseURL    string
	credential string
	httpClient *http.Client
}

// NewOwnerClient creates a client bound to one owner credential. An optional
// timeout overrides the 30 second default.
func NewOwnerClient(baseURL, credential string, timeout ...time.Duration) *OwnerClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}
	return &OwnerClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		credential: credential,
		httpClient: &http.Client{Timeout: clientTimeout},
	}
}

// CreateWallet sets up a wallet. The response contains the one-time guardian
// credentials; the caller is responsible for delivering them out of band.
func (c *OwnerClient) CreateWallet(name string, seed []byte, guardians []interfaces.GuardianInfo, threshold int) (*api.CreateWalletResponse, error) {
	req := api.CreateWalletRequest{
		Name:            name,
		Secret:          base64.StdEncoding.EncodeToString(seed),
		Threshold:       threshold,
		Guardians:       guardians,
		OwnerCredential: c.credential,
	}
	var resp api.CreateWalletResponse
	if err := c.postJSON("/api/wallets", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status fetches the wallet snapshot.
func (c *OwnerClient) Status(walletID string) (*api.StatusResponse, error) {
	httpReq, err := http.NewRequest(http.MethodGet, c.baseURL+"/api/wallets/"+walletID, nil)
	if err != nil {
		return nil, err
	}
	var status api.StatusResponse
	if err := c.do(httpReq, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// RevokeGuardian removes a guardian from the active set.
func (c *OwnerClient) RevokeGuardian(walletID, guardianID, reason string) error {
	req := api.RevokeGuardianRequest{
		Reason:          reason,
		OwnerCredential: c.credential,
	}
	return c.postJSON("/api/wallets/"+walletID+"/guardians/"+guardianID+"/revoke", req, nil)
}

// RecordProofOfLife appends an owner check-in to the audit chain.
func (c *OwnerClient) RecordProofOfLife(walletID string, method interfaces.VerificationMethod) (*interfaces.AuditLogEntry, error) {
	req := api.ProofOfLifeRequest{
		OwnerCredential: c.credential,
		Method:          method,
	}
	var entry interfaces.AuditLogEntry
	if err := c.postJSON("/api/wallets/"+walletID+"/proof-of-life", req, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// SyncWallet replicates the wallet's artifacts to a storage backend URI.
func (c *OwnerClient) SyncWallet(walletID, backendURI string) (*wallet.SyncReport, error) {
	req := api.SyncWalletRequest{
		Backend:         backendURI,
		OwnerCredential: c.credential,
	}
	var report wallet.SyncReport
	if err := c.postJSON("/api/wallets/"+walletID+"/sync", req, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// AuditChain exports the wallet's audit log.
func (c *OwnerClient) AuditChain(walletID string) (*interfaces.AuditLogChain, error) {
	httpReq, err := http.NewRequest(http.MethodGet, c.baseURL+"/api/wallets/"+walletID+"/audit", nil)
	if err != nil {
		return nil, err
	}
	var chain interfaces.AuditLogChain
	if err := c.do(httpReq, &chain); err != nil {
		return nil, err
	}
	return &chain, nil
}

// VerifyAuditChain asks the service for a full chain integrity report.
func (c *OwnerClient) VerifyAuditChain(walletID string) (*interfaces.ChainVerification, error) {
	httpReq, err := http.NewRequest(http.MethodGet, c.baseURL+"/api/wallets/"+walletID+"/audit/verify", nil)
	if err != nil {
		return nil, err
	}
	var verification interfaces.ChainVerification
	if err := c.do(httpReq, &verification); err != nil {
		return nil, err
	}
	return &verification, nil
}

func (c *OwnerClient) postJSON(path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq, out)
}

func (c *OwnerClient) do(req *http.Request, out any) error {
	return doJSON(c.httpClient, req, out)
}
