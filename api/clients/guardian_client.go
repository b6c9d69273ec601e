package clients

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vaultmesh/recovery-backend/api"
	"github.com/vaultmesh/recovery-backend/cryptoutils"
	"github.com/vaultmesh/recovery-backend/interfaces"
)

// GuardianClient talks to the recovery service on behalf of one guardian.
// Every request is signed with the guardian's issued private key; share
// decryption happens locally so plaintext shares only travel inside the
// submit call.
type GuardianClient struct {
	baseURL    string
	guardianID string
	privateKey cryptoutils.AppPrivkey
	httpClient *http.Client
}

// NewGuardianClient creates a client for the given guardian identity.
// privateKey is the PEM EC private key from the wallet creation response.
// An optional timeout overrides the 30 second default.
func NewGuardianClient(baseURL, guardianID string, privateKey []byte, timeout ...time.Duration) *GuardianClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}
	return &GuardianClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		guardianID: guardianID,
		privateKey: cryptoutils.AppPrivkey(privateKey),
		httpClient: &http.Client{Timeout: clientTimeout},
	}
}

// GuardianID returns the identity this client signs as.
func (c *GuardianClient) GuardianID() string {
	return c.guardianID
}

// Status fetches the wallet snapshot.
func (c *GuardianClient) Status(walletID string) (*api.StatusResponse, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/api/wallets/"+walletID, nil)
	if err != nil {
		return nil, err
	}
	var status api.StatusResponse
	if err := c.doJSON(req, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// InitiateRecovery opens a recovery attempt. The client includes its own
// credential so the initiation lands on the audit chain as a signed entry.
func (c *GuardianClient) InitiateRecovery(walletID, reason, newOwnerContact string) (*interfaces.RecoveryAttempt, error) {
	body, err := json.Marshal(api.InitiateRecoveryRequest{
		Reason:             reason,
		NewOwnerContact:    newOwnerContact,
		GuardianCredential: string(c.privateKey),
	})
	if err != nil {
		return nil, err
	}
	req, err := c.signedRequest(http.MethodPost, c.baseURL+"/api/wallets/"+walletID+"/recoveries", body)
	if err != nil {
		return nil, err
	}
	var attempt interfaces.RecoveryAttempt
	if err := c.doJSON(req, &attempt); err != nil {
		return nil, err
	}
	return &attempt, nil
}

// GetRecovery fetches one recovery attempt.
func (c *GuardianClient) GetRecovery(walletID, recoveryID string) (*interfaces.RecoveryAttempt, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/api/wallets/"+walletID+"/recoveries/"+recoveryID, nil)
	if err != nil {
		return nil, err
	}
	var attempt interfaces.RecoveryAttempt
	if err := c.doJSON(req, &attempt); err != nil {
		return nil, err
	}
	return &attempt, nil
}

// ListRecoveries fetches all recovery attempts for a wallet, newest first.
func (c *GuardianClient) ListRecoveries(walletID string) ([]interfaces.RecoveryAttempt, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/api/wallets/"+walletID+"/recoveries", nil)
	if err != nil {
		return nil, err
	}
	var attempts []interfaces.RecoveryAttempt
	if err := c.doJSON(req, &attempts); err != nil {
		return nil, err
	}
	return attempts, nil
}

// SignRecovery adds this guardian's approval to an open attempt.
func (c *GuardianClient) SignRecovery(walletID, recoveryID string, method interfaces.VerificationMethod, proofNote string) (*api.SignRecoveryResponse, error) {
	body, err := json.Marshal(api.SignRecoveryRequest{
		GuardianCredential: string(c.privateKey),
		VerificationMethod: method,
		ProofNote:          proofNote,
	})
	if err != nil {
		return nil, err
	}
	req, err := c.signedRequest(http.MethodPost, c.baseURL+"/api/wallets/"+walletID+"/recoveries/"+recoveryID+"/signatures", body)
	if err != nil {
		return nil, err
	}
	var resp api.SignRecoveryResponse
	if err := c.doJSON(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchEncryptedShare retrieves this guardian's encrypted share.
func (c *GuardianClient) FetchEncryptedShare(walletID string) (*api.EncryptedShareResponse, error) {
	reqUrl := c.baseURL + "/api/wallets/" + walletID + "/guardians/" + c.guardianID + "/share"
	req, err := c.signedRequest(http.MethodGet, reqUrl, nil)
	if err != nil {
		return nil, err
	}
	var resp api.EncryptedShareResponse
	if err := c.doJSON(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DecryptShare decrypts an encrypted share response with the guardian's
// private key and verifies the transported ciphertext hash.
func (c *GuardianClient) DecryptShare(share *api.EncryptedShareResponse) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(share.EncryptedShare)
	if err != nil {
		return nil, fmt.Errorf("decoding encrypted share: %w", err)
	}
	if expected := cryptoutils.HashData(ciphertext); fmt.Sprintf("%x", expected) != share.CiphertextHash {
		return nil, fmt.Errorf("ciphertext hash mismatch for share %d", share.ShareIndex)
	}
	plaintext, err := cryptoutils.DecryptWithPrivateKey(c.privateKey, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decrypting share: %w", err)
	}
	return plaintext, nil
}

// SubmitShare delivers a decrypted share to the reconstruction ceremony,
// signing the share with the guardian's key.
func (c *GuardianClient) SubmitShare(walletID, recoveryID string, shareIndex int, share []byte) (*api.CeremonyStatusResponse, error) {
	signature, err := cryptoutils.SignPayload(c.privateKey, share)
	if err != nil {
		return nil, fmt.Errorf("signing share: %w", err)
	}
	body, err := json.Marshal(api.SubmitShareRequest{
		ShareIndex: shareIndex,
		Share:      base64.StdEncoding.EncodeToString(share),
		Signature:  base64.StdEncoding.EncodeToString(signature),
	})
	if err != nil {
		return nil, err
	}
	req, err := c.signedRequest(http.MethodPost, c.baseURL+"/api/wallets/"+walletID+"/recoveries/"+recoveryID+"/shares", body)
	if err != nil {
		return nil, err
	}
	var resp api.CeremonyStatusResponse
	if err := c.doJSON(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitOwnShare fetches this guardian's encrypted share, decrypts it
// locally and submits it to the ceremony.
func (c *GuardianClient) SubmitOwnShare(walletID, recoveryID string) (*api.CeremonyStatusResponse, error) {
	encrypted, err := c.FetchEncryptedShare(walletID)
	if err != nil {
		return nil, err
	}
	share, err := c.DecryptShare(encrypted)
	if err != nil {
		return nil, err
	}
	return c.SubmitShare(walletID, recoveryID, encrypted.ShareIndex, share)
}

// CeremonyStatus reports reconstruction progress for a recovery attempt.
func (c *GuardianClient) CeremonyStatus(walletID, recoveryID string) (*api.CeremonyStatusResponse, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/api/wallets/"+walletID+"/recoveries/"+recoveryID+"/shares", nil)
	if err != nil {
		return nil, err
	}
	var resp api.CeremonyStatusResponse
	if err := c.doJSON(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchSeed retrieves the reconstructed master seed once the ceremony is
// complete. The caller owns the returned seed and should wipe it after use.
func (c *GuardianClient) FetchSeed(walletID, recoveryID string) ([]byte, error) {
	req, err := c.signedRequest(http.MethodGet, c.baseURL+"/api/wallets/"+walletID+"/recoveries/"+recoveryID+"/seed", nil)
	if err != nil {
		return nil, err
	}
	var resp api.SeedResponse
	if err := c.doJSON(req, &resp); err != nil {
		return nil, err
	}
	seed, err := base64.StdEncoding.DecodeString(resp.Seed)
	if err != nil {
		return nil, fmt.Errorf("decoding seed: %w", err)
	}
	return seed, nil
}

// DestroyCeremony wipes the server-side ceremony state, including the
// reconstructed seed.
func (c *GuardianClient) DestroyCeremony(walletID, recoveryID string) error {
	req, err := c.signedRequest(http.MethodDelete, c.baseURL+"/api/wallets/"+walletID+"/recoveries/"+recoveryID+"/shares", nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, nil)
}

// WaitForCompletion polls a recovery attempt until it reaches its signature
// threshold, fails or times out.
func (c *GuardianClient) WaitForCompletion(walletID, recoveryID string, timeout, interval time.Duration) (*interfaces.RecoveryAttempt, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		attempt, err := c.GetRecovery(walletID, recoveryID)
		if err != nil {
			return nil, err
		}
		switch attempt.Status {
		case interfaces.RecoveryCompleted:
			return attempt, nil
		case interfaces.RecoveryFailed, interfaces.RecoveryExpired:
			return nil, fmt.Errorf("recovery %s is %s", recoveryID, attempt.Status)
		}
		time.Sleep(interval)
	}
	return nil, fmt.Errorf("timed out waiting for recovery %s to complete", recoveryID)
}

// signedRequest builds a request authenticated with the guardian's key. The
// signature covers SHA-256(path || nonce || body) with a fresh nonce, so a
// captured request cannot be replayed.
func (c *GuardianClient) signedRequest(method, reqUrl string, body []byte) (*http.Request, error) {
	return CreateSignedGuardianRequest(method, reqUrl, body, c.guardianID, c.privateKey)
}

// CreateSignedGuardianRequest builds a guardian-authenticated HTTP request.
// It is exported for callers that manage their own transport.
func CreateSignedGuardianRequest(method, reqUrl string, body []byte, guardianID string, privateKey cryptoutils.AppPrivkey) (*http.Request, error) {
	parsed, err := url.Parse(reqUrl)
	if err != nil {
		return nil, fmt.Errorf("invalid request URL: %w", err)
	}

	nonce := uuid.NewString()
	message := make([]byte, 0, len(parsed.Path)+len(nonce)+len(body))
	message = append(message, parsed.Path...)
	message = append(message, nonce...)
	message = append(message, body...)
	signature, err := cryptoutils.SignPayload(privateKey, message)
	if err != nil {
		return nil, fmt.Errorf("signing request: %w", err)
	}

	req, err := http.NewRequest(method, reqUrl, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set(api.GuardianIDHeader, guardianID)
	req.Header.Set(api.GuardianNonceHeader, nonce)
	req.Header.Set(api.GuardianSignatureHeader, base64.StdEncoding.EncodeToString(signature))
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *GuardianClient) doJSON(req *http.Request, out any) error {
	return doJSON(c.httpClient, req, out)
}

// doJSON executes a request and decodes the JSON response. Non-2xx statuses
// become errors carrying the response body.
func doJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
