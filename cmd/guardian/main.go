package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/vaultmesh/recovery-backend/api"
	"github.com/vaultmesh/recovery-backend/api/clients"
	"github.com/vaultmesh/recovery-backend/cryptoutils"
	"github.com/vaultmesh/recovery-backend/interfaces"
)

var flagServer = &cli.StringFlag{
	Name:  "server-addr",
	Value: "http://127.0.0.1:8080",
	Usage: "Recovery service address",
}
var flagWallet = &cli.StringFlag{
	Name:     "wallet",
	Required: true,
	Usage:    "Wallet id",
}
var flagRecovery = &cli.StringFlag{
	Name:     "recovery",
	Required: true,
	Usage:    "Recovery attempt id",
}
var flagCredentialFile = &cli.StringFlag{
	Name:  "credential-file",
	Value: "guardian-credential.json",
	Usage: "Path to the guardian credential issued at wallet creation",
}
var flagShareFile = &cli.StringFlag{
	Name:  "share-file",
	Value: "guardian-share.json",
	Usage: "Path to the fetched encrypted share",
}
var flagPrivkeyFile = &cli.StringFlag{
	Name:  "privkey-file",
	Value: "guardian-private.pem",
	Usage: "Path to write the private key",
}
var flagPubkeyFile = &cli.StringFlag{
	Name:  "pubkey-file",
	Value: "guardian-public.pem",
	Usage: "Path to write the public key",
}

func loadGuardianClient(cCtx *cli.Context) (*clients.GuardianClient, error) {
	raw, err := os.ReadFile(cCtx.String(flagCredentialFile.Name))
	if err != nil {
		return nil, err
	}

	var credential api.GuardianCredential
	if err := json.Unmarshal(raw, &credential); err != nil {
		return nil, fmt.Errorf("parsing credential file: %w", err)
	}
	if credential.GuardianID == "" || credential.PrivateKey == "" {
		return nil, fmt.Errorf("credential file is missing the guardian id or private key")
	}

	return clients.NewGuardianClient(
		cCtx.String(flagServer.Name),
		credential.GuardianID,
		[]byte(credential.PrivateKey),
	), nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:           "guardian",
		Usage:          "Guardian operations against a recovery service",
		DefaultCommand: "status",
		Commands: []*cli.Command{
			{
				Name:        "status",
				Description: "Show wallet status",
				Flags:       []cli.Flag{flagServer, flagWallet},
				Action: func(cCtx *cli.Context) error {
					client := clients.NewOwnerClient(cCtx.String(flagServer.Name), "")
					status, err := client.Status(cCtx.String(flagWallet.Name))
					if err != nil {
						return err
					}
					return printJSON(status)
				},
			},
			{
				Name:        "generate-key",
				Description: "Generate a guardian key pair for out-of-band enrollment",
				Flags:       []cli.Flag{flagPrivkeyFile, flagPubkeyFile},
				Action: func(cCtx *cli.Context) error {
					pub, priv, err := cryptoutils.RandomP256Keypair()
					if err != nil {
						return fmt.Errorf("failed to generate key pair: %w", err)
					}
					if err := os.WriteFile(cCtx.String(flagPrivkeyFile.Name), priv, 0600); err != nil {
						return err
					}
					if err := os.WriteFile(cCtx.String(flagPubkeyFile.Name), pub, 0600); err != nil {
						return err
					}
					fmt.Printf("wrote %s and %s\n", cCtx.String(flagPrivkeyFile.Name), cCtx.String(flagPubkeyFile.Name))
					return nil
				},
			},
			{
				Name:        "initiate",
				Description: "Open a recovery attempt for a wallet",
				Flags: []cli.Flag{
					flagServer, flagWallet, flagCredentialFile,
					&cli.StringFlag{Name: "reason", Value: "keys_lost", Usage: "Recovery reason"},
					&cli.StringFlag{Name: "contact", Required: true, Usage: "Contact for the new owner"},
				},
				Action: func(cCtx *cli.Context) error {
					client, err := loadGuardianClient(cCtx)
					if err != nil {
						return err
					}
					attempt, err := client.InitiateRecovery(
						cCtx.String(flagWallet.Name),
						cCtx.String("reason"),
						cCtx.String("contact"),
					)
					if err != nil {
						return err
					}
					return printJSON(attempt)
				},
			},
			{
				Name:        "sign",
				Description: "Approve a recovery attempt after verifying the requestor",
				Flags: []cli.Flag{
					flagServer, flagWallet, flagRecovery, flagCredentialFile,
					&cli.StringFlag{Name: "method", Value: string(interfaces.VerificationVideo), Usage: "How the requestor was verified"},
					&cli.StringFlag{Name: "note", Usage: "Free-form verification note"},
				},
				Action: func(cCtx *cli.Context) error {
					client, err := loadGuardianClient(cCtx)
					if err != nil {
						return err
					}
					signed, err := client.SignRecovery(
						cCtx.String(flagWallet.Name),
						cCtx.String(flagRecovery.Name),
						interfaces.VerificationMethod(cCtx.String("method")),
						cCtx.String("note"),
					)
					if err != nil {
						return err
					}
					return printJSON(signed)
				},
			},
			{
				Name:        "wait",
				Description: "Poll a recovery attempt until it completes or fails",
				Flags: []cli.Flag{
					flagServer, flagWallet, flagRecovery, flagCredentialFile,
					&cli.DurationFlag{Name: "timeout", Value: 10 * time.Minute},
				},
				Action: func(cCtx *cli.Context) error {
					client, err := loadGuardianClient(cCtx)
					if err != nil {
						return err
					}
					attempt, err := client.WaitForCompletion(
						cCtx.String(flagWallet.Name),
						cCtx.String(flagRecovery.Name),
						cCtx.Duration("timeout"),
						2*time.Second,
					)
					if err != nil {
						return err
					}
					return printJSON(attempt)
				},
			},
			{
				Name:        "fetch-share",
				Description: "Fetch this guardian's encrypted share and store it locally",
				Flags:       []cli.Flag{flagServer, flagWallet, flagCredentialFile, flagShareFile},
				Action: func(cCtx *cli.Context) error {
					client, err := loadGuardianClient(cCtx)
					if err != nil {
						return err
					}
					share, err := client.FetchEncryptedShare(cCtx.String(flagWallet.Name))
					if err != nil {
						return err
					}
					raw, err := json.Marshal(share)
					if err != nil {
						return err
					}
					return os.WriteFile(cCtx.String(flagShareFile.Name), raw, 0600)
				},
			},
			{
				Name:        "submit-share",
				Description: "Decrypt the stored share and submit it to an open ceremony",
				Flags:       []cli.Flag{flagServer, flagWallet, flagRecovery, flagCredentialFile, flagShareFile},
				Action: func(cCtx *cli.Context) error {
					client, err := loadGuardianClient(cCtx)
					if err != nil {
						return err
					}

					raw, err := os.ReadFile(cCtx.String(flagShareFile.Name))
					if err != nil {
						return err
					}
					var share api.EncryptedShareResponse
					if err := json.Unmarshal(raw, &share); err != nil {
						return fmt.Errorf("parsing share file: %w", err)
					}

					plaintext, err := client.DecryptShare(&share)
					if err != nil {
						return err
					}

					progress, err := client.SubmitShare(
						cCtx.String(flagWallet.Name),
						cCtx.String(flagRecovery.Name),
						share.ShareIndex,
						plaintext,
					)
					if err != nil {
						return err
					}
					return printJSON(progress)
				},
			},
			{
				Name:        "fetch-seed",
				Description: "Read the reconstructed master seed from a completed ceremony",
				Flags: []cli.Flag{
					flagServer, flagWallet, flagRecovery, flagCredentialFile,
					&cli.StringFlag{Name: "out", Required: true, Usage: "Path to write the seed"},
				},
				Action: func(cCtx *cli.Context) error {
					client, err := loadGuardianClient(cCtx)
					if err != nil {
						return err
					}
					seed, err := client.FetchSeed(cCtx.String(flagWallet.Name), cCtx.String(flagRecovery.Name))
					if err != nil {
						return err
					}
					return os.WriteFile(cCtx.String("out"), seed, 0600)
				},
			},
			{
				Name:        "destroy-ceremony",
				Description: "Wipe the reconstructed seed from the service",
				Flags:       []cli.Flag{flagServer, flagWallet, flagRecovery, flagCredentialFile},
				Action: func(cCtx *cli.Context) error {
					client, err := loadGuardianClient(cCtx)
					if err != nil {
						return err
					}
					return client.DestroyCeremony(cCtx.String(flagWallet.Name), cCtx.String(flagRecovery.Name))
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
