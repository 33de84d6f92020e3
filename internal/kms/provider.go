// Package kms resolves the custody master secret.
//
// In production the master secret is stored wrapped (encrypted) by a key
// management service and unwrapped once at process start. Different backends
// (local, AWS KMS, HashiCorp Vault transit) implement Provider.
package kms

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	vault "github.com/hashicorp/vault/api"
)

// Provider wraps and unwraps the master secret
type Provider interface {
	// Wrap encrypts a master secret for storage in configuration
	Wrap(ctx context.Context, secret []byte) (string, error)

	// Unwrap recovers the master secret from its configured form
	Unwrap(ctx context.Context, wrapped string) ([]byte, error)

	// Provider returns the provider name (e.g., "local", "aws-kms", "vault")
	Provider() string
}

// ProviderType represents supported KMS providers
type ProviderType string

const (
	// ProviderLocal reads the master secret as hex straight from configuration (development)
	ProviderLocal ProviderType = "local"

	// ProviderAWSKMS unwraps a base64 ciphertext blob with AWS KMS
	ProviderAWSKMS ProviderType = "aws-kms"

	// ProviderVault unwraps a vault:v1:... ciphertext with the Vault transit engine
	ProviderVault ProviderType = "vault"
)

// Config contains configuration for KMS providers
type Config struct {
	Provider string

	// AWS KMS config
	AWSKMSKeyID  string
	AWSKMSRegion string

	// Vault config
	VaultAddress    string
	VaultToken      string
	VaultTransitKey string
}

// LocalProvider treats the configured value as the hex-encoded secret itself
type LocalProvider struct{}

// Wrap hex-encodes the secret
func (p *LocalProvider) Wrap(ctx context.Context, secret []byte) (string, error) {
	return hex.EncodeToString(secret), nil
}

// Unwrap hex-decodes the secret
func (p *LocalProvider) Unwrap(ctx context.Context, wrapped string) ([]byte, error) {
	secret, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(wrapped), "0x"))
	if err != nil {
		return nil, fmt.Errorf("local master secret must be hex encoded")
	}
	return secret, nil
}

// Provider returns the provider name
func (p *LocalProvider) Provider() string {
	return string(ProviderLocal)
}

// kmsAPI is the subset of the AWS KMS client used here
type kmsAPI interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// AWSProvider implements Provider using AWS KMS
type AWSProvider struct {
	keyID  string
	client kmsAPI
}

// NewAWSProvider creates a new AWS KMS provider
func NewAWSProvider(ctx context.Context, keyID, region string) (*AWSProvider, error) {
	if keyID == "" {
		return nil, fmt.Errorf("AWS KMS key ID is required")
	}
	if region == "" {
		return nil, fmt.Errorf("AWS region is required")
	}

	// Uses default credential chain: env vars, shared config, IAM role, etc.
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSProvider{
		keyID:  keyID,
		client: kms.NewFromConfig(cfg),
	}, nil
}

// Wrap encrypts the secret with AWS KMS and base64-encodes the blob
func (p *AWSProvider) Wrap(ctx context.Context, secret []byte) (string, error) {
	output, err := p.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(p.keyID),
		Plaintext: secret,
	})
	if err != nil {
		return "", fmt.Errorf("AWS KMS encrypt failed: %w", err)
	}
	return base64.StdEncoding.EncodeToString(output.CiphertextBlob), nil
}

// Unwrap decrypts a base64 ciphertext blob with AWS KMS
func (p *AWSProvider) Unwrap(ctx context.Context, wrapped string) ([]byte, error) {
	blob, err := base64.StdEncoding.DecodeString(strings.TrimSpace(wrapped))
	if err != nil {
		return nil, fmt.Errorf("wrapped master secret must be base64 encoded")
	}

	output, err := p.client.Decrypt(ctx, &kms.DecryptInput{
		KeyId:          aws.String(p.keyID),
		CiphertextBlob: blob,
	})
	if err != nil {
		return nil, fmt.Errorf("AWS KMS decrypt failed: %w", err)
	}
	return output.Plaintext, nil
}

// Provider returns the provider name
func (p *AWSProvider) Provider() string {
	return string(ProviderAWSKMS)
}

// VaultProvider implements Provider using HashiCorp Vault Transit engine
type VaultProvider struct {
	transitKey string
	client     *vault.Client
}

// NewVaultProvider creates a new Vault provider
func NewVaultProvider(address, token, transitKey string) (*VaultProvider, error) {
	if address == "" {
		return nil, fmt.Errorf("Vault address is required")
	}
	if token == "" {
		return nil, fmt.Errorf("Vault token is required")
	}
	if transitKey == "" {
		return nil, fmt.Errorf("Vault transit key name is required")
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = address

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(token)

	return &VaultProvider{
		transitKey: transitKey,
		client:     client,
	}, nil
}

// Wrap encrypts the secret with the transit engine
func (p *VaultProvider) Wrap(ctx context.Context, secret []byte) (string, error) {
	path := fmt.Sprintf("transit/encrypt/%s", p.transitKey)
	resp, err := p.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		// Vault Transit requires base64-encoded plaintext
		"plaintext": base64.StdEncoding.EncodeToString(secret),
	})
	if err != nil {
		return "", fmt.Errorf("Vault Transit encrypt failed: %w", err)
	}
	if resp == nil || resp.Data == nil {
		return "", fmt.Errorf("Vault Transit encrypt returned empty response")
	}

	ciphertext, ok := resp.Data["ciphertext"].(string)
	if !ok {
		return "", fmt.Errorf("Vault Transit encrypt: ciphertext not found in response")
	}
	return ciphertext, nil
}

// Unwrap decrypts a vault:v1:... ciphertext with the transit engine
func (p *VaultProvider) Unwrap(ctx context.Context, wrapped string) ([]byte, error) {
	path := fmt.Sprintf("transit/decrypt/%s", p.transitKey)
	resp, err := p.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"ciphertext": strings.TrimSpace(wrapped),
	})
	if err != nil {
		return nil, fmt.Errorf("Vault Transit decrypt failed: %w", err)
	}
	if resp == nil || resp.Data == nil {
		return nil, fmt.Errorf("Vault Transit decrypt returned empty response")
	}

	plaintextB64, ok := resp.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("Vault Transit decrypt: plaintext not found in response")
	}

	secret, err := base64.StdEncoding.DecodeString(plaintextB64)
	if err != nil {
		return nil, fmt.Errorf("Vault Transit decrypt: failed to decode plaintext: %w", err)
	}
	return secret, nil
}

// Provider returns the provider name
func (p *VaultProvider) Provider() string {
	return string(ProviderVault)
}

// NewProvider creates a Provider based on the configuration
func NewProvider(ctx context.Context, cfg *Config) (Provider, error) {
	switch ProviderType(cfg.Provider) {
	case ProviderLocal, "":
		return &LocalProvider{}, nil
	case ProviderAWSKMS:
		return NewAWSProvider(ctx, cfg.AWSKMSKeyID, cfg.AWSKMSRegion)
	case ProviderVault:
		return NewVaultProvider(cfg.VaultAddress, cfg.VaultToken, cfg.VaultTransitKey)
	default:
		return nil, fmt.Errorf("unsupported KMS provider: %s (supported: %s, %s, %s)",
			cfg.Provider, ProviderLocal, ProviderAWSKMS, ProviderVault)
	}
}

// LoadMasterSecret unwraps the configured master secret.
// An empty wrapped value yields a nil secret so callers can fail per operation.
func LoadMasterSecret(ctx context.Context, provider Provider, wrapped string) ([]byte, error) {
	if strings.TrimSpace(wrapped) == "" {
		return nil, nil
	}
	secret, err := provider.Unwrap(ctx, wrapped)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap master secret via %s: %w", provider.Provider(), err)
	}
	if n := len(secret); n < 32 {
		clear(secret)
		return nil, fmt.Errorf("master secret must be at least 32 bytes, got %d", n)
	}
	return secret, nil
}

// Ensure providers implement Provider
var (
	_ Provider = (*LocalProvider)(nil)
	_ Provider = (*AWSProvider)(nil)
	_ Provider = (*VaultProvider)(nil)
)
