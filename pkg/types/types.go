package types

// ChainFamily groups chains that share an account model and wallet lifecycle.
type ChainFamily string

// ChainFamily constants
const (
	ChainFamilyEVM     ChainFamily = "EVM"
	ChainFamilyBitcoin ChainFamily = "BITCOIN"
	ChainFamilySolana  ChainFamily = "SOLANA"
	// ChainFamilyCosmos is reserved; no chain is classified into it yet.
	ChainFamilyCosmos ChainFamily = "COSMOS"
)

// Curve is the elliptic curve behind a chain's signature scheme.
type Curve string

// Curve constants
const (
	CurveSecp256k1 Curve = "SECP256K1"
	CurveEd25519   Curve = "ED25519"
)

// Valid reports whether c is a known curve.
func (c Curve) Valid() bool {
	return c == CurveSecp256k1 || c == CurveEd25519
}

// AddressFormat describes how addresses on a chain are encoded.
type AddressFormat string

// AddressFormat constants
const (
	AddressFormatHex20   AddressFormat = "hex20"
	AddressFormatBitcoin AddressFormat = "bitcoin"
	AddressFormatBase58  AddressFormat = "base58"
)

// ChainConfig is one immutable entry of the chain classification table.
type ChainConfig struct {
	ID            string        `json:"id"`
	Family        ChainFamily   `json:"family"`
	Curve         Curve         `json:"curve"`
	AddressFormat AddressFormat `json:"address_format"`
	ChainID       *int64        `json:"chain_id"`
}

// NumericChainID returns the chain id stored on wallet records.
// Chains without a numeric id use the 0 sentinel.
func (c ChainConfig) NumericChainID() int64 {
	if c.ChainID == nil {
		return 0
	}
	return *c.ChainID
}
