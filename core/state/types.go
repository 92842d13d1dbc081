package state

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"medvault/types/ids"
)

// DocumentKind is the category of a medical document.
type DocumentKind uint8

const (
	Diagnosis DocumentKind = iota
	Referral
	Intake
	LabResult
	Imaging
	Prescription
	Discharge
)

var kindNames = [...]string{
	Diagnosis:    "diagnosis",
	Referral:     "referral",
	Intake:       "intake",
	LabResult:    "lab_result",
	Imaging:      "imaging",
	Prescription: "prescription",
	Discharge:    "discharge",
}

// Kinds lists every known DocumentKind in order.
func Kinds() []DocumentKind {
	out := make([]DocumentKind, len(kindNames))
	for i := range kindNames {
		out[i] = DocumentKind(i)
	}
	return out
}

func (k DocumentKind) Valid() bool {
	return int(k) < len(kindNames)
}

func (k DocumentKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// ParseDocumentKind accepts the canonical name (case-insensitive) or the
// numeric value.
func ParseDocumentKind(s string) (DocumentKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range kindNames {
		if name == s || fmt.Sprint(i) == s {
			return DocumentKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown document kind %q", s)
}

func (k DocumentKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid document kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *DocumentKind) UnmarshalText(text []byte) error {
	parsed, err := ParseDocumentKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// RoleBinding holds the per-patient principals. Accessors maps an address to
// its read grant; a false entry is an explicit revocation.
type RoleBinding struct {
	Guardian   common.Address          `json:"guardian"`
	Insurer    common.Address          `json:"insurer"`
	Patient    common.Address          `json:"patient"`
	SelfUpload bool                    `json:"selfUpload"`
	Accessors  map[common.Address]bool `json:"accessors,omitempty"`
}

// PaymentMethod records how an upload was paid for.
type PaymentMethod string

const (
	PaymentNone   PaymentMethod = "none"
	PaymentNative PaymentMethod = "native"
	PaymentXRPL   PaymentMethod = "xrpl"
)

// Provenance describes the payment behind the latest version of a document.
type Provenance struct {
	Method        PaymentMethod `json:"method"`
	AmountWei     *big.Int      `json:"amountWei,omitempty"`
	OverpaidWei   *big.Int      `json:"overpaidWei,omitempty"`
	FeeUSDCents   uint64        `json:"feeUsdCents,omitempty"`
	PaidDrops     uint64        `json:"paidDrops,omitempty"`
	RequiredDrops *big.Int      `json:"requiredDrops,omitempty"`
	StatementID   string        `json:"statementId,omitempty"`
	ProofID       string        `json:"proofId,omitempty"`
}

// DocumentEntry is the latest metadata for one (patient, kind).
type DocumentEntry struct {
	Patient    ids.ID         `json:"patientId"`
	Kind       DocumentKind   `json:"kind"`
	PointerURI string         `json:"pointerUri"`
	Version    uint64         `json:"version"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	UpdatedBy  common.Address `json:"updatedBy"`
	Provenance Provenance     `json:"provenance"`
}

// FeeConfig is the global fee schedule.
type FeeConfig struct {
	AccessFeeWei              *big.Int       `json:"accessFeeWei"`
	UploadFeeWei              *big.Int       `json:"uploadFeeWei"`
	UploadFeeUSDCents         uint64         `json:"uploadFeeUsdCents"`
	FeeCollector              common.Address `json:"feeCollector"`
	MaxOracleStalenessSeconds uint64         `json:"maxOracleStalenessSeconds"`
}

// MaxStalenessSeconds is the largest staleness bound a time.Duration can
// represent. Larger bounds saturate to it.
const MaxStalenessSeconds = uint64(math.MaxInt64 / int64(time.Second))

// MaxOracleStaleness returns the staleness bound as a duration.
func (f FeeConfig) MaxOracleStaleness() time.Duration {
	if f.MaxOracleStalenessSeconds > MaxStalenessSeconds {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(f.MaxOracleStalenessSeconds) * time.Second
}

// OracleConfig binds the attestation verifier (FDC) and price feed (FTSO).
type OracleConfig struct {
	FDC  common.Address `json:"fdc"`
	FTSO common.Address `json:"ftso"`
}

// AttestationRecord marks a consumed cross-chain payment proof.
type AttestationRecord struct {
	StatementID string         `json:"statementId"`
	ProofID     string         `json:"proofId"`
	Patient     ids.ID         `json:"patientId"`
	Kind        DocumentKind   `json:"kind"`
	PaidDrops   uint64         `json:"paidDrops"`
	ConsumedBy  common.Address `json:"consumedBy"`
	ConsumedAt  time.Time      `json:"consumedAt"`
}

// Zero returns a non-nil zero amount.
func Zero() *big.Int { return new(big.Int) }
