// Package events is the vault's notification journal. Every committed
// mutation appends one Event to a hash chain stored in the same batch as the
// state change; sinks fan committed events out to external indexers.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"medvault/types/ids"
)

type Type string

const (
	GenesisApplied       Type = "GenesisApplied"
	GuardianSet          Type = "GuardianSet"
	InsurerSet           Type = "InsurerSet"
	SelfUploadSet        Type = "SelfUploadSet"
	AccessGranted        Type = "AccessGranted"
	AccessRevoked        Type = "AccessRevoked"
	DocumentUploaded     Type = "DocumentUploaded"
	DocumentRead         Type = "DocumentRead"
	InsurerDeposit       Type = "InsurerDeposit"
	AccessFeeChanged     Type = "AccessFeeChanged"
	UploadFeesChanged    Type = "UploadFeesChanged"
	StalenessChanged     Type = "StalenessChanged"
	OracleChanged        Type = "OracleChanged"
	FundsWithdrawn       Type = "FundsWithdrawn"
	WithdrawalReverted   Type = "WithdrawalReverted"
	OwnershipTransferred Type = "OwnershipTransferred"
)

// Event describes one committed state transition.
type Event struct {
	ID        uuid.UUID         `json:"id"`
	Seq       uint64            `json:"seq"`
	Type      Type              `json:"type"`
	Patient   ids.ID            `json:"patientId"`
	Actor     common.Address    `json:"actor"`
	Fields    map[string]string `json:"fields,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	PrevHash  string            `json:"prevHash"`
	Hash      string            `json:"hash"`
}

// New builds an unsequenced event; the journal assigns Seq and hashes.
func New(typ Type, actor common.Address, pid ids.ID, fields map[string]string) Event {
	return Event{
		ID:      uuid.New(),
		Type:    typ,
		Patient: pid,
		Actor:   actor,
		Fields:  fields,
	}
}

// computeHash covers every field except Hash itself. Fields is a map, which
// encoding/json marshals with sorted keys.
func computeHash(ev Event) (string, error) {
	ev.Hash = ""
	raw, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("hash event %d: %w", ev.Seq, err)
	}
	return ids.NewID(raw).String(), nil
}
