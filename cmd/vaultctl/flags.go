package main

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"

	"medvault/core/state"
	"medvault/types/ids"
)

// addressValue is a pflag.Value holding a 0x address.
type addressValue common.Address

var _ pflag.Value = (*addressValue)(nil)

func (a *addressValue) String() string {
	if *a == (addressValue{}) {
		return ""
	}
	return common.Address(*a).Hex()
}

func (a *addressValue) Set(s string) error {
	if !common.IsHexAddress(s) {
		return fmt.Errorf("not a 0x address: %q", s)
	}
	*a = addressValue(common.HexToAddress(s))
	return nil
}

func (a *addressValue) Type() string { return "address" }

// patientValue accepts a 32-byte hex patient id.
type patientValue ids.ID

var _ pflag.Value = (*patientValue)(nil)

func (p *patientValue) String() string {
	if ids.ID(*p).IsEmpty() {
		return ""
	}
	return ids.ID(*p).Hex()
}

func (p *patientValue) Set(s string) error {
	id, err := ids.FromString(s)
	if err != nil {
		return fmt.Errorf("patient id: %w", err)
	}
	*p = patientValue(id)
	return nil
}

func (p *patientValue) Type() string { return "patientId" }

// kindValue accepts a document kind name or number.
type kindValue state.DocumentKind

var _ pflag.Value = (*kindValue)(nil)

func (k *kindValue) String() string { return state.DocumentKind(*k).String() }

func (k *kindValue) Set(s string) error {
	kind, err := state.ParseDocumentKind(s)
	if err != nil {
		return err
	}
	*k = kindValue(kind)
	return nil
}

func (k *kindValue) Type() string { return "kind" }

func addressFlag(fs *pflag.FlagSet, name, usage string) *common.Address {
	var v addressValue
	fs.Var(&v, name, usage)
	return (*common.Address)(&v)
}

func patientFlag(fs *pflag.FlagSet) *ids.ID {
	var v patientValue
	fs.Var(&v, "patient", "Patient id (0x-prefixed 32-byte hex)")
	return (*ids.ID)(&v)
}

func kindFlag(fs *pflag.FlagSet) *state.DocumentKind {
	var v kindValue
	names := make([]string, 0, len(state.Kinds()))
	for _, k := range state.Kinds() {
		names = append(names, k.String())
	}
	fs.Var(&v, "kind", "Document kind ("+strings.Join(names, ", ")+")")
	return (*state.DocumentKind)(&v)
}
