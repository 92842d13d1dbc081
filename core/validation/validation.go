// Package validation checks API request bodies against the JSON schemas in
// schemas/ before they reach the vault.
package validation

import (
	"embed"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"medvault/core/errs"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Schema names, one per request body shape.
const (
	Address      = "address"
	SelfUpload   = "self_upload"
	Grants       = "grants"
	Upload       = "upload"
	UploadNative = "upload_native"
	UploadXRPL   = "upload_xrpl"
	Deposit      = "deposit"
	AccessFee    = "access_fee"
	UploadFees   = "upload_fees"
	Staleness    = "staleness"
	Withdraw     = "withdraw"
)

// ReasonInvalidRequest is the errs reason for a body that fails its schema.
const ReasonInvalidRequest = "invalid request"

var (
	loadOnce sync.Once
	schemas  map[string]*gojsonschema.Schema
	loadErr  error
)

func load() {
	schemas = make(map[string]*gojsonschema.Schema)
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		loadErr = err
		return
	}
	for _, e := range entries {
		raw, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			loadErr = err
			return
		}
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			loadErr = fmt.Errorf("schema %s: %w", e.Name(), err)
			return
		}
		schemas[strings.TrimSuffix(e.Name(), ".json")] = s
	}
}

// Validate checks payload against the named schema. A failing payload is an
// InvalidArgument error listing every violation.
func Validate(name string, payload []byte) error {
	loadOnce.Do(load)
	if loadErr != nil {
		return errs.Internal("schemas unavailable", loadErr)
	}
	s, ok := schemas[name]
	if !ok {
		return errs.Internal("unknown schema", fmt.Errorf("%q", name))
	}
	result, err := s.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return &errs.Error{Kind: errs.KindInvalidArgument, Reason: ReasonInvalidRequest, Err: err}
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return &errs.Error{
			Kind:   errs.KindInvalidArgument,
			Reason: ReasonInvalidRequest,
			Err:    fmt.Errorf("%s", strings.Join(msgs, "; ")),
		}
	}
	return nil
}
