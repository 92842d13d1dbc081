// Package client talks to a medvaultd API server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"medvault/api/types"
	"medvault/core/errs"
	"medvault/core/events"
	"medvault/core/oracle"
	"medvault/core/state"
	"medvault/types/ids"
)

// Client is safe for concurrent use once configured.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	// Token is sent as a bearer token. When empty, Caller is sent in the
	// dev-mode caller header instead.
	Token  string
	Caller common.Address
}

func New(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTP: &http.Client{Timeout: 15 * time.Second}}
}

// do sends in (if non-nil) as JSON and decodes a 2xx body into out. Error
// bodies are turned back into *errs.Error so callers can match on kind and
// reason.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.Token != "":
		req.Header.Set("Authorization", "Bearer "+c.Token)
	case c.Caller != (common.Address{}):
		req.Header.Set("X-Vault-Caller", c.Caller.Hex())
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		var eb types.ErrorBody
		if json.Unmarshal(raw, &eb) == nil && eb.Error.Kind != "" {
			return errs.New(errs.Kind(eb.Error.Kind), eb.Error.Reason)
		}
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(raw))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func patientPath(pid ids.ID, suffix string) string {
	return "/v1/patients/" + pid.Hex() + suffix
}

func recordPath(pid ids.ID, kind state.DocumentKind, suffix string) string {
	return patientPath(pid, "/records/"+kind.String()+suffix)
}

func (c *Client) SetGuardian(ctx context.Context, pid ids.ID, guardian common.Address) error {
	return c.do(ctx, http.MethodPost, patientPath(pid, "/guardian"), types.AddressRequest{Address: guardian.Hex()}, nil)
}

func (c *Client) SetInsurer(ctx context.Context, pid ids.ID, insurer common.Address) error {
	return c.do(ctx, http.MethodPost, patientPath(pid, "/insurer"), types.AddressRequest{Address: insurer.Hex()}, nil)
}

func (c *Client) SetPatientSelfUpload(ctx context.Context, pid ids.ID, patient common.Address, enabled bool) error {
	return c.do(ctx, http.MethodPost, patientPath(pid, "/self-upload"), types.SelfUploadRequest{Patient: patient.Hex(), Enabled: enabled}, nil)
}

func (c *Client) GrantAccess(ctx context.Context, pid ids.ID, accessors []common.Address, allowed bool) error {
	req := types.GrantsRequest{Allowed: allowed}
	for _, a := range accessors {
		req.Accessors = append(req.Accessors, a.Hex())
	}
	return c.do(ctx, http.MethodPost, patientPath(pid, "/grants"), req, nil)
}

func (c *Client) UploadRecord(ctx context.Context, pid ids.ID, kind state.DocumentKind, uri string) (state.DocumentEntry, error) {
	var entry state.DocumentEntry
	err := c.do(ctx, http.MethodPost, recordPath(pid, kind, ""), types.UploadRequest{PointerURI: uri}, &entry)
	return entry, err
}

// UploadNative redeems a gateway payment receipt for a paid upload.
func (c *Client) UploadNative(ctx context.Context, pid ids.ID, kind state.DocumentKind, uri, receipt string) (state.DocumentEntry, error) {
	var entry state.DocumentEntry
	err := c.do(ctx, http.MethodPost, recordPath(pid, kind, "/native"), types.UploadNativeRequest{PointerURI: uri, Receipt: receipt}, &entry)
	return entry, err
}

func (c *Client) UploadXRPL(ctx context.Context, pid ids.ID, kind state.DocumentKind, req types.UploadXRPLRequest) (state.DocumentEntry, error) {
	var entry state.DocumentEntry
	err := c.do(ctx, http.MethodPost, recordPath(pid, kind, "/xrpl"), req, &entry)
	return entry, err
}

// Read fetches a record and charges the bound insurer.
func (c *Client) Read(ctx context.Context, pid ids.ID, kind state.DocumentKind) (types.ReadResponse, error) {
	var out types.ReadResponse
	err := c.do(ctx, http.MethodPost, recordPath(pid, kind, "/read"), nil, &out)
	return out, err
}

func (c *Client) RecordMeta(ctx context.Context, pid ids.ID, kind state.DocumentKind) (state.DocumentEntry, error) {
	var entry state.DocumentEntry
	err := c.do(ctx, http.MethodGet, recordPath(pid, kind, "/meta"), nil, &entry)
	return entry, err
}

func (c *Client) PatientMeta(ctx context.Context, pid ids.ID) ([]state.DocumentEntry, error) {
	var entries []state.DocumentEntry
	err := c.do(ctx, http.MethodGet, patientPath(pid, "/meta"), nil, &entries)
	return entries, err
}

func (c *Client) Deposit(ctx context.Context, pid ids.ID, receipt string) (types.DepositResponse, error) {
	var out types.DepositResponse
	err := c.do(ctx, http.MethodPost, patientPath(pid, "/deposit"), types.DepositRequest{Receipt: receipt}, &out)
	return out, err
}

func (c *Client) InsurerBalance(ctx context.Context, insurer common.Address) (types.BalanceResponse, error) {
	var out types.BalanceResponse
	err := c.do(ctx, http.MethodGet, "/v1/insurers/"+insurer.Hex()+"/balance", nil, &out)
	return out, err
}

func (c *Client) SetAccessFee(ctx context.Context, feeWei string, collector common.Address) (state.FeeConfig, error) {
	var fees state.FeeConfig
	err := c.do(ctx, http.MethodPost, "/v1/admin/fees/access", types.AccessFeeRequest{FeeWei: feeWei, Collector: collector.Hex()}, &fees)
	return fees, err
}

func (c *Client) SetUploadFees(ctx context.Context, feeWei string, usdCents uint64, collector common.Address) (state.FeeConfig, error) {
	var fees state.FeeConfig
	err := c.do(ctx, http.MethodPost, "/v1/admin/fees/upload", types.UploadFeesRequest{FeeWei: feeWei, USDCents: usdCents, Collector: collector.Hex()}, &fees)
	return fees, err
}

func (c *Client) SetMaxOracleStaleness(ctx context.Context, seconds uint64) (state.FeeConfig, error) {
	var fees state.FeeConfig
	err := c.do(ctx, http.MethodPost, "/v1/admin/staleness", types.StalenessRequest{Seconds: seconds}, &fees)
	return fees, err
}

func (c *Client) SetFDC(ctx context.Context, addr common.Address) error {
	return c.do(ctx, http.MethodPost, "/v1/admin/oracles/fdc", types.AddressRequest{Address: addr.Hex()}, nil)
}

func (c *Client) SetFTSO(ctx context.Context, addr common.Address) error {
	return c.do(ctx, http.MethodPost, "/v1/admin/oracles/ftso", types.AddressRequest{Address: addr.Hex()}, nil)
}

func (c *Client) Withdraw(ctx context.Context, to common.Address, amountWei string) error {
	return c.do(ctx, http.MethodPost, "/v1/admin/withdraw", types.WithdrawRequest{To: to.Hex(), AmountWei: amountWei}, nil)
}

func (c *Client) TransferOwnership(ctx context.Context, next common.Address) error {
	return c.do(ctx, http.MethodPost, "/v1/admin/owner", types.AddressRequest{Address: next.Hex()}, nil)
}

func (c *Client) Quote(ctx context.Context) (oracle.Quote, error) {
	var q oracle.Quote
	err := c.do(ctx, http.MethodGet, "/v1/quote", nil, &q)
	return q, err
}

func (c *Client) Fees(ctx context.Context) (state.FeeConfig, error) {
	var fees state.FeeConfig
	err := c.do(ctx, http.MethodGet, "/v1/fees", nil, &fees)
	return fees, err
}

func (c *Client) Events(ctx context.Context, from uint64, limit int) ([]events.Event, error) {
	q := url.Values{}
	q.Set("from", strconv.FormatUint(from, 10))
	q.Set("limit", strconv.Itoa(limit))
	var out []events.Event
	err := c.do(ctx, http.MethodGet, "/v1/events?"+q.Encode(), nil, &out)
	return out, err
}

func (c *Client) Checkpoint(ctx context.Context, from, to uint64) (events.Checkpoint, error) {
	q := url.Values{}
	q.Set("from", strconv.FormatUint(from, 10))
	q.Set("to", strconv.FormatUint(to, 10))
	var cp events.Checkpoint
	err := c.do(ctx, http.MethodGet, "/v1/checkpoint?"+q.Encode(), nil, &cp)
	return cp, err
}

// Status returns the raw /v1/status document.
func (c *Client) Status(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := c.do(ctx, http.MethodGet, "/v1/status", nil, &out)
	return out, err
}

func (c *Client) NodeHealth(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := c.do(ctx, http.MethodGet, "/nodehealth", nil, &out)
	return out, err
}

// Readiness reports whether the server's vault is initialized. A 503 reply
// is a valid "not ready" answer, not an error.
func (c *Client) Readiness(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health/readiness", nil)
	if err != nil {
		return false, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	var out struct {
		Ready bool `json:"ready"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("readiness: %w", err)
	}
	return out.Ready, nil
}
