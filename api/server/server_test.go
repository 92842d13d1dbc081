package server

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medvault/api/types"
	"medvault/core/auth"
	"medvault/core/errs"
	"medvault/core/events"
	"medvault/core/genesis"
	"medvault/core/oracle"
	"medvault/core/state"
	"medvault/core/storage"
	"medvault/core/vault"
	"medvault/types/ids"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	guardian = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	insurer  = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	doctor   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	fdcAddr  = common.HexToAddress("0x0000000000000000000000000000000000000fdc")
	ftsoAddr = common.HexToAddress("0x000000000000000000000000000000000000f750")

	pid   = ids.DerivePatientID("MRN-0001", "pepper")
	clock = time.Unix(1_700_000_000, 0).UTC()

	gatewayKey = ed25519.NewKeyFromSeed(bytes.Repeat([]byte{0x42}, ed25519.SeedSize))
)

func gatewayVerifier() *oracle.ReceiptVerifier {
	return &oracle.ReceiptVerifier{Keys: oracle.NewStaticKeyProvider(gatewayKey.Public())}
}

// receiptFor signs a native payment receipt the way the payment gateway does.
func receiptFor(t *testing.T, key ed25519.PrivateKey, txHash string, payer common.Address, wei string, purpose oracle.Purpose) string {
	t.Helper()
	value, ok := new(big.Int).SetString(wei, 10)
	require.True(t, ok)
	jws, err := (&oracle.Issuer{Key: key}).IssueReceipt(txHash, payer, value, purpose, pid)
	require.NoError(t, err)
	return jws
}

func newTestMachine(t *testing.T, initialize bool) *vault.Machine {
	t.Helper()
	s, err := storage.NewMemoryStorage()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	dir := oracle.NewStaticDirectory()
	dir.RegisterPriceFeed(ftsoAddr, oracle.NewStaticPriceFeed(50, 2, clock.Add(-time.Minute)))
	m := vault.New(s, dir, vault.WithClock(func() time.Time { return clock }), vault.WithLogger(zerolog.Nop()))
	if initialize {
		cfg := genesis.Default(owner)
		cfg.GenesisTime = clock
		cfg.Fees.AccessFeeWei = "100000000000000"
		cfg.Fees.FeeCollector = owner.Hex()
		cfg.Fees.UploadFeeUSDCents = 100
		cfg.Oracles = genesis.OraclesConfig{FDC: fdcAddr.Hex(), FTSO: ftsoAddr.Hex()}
		require.NoError(t, m.Init(context.Background(), cfg))
	}
	return m
}

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *vault.Machine) {
	t.Helper()
	m := newTestMachine(t, true)
	if opts.Receipts == nil {
		opts.Receipts = gatewayVerifier()
	}
	srv := NewServer(m, auth.NewAuthenticator("", ""), opts, zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, m
}

func call(t *testing.T, ts *httptest.Server, method, path string, as common.Address, body interface{}) *http.Response {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if as != (common.Address{}) {
		req.Header.Set(auth.CallerHeader, as.Hex())
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func patientPath(suffix string) string {
	return "/v1/patients/" + pid.Hex() + suffix
}

func TestReadFlowChargesInsurer(t *testing.T) {
	ts, _ := newTestServer(t, Options{})

	resp := call(t, ts, http.MethodPost, patientPath("/guardian"), owner, types.AddressRequest{Address: guardian.Hex()})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = call(t, ts, http.MethodPost, patientPath("/insurer"), guardian, types.AddressRequest{Address: insurer.Hex()})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = call(t, ts, http.MethodPost, patientPath("/deposit"), insurer, types.DepositRequest{Receipt: receiptFor(t, gatewayKey, "0xd1", insurer, "10000000000000000", oracle.PurposeDeposit)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var dep types.DepositResponse
	decodeBody(t, resp, &dep)
	assert.Equal(t, "10000000000000000", dep.BalanceWei)

	resp = call(t, ts, http.MethodPost, patientPath("/grants"), guardian, types.GrantsRequest{Accessors: []string{doctor.Hex()}, Allowed: true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = call(t, ts, http.MethodPost, patientPath("/records/diagnosis"), guardian, types.UploadRequest{PointerURI: "ipfs://bafy-diag"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = call(t, ts, http.MethodPost, patientPath("/records/diagnosis/read"), doctor, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var read types.ReadResponse
	decodeBody(t, resp, &read)
	assert.Equal(t, "ipfs://bafy-diag", read.Record.PointerURI)
	assert.Equal(t, "100000000000000", read.FeeWei)
	assert.Equal(t, "9900000000000000", read.RemainingWei)

	resp = call(t, ts, http.MethodGet, "/v1/insurers/"+insurer.Hex()+"/balance", common.Address{}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var bal types.BalanceResponse
	decodeBody(t, resp, &bal)
	assert.Equal(t, "9900000000000000", bal.BalanceWei)
}

func TestErrorMapping(t *testing.T) {
	ts, _ := newTestServer(t, Options{})
	deposit := types.DepositRequest{Receipt: receiptFor(t, gatewayKey, "0xd2", insurer, "1", oracle.PurposeDeposit)}

	tests := []struct {
		name   string
		method string
		path   string
		as     common.Address
		body   interface{}
		status int
		kind   errs.Kind
	}{
		{"stranger sets guardian", http.MethodPost, patientPath("/guardian"), stranger, types.AddressRequest{Address: guardian.Hex()}, http.StatusForbidden, errs.KindAuthorization},
		{"missing record", http.MethodGet, patientPath("/records/imaging/meta"), common.Address{}, nil, http.StatusNotFound, errs.KindNotFound},
		{"unknown kind", http.MethodGet, patientPath("/records/xray/meta"), common.Address{}, nil, http.StatusBadRequest, errs.KindInvalidArgument},
		{"bad patient id", http.MethodGet, "/v1/patients/0x1234/meta", common.Address{}, nil, http.StatusBadRequest, errs.KindInvalidArgument},
		{"deposit without insurer", http.MethodPost, patientPath("/deposit"), insurer, deposit, http.StatusNotFound, errs.KindNotFound},
		{"schema violation", http.MethodPost, patientPath("/guardian"), owner, map[string]string{"address": "nope"}, http.StatusBadRequest, errs.KindInvalidArgument},
		{"unknown field", http.MethodPost, patientPath("/deposit"), insurer, map[string]string{"receipt": deposit.Receipt, "extra": "x"}, http.StatusBadRequest, errs.KindInvalidArgument},
		{"withdraw by stranger", http.MethodPost, "/v1/admin/withdraw", stranger, types.WithdrawRequest{To: stranger.Hex(), AmountWei: "1"}, http.StatusForbidden, errs.KindAuthorization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := call(t, ts, tt.method, tt.path, tt.as, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			var body types.ErrorBody
			decodeBody(t, resp, &body)
			assert.Equal(t, string(tt.kind), body.Error.Kind)
			assert.NotEmpty(t, body.Error.Reason)
		})
	}
}

func TestNativePaymentsRequireGatewayReceipt(t *testing.T) {
	ts, m := newTestServer(t, Options{})
	resp := call(t, ts, http.MethodPost, patientPath("/guardian"), owner, types.AddressRequest{Address: guardian.Hex()})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = call(t, ts, http.MethodPost, patientPath("/insurer"), guardian, types.AddressRequest{Address: insurer.Hex()})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = call(t, ts, http.MethodPost, patientPath("/records/diagnosis"), guardian, types.UploadRequest{PointerURI: "ipfs://bafy-diag"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	head, err := m.Status()
	require.NoError(t, err)

	_, forged, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	huge := "999999999999999999999999999"

	tests := []struct {
		name   string
		path   string
		body   interface{}
		status int
		kind   errs.Kind
	}{
		{"bare value claim on upload", patientPath("/records/diagnosis/native"), map[string]string{"pointerUri": "enc://attacker", "valueWei": huge}, http.StatusBadRequest, errs.KindInvalidArgument},
		{"bare value claim on deposit", patientPath("/deposit"), map[string]string{"valueWei": huge}, http.StatusBadRequest, errs.KindInvalidArgument},
		{"self-signed upload receipt", patientPath("/records/diagnosis/native"), types.UploadNativeRequest{PointerURI: "enc://attacker", Receipt: receiptFor(t, forged, "0xf1", stranger, huge, oracle.PurposeUpload)}, http.StatusConflict, errs.KindInvalidProof},
		{"self-signed deposit receipt", patientPath("/deposit"), types.DepositRequest{Receipt: receiptFor(t, forged, "0xf2", stranger, huge, oracle.PurposeDeposit)}, http.StatusConflict, errs.KindInvalidProof},
		{"receipt paid by someone else", patientPath("/deposit"), types.DepositRequest{Receipt: receiptFor(t, gatewayKey, "0xf3", insurer, huge, oracle.PurposeDeposit)}, http.StatusConflict, errs.KindInvalidProof},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := call(t, ts, http.MethodPost, tt.path, stranger, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			var body types.ErrorBody
			decodeBody(t, resp, &body)
			assert.Equal(t, string(tt.kind), body.Error.Kind)
		})
	}

	meta, err := m.GetRecordMeta(pid, state.Diagnosis)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://bafy-diag", meta.PointerURI)
	assert.Equal(t, guardian, meta.UpdatedBy)
	total, err := m.ContractBalance()
	require.NoError(t, err)
	assert.Zero(t, total.Sign())
	after, err := m.Status()
	require.NoError(t, err)
	assert.Equal(t, head.HeadSeq, after.HeadSeq)

	resp = call(t, ts, http.MethodPost, patientPath("/records/diagnosis/native"), stranger,
		types.UploadNativeRequest{PointerURI: "enc://paid", Receipt: receiptFor(t, gatewayKey, "0xf4", stranger, "0", oracle.PurposeUpload)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	meta, err = m.GetRecordMeta(pid, state.Diagnosis)
	require.NoError(t, err)
	assert.Equal(t, "enc://paid", meta.PointerURI)
}

func TestNativePaymentsDisabledWithoutVerifier(t *testing.T) {
	m := newTestMachine(t, true)
	ts := httptest.NewServer(NewServer(m, auth.NewAuthenticator("", ""), Options{}, zerolog.Nop()).Handler())
	defer ts.Close()

	rcpt := receiptFor(t, gatewayKey, "0xf5", stranger, "1", oracle.PurposeDeposit)
	resp := call(t, ts, http.MethodPost, patientPath("/deposit"), stranger, types.DepositRequest{Receipt: rcpt})
	assert.Equal(t, http.StatusFailedDependency, resp.StatusCode)
	var body types.ErrorBody
	decodeBody(t, resp, &body)
	assert.Equal(t, errs.ReasonNativeDisabled, body.Error.Reason)
}

func TestMutationsRequireCaller(t *testing.T) {
	ts, _ := newTestServer(t, Options{})
	resp := call(t, ts, http.MethodPost, patientPath("/guardian"), common.Address{}, types.AddressRequest{Address: guardian.Hex()})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBearerTokenAuth(t *testing.T) {
	m := newTestMachine(t, true)
	a := auth.NewAuthenticator("test-secret", "medvault")
	ts := httptest.NewServer(NewServer(m, a, Options{}, zerolog.Nop()).Handler())
	defer ts.Close()

	post := func(token string) int {
		raw, _ := json.Marshal(types.AddressRequest{Address: guardian.Hex()})
		req, _ := http.NewRequest(http.MethodPost, ts.URL+patientPath("/guardian"), bytes.NewReader(raw))
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		// the dev header must be ignored once a secret is configured
		req.Header.Set(auth.CallerHeader, owner.Hex())
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusUnauthorized, post(""))
	assert.Equal(t, http.StatusUnauthorized, post("garbage"))

	token, err := a.Issue(owner, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, post(token))
}

func TestQuoteAndFees(t *testing.T) {
	ts, _ := newTestServer(t, Options{})

	resp := call(t, ts, http.MethodGet, "/v1/quote", common.Address{}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var q oracle.Quote
	decodeBody(t, resp, &q)
	// $1.00 at $0.50 per XRP
	assert.Equal(t, 0, q.Drops.Cmp(big.NewInt(2_000_000)))

	resp = call(t, ts, http.MethodPost, "/v1/admin/staleness", owner, types.StalenessRequest{Seconds: 10})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = call(t, ts, http.MethodGet, "/v1/quote", common.Address{}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = call(t, ts, http.MethodGet, "/v1/fees", common.Address{}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fees map[string]interface{}
	decodeBody(t, resp, &fees)
	assert.EqualValues(t, 10, fees["maxOracleStalenessSeconds"])
}

func TestEventsListing(t *testing.T) {
	ts, _ := newTestServer(t, Options{})
	call(t, ts, http.MethodPost, patientPath("/guardian"), owner, types.AddressRequest{Address: guardian.Hex()})

	resp := call(t, ts, http.MethodGet, "/v1/events?from=0&limit=10", common.Address{}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var evs []map[string]interface{}
	decodeBody(t, resp, &evs)
	require.Len(t, evs, 2)
	assert.Equal(t, "GuardianSet", evs[1]["type"])
}

func TestMalformedQueryParameters(t *testing.T) {
	ts, _ := newTestServer(t, Options{})
	for _, path := range []string{
		"/v1/events?from=abc",
		"/v1/events?from=-1",
		"/v1/events?limit=ten",
		"/v1/checkpoint?from=x",
		"/v1/checkpoint?to=1.5",
	} {
		t.Run(path, func(t *testing.T) {
			resp := call(t, ts, http.MethodGet, path, common.Address{}, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var body types.ErrorBody
			decodeBody(t, resp, &body)
			assert.Equal(t, string(errs.KindInvalidArgument), body.Error.Kind)
		})
	}
}

func TestHealthEndpoints(t *testing.T) {
	m := newTestMachine(t, false)
	ts := httptest.NewServer(NewServer(m, auth.NewAuthenticator("", ""), Options{}, zerolog.Nop()).Handler())
	defer ts.Close()

	get := func(path string) *http.Response {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	assert.Equal(t, http.StatusOK, get("/health/liveness").StatusCode)
	assert.Equal(t, http.StatusServiceUnavailable, get("/health/readiness").StatusCode)

	var nh NodeHealthResponse
	decodeBody(t, get("/nodehealth"), &nh)
	assert.Equal(t, "initializing", nh.Status)
	assert.False(t, nh.Metrics.Initialized)

	cfg := genesis.Default(owner)
	require.NoError(t, m.Init(context.Background(), cfg))
	assert.Equal(t, http.StatusOK, get("/health/readiness").StatusCode)

	var st StatusResponse
	decodeBody(t, get("/v1/status"), &st)
	assert.Equal(t, "healthy", st.Status)
	assert.Equal(t, "v1", st.APIVersion)
	assert.True(t, st.Vault.Initialized)
	assert.Equal(t, owner, st.Vault.Owner)
}

func TestRateLimit(t *testing.T) {
	ts, _ := newTestServer(t, Options{RateLimitRPS: 0.001, RateLimitBurst: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp := call(t, ts, http.MethodGet, "/v1/fees", common.Address{}, nil)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestSignedCheckpoint(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	ts, m := newTestServer(t, Options{NodeKey: priv})
	call(t, ts, http.MethodPost, patientPath("/guardian"), owner, types.AddressRequest{Address: guardian.Hex()})

	resp := call(t, ts, http.MethodGet, "/v1/checkpoint", common.Address{}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cp events.Checkpoint
	decodeBody(t, resp, &cp)
	assert.Equal(t, uint64(1), cp.FromSeq)
	assert.Equal(t, uint64(2), cp.ToSeq)
	assert.True(t, cp.VerifySignature())

	st, err := m.Status()
	require.NoError(t, err)
	assert.Equal(t, st.HeadHash, cp.HeadHash)

	resp = call(t, ts, http.MethodGet, "/v1/checkpoint?from=7", common.Address{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
