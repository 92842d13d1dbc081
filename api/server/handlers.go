package server

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"medvault/api/types"
	"medvault/core/errs"
	"medvault/core/oracle"
	"medvault/core/validation"
	"medvault/types/ids"
)

var okBody = types.OKResponse{OK: true}

type roleSetter func(ctx context.Context, caller common.Address, pid ids.ID, addr common.Address) error

func (s *Server) handleSetGuardian(w http.ResponseWriter, r *http.Request) {
	s.setRole(w, r, s.vault.SetGuardian)
}

func (s *Server) handleSetInsurer(w http.ResponseWriter, r *http.Request) {
	s.setRole(w, r, s.vault.SetInsurer)
}

func (s *Server) setRole(w http.ResponseWriter, r *http.Request, set roleSetter) {
	caller, authed := s.caller(w, r)
	if !authed {
		return
	}
	pid, err := patientID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req types.AddressRequest
	if !s.decode(w, r, validation.Address, &req) {
		return
	}
	s.respond(w, okBody, set(r.Context(), caller, pid, common.HexToAddress(req.Address)))
}

func (s *Server) handleSelfUpload(w http.ResponseWriter, r *http.Request) {
	caller, authed := s.caller(w, r)
	if !authed {
		return
	}
	pid, err := patientID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req types.SelfUploadRequest
	if !s.decode(w, r, validation.SelfUpload, &req) {
		return
	}
	err = s.vault.SetPatientSelfUpload(r.Context(), caller, pid, common.HexToAddress(req.Patient), req.Enabled)
	s.respond(w, okBody, err)
}

func (s *Server) handleGrants(w http.ResponseWriter, r *http.Request) {
	caller, authed := s.caller(w, r)
	if !authed {
		return
	}
	pid, err := patientID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req types.GrantsRequest
	if !s.decode(w, r, validation.Grants, &req) {
		return
	}
	accessors := make([]common.Address, len(req.Accessors))
	for i, a := range req.Accessors {
		accessors[i] = common.HexToAddress(a)
	}
	s.respond(w, okBody, s.vault.GrantAccessBatch(r.Context(), caller, pid, accessors, req.Allowed))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	caller, authed := s.caller(w, r)
	if !authed {
		return
	}
	pid, kind, err := recordPath(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req types.UploadRequest
	if !s.decode(w, r, validation.Upload, &req) {
		return
	}
	entry, err := s.vault.UploadRecord(r.Context(), caller, pid, kind, req.PointerURI)
	s.respond(w, entry, err)
}

func (s *Server) handleUploadNative(w http.ResponseWriter, r *http.Request) {
	caller, authed := s.caller(w, r)
	if !authed {
		return
	}
	pid, kind, err := recordPath(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req types.UploadNativeRequest
	if !s.decode(w, r, validation.UploadNative, &req) {
		return
	}
	pay, err := s.receipt(req.Receipt)
	if err != nil {
		s.writeError(w, err)
		return
	}
	entry, err := s.vault.RedeemUploadReceipt(r.Context(), caller, pid, kind, req.PointerURI, pay)
	s.respond(w, entry, err)
}

// receipt verifies the gateway receipt behind a native payment. The caller's
// own claim of an amount is never trusted.
func (s *Server) receipt(raw string) (oracle.NativePayment, error) {
	if s.opts.Receipts == nil {
		return oracle.NativePayment{}, errs.Configuration(errs.ReasonNativeDisabled)
	}
	return s.opts.Receipts.Verify(raw)
}

func (s *Server) handleUploadXRPL(w http.ResponseWriter, r *http.Request) {
	caller, authed := s.caller(w, r)
	if !authed {
		return
	}
	pid, kind, err := recordPath(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req types.UploadXRPLRequest
	if !s.decode(w, r, validation.UploadXRPL, &req) {
		return
	}
	att := oracle.Attestation{
		Proof:       []byte(req.Proof),
		StatementID: req.StatementID,
		ProofID:     req.ProofID,
		PaidDrops:   req.PaidDrops,
	}
	entry, err := s.vault.UploadDocumentXRP(r.Context(), caller, pid, kind, req.PointerURI, att)
	s.respond(w, entry, err)
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	caller, authed := s.caller(w, r)
	if !authed {
		return
	}
	pid, kind, err := recordPath(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	entry, charge, err := s.vault.GetRecord(r.Context(), caller, pid, kind)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.ReadResponse{
		Record:       entry,
		Insurer:      charge.Insurer.Hex(),
		FeeWei:       charge.Fee.String(),
		RemainingWei: charge.Remaining.String(),
	})
}

func (s *Server) handleRecordMeta(w http.ResponseWriter, r *http.Request) {
	pid, kind, err := recordPath(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	entry, err := s.vault.GetRecordMeta(pid, kind)
	s.respond(w, entry, err)
}

func (s *Server) handlePatientMeta(w http.ResponseWriter, r *http.Request) {
	pid, err := patientID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	entries, err := s.vault.PatientMeta(pid)
	s.respond(w, entries, err)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	caller, authed := s.caller(w, r)
	if !authed {
		return
	}
	pid, err := patientID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req types.DepositRequest
	if !s.decode(w, r, validation.Deposit, &req) {
		return
	}
	pay, err := s.receipt(req.Receipt)
	if err != nil {
		s.writeError(w, err)
		return
	}
	insurer, bal, err := s.vault.RedeemDepositReceipt(r.Context(), caller, pid, pay)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.DepositResponse{Insurer: insurer.Hex(), BalanceWei: bal.String()})
}

func (s *Server) handleInsurerBalance(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("addr")
	if !common.IsHexAddress(raw) {
		s.writeError(w, errs.InvalidArgument("invalid address"))
		return
	}
	addr := common.HexToAddress(raw)
	bal, err := s.vault.InsurerBalance(addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.BalanceResponse{Address: addr.Hex(), BalanceWei: bal.String()})
}

func (s *Server) handleSetAccessFee(w http.ResponseWriter, r *http.Request) {
	caller, authed := s.caller(w, r)
	if !authed {
		return
	}
	var req types.AccessFeeRequest
	if !s.decode(w, r, validation.AccessFee, &req) {
		return
	}
	fees, err := s.vault.SetAccessFee(r.Context(), caller, amount(req.FeeWei), common.HexToAddress(req.Collector))
	s.respond(w, fees, err)
}

func (s *Server) handleSetUploadFees(w http.ResponseWriter, r *http.Request) {
	caller, authed := s.caller(w, r)
	if !authed {
		return
	}
	var req types.UploadFeesRequest
	if !s.decode(w, r, validation.UploadFees, &req) {
		return
	}
	fees, err := s.vault.SetUploadFees(r.Context(), caller, amount(req.FeeWei), req.USDCents, common.HexToAddress(req.Collector))
	s.respond(w, fees, err)
}

func (s *Server) handleSetStaleness(w http.ResponseWriter, r *http.Request) {
	caller, authed := s.caller(w, r)
	if !authed {
		return
	}
	var req types.StalenessRequest
	if !s.decode(w, r, validation.Staleness, &req) {
		return
	}
	fees, err := s.vault.SetMaxOracleStaleness(r.Context(), caller, req.Seconds)
	s.respond(w, fees, err)
}

func (s *Server) handleSetFDC(w http.ResponseWriter, r *http.Request) {
	s.adminAddress(w, r, s.vault.SetFDC)
}

func (s *Server) handleSetFTSO(w http.ResponseWriter, r *http.Request) {
	s.adminAddress(w, r, s.vault.SetFTSO)
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	s.adminAddress(w, r, s.vault.TransferOwnership)
}

func (s *Server) adminAddress(w http.ResponseWriter, r *http.Request, set func(ctx context.Context, caller, addr common.Address) error) {
	caller, authed := s.caller(w, r)
	if !authed {
		return
	}
	var req types.AddressRequest
	if !s.decode(w, r, validation.Address, &req) {
		return
	}
	s.respond(w, okBody, set(r.Context(), caller, common.HexToAddress(req.Address)))
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, authed := s.caller(w, r)
	if !authed {
		return
	}
	var req types.WithdrawRequest
	if !s.decode(w, r, validation.Withdraw, &req) {
		return
	}
	err := s.vault.Withdraw(r.Context(), caller, common.HexToAddress(req.To), amount(req.AmountWei))
	s.respond(w, okBody, err)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	q, err := s.vault.Quote(r.Context())
	s.respond(w, q, err)
}

func (s *Server) handleFees(w http.ResponseWriter, r *http.Request) {
	fees, err := s.vault.Fees()
	s.respond(w, fees, err)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	from, err := queryUint(r, "from")
	if err != nil {
		s.writeError(w, err)
		return
	}
	limit, err := queryUint(r, "limit")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if limit == 0 || limit > 1000 {
		limit = 100
	}
	evs, err := s.vault.Events(from, int(limit))
	s.respond(w, evs, err)
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	from, err := queryUint(r, "from")
	if err != nil {
		s.writeError(w, err)
		return
	}
	to, err := queryUint(r, "to")
	if err != nil {
		s.writeError(w, err)
		return
	}
	cp, err := s.vault.Checkpoint(from, to)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if s.opts.NodeKey != nil {
		cp.Sign(s.opts.NodeKey)
	}
	writeJSON(w, http.StatusOK, cp)
}
