package server

import (
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"medvault/api/types"
	"medvault/core/errs"
	"medvault/core/state"
	"medvault/core/validation"
	"medvault/types/ids"
)

const maxBody = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the error's kind and stable reason. Internal
// causes are logged, never returned.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	if kind == errs.KindInternal {
		s.log.Error().Err(err).Msg("internal error")
	}
	writeJSON(w, errs.HTTPStatus(kind), types.ErrorBody{Error: types.ErrorDetail{
		Kind:   string(kind),
		Reason: errs.ReasonOf(err),
	}})
}

func (s *Server) respond(w http.ResponseWriter, v interface{}, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) caller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	addr, err := s.auth.Caller(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, types.ErrorBody{Error: types.ErrorDetail{
			Kind:   string(errs.KindAuthorization),
			Reason: err.Error(),
		}})
		return common.Address{}, false
	}
	return addr, true
}

// decode validates the body against schema before unmarshalling it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, schema string, v interface{}) bool {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		s.writeError(w, errs.InvalidArgument("request body too large"))
		return false
	}
	if err := validation.Validate(schema, raw); err != nil {
		s.writeError(w, err)
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		s.writeError(w, errs.InvalidArgument(validation.ReasonInvalidRequest))
		return false
	}
	return true
}

func patientID(r *http.Request) (ids.ID, error) {
	pid, err := ids.FromString(r.PathValue("pid"))
	if err != nil {
		return ids.Empty, errs.InvalidArgument("invalid patient id")
	}
	return pid, nil
}

func documentKind(r *http.Request) (state.DocumentKind, error) {
	kind, err := state.ParseDocumentKind(r.PathValue("kind"))
	if err != nil {
		return 0, errs.InvalidArgument(errs.ReasonInvalidKind)
	}
	return kind, nil
}

// amount parses a schema-checked decimal string.
func amount(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

// queryUint reads an optional unsigned query parameter. Absent is zero.
func queryUint(r *http.Request, name string) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errs.InvalidArgument("invalid " + name)
	}
	return v, nil
}

func recordPath(r *http.Request) (ids.ID, state.DocumentKind, error) {
	pid, err := patientID(r)
	if err != nil {
		return ids.Empty, 0, err
	}
	kind, err := documentKind(r)
	return pid, kind, err
}
