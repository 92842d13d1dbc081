package errs

import "net/http"

// HTTPStatus maps a kind to the status code the API answers with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindAuthorization:
		return http.StatusForbidden
	case KindInsufficientBalance:
		return http.StatusPaymentRequired
	case KindStaleOracle:
		return http.StatusServiceUnavailable
	case KindInvalidProof:
		return http.StatusConflict
	case KindConfiguration:
		return http.StatusFailedDependency
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindOracle:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
