package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/erpkeeper/internal/common"
)

// ErrNotLoggedIn is returned by authenticated calls when no session is cached.
var ErrNotLoggedIn = errors.New("not logged in")

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

var sentinels = map[int][]error{
	http.StatusBadRequest: {common.ErrValidation, common.ErrInvalidOrExpired},
	http.StatusUnauthorized: {
		common.ErrInvalidCredentials, common.ErrUnverified, common.ErrTokenReuse,
		common.ErrInvalidToken, common.ErrTokenExpired, common.ErrUnauthorized,
	},
	http.StatusNotFound:        {common.ErrNotFound},
	http.StatusConflict:        {common.ErrConflict},
	http.StatusTooManyRequests: {common.ErrRateLimited},
}

// Unwrap maps the response back onto the shared error taxonomy so callers
// can use errors.Is. The message prefix picks between kinds sharing a status.
func (e *APIError) Unwrap() error {
	list, ok := sentinels[e.Status]
	if !ok {
		return common.ErrInternal
	}
	for _, s := range list {
		if strings.HasPrefix(e.Message, s.Error()) {
			return s
		}
	}
	return list[len(list)-1]
}
