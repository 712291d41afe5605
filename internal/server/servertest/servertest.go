// Package servertest starts an in-process erpkeeper API backed by the
// in-memory credential store, for client tests.
package servertest

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/erpkeeper/internal/logging"
	"github.com/dmitrijs2005/erpkeeper/internal/server/auth"
	"github.com/dmitrijs2005/erpkeeper/internal/server/codes"
	"github.com/dmitrijs2005/erpkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/erpkeeper/internal/server/models"
	"github.com/dmitrijs2005/erpkeeper/internal/server/notify"
	"github.com/dmitrijs2005/erpkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/erpkeeper/internal/server/services"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// Server is a running test API. Codes it would have mailed are kept per
// recipient.
type Server struct {
	URL string

	mu    sync.Mutex
	codes map[string]string
}

func (s *Server) Send(_ context.Context, to string, _ notify.Kind, p notify.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Code != "" {
		s.codes[to] = p.Code
	}
	return nil
}

// Code returns the last code sent to the given address.
func (s *Server) Code(to string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[to]
}

type assets struct{}

func (assets) Upload(_ context.Context, a models.Avatar) (string, error) {
	return "http://assets.local/" + a.Filename, nil
}

// Start serves the API until the test ends.
func Start(t testing.TB) *Server {
	t.Helper()
	s := &Server{codes: map[string]string{}}

	svc := services.NewSessionService(services.Dependencies{
		Accounts: accounts.NewMemoryRepository(),
		Tokens:   auth.NewTokenService([]byte("access"), []byte("refresh"), 15*time.Minute, 240*time.Hour),
		Codes:    codes.NewGenerator(24 * time.Hour),
		Assets:   assets{},
		Notifier: s,
	}, services.Options{BcryptCost: bcrypt.MinCost})

	policy, err := httpapi.NewCookiePolicy(false, "lax", "", 15*time.Minute, 240*time.Hour)
	require.NoError(t, err)

	srv := httptest.NewServer(httpapi.NewRouter(httpapi.NewHandler(svc, policy, logging.Nop{}), httpapi.RouterOptions{}))
	t.Cleanup(srv.Close)
	s.URL = srv.URL
	return s
}
