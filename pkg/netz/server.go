package netz

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/netzcore/netzd/internal/config"
	"github.com/netzcore/netzd/pkg/kerberos"
	"github.com/netzcore/netzd/pkg/rmc"
)

// Server is one netzd process: a shared principal directory, one
// kerberos.Service per authentication/secure endpoint pair, and one
// Endpoint per configured `[[service]]` table. Grounded on
// pkg/atlas/server.go's NewServer(*Config) validate-then-build shape,
// adapted from one HTTP server to many independent UDP endpoints.
type Server struct {
	Principals *PrincipalStore
	Endpoints  []*Endpoint

	Logger zerolog.Logger
}

// AuthServerPID and SecureServerPID are the well-known principal ids for
// the two built-in services, matching the convention documented on
// kerberos.Principal ("pid 1 is the authentication server, pid 2 is the
// secure server"). Every ticket this server issues targets
// SecureServerPID, so one kerberos.Service (SelfPID=SecureServerPID)
// serves both the authentication endpoint's issuance and the secure
// endpoint's validation.
const (
	AuthServerPID   uint32 = 1
	SecureServerPID uint32 = 2
)

// NewServer validates c and wires up every configured service. It builds
// one shared PrincipalStore and kerberos.Service, since a deployment's
// authentication and secure endpoints issue and validate tickets against
// the same principal directory and master secret.
func NewServer(c *config.Config, logger zerolog.Logger) (*Server, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	principals := make([]kerberos.Principal, 0, len(c.Principals))
	for _, p := range c.Principals {
		principals = append(principals, kerberos.Principal{
			PID:      p.PID,
			Name:     p.Name,
			Password: p.Password,
		})
	}
	store := NewPrincipalStore(principals...)
	tickets := &kerberos.Service{Store: store, SelfPID: SecureServerPID}

	s := &Server{Principals: store, Logger: logger}

	for i, svc := range c.Services {
		accessKey, err := decodeAccessKey(svc.AccessKey)
		if err != nil {
			return nil, fmt.Errorf("service %d: %w", i, err)
		}

		ep := &Endpoint{
			Name:             fmt.Sprintf("%s:%d", svc.Kind, i),
			ListenAddr:       svc.Listen,
			AccessKey:        accessKey,
			VPortServer:      svc.VPortServer,
			VPortClient:      svc.VPortClient,
			SecureServerAddr: svc.SecureServerAddr,
			Logger:           logger.With().Str("endpoint", string(svc.Kind)).Int("index", i).Logger(),
			Registry:         registryFor(svc.Kind, tickets, svc.SecureServerAddr),
		}
		if svc.Kind == config.KindSecure {
			ep.Tickets = tickets
		}
		s.Endpoints = append(s.Endpoints, ep)
	}

	return s, nil
}

// decodeAccessKey accepts either a raw string or a hex-encoded one
// (prefixed "hex:"), since a real PRUDP access key is usually an ASCII
// password but some deployments prefer a fixed-length binary key.
func decodeAccessKey(s string) ([]byte, error) {
	if rest, ok := cutPrefix(s, "hex:"); ok {
		b, err := hex.DecodeString(rest)
		if err != nil {
			return nil, fmt.Errorf("invalid hex access_key: %w", err)
		}
		return b, nil
	}
	return []byte(s), nil
}

func cutPrefix(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || s[:len(prefix)] != prefix {
		return "", false
	}
	return s[len(prefix):], true
}

// registryFor builds the protocol registry a service kind exposes.
// KindConfig gets none of its own handlers; it exists for deployments
// that terminate an unauthenticated discovery endpoint without any RMC
// traffic at all.
func registryFor(kind config.Kind, tickets *kerberos.Service, secureServerAddr string) *rmc.Registry {
	r := rmc.NewRegistry()
	switch kind {
	case config.KindAuthentication:
		r.Register(NewTicketGrantingProtocol(tickets, secureServerAddr))
	case config.KindSecure:
		r.Register(NewSecureConnectionProtocol())
		r.Register(NewLadderProtocol())
		r.Register(NewPrivilegesProtocol())
	}
	return r
}

// ReloadPrincipals replaces the server's principal directory in place,
// for SIGHUP-triggered admin storage reloads: the config
// file's listen addresses and access keys are not re-read, only the
// principal list.
func (s *Server) ReloadPrincipals(principals []config.Principal) {
	out := make([]kerberos.Principal, 0, len(principals))
	for _, p := range principals {
		out = append(out, kerberos.Principal{PID: p.PID, Name: p.Name, Password: p.Password})
	}
	s.Principals.Replace(out)
}

// Run starts every endpoint and blocks until ctx is cancelled or one
// endpoint's listener returns an error. The first such error cancels the
// rest, shutting every listener down together on any one failure.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(s.Endpoints))
	var wg sync.WaitGroup
	for _, ep := range s.Endpoints {
		ep := ep
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Logger.Info().Str("endpoint", ep.Name).Str("listen", ep.ListenAddr).Msg("listening")
			if err := ep.ListenAndServe(ctx, ep.ListenAddr); err != nil {
				errCh <- err
				cancel()
			}
		}()
	}
	wg.Wait()
	close(errCh)

	var first error
	for err := range errCh {
		if first == nil && !errors.Is(err, context.Canceled) {
			first = err
		}
	}
	return first
}
