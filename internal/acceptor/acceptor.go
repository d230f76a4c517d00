// Package acceptor wires startup sequencing (gateway, entropy seeding,
// vsock listener) to the per-connection session dispatcher, matching
// original_source/nitro_signer_app/src/app.rs's App::init/App::run split.
package acceptor

import (
	"context"
	"net"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecadlabs/enclave-signer/internal/encryption"
	"github.com/ecadlabs/enclave-signer/internal/rpcproto"
	"github.com/ecadlabs/enclave-signer/internal/secmodule"
	"github.com/ecadlabs/enclave-signer/internal/session"
	"github.com/ecadlabs/enclave-signer/internal/vsockio"
)

// Config holds the acceptor's startup parameters.
type Config struct {
	ListenPort   uint32
	EntropyBytes int
}

// Acceptor owns the listener and the shared gateway handle every
// connection's session is built against.
type Acceptor struct {
	gateway secmodule.Gateway
	factory encryption.Factory
	logger  zerolog.Logger
	cfg     Config
}

// New validates nothing beyond struct population; gateway must already be
// open. Run does the remaining startup sequencing (seed entropy) before it
// binds a port.
func New(gateway secmodule.Gateway, factory encryption.Factory, logger zerolog.Logger, cfg Config) *Acceptor {
	return &Acceptor{
		gateway: gateway,
		factory: factory,
		logger:  logger.With().Str("component", "acceptor").Logger(),
		cfg:     cfg,
	}
}

// Run seeds the kernel entropy pool from the gateway once, then binds the
// vsock listener and accepts connections until ctx is canceled or Accept
// fails.
func (a *Acceptor) Run(ctx context.Context) error {
	n := a.cfg.EntropyBytes
	if n <= 0 {
		n = secmodule.DefaultEntropyBytes
	}
	if err := secmodule.SeedEntropy(a.gateway, n); err != nil {
		return err
	}

	ln, err := vsockio.Listen(a.cfg.ListenPort)
	if err != nil {
		return err
	}
	defer ln.Close()

	a.logger.Info().Uint32("port", a.cfg.ListenPort).Msg("listening")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go a.handle(ctx, conn)
	}
}

// HandleForTest exposes the per-connection handler to tests that drive a
// simulated connection (net.Pipe) without a real vsock listener.
func HandleForTest(a *Acceptor, ctx context.Context, conn net.Conn) {
	a.handle(ctx, conn)
}

// handle drives one connection's request/response loop until a clean
// close or transport error. Panics in a single connection's handler are
// recovered and logged so one bad peer cannot take down the process.
func (a *Acceptor) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	logger := a.logger.With().
		Str("remote", conn.RemoteAddr().String()).
		Str("conn_id", uuid.NewString()).
		Logger()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("connection handler panicked")
		}
	}()

	sess := session.New(a.gateway, a.factory, func(n int) ([]byte, error) {
		return secmodule.RandomBytes(a.gateway, n)
	})
	defer sess.Scrub()

	for {
		payload, err := rpcproto.ReadFrame(conn)
		if err != nil {
			if err == rpcproto.ErrCleanClose {
				logger.Debug().Msg("connection closed")
				return
			}
			logger.Warn().Err(err).Msg("transport error reading frame")
			return
		}

		var req rpcproto.Request
		var respBytes []byte
		if err := req.UnmarshalCBOR(payload); err != nil {
			respBytes, err = rpcproto.EncodeErr(rpcproto.Wrap(rpcproto.KindDeserialize, err))
			if err != nil {
				logger.Error().Err(err).Msg("failed to encode deserialize error response")
				return
			}
		} else {
			result, rpcErr := sess.Dispatch(ctx, &req)
			if rpcErr != nil {
				respBytes, err = rpcproto.EncodeErr(rpcErr)
			} else {
				respBytes, err = rpcproto.EncodeOk(result)
			}
			if err != nil {
				logger.Error().Err(err).Msg("failed to encode response")
				return
			}
		}

		if err := rpcproto.WriteFrame(conn, respBytes); err != nil {
			logger.Warn().Err(err).Msg("transport error writing frame")
			return
		}
	}
}
