// Package passthru implements a logon authenticator that never validates
// credentials itself: every NTLM exchange is proxied to a remote
// authority (a domain controller or peer server), and the local side only
// speaks the NTLMSSP/SPNEGO wire format well enough to shuttle challenge
// and response between the client and that authority.
package passthru

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smbcore/smbd/internal/logger"
	"github.com/smbcore/smbd/internal/passthru/ntlm"
	"github.com/smbcore/smbd/internal/passthru/spnego"
	"github.com/smbcore/smbd/internal/serrors"
)

// AuthResult is what a completed logon attempt produces.
type AuthResult struct {
	Username string
	Domain   string
	Guest    bool
}

// Config controls the authenticator's behavior.
type Config struct {
	Pool *AuthorityPool

	// SessionTimeout bounds how long a single remote auth session may
	// stay open. Clamped to [MinSessionTimeout, MaxSessionTimeout].
	SessionTimeout time.Duration

	// GuestAllowed permits a remote "guest" verdict to produce a guest
	// token instead of LogonFailure.
	GuestAllowed bool

	// Server/DnsDomain/DnsServer populate the type-2 TargetInfo TLVs.
	Domain    string
	Server    string
	DnsDomain string
	DnsServer string
}

// pendingKey disambiguates multi-stage logons that share one transport
// session but carry distinct process ids (SMB multiplexes several
// in-flight requests per connection).
type pendingKey struct {
	sessionID uint64
	processID uint32
}

// pendingAuth is the per-logon-attempt state tracked between the
// Negotiate and Authenticate legs.
type pendingAuth struct {
	remote    RemoteAuthSession
	createdAt time.Time
}

// Authenticator runs the passthru logon state machine, one instance per
// NetworkServer, tracking many concurrent sessions.
type Authenticator struct {
	cfg     Config
	mu      sync.Mutex
	pending map[pendingKey]*pendingAuth

	sessionCounter atomic.Uint64
}

// NewAuthenticator builds an Authenticator bound to cfg.Pool.
func NewAuthenticator(cfg Config) *Authenticator {
	cfg.SessionTimeout = clampDuration(cfg.SessionTimeout, MinSessionTimeout, MaxSessionTimeout, DefaultSessionTimeout)
	return &Authenticator{
		cfg:     cfg,
		pending: make(map[pendingKey]*pendingAuth),
	}
}

// NextSessionID hands out a unique id for a new logon attempt.
func (a *Authenticator) NextSessionID() uint64 {
	return a.sessionCounter.Add(1)
}

// Init opens a remote auth session for (sessionID, processID), trying
// authorities selected by domain affinity one at a time: an authority whose
// OpenSession fails is marked offline and the next candidate from the pool
// is tried within this same attempt, until one succeeds or the pool is
// exhausted.
func (a *Authenticator) Init(ctx context.Context, sessionID uint64, processID uint32, domain string) error {
	var lastErr error

	for {
		authority := a.cfg.Pool.Select(domain)
		if authority == nil {
			if lastErr != nil {
				return lastErr
			}
			return serrors.New(serrors.ErrNoAuthorityAvailable, "passthru: no online authority available")
		}

		sessCtx, cancel := context.WithTimeout(ctx, a.cfg.SessionTimeout)
		remote, err := authority.OpenSession(sessCtx, a.cfg.SessionTimeout)
		cancel()
		if err != nil {
			a.cfg.Pool.markOffline(authority.Name())
			if err == context.DeadlineExceeded {
				lastErr = serrors.New(serrors.ErrAuthorityTimeout, "passthru: authority session open timed out")
			} else {
				lastErr = serrors.New(serrors.ErrNoAuthorityAvailable, fmt.Sprintf("passthru: authority %s unreachable: %v", authority.Name(), err))
			}
			logger.Warn("passthru authority unreachable, trying next candidate", logger.Authority(authority.Name()), logger.Err(err))
			continue
		}

		key := pendingKey{sessionID: sessionID, processID: processID}
		a.mu.Lock()
		a.pending[key] = &pendingAuth{remote: remote, createdAt: time.Now()}
		a.mu.Unlock()

		logger.Debug("passthru auth session opened", logger.SessionID(sessionID), logger.Authority(authority.Name()), logger.ProcessID(processID))
		return nil
	}
}

// Negotiate handles an NTLMSSP type-1 message (raw or SPNEGO-wrapped),
// returning a type-2 challenge to send back to the client.
func (a *Authenticator) Negotiate(sessionID uint64, processID uint32, wrapSPNEGO bool) ([]byte, error) {
	key := pendingKey{sessionID: sessionID, processID: processID}
	a.mu.Lock()
	p, ok := a.pending[key]
	a.mu.Unlock()
	if !ok {
		return nil, serrors.New(serrors.ErrLogonFailure, "passthru: negotiate with no pending session")
	}

	challenge := p.remote.Challenge()
	type2 := ntlm.BuildChallenge(challenge, a.cfg.Domain, a.cfg.Server, a.cfg.DnsDomain, a.cfg.DnsServer)

	if wrapSPNEGO {
		wrapped, err := spnego.BuildAcceptIncomplete(spnego.OIDNTLMSSP, type2)
		if err != nil {
			return nil, serrors.New(serrors.ErrLogonFailure, "passthru: failed to wrap challenge in spnego")
		}
		return wrapped, nil
	}
	return type2, nil
}

// Authenticate handles an NTLMSSP type-3 message (raw or SPNEGO-wrapped),
// forwarding NTLMv1 credentials to the remote authority. NTLMv2 responses
// are rejected locally: passthru never validates a v2 response itself.
func (a *Authenticator) Authenticate(ctx context.Context, sessionID uint64, processID uint32, token []byte) (*AuthResult, error) {
	key := pendingKey{sessionID: sessionID, processID: processID}
	a.mu.Lock()
	p, ok := a.pending[key]
	a.mu.Unlock()
	if !ok {
		return nil, serrors.New(serrors.ErrLogonFailure, "passthru: authenticate with no pending session")
	}
	defer a.Cleanup(sessionID, processID)

	msg, err := ntlm.ParseAuthenticate(token)
	if err != nil {
		return nil, serrors.New(serrors.ErrLogonFailure, "passthru: malformed authenticate message")
	}

	if msg.IsAnonymous {
		if a.cfg.GuestAllowed {
			return &AuthResult{Guest: true}, nil
		}
		return nil, serrors.New(serrors.ErrLogonFailure, "passthru: anonymous logon not permitted")
	}

	if msg.IsNTLMv2() {
		return nil, serrors.New(serrors.ErrLogonFailure, "passthru: ntlmv2 not handled by passthru")
	}

	setupCtx, cancel := context.WithTimeout(ctx, a.cfg.SessionTimeout)
	defer cancel()

	result, err := p.remote.SessionSetup(setupCtx, msg.Domain, msg.Username, msg.LmChallengeResponse, msg.NtChallengeResponse)
	if err != nil {
		if setupCtx.Err() == context.DeadlineExceeded {
			return nil, serrors.New(serrors.ErrAuthorityTimeout, "passthru: authority session-setup timed out")
		}
		return nil, serrors.New(serrors.ErrLogonFailure, fmt.Sprintf("passthru: authority rejected session-setup: %v", err))
	}

	if !result.Authenticated {
		if result.Guest && a.cfg.GuestAllowed {
			return &AuthResult{Username: msg.Username, Domain: msg.Domain, Guest: true}, nil
		}
		return nil, serrors.New(serrors.ErrLogonFailure, "passthru: authority denied logon")
	}

	return &AuthResult{Username: msg.Username, Domain: msg.Domain}, nil
}

// ReapStale closes and drops any pending logon older than maxAge — a
// client that opened a session but never completed the handshake.
// Returns the count reaped.
func (a *Authenticator) ReapStale(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	a.mu.Lock()
	var stale []*pendingAuth
	for k, p := range a.pending {
		if p.createdAt.Before(cutoff) {
			stale = append(stale, p)
			delete(a.pending, k)
		}
	}
	a.mu.Unlock()

	for _, p := range stale {
		if p.remote != nil {
			_ = p.remote.Close()
		}
	}
	return len(stale)
}

// Cleanup closes the remote auth session for (sessionID, processID), if
// any, and drops its pending state. Safe to call more than once, and safe
// to call on a logon that never reached Init (e.g. connection reset
// mid-negotiate).
func (a *Authenticator) Cleanup(sessionID uint64, processID uint32) {
	key := pendingKey{sessionID: sessionID, processID: processID}
	a.mu.Lock()
	p, ok := a.pending[key]
	if ok {
		delete(a.pending, key)
	}
	a.mu.Unlock()

	if ok && p.remote != nil {
		_ = p.remote.Close()
	}
}
