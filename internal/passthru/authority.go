package passthru

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/smbcore/smbd/internal/logger"
)

// RemoteLogonResult is what a remote authority reports back for a
// session-setup call.
type RemoteLogonResult struct {
	Authenticated bool
	Guest         bool
}

// RemoteAuthSession is a single back-channel session opened against a
// remote authority for the duration of one logon attempt.
type RemoteAuthSession interface {
	// Challenge returns the 8-byte NTLM challenge the authority generated
	// for this session.
	Challenge() [8]byte

	// SessionSetup forwards the client's NTLMv1 credentials to the
	// authority for validation.
	SessionSetup(ctx context.Context, domain, username string, lmResponse, ntResponse []byte) (*RemoteLogonResult, error)

	// Close releases the back-channel session. Safe to call more than
	// once.
	Close() error
}

// RemoteAuthority is a single passthru target: a domain controller or
// peer server capable of validating NTLM credentials on our behalf.
type RemoteAuthority interface {
	// Name identifies the authority for logging and round-robin bookkeeping.
	Name() string

	// Domain is the authority's domain, used for affinity matching.
	Domain() string

	// OpenSession opens a new back-channel session and obtains a fresh
	// challenge, bounded by the given timeout.
	OpenSession(ctx context.Context, timeout time.Duration) (RemoteAuthSession, error)

	// Probe checks reachability without performing a real logon — an
	// IPC$ auth session open is the conventional probe.
	Probe(ctx context.Context) error
}

// AuthorityPoolConfig configures the online/offline tracker and the
// server-selection policy.
type AuthorityPoolConfig struct {
	Authorities []RemoteAuthority

	// CheckInterval is how often offline authorities are reprobed.
	// Clamped to [MinCheckInterval, MaxCheckInterval].
	CheckInterval time.Duration

	// NullDomainUseAnyServer allows falling through to any online
	// authority when no domain-matching one exists and the client
	// supplied no domain.
	NullDomainUseAnyServer bool
}

const (
	MinCheckInterval     = 10 * time.Second
	MaxCheckInterval     = 15 * time.Minute
	DefaultCheckInterval = 5 * time.Minute

	MinSessionTimeout     = 2 * time.Second
	MaxSessionTimeout     = 30 * time.Second
	DefaultSessionTimeout = 10 * time.Second
)

func clampDuration(d, min, max, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}

// AuthorityPool tracks which remote authorities are reachable and picks
// one per logon attempt: round-robin over the online set, with affinity
// to the client-supplied domain.
type AuthorityPool struct {
	mu        sync.Mutex
	cfg       AuthorityPoolConfig
	rr        int
	onl       map[string]bool
	scheduler gocron.Scheduler
}

// NewAuthorityPool builds a pool over cfg.Authorities, all assumed online
// until a session open fails against one.
func NewAuthorityPool(cfg AuthorityPoolConfig) *AuthorityPool {
	cfg.CheckInterval = clampDuration(cfg.CheckInterval, MinCheckInterval, MaxCheckInterval, DefaultCheckInterval)
	online := make(map[string]bool, len(cfg.Authorities))
	for _, a := range cfg.Authorities {
		online[a.Name()] = true
	}
	return &AuthorityPool{cfg: cfg, onl: online}
}

// Start launches the background reachability checker that reprobes
// offline authorities on cfg.CheckInterval.
func (p *AuthorityPool) Start() error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = s.NewJob(
		gocron.DurationJob(p.cfg.CheckInterval),
		gocron.NewTask(p.probeOffline),
		gocron.WithName("passthru-authority-checker"),
	)
	if err != nil {
		return err
	}
	p.scheduler = s
	s.Start()
	return nil
}

// Shutdown stops the background checker.
func (p *AuthorityPool) Shutdown() error {
	if p.scheduler == nil {
		return nil
	}
	return p.scheduler.Shutdown()
}

func (p *AuthorityPool) probeOffline() {
	p.mu.Lock()
	var offline []RemoteAuthority
	for _, a := range p.cfg.Authorities {
		if !p.onl[a.Name()] {
			offline = append(offline, a)
		}
	}
	p.mu.Unlock()

	for _, a := range offline {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultSessionTimeout)
		err := a.Probe(ctx)
		cancel()
		if err == nil {
			p.markOnline(a.Name())
			logger.Info("passthru authority back online", logger.Authority(a.Name()))
		}
	}
}

func (p *AuthorityPool) markOffline(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onl[name] = false
}

func (p *AuthorityPool) markOnline(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onl[name] = true
}

// Select returns the next authority to try for the given client domain,
// round-robining over the online set with domain affinity. Returns nil
// if no candidate is available.
func (p *AuthorityPool) Select(domain string) RemoteAuthority {
	p.mu.Lock()
	defer p.mu.Unlock()

	var matching, any []RemoteAuthority
	for _, a := range p.cfg.Authorities {
		if !p.onl[a.Name()] {
			continue
		}
		any = append(any, a)
		if domain != "" && a.Domain() == domain {
			matching = append(matching, a)
		}
	}

	candidates := matching
	if len(candidates) == 0 {
		if domain != "" {
			return nil
		}
		if !p.cfg.NullDomainUseAnyServer {
			return nil
		}
		candidates = any
	}
	if len(candidates) == 0 {
		return nil
	}

	p.rr = (p.rr + 1) % len(candidates)
	return candidates[p.rr]
}
