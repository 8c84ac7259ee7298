package nodegraph

import (
	"context"
	"fmt"
	"strings"

	"cinemastudio/internal/providers/backend"
)

// PoolOptions configures a pool of sessions spread over one or more hosts.
type PoolOptions struct {
	Options
	// Hosts are assigned to sessions round-robin. When empty, Options.Host is
	// split on commas.
	Hosts    []string
	Sessions int
}

// Pool multiplexes jobs over several independent sessions so a multi-shot
// batch can run concurrently against node-graph servers.
type Pool struct {
	sessions []*Session
	idle     chan *Session
}

// NewPool builds the sessions up front; each gets its own client id.
func NewPool(opts PoolOptions) (*Pool, error) {
	hosts := opts.Hosts
	if len(hosts) == 0 {
		for _, h := range strings.Split(opts.Host, ",") {
			if h = strings.TrimSpace(h); h != "" {
				hosts = append(hosts, h)
			}
		}
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("nodegraph: at least one host is required")
	}
	n := opts.Sessions
	if n <= 0 {
		n = len(hosts)
	}
	base := opts.Options
	base.Host = hosts[0]
	base, err := base.withDefaults()
	if err != nil {
		return nil, err
	}
	p := &Pool{
		sessions: make([]*Session, 0, n),
		idle:     make(chan *Session, n),
	}
	for i := 0; i < n; i++ {
		sessOpts := base
		sessOpts.Host = hosts[i%len(hosts)]
		s, err := NewSession(sessOpts)
		if err != nil {
			return nil, err
		}
		p.sessions = append(p.sessions, s)
		p.idle <- s
	}
	return p, nil
}

// Name identifies the adapter in logs and errors.
func (p *Pool) Name() string { return name }

// Size reports the number of sessions.
func (p *Pool) Size() int { return len(p.sessions) }

// Policy allows up to one job per session, capped at backend.MaxInFlight. A
// single session is sequential.
func (p *Pool) Policy() backend.Policy {
	if len(p.sessions) <= 1 {
		return backend.SequentialPolicy()
	}
	return backend.ConcurrentPolicy(len(p.sessions))
}

// PrepareReference uploads the file to every distinct host so any session
// can run the job. Uploads are named by content hash, so all hosts must
// report the same server-side name.
func (p *Pool) PrepareReference(ctx context.Context, file backend.LocalFile) (backend.Reference, error) {
	var ref backend.Reference
	seen := make(map[string]bool)
	for _, s := range p.sessions {
		host := s.endpoint.Host
		if seen[host] {
			continue
		}
		seen[host] = true
		got, err := s.PrepareReference(ctx, file)
		if err != nil {
			return backend.Reference{}, err
		}
		if ref.Value == "" {
			ref = got
			continue
		}
		if got.Value != ref.Value {
			return backend.Reference{}, backend.Rejected(name, "hosts disagree on reference name: %q vs %q", ref.Value, got.Value)
		}
	}
	return ref, nil
}

// GenerateImage runs the job on the next idle session.
func (p *Pool) GenerateImage(ctx context.Context, job backend.ImageJob) (*backend.Artifact, error) {
	s, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.release(s)
	return s.GenerateImage(ctx, job)
}

// GenerateVideo is not offered by node-graph templates.
func (p *Pool) GenerateVideo(context.Context, backend.VideoJob) (*backend.Artifact, error) {
	return nil, backend.Unsupported(name, "video generation")
}

func (p *Pool) acquire(ctx context.Context) (*Session, error) {
	select {
	case s := <-p.idle:
		return s, nil
	case <-ctx.Done():
		return nil, backend.Unavailable(name, ctx.Err(), "waiting for an idle session")
	}
}

func (p *Pool) release(s *Session) {
	p.idle <- s
}

var _ backend.Adapter = (*Pool)(nil)
