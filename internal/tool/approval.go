package tool

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// ApprovalRequest is sent to an ApprovalRequester when a synthesized artifact
// needs confirmation before it may run.
type ApprovalRequest struct {
	// ID is a unique identifier for this approval request.
	ID string

	// ExecutionID ties the request to one engine invocation.
	ExecutionID string

	// Intent is the natural-language request that produced the artifact.
	Intent string

	// Tools are the tools the artifact calls.
	Tools []string

	// RiskScore and Reasons summarize why approval is needed.
	RiskScore int
	Reasons   []string

	// Source is the artifact source text shown to the approver.
	Source string
}

// ApprovalResponse is the result of an approval request.
type ApprovalResponse struct {
	// Approved indicates whether the artifact may run.
	Approved bool

	// Reason is an optional explanation for the decision.
	Reason string
}

// ApprovalRequester asks a host for approval.
type ApprovalRequester interface {
	// RequestApproval sends an approval request and blocks until a response
	// is received or the context is cancelled.
	RequestApproval(ctx context.Context, req ApprovalRequest) (ApprovalResponse, error)
}

// ApprovalFunc adapts a function to ApprovalRequester.
type ApprovalFunc func(ctx context.Context, req ApprovalRequest) (ApprovalResponse, error)

// RequestApproval calls f.
func (f ApprovalFunc) RequestApproval(ctx context.Context, req ApprovalRequest) (ApprovalResponse, error) {
	return f(ctx, req)
}

type pendingApproval struct {
	req     ApprovalRequest
	created time.Time
	decided chan ApprovalResponse
}

// Approvals tracks artifacts waiting for a decision. A decision comes from
// the configured requester or from Resolve, whichever answers first; no
// answer before the timeout denies the artifact.
type Approvals struct {
	requester ApprovalRequester
	timeout   time.Duration

	mu      sync.Mutex
	pending map[string]*pendingApproval
}

// NewApprovals creates a broker. requester may be nil, in which case only
// Resolve can approve.
func NewApprovals(requester ApprovalRequester, timeout time.Duration) *Approvals {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Approvals{
		requester: requester,
		timeout:   timeout,
		pending:   make(map[string]*pendingApproval),
	}
}

// Request registers req and blocks until it is decided. A lapsed timeout
// returns a denial together with ErrApprovalTimeout; a cancelled ctx
// returns ctx.Err().
func (a *Approvals) Request(ctx context.Context, req ApprovalRequest) (ApprovalResponse, error) {
	if req.ID == "" {
		return ApprovalResponse{}, errors.New("approval request has no ID")
	}
	p := &pendingApproval{req: req, created: time.Now(), decided: make(chan ApprovalResponse, 1)}

	a.mu.Lock()
	if _, dup := a.pending[req.ID]; dup {
		a.mu.Unlock()
		return ApprovalResponse{}, fmt.Errorf("%w: %s", ErrApprovalPending, req.ID)
	}
	a.pending[req.ID] = p
	a.mu.Unlock()
	defer a.forget(req.ID)

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	failed := make(chan error, 1)
	if a.requester != nil {
		go func() {
			resp, err := a.requester.RequestApproval(ctx, req)
			if err != nil {
				failed <- err
				return
			}
			a.Resolve(req.ID, resp)
		}()
	}

	select {
	case resp := <-p.decided:
		return resp, nil
	case err := <-failed:
		if ctx.Err() == nil {
			return ApprovalResponse{}, err
		}
		return a.lapsed(ctx)
	case <-ctx.Done():
		return a.lapsed(ctx)
	}
}

func (a *Approvals) lapsed(ctx context.Context) (ApprovalResponse, error) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ApprovalResponse{Reason: "timed out"}, ErrApprovalTimeout
	}
	return ApprovalResponse{}, ctx.Err()
}

func (a *Approvals) forget(id string) {
	a.mu.Lock()
	delete(a.pending, id)
	a.mu.Unlock()
}

// Resolve delivers a decision for a pending request. It reports false when
// id is unknown or already decided.
func (a *Approvals) Resolve(id string, resp ApprovalResponse) bool {
	a.mu.Lock()
	p, ok := a.pending[id]
	a.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case p.decided <- resp:
		return true
	default:
		return false
	}
}

// Pending returns the undecided requests, oldest first.
func (a *Approvals) Pending() []ApprovalRequest {
	a.mu.Lock()
	waiting := make([]*pendingApproval, 0, len(a.pending))
	for _, p := range a.pending {
		waiting = append(waiting, p)
	}
	a.mu.Unlock()

	slices.SortFunc(waiting, func(x, y *pendingApproval) int {
		if c := x.created.Compare(y.created); c != 0 {
			return c
		}
		return cmp.Compare(x.req.ID, y.req.ID)
	})
	out := make([]ApprovalRequest, len(waiting))
	for i, p := range waiting {
		out[i] = p.req
	}
	return out
}
