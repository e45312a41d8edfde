package orchestrator

import (
	"context"
	"fmt"
	"sync"
)

// SplitCall records one ConfigureTrafficSplit invocation
type SplitCall struct {
	Namespace  string
	BlueID     string
	GreenID    string
	Percentage int
}

// RollbackCall records one Rollback invocation
type RollbackCall struct {
	Namespace   string
	Name        string
	TargetImage string
}

// Fake is an in-memory Client for tests. Statuses are scripted per
// namespace/name key and every mutating call is recorded.
type Fake struct {
	mu sync.Mutex

	statuses map[string]*ServiceStatus

	// Scripted failures
	CreateErr error
	StatusErr error
	SplitErr  error
	RollErr   error

	Created   map[string]ServiceSpec
	Splits    []SplitCall
	Rollbacks []RollbackCall
}

// NewFake creates an empty fake orchestrator
func NewFake() *Fake {
	return &Fake{
		statuses: make(map[string]*ServiceStatus),
		Created:  make(map[string]ServiceSpec),
	}
}

func key(namespace, name string) string {
	return namespace + "/" + name
}

// SetStatus scripts the status returned for namespace/name
func (f *Fake) SetStatus(namespace, name string, status ServiceStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := status
	f.statuses[key(namespace, name)] = &s
}

func (f *Fake) CreateService(ctx context.Context, namespace, name string, spec ServiceSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return f.CreateErr
	}
	f.Created[key(namespace, name)] = spec
	if _, ok := f.statuses[key(namespace, name)]; !ok {
		f.statuses[key(namespace, name)] = &ServiceStatus{
			Phase:        PhaseDeploying,
			CurrentImage: spec.Image,
		}
	}
	return nil
}

func (f *Fake) GetStatus(ctx context.Context, namespace, name string) (*ServiceStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StatusErr != nil {
		return nil, f.StatusErr
	}
	status, ok := f.statuses[key(namespace, name)]
	if !ok {
		return nil, fmt.Errorf("service %s/%s not found", namespace, name)
	}
	s := *status
	return &s, nil
}

func (f *Fake) Rollback(ctx context.Context, namespace, name, targetImage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RollErr != nil {
		return f.RollErr
	}
	f.Rollbacks = append(f.Rollbacks, RollbackCall{Namespace: namespace, Name: name, TargetImage: targetImage})
	if status, ok := f.statuses[key(namespace, name)]; ok {
		status.PreviousImage = status.CurrentImage
		status.CurrentImage = targetImage
		status.Phase = PhaseRollingBack
	}
	return nil
}

func (f *Fake) ConfigureTrafficSplit(ctx context.Context, namespace, blueID, greenID string, percentage int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SplitErr != nil {
		return f.SplitErr
	}
	f.Splits = append(f.Splits, SplitCall{Namespace: namespace, BlueID: blueID, GreenID: greenID, Percentage: percentage})
	return nil
}

// CallCount returns the total number of mutating calls recorded
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Created) + len(f.Splits) + len(f.Rollbacks)
}

// LastSplit returns the most recent traffic split call, or nil
func (f *Fake) LastSplit() *SplitCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Splits) == 0 {
		return nil
	}
	call := f.Splits[len(f.Splits)-1]
	return &call
}
