package controller

import (
	"fmt"
	"path/filepath"
	"sync"
)

// basePort is the first communication endpoint port handed out
const basePort = 5000

// Provisioner is the worker-provisioner boundary. The controller
// references external worker processes by endpoint only; the
// collaborator owns the process itself.
type Provisioner interface {
	// CreateWorkspace prepares an isolated workspace for an instance
	CreateWorkspace(instanceID, branchName string) (string, error)

	// SpawnProcess starts a worker and returns its process id and
	// communication endpoint
	SpawnProcess(instanceID, workspacePath string) (pid int, endpoint string, err error)

	// Terminate stops a worker process
	Terminate(pid int) error
}

// LocalProvisioner synthesizes workspaces and endpoints on the local
// host. Endpoints are tcp URLs with ports incrementing from a known
// base. It never starts real processes; worker lifecycles belong to
// an external collaborator.
type LocalProvisioner struct {
	root string

	mu       sync.Mutex
	nextPort int
	nextPID  int
}

// NewLocalProvisioner creates a local provisioner rooted at the given
// workspace directory
func NewLocalProvisioner(root string) *LocalProvisioner {
	if root == "" {
		root = filepath.Join("/tmp", "swarmctl-workspaces")
	}
	return &LocalProvisioner{
		root:     root,
		nextPort: basePort,
		nextPID:  1000,
	}
}

// CreateWorkspace returns the workspace path for an instance
func (p *LocalProvisioner) CreateWorkspace(instanceID, branchName string) (string, error) {
	return filepath.Join(p.root, instanceID), nil
}

// SpawnProcess allocates a synthetic pid and the next endpoint
func (p *LocalProvisioner) SpawnProcess(instanceID, workspacePath string) (int, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pid := p.nextPID
	p.nextPID++
	endpoint := fmt.Sprintf("tcp://localhost:%d", p.nextPort)
	p.nextPort++

	return pid, endpoint, nil
}

// Terminate is a no-op for synthetic processes
func (p *LocalProvisioner) Terminate(pid int) error {
	return nil
}
