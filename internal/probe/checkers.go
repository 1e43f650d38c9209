package probe

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/satomon/sato/internal/inventory"
)

// DefaultChecker dispatches on the service's declared check type. A target
// the checker cannot interpret yields a failure result, not an error: one
// bad descriptor must never take the engine down.
type DefaultChecker struct {
	Timeout time.Duration
	client  *http.Client
}

// NewDefaultChecker creates a checker with the given per-check timeout
func NewDefaultChecker(timeout time.Duration) *DefaultChecker {
	return &DefaultChecker{
		Timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Check runs the appropriate probe for the service
func (c *DefaultChecker) Check(ctx context.Context, svc inventory.Service) Result {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	switch svc.Check {
	case inventory.CheckHTTP:
		return c.checkHTTP(ctx, svc)
	case inventory.CheckTCP:
		return c.checkTCP(ctx, svc)
	case inventory.CheckContainer:
		return c.checkContainer(ctx, svc)
	case inventory.CheckUnit:
		return c.checkUnit(ctx, svc)
	case inventory.CheckCustom:
		return c.checkCustom(ctx, svc)
	default:
		return failure(svc, time.Now(), fmt.Sprintf("unknown check type %q", svc.Check))
	}
}

// checkHTTP succeeds on any 2xx response within the timeout
func (c *DefaultChecker) checkHTTP(ctx context.Context, svc inventory.Service) Result {
	started := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc.Target, nil)
	if err != nil {
		return failure(svc, started, fmt.Sprintf("malformed target: %v", err))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return failure(svc, started, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return success(svc, started, fmt.Sprintf("HTTP %d", resp.StatusCode))
	}
	return failure(svc, started, fmt.Sprintf("HTTP %d", resp.StatusCode))
}

// checkTCP succeeds if the target accepts a connection
func (c *DefaultChecker) checkTCP(ctx context.Context, svc inventory.Service) Result {
	started := time.Now()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", svc.Target)
	if err != nil {
		return failure(svc, started, err.Error())
	}
	conn.Close()
	return success(svc, started, "listening")
}

// checkContainer succeeds if docker reports the container running
func (c *DefaultChecker) checkContainer(ctx context.Context, svc inventory.Service) Result {
	started := time.Now()

	out, err := exec.CommandContext(ctx, "docker", "inspect",
		"--format", "{{.State.Running}}", svc.Target).Output()
	if err != nil {
		return failure(svc, started, fmt.Sprintf("docker inspect failed: %v", err))
	}
	if strings.TrimSpace(string(out)) == "true" {
		return success(svc, started, "running")
	}
	return failure(svc, started, "not running")
}

// checkUnit succeeds if systemd reports the unit active
func (c *DefaultChecker) checkUnit(ctx context.Context, svc inventory.Service) Result {
	started := time.Now()

	out, err := exec.CommandContext(ctx, "systemctl", "is-active", svc.Target).Output()
	state := strings.TrimSpace(string(out))
	// systemctl exits non-zero for any inactive state; the output still
	// carries the state name.
	if err != nil && state == "" {
		return failure(svc, started, fmt.Sprintf("systemctl is-active failed: %v", err))
	}
	if state == "active" {
		return success(svc, started, "active")
	}
	return failure(svc, started, state)
}

// checkCustom runs the target as a shell command; exit 0 is success
func (c *DefaultChecker) checkCustom(ctx context.Context, svc inventory.Service) Result {
	started := time.Now()

	if strings.TrimSpace(svc.Target) == "" {
		return failure(svc, started, "empty custom check command")
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", svc.Target)
	if err := cmd.Run(); err != nil {
		return failure(svc, started, err.Error())
	}
	return success(svc, started, "exit 0")
}
