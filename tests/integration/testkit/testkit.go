package testkit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-acmt-server/internal/app"
	"github.com/sha1n/mcp-acmt-server/internal/config"
	"github.com/spf13/pflag"
)

// PropSSEURL is the property holding the SSE endpoint of a started ServerService
const PropSSEURL = "sse_url"

// Service is a dependency started for an integration test
type Service interface {
	Start() (map[string]any, error)
	Stop() error
	Name() string
}

// Env starts services in order, collects their properties and stops them in reverse
type Env struct {
	services []Service
	props    map[string]any
}

// NewEnv creates a new test environment with the given services
func NewEnv(services ...Service) *Env {
	return &Env{services: services, props: make(map[string]any)}
}

// Start starts every service and merges the properties they report
func (e *Env) Start() (map[string]any, error) {
	for _, s := range e.services {
		props, err := s.Start()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Name(), err)
		}
		for k, v := range props {
			e.props[k] = v
		}
	}
	return e.props, nil
}

// Stop stops every service in reverse order and returns the last error
func (e *Env) Stop() error {
	var lastErr error
	for i := len(e.services) - 1; i >= 0; i-- {
		if err := e.services[i].Stop(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Property returns a property reported by a started service
func (e *Env) Property(name string) (any, bool) {
	v, ok := e.props[name]
	return v, ok
}

// GetFreePort returns a free port from the kernel
func GetFreePort() (int, error) {
	return getFreePortWithAddr("localhost:0")
}

// MustGetFreePort returns a free port or fails the test
func MustGetFreePort(t testing.TB) int {
	t.Helper()
	port, err := GetFreePort()
	if err != nil {
		t.Fatalf("Failed to get free port: %v", err)
	}
	return port
}

func getFreePortWithAddr(addrStr string) (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", addrStr)
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// Workspace is a temporary commands and reports layout
type Workspace struct {
	CommandsDir string
	ReportsDir  string
	LocalDir    string
}

// NewWorkspace creates empty commands, reports and local report directories
func NewWorkspace(t testing.TB) *Workspace {
	t.Helper()
	root := t.TempDir()
	w := &Workspace{
		CommandsDir: filepath.Join(root, "Commands"),
		ReportsDir:  filepath.Join(root, "Commands-Analyze-Report"),
		LocalDir:    filepath.Join(root, "local-reports"),
	}
	for _, dir := range []string{w.CommandsDir, w.ReportsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("Failed to create %s: %v", dir, err)
		}
	}
	return w
}

// WriteCommand writes <name>.md into the commands directory
func (w *Workspace) WriteCommand(t testing.TB, name, content string) string {
	t.Helper()
	return writeFile(t, filepath.Join(w.CommandsDir, name+".md"), content)
}

// WriteReport writes a report file under the command's report directory
func (w *Workspace) WriteReport(t testing.TB, command, name, content string) string {
	t.Helper()
	return writeFile(t, filepath.Join(w.ReportsDir, command, name), content)
}

func writeFile(t testing.TB, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

// FlagOptions configures NewTestFlags
type FlagOptions struct {
	Port      int    // Uses free port if 0
	Host      string // Defaults to "localhost"
	Workspace *Workspace
	Watch     bool
	Index     bool
}

// NewTestFlags creates a configured pflag.FlagSet for an SSE server over the workspace.
// The local reports dir has no flag, so it is set through the environment.
func NewTestFlags(t testing.TB, opts FlagOptions) *pflag.FlagSet {
	t.Helper()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	app.RegisterFlags(flags)

	host := opts.Host
	if host == "" {
		host = "localhost"
	}
	port := opts.Port
	if port == 0 {
		port = MustGetFreePort(t)
	}

	_ = flags.Set("transport", config.TransportSSE)
	_ = flags.Set("host", host)
	_ = flags.Set("port", fmt.Sprintf("%d", port))
	_ = flags.Set("log-level", "error")
	_ = flags.Set("watch", fmt.Sprintf("%t", opts.Watch))
	_ = flags.Set("index-enabled", fmt.Sprintf("%t", opts.Index))

	if opts.Workspace != nil {
		_ = flags.Set("commands-dir", opts.Workspace.CommandsDir)
		_ = flags.Set("reports-dir", opts.Workspace.ReportsDir)
		t.Setenv("AICMD_LOCAL_REPORTS_DIR", opts.Workspace.LocalDir)
	}

	return flags
}

// ServerService runs the complete server over SSE
type ServerService struct {
	flags *pflag.FlagSet

	mu   sync.Mutex
	srv  *http.Server
	done chan error
}

// NewServerService creates a server service for the given flags
func NewServerService(flags *pflag.FlagSet) *ServerService {
	return &ServerService{flags: flags}
}

// Name returns the service name
func (s *ServerService) Name() string {
	return "acmt-mcp"
}

// Start runs the server and waits until it accepts connections
func (s *ServerService) Start() (map[string]any, error) {
	ready := make(chan string, 1)
	s.done = make(chan error, 1)

	params := app.DefaultRunParams()
	params.StartSSEServer = func(_ context.Context, server *mcp.Server, settings *config.Settings) error {
		srv := app.NewSSEServer(server, settings)
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.srv = srv
		s.mu.Unlock()
		ready <- fmt.Sprintf("http://%s/sse", ln.Addr().String())
		return srv.Serve(ln)
	}

	go func() {
		s.done <- app.RunWithDeps(context.Background(), params, s.flags, "test")
	}()

	select {
	case url := <-ready:
		return map[string]any{PropSSEURL: url}, nil
	case err := <-s.done:
		return nil, fmt.Errorf("server exited during startup: %w", err)
	case <-time.After(10 * time.Second):
		return nil, errors.New("server did not start in time")
	}
}

// Stop shuts the HTTP server down and waits for the run loop to return
func (s *ServerService) Stop() error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}

	select {
	case err := <-s.done:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
