package watchdog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/cuemby/qserver/pkg/health"
	"github.com/cuemby/qserver/pkg/log"
	"github.com/cuemby/qserver/pkg/metrics"
	"github.com/cuemby/qserver/pkg/rpc"
)

// File descriptor slots children find their inherited pipe ends on.
// exec.Cmd.ExtraFiles[0] always lands on fd 3 in the child, [1] on fd 4.
const (
	fdWatchdogLink  = 3 // Manager's end of the Watchdog<->Manager link
	fdManagerWorker = 4 // Manager's end of the Manager<->Worker link (Manager process only)
	fdWorkerPipe    = 3 // Worker's end of the Manager<->Worker link (Worker process only)
)

// HeartbeatMinGap and HeartbeatMaxGap bound the "Manager looks dead"
// window: below the min, a gap is unremarkable; at or above the max, a
// gap is treated as a clock anomaly rather than a dead Manager —
// spec.md §4.1's explicit guard against wall-clock jumps.
const (
	HeartbeatMinGap = 5 * time.Second
	HeartbeatMaxGap = 15 * time.Second

	supervisionTick = 100 * time.Millisecond
)

// Config configures a Supervisor.
type Config struct {
	// SelfPath is the executable Watchdog re-execs to become a Manager
	// or Worker process. Defaults to os.Args[0].
	SelfPath string
	// ManagerArgs/WorkerArgs are appended after the "manager"/"worker"
	// subcommand when spawning each process (e.g. --data-dir flags).
	ManagerArgs []string
	WorkerArgs  []string
}

// Supervisor is the Watchdog: it owns the Manager's OS process lifetime,
// the persistent Manager<->Worker pipe endpoints, and the Worker's OS
// process lifetime (on Manager's behalf, since only Watchdog survives a
// Manager restart). Grounded on the teacher's Config+constructor+
// Start/Shutdown lifecycle shape (pkg/manager/manager.go) and the
// ticker-driven monitor loop in pkg/worker/health_monitor.go, retargeted
// from container health polling to Manager heartbeat supervision.
type Supervisor struct {
	cfg Config

	workerPipeMEnd  *os.File // kept open by Watchdog, duplicated to each new Manager
	workerPipeWkEnd *os.File // kept open by Watchdog until Shutdown, handed to each Worker start_re_worker spawns

	mu              sync.Mutex
	managerCmd      *exec.Cmd
	managerLink     *rpc.Link
	lastHeartbeat   time.Time
	managerStopping bool
	workerCmd       *exec.Cmd

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewSupervisor creates a Supervisor and its persistent Manager<->Worker
// pipe. Call Start to spawn the Manager and begin supervision.
func NewSupervisor(cfg Config) (*Supervisor, error) {
	if cfg.SelfPath == "" {
		cfg.SelfPath = os.Args[0]
	}

	mEnd, wkEnd, err := socketPair()
	if err != nil {
		return nil, err
	}

	return &Supervisor{
		cfg:             cfg,
		workerPipeMEnd:  mEnd,
		workerPipeWkEnd: wkEnd,
		lastHeartbeat:   time.Now(),
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}, nil
}

// Start spawns the Manager and begins the supervision loop.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.spawnManager(); err != nil {
		return err
	}
	go s.superviseLoop(ctx)
	return nil
}

// Shutdown stops supervision, kills the Manager and Worker if still
// running, and releases the pipe endpoints.
func (s *Supervisor) Shutdown() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.managerLink != nil {
		s.managerLink.Close()
	}
	if s.managerCmd != nil && s.managerCmd.Process != nil {
		s.managerCmd.Process.Kill()
	}
	if s.workerCmd != nil && s.workerCmd.Process != nil {
		s.workerCmd.Process.Kill()
	}
	s.workerPipeMEnd.Close()
	s.workerPipeWkEnd.Close()
}

// spawnManager launches a new Manager process, handing it a fresh
// Watchdog<->Manager link and a duplicate of the persistent
// Manager<->Worker pipe endpoint. On respawn (not first launch), Worker
// is left entirely alone — it never sees this happen.
func (s *Supervisor) spawnManager() error {
	wEnd, mwEnd, err := socketPair()
	if err != nil {
		return err
	}

	args := append([]string{"manager"}, s.cfg.ManagerArgs...)
	cmd := exec.Command(s.cfg.SelfPath, args...)
	cmd.ExtraFiles = []*os.File{mwEnd, s.workerPipeMEnd}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		wEnd.Close()
		mwEnd.Close()
		return fmt.Errorf("watchdog: spawn manager: %w", err)
	}
	go cmd.Wait() // reap on exit so processAlive stops seeing a zombie
	mwEnd.Close() // child holds its own dup; drop ours

	conn, err := fileConn(wEnd)
	if err != nil {
		return err
	}

	link := rpc.NewLink(conn, s.handleManagerCall, s.handleManagerNotify)
	link.Start()

	s.mu.Lock()
	s.managerCmd = cmd
	s.managerLink = link
	s.lastHeartbeat = time.Now()
	s.managerStopping = false
	s.mu.Unlock()

	log.Info(fmt.Sprintf("watchdog: manager started pid=%d", cmd.Process.Pid))
	return nil
}

func (s *Supervisor) superviseLoop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(supervisionTick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.tick() {
				return
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// tick runs one supervision pass. It returns true if the Watchdog should
// stop supervising entirely (an intentional Manager exit completed).
func (s *Supervisor) tick() bool {
	s.mu.Lock()
	cmd := s.managerCmd
	stopping := s.managerStopping
	lastHeartbeat := s.lastHeartbeat
	s.mu.Unlock()

	alive := processAlive(cmd)
	dt := time.Since(lastHeartbeat)
	metrics.HeartbeatGapSeconds.Set(dt.Seconds())

	if stopping && !alive {
		return true
	}

	if dt > HeartbeatMinGap && dt < HeartbeatMaxGap && !stopping {
		log.Info(fmt.Sprintf("watchdog: manager heartbeat gap %v, restarting", dt))
		if cmd != nil && cmd.Process != nil {
			cmd.Process.Kill()
		}
		metrics.ManagerRestartsTotal.Inc()
		if err := s.spawnManager(); err != nil {
			log.Errorf("watchdog: respawn manager", err)
		}
	}

	return false
}

func processAlive(cmd *exec.Cmd) bool {
	if cmd == nil || cmd.Process == nil {
		return false
	}
	res := health.NewProcessChecker(int32(cmd.Process.Pid)).Check(context.Background())
	return res.Healthy
}

// handleManagerCall serves the request/reply half of spec.md §4.1's RPC
// vocabulary: start_re_worker, join_re_worker, kill_re_worker,
// is_worker_alive.
func (s *Supervisor) handleManagerCall(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	switch method {
	case "start_re_worker":
		return s.startReWorker()
	case "join_re_worker":
		return s.joinReWorker(params)
	case "kill_re_worker":
		return s.killReWorker()
	case "is_worker_alive":
		return s.isWorkerAlive()
	default:
		return nil, fmt.Errorf("%w: %s", rpc.ErrMethodNotFound, method)
	}
}

// handleManagerNotify serves the fire-and-forget half: manager_stopping
// and heartbeat, neither of which spec.md §4.1 requires a reply for.
func (s *Supervisor) handleManagerNotify(method string, params json.RawMessage) {
	switch method {
	case "manager_stopping":
		s.mu.Lock()
		s.managerStopping = true
		s.mu.Unlock()
	case "heartbeat":
		s.mu.Lock()
		s.lastHeartbeat = time.Now()
		s.mu.Unlock()
	}
}

func (s *Supervisor) startReWorker() (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.workerCmd != nil && s.workerCmd.Process != nil && processAlive(s.workerCmd) {
		return json.Marshal(map[string]interface{}{"success": false, "err_msg": "worker already running"})
	}

	args := append([]string{"worker"}, s.cfg.WorkerArgs...)
	cmd := exec.Command(s.cfg.SelfPath, args...)
	cmd.ExtraFiles = []*os.File{s.workerPipeWkEnd}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return json.Marshal(map[string]interface{}{"success": false, "err_msg": err.Error()})
	}
	go cmd.Wait() // reap on exit so processAlive stops seeing a zombie

	s.workerCmd = cmd
	log.Info(fmt.Sprintf("watchdog: worker started pid=%d", cmd.Process.Pid))
	return json.Marshal(map[string]interface{}{"success": true})
}

type joinReWorkerParams struct {
	TimeoutMS int `json:"timeout_ms"`
}

func (s *Supervisor) joinReWorker(params json.RawMessage) (json.RawMessage, error) {
	var p joinReWorkerParams
	if len(params) > 0 {
		_ = json.Unmarshal(params, &p)
	}
	if p.TimeoutMS <= 0 {
		p.TimeoutMS = 2000
	}

	s.mu.Lock()
	cmd := s.workerCmd
	s.mu.Unlock()

	deadline := time.Now().Add(time.Duration(p.TimeoutMS) * time.Millisecond)
	for time.Now().Before(deadline) {
		if !processAlive(cmd) {
			return json.Marshal(map[string]bool{"success": true})
		}
		time.Sleep(20 * time.Millisecond)
	}

	return json.Marshal(map[string]bool{"success": !processAlive(cmd)})
}

func (s *Supervisor) killReWorker() (json.RawMessage, error) {
	s.mu.Lock()
	cmd := s.workerCmd
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	return json.Marshal(map[string]bool{"success": true})
}

func (s *Supervisor) isWorkerAlive() (json.RawMessage, error) {
	s.mu.Lock()
	cmd := s.workerCmd
	s.mu.Unlock()

	return json.Marshal(map[string]bool{"worker_alive": processAlive(cmd)})
}
