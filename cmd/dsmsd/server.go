package main

import (
	"fmt"
	"log"
	"sync"

	"github.com/kajic/dsms/config"
	"github.com/kajic/dsms/dsmserr"
	"github.com/kajic/dsms/mempool"
	"github.com/kajic/dsms/monitor"
	"github.com/kajic/dsms/plan"
	"github.com/kajic/dsms/sched"
)

// server hosts one running instance of the engine: the boundary
// methods below are the Go shape of spec.md §6's "server control
// surface," restricted to the subset the engine itself implements —
// "the engine requires only the subset of these that deliver a
// compiled physical plan and deliver base-table sources/outputs."
// Parsing schema_text/query_text into a plan.PhysicalOp tree is an
// external planner's job (spec.md §1); callers register already-compiled
// trees.
//
// Grounded on the teacher's cmd/snellerd/server.go (a single struct
// gathering every piece a running daemon needs, built up by run_daemon.go)
// and plan_mgr_impl.cc's PlanManagerImpl (set_config_file / register_base_table /
// register_query / begin_execution / end_execution state machine).
type server struct {
	logger *log.Logger

	cfg  *config.Config
	pool *mempool.Pool
	reg  *monitor.Registry

	mu      sync.Mutex
	state   appState
	tables  map[string]*plan.PhysicalOp
	queries map[string]*plan.PhysicalOp
	nextID  int

	p  *plan.Plan
	sc *sched.Scheduler
}

// appState tracks set_config_file/begin_app_specification/
// end_app_specification/begin_execution's effect on what calls are
// currently valid, mirroring plan_mgr_impl.cc's own state guard
// (spec.md §7: InvalidUse is "wrong state for the requested operation").
type appState int

const (
	stateSpecifying appState = iota
	stateExecuting
	stateStopped
)

// defaultPageSize is the mempool page size in bytes. Unlike
// MEMORY_SIZE, QUEUE_SIZE and the rest of spec.md §6's configuration
// keys, the original has no separate page-size knob; it is a
// build-time constant of the memory manager, not something an
// application tunes per deployment.
const defaultPageSize = 4096

// defaultTimeSlice is how many input elements each operator consumes
// per scheduler pass (spec.md §4.8's "configurable time slice"). Like
// defaultPageSize, spec.md §6's configuration keys don't name a
// dedicated key for it, so it is a server-level constant rather than
// a config.Config field.
const defaultTimeSlice = 16

func newServer(cfg *config.Config, logger *log.Logger) (*server, error) {
	memBytes, err := cfg.MemorySize()
	if err != nil {
		return nil, fmt.Errorf("dsmsd: %w", err)
	}
	pool := mempool.New(memBytes, defaultPageSize)
	return &server{
		logger:  logger,
		cfg:     cfg,
		pool:    pool,
		reg:     monitor.NewRegistry(),
		tables:  make(map[string]*plan.PhysicalOp),
		queries: make(map[string]*plan.PhysicalOp),
	}, nil
}

// registerBaseTable records a base table's compiled source node under
// name, for later reference by register_query's plan trees.
// register_base_table(schema_text, source) in spec.md §6: schema_text
// compilation is out of scope, so callers hand over the already-built
// PhysicalOp (Kind StreamSource or RelationSource) directly.
func (s *server) registerBaseTable(name string, table *plan.PhysicalOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateSpecifying {
		return dsmserr.New(dsmserr.InvalidUse, "registerBaseTable: app specification already ended")
	}
	if _, ok := s.tables[name]; ok {
		return dsmserr.New(dsmserr.DuplicateTable, fmt.Sprintf("table %q already registered", name))
	}
	s.tables[name] = table
	return nil
}

// registerQuery records root (a full query tree ending at a
// KindOutput/KindSink leaf) and returns a query id, per spec.md §6's
// register_query(query_text, output) → query_id.
func (s *server) registerQuery(root *plan.PhysicalOp) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateSpecifying {
		return "", dsmserr.New(dsmserr.InvalidUse, "registerQuery: app specification already ended")
	}
	s.nextID++
	id := fmt.Sprintf("q%d", s.nextID)
	s.queries[id] = root
	return id, nil
}

// getXMLPlan corresponds to spec.md §6's get_xml_plan. Serializing a
// compiled plan tree back out to the original's XML plan format is
// outside this engine's scope (no consumer of that format exists
// here): every other boundary call operates on plan.PhysicalOp values
// directly.
func (s *server) getXMLPlan(queryID string) (string, error) {
	return "", dsmserr.New(dsmserr.InvalidUse, "getXMLPlan: not implemented (xml plan serialization is out of scope)")
}

// endAppSpecification corresponds to spec.md §6's
// end_app_specification: no further register* calls are accepted
// afterward.
func (s *server) endAppSpecification() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateSpecifying {
		return dsmserr.New(dsmserr.InvalidUse, "endAppSpecification: already ended")
	}
	s.state = stateExecuting
	return nil
}

// beginExecution instantiates every registered query into a single
// plan.Plan arena (sharing base tables the way plan_mgr_impl.cc's
// registerQuery does) and starts the scheduler, per spec.md §6's
// begin_execution and §4.8's round-robin Run loop.
func (s *server) beginExecution() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateExecuting {
		return dsmserr.New(dsmserr.InvalidUse, "beginExecution: call endAppSpecification first")
	}
	if s.sc != nil {
		return dsmserr.New(dsmserr.InvalidUse, "beginExecution: already running")
	}

	cpuSpeed, err := s.cfg.CPUSpeed()
	if err != nil {
		return fmt.Errorf("dsmsd: %w", err)
	}
	idxThreshold, err := s.cfg.IndexThreshold()
	if err != nil {
		return fmt.Errorf("dsmsd: %w", err)
	}
	queueSize, err := s.cfg.QueueSize()
	if err != nil {
		return fmt.Errorf("dsmsd: %w", err)
	}

	roots := make([]*plan.PhysicalOp, 0, len(s.queries))
	for _, q := range s.queries {
		roots = append(roots, q)
	}
	p, err := plan.Instantiate(plan.Config{
		Pool:           s.pool,
		IndexThreshold: idxThreshold,
		QueueSize:      queueSize,
		Registry:       s.reg,
		CPUSpeedMHz:    cpuSpeed,
	}, roots)
	if err != nil {
		return fmt.Errorf("dsmsd: instantiating plan: %w", err)
	}
	s.p = p
	s.sc = p.Scheduler(defaultTimeSlice)

	runTime, err := s.cfg.RunTime()
	if err != nil {
		return fmt.Errorf("dsmsd: %w", err)
	}
	go func() {
		if err := s.sc.Run(runTime); err != nil {
			s.logger.Printf("scheduler stopped: %v", err)
		}
	}()
	s.logger.Printf("execution started: %d queries, %d tables", len(s.queries), len(s.tables))
	return nil
}

// stopExecution corresponds to spec.md §6's stop_execution.
func (s *server) stopExecution() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateExecuting || s.sc == nil {
		return dsmserr.New(dsmserr.InvalidUse, "stopExecution: execution not running")
	}
	s.sc.Stop()
	s.state = stateStopped
	if err := s.p.Close(); err != nil {
		return fmt.Errorf("dsmsd: closing outputs: %w", err)
	}
	return nil
}

// registerMonitor corresponds to spec.md §6's
// register_monitor(query_text, output) → monitor_id: a query rooted
// at a KindSysStream source, hot-inserted into the running plan via
// plan.InsertMonitor's scheduler-interlocked sequence (spec.md §4.9).
func (s *server) registerMonitor(root *plan.PhysicalOp) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateExecuting || s.p == nil || s.sc == nil {
		return "", dsmserr.New(dsmserr.InvalidUse, "registerMonitor: execution not running")
	}
	if err := plan.InsertMonitor(s.p, s.sc, root); err != nil {
		return "", fmt.Errorf("dsmsd: inserting monitor: %w", err)
	}
	s.nextID++
	id := fmt.Sprintf("m%d", s.nextID)
	s.queries[id] = root
	return id, nil
}
