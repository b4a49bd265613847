// -----------------------------------------------------------------------
// Storage Manager - aggregates the per-table stores over one Badger DB
// -----------------------------------------------------------------------

package badger

import (
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/harmony-svc/orchestrator/internal/common"
	"github.com/harmony-svc/orchestrator/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger.
//
// Badger has no row-level locks, so the manager carries keyed mutexes: one
// per job for dispatch/completion critical sections, one per service for
// scheduling decisions. Every multi-record mutation for a job runs inside
// WithJobLock; counter drift caused by a crash mid-section is repaired by
// the user-work reconciler.
type Manager struct {
	db        *BadgerDB
	jobs      interfaces.JobStorage
	steps     interfaces.StepStorage
	workItems interfaces.WorkItemStorage
	userWork  interfaces.UserWorkStorage
	links     interfaces.LinkStorage
	errors    interfaces.ErrorStorage
	locks     interfaces.LockStorage
	logger    arbor.ILogger

	mu           sync.Mutex
	jobLocks     map[string]*sync.Mutex
	serviceLocks map[string]*sync.Mutex
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:           db,
		jobs:         NewJobStorage(db, logger),
		steps:        NewStepStorage(db, logger),
		workItems:    NewWorkItemStorage(db, logger),
		userWork:     NewUserWorkStorage(db, logger),
		links:        NewLinkStorage(db, logger),
		errors:       NewErrorStorage(db, logger),
		locks:        NewLockStorage(db, logger),
		logger:       logger,
		jobLocks:     make(map[string]*sync.Mutex),
		serviceLocks: make(map[string]*sync.Mutex),
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

func (m *Manager) Jobs() interfaces.JobStorage           { return m.jobs }
func (m *Manager) Steps() interfaces.StepStorage         { return m.steps }
func (m *Manager) WorkItems() interfaces.WorkItemStorage { return m.workItems }
func (m *Manager) UserWork() interfaces.UserWorkStorage  { return m.userWork }
func (m *Manager) Links() interfaces.LinkStorage         { return m.links }
func (m *Manager) Errors() interfaces.ErrorStorage       { return m.errors }
func (m *Manager) Locks() interfaces.LockStorage         { return m.locks }

func (m *Manager) lockFor(locks map[string]*sync.Mutex, key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := locks[key]
	if !ok {
		l = &sync.Mutex{}
		locks[key] = l
	}
	return l
}

// WithJobLock serializes mutations for a job
func (m *Manager) WithJobLock(jobID string, fn func() error) error {
	l := m.lockFor(m.jobLocks, jobID)
	l.Lock()
	defer l.Unlock()
	return fn()
}

// WithServiceLock serializes scheduling decisions per service
func (m *Manager) WithServiceLock(serviceID string, fn func() error) error {
	l := m.lockFor(m.serviceLocks, serviceID)
	l.Lock()
	defer l.Unlock()
	return fn()
}

// RunValueLogGC runs one round of Badger value-log garbage collection
func (m *Manager) RunValueLogGC(discardRatio float64) error {
	return m.db.Store().Badger().RunValueLogGC(discardRatio)
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
