package jobqueue

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/MartinHagen/Tempora/internal/pkg/env"
)

// Manager manages the global job queue and background tasks
type Manager struct {
	queue       *Queue
	pruneTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		workerCount := env.GetEnvInt("JOBQUEUE_WORKERS", 2)
		globalManager = &Manager{
			queue:  NewQueue(workerCount),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	// Schedule the daily ledger prune
	m.pruneTicker = time.NewTicker(24 * time.Hour)
	m.wg.Add(1)
	go m.pruneScheduler()

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.pruneTicker != nil {
		m.pruneTicker.Stop()
	}
	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	m.queue.Stop()
	log.Info("[JobQueue Manager] Stopped")
}

func (m *Manager) pruneScheduler() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			return
		case <-m.pruneTicker.C:
			if _, err := m.queue.EnqueueJob(JobTypeLedgerPrune, nil); err != nil {
				log.Errorf("[JobQueue Manager] Failed to enqueue ledger prune: %v", err)
			}
		}
	}
}

// EnqueuePlanReconcile schedules a background plan reconcile for a user.
func EnqueuePlanReconcile(userID uint) {
	payload := PlanReconcileJobPayload{UserID: userID}
	if _, err := GetManager().GetQueue().EnqueueJob(JobTypePlanReconcile, payload.ToMap()); err != nil {
		log.Errorf("[JobQueue] Failed to enqueue plan reconcile for user %d: %v", userID, err)
	}
}
