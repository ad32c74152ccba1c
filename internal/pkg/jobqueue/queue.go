package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MartinHagen/Tempora/internal/pkg/cache"
)

const (
	// Redis key prefixes
	JobKeyPrefix     = "job:"
	JobQueueKey      = "job_queue"
	JobProcessingKey = "job_processing"
	JobStatsKey      = "job_stats"

	// Job settings
	DefaultMaxRetries = 3
	JobTTL            = 24 * time.Hour // Jobs expire after 24 hours
)

// ProcessorFunc handles one job of a registered type.
type ProcessorFunc func(ctx context.Context, job *Job) error

// Queue manages background jobs using Redis
type Queue struct {
	client     *redis.Client
	workers    int
	processors map[JobType]ProcessorFunc
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
}

// NewQueue creates a new job queue
func NewQueue(workers int) *Queue {
	if workers <= 0 {
		workers = 2
	}

	return &Queue{
		client:     cache.GetClient(),
		workers:    workers,
		processors: make(map[JobType]ProcessorFunc),
		stopCh:     make(chan struct{}),
	}
}

// RegisterProcessor installs the handler for a job type. Jobs of an
// unregistered type fail without retry.
func (q *Queue) RegisterProcessor(jobType JobType, fn ProcessorFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processors[jobType] = fn
}

// Start starts the job queue workers
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}

	q.running = true
	q.stopCh = make(chan struct{})
	log.Infof("[JobQueue] Starting %d workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
}

// Stop stops the job queue workers
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return
	}

	log.Info("[JobQueue] Stopping workers...")
	close(q.stopCh)
	q.running = false
	q.wg.Wait()
	log.Info("[JobQueue] All workers stopped")
}

// worker processes jobs from the queue
func (q *Queue) worker(id int) {
	defer q.wg.Done()
	log.Infof("[JobQueue] Worker %d started", id)

	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			log.Infof("[JobQueue] Worker %d stopping", id)
			return
		default:
			job, err := q.dequeueJob(ctx)
			if err != nil {
				if err != redis.Nil {
					log.Errorf("[JobQueue] Worker %d: Error dequeuing job: %v", id, err)
					time.Sleep(time.Second)
				}
				continue
			}
			if job != nil {
				log.Infof("[JobQueue] Worker %d processing job %s (Type: %s)", id, job.ID, job.Type)
				q.processJob(ctx, job)
			}
		}
	}
}

// EnqueueJob adds a new job to the queue
func (q *Queue) EnqueueJob(jobType JobType, payload map[string]interface{}) (*Job, error) {
	ctx := context.Background()

	job := &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Status:     JobStatusPending,
		Payload:    payload,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
		RetryCount: 0,
		MaxRetries: DefaultMaxRetries,
	}

	jobData, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	jobKey := JobKeyPrefix + job.ID

	// Use a pipeline for atomic operations
	pipe := q.client.Pipeline()
	pipe.Set(ctx, jobKey, jobData, JobTTL)
	pipe.LPush(ctx, JobQueueKey, job.ID)
	pipe.HIncrBy(ctx, JobStatsKey, string(JobStatusPending), 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Infof("[JobQueue] Enqueued job %s (Type: %s)", job.ID, job.Type)
	return job, nil
}

// dequeueJob gets the next job from the queue
func (q *Queue) dequeueJob(ctx context.Context) (*Job, error) {
	// Move the job from pending to processing atomically
	jobID, err := q.client.BRPopLPush(ctx, JobQueueKey, JobProcessingKey, time.Second).Result()
	if err != nil {
		return nil, err
	}

	jobKey := JobKeyPrefix + jobID
	jobData, err := q.client.Get(ctx, jobKey).Result()
	if err != nil {
		// Job data not found, remove from processing queue
		q.client.LRem(ctx, JobProcessingKey, 1, jobID)
		return nil, fmt.Errorf("job data not found for ID %s", jobID)
	}

	var job Job
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		q.client.LRem(ctx, JobProcessingKey, 1, jobID)
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}

	now := time.Now()
	job.Status = JobStatusProcessing
	job.ProcessedAt = &now
	job.UpdatedAt = now
	q.updateJob(ctx, &job)

	return &job, nil
}

func (q *Queue) processJob(ctx context.Context, job *Job) {
	q.mu.Lock()
	processor, ok := q.processors[job.Type]
	q.mu.Unlock()

	if !ok {
		q.failJob(ctx, job, fmt.Errorf("no processor registered for job type %s", job.Type))
		return
	}

	if err := processor(ctx, job); err != nil {
		if job.RetryCount < job.MaxRetries {
			q.retryJob(ctx, job, err)
		} else {
			q.failJob(ctx, job, err)
		}
		return
	}
	q.completeJob(ctx, job)
}

func (q *Queue) completeJob(ctx context.Context, job *Job) {
	now := time.Now()
	job.Status = JobStatusCompleted
	job.CompletedAt = &now
	job.UpdatedAt = now
	q.updateJob(ctx, job)
	q.client.LRem(ctx, JobProcessingKey, 1, job.ID)
	q.client.HIncrBy(ctx, JobStatsKey, string(JobStatusCompleted), 1)
	log.Infof("[JobQueue] Job %s completed", job.ID)
}

func (q *Queue) retryJob(ctx context.Context, job *Job, cause error) {
	job.Status = JobStatusRetrying
	job.RetryCount++
	job.ErrorMsg = cause.Error()
	job.UpdatedAt = time.Now()
	q.updateJob(ctx, job)

	// Back onto the pending queue for another attempt
	q.client.LRem(ctx, JobProcessingKey, 1, job.ID)
	q.client.RPush(ctx, JobQueueKey, job.ID)
	log.Warnf("[JobQueue] Job %s failed (attempt %d/%d), retrying: %v", job.ID, job.RetryCount, job.MaxRetries, cause)
}

func (q *Queue) failJob(ctx context.Context, job *Job, cause error) {
	job.Status = JobStatusFailed
	job.ErrorMsg = cause.Error()
	job.UpdatedAt = time.Now()
	q.updateJob(ctx, job)
	q.client.LRem(ctx, JobProcessingKey, 1, job.ID)
	q.client.HIncrBy(ctx, JobStatsKey, string(JobStatusFailed), 1)
	log.Errorf("[JobQueue] Job %s failed permanently: %v", job.ID, cause)
}

func (q *Queue) updateJob(ctx context.Context, job *Job) {
	jobData, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Failed to marshal job %s: %v", job.ID, err)
		return
	}
	if err := q.client.Set(ctx, JobKeyPrefix+job.ID, jobData, JobTTL).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to update job %s: %v", job.ID, err)
	}
}
