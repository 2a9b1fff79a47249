package scheduler

import (
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/GiorgiUbiria/rewards_settlement/internal/logger"
)

// Job is a unit of scheduled back-office work.
type Job interface {
	Name() string
	Schedule() gocron.JobDefinition
	Execute()
}

type Manager struct {
	scheduler gocron.Scheduler
	jobs      []Job
}

func NewManager(jobs ...Job) (*Manager, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Manager{scheduler: s, jobs: jobs}, nil
}

// RegisterJobs adds every job in singleton mode so a slow run is never
// overlapped by the next tick.
func (m *Manager) RegisterJobs() error {
	for _, job := range m.jobs {
		_, err := m.scheduler.NewJob(
			job.Schedule(),
			gocron.NewTask(job.Execute),
			gocron.WithName(job.Name()),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return err
		}
		logger.Log.Info("scheduled job registered", zap.String("job", job.Name()))
	}
	return nil
}

func (m *Manager) Start() {
	m.scheduler.Start()
	logger.Log.Info("scheduler started", zap.Int("jobs", len(m.jobs)))
}

func (m *Manager) Stop() {
	if err := m.scheduler.Shutdown(); err != nil {
		logger.Log.Error("failed to shutdown scheduler", zap.Error(err))
	}
	logger.Log.Info("scheduler stopped")
}
