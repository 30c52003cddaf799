package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/kz-sim/kz-sim/sim"
	"github.com/kz-sim/kz-sim/sim/embedding"
)

// PollConfig holds polling rate configuration.
type PollConfig struct {
	// Interval is the sustained time between status requests.
	Interval time.Duration
	// Burst is the number of requests allowed back to back.
	Burst int
}

// DefaultPollConfig polls once a second after an initial burst of two.
var DefaultPollConfig = PollConfig{Interval: time.Second, Burst: 2}

// Poller waits for jobs to finish, bounding status requests with a token bucket.
type Poller struct {
	api     ProblemAPI
	limiter *rate.Limiter
}

// NewPoller creates a poller for api.
func NewPoller(api ProblemAPI, cfg PollConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollConfig.Interval
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Poller{
		api:     api,
		limiter: rate.NewLimiter(rate.Every(cfg.Interval), cfg.Burst),
	}
}

// Wait polls until the job reaches a terminal status or ctx ends. Lookups
// that report the job as unknown are retried; the service may not have
// registered it yet.
func (p *Poller) Wait(ctx context.Context, sub Submission) (Status, error) {
	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("waiting for job %s: %w", shortID(sub.JobID), err)
		}
		status, ok, err := JobStatus(ctx, p.api, sub.JobID, sub.SubmitTime)
		if err != nil {
			return "", err
		}
		if !ok {
			logrus.Debugf("job %s not visible yet", shortID(sub.JobID))
			continue
		}
		logrus.Debugf("job %s: %s", shortID(sub.JobID), status)
		if status.Terminal() {
			return status, nil
		}
	}
}

// shortID keeps log lines readable when the id is an inline sample set.
func shortID(id string) string {
	if len(id) > 40 {
		return id[:37] + "..."
	}
	return id
}

// Observer is notified as a ServiceSampler's jobs progress.
type Observer interface {
	JobSubmitted(ctx context.Context, sub Submission, params sim.SampleParams) error
	JobFinished(ctx context.Context, sub Submission, status Status) error
}

// ServiceSampler implements sim.Sampler on top of a job service: it embeds
// the model, submits it, polls until completion and unembeds the answer.
type ServiceSampler struct {
	Submitter Submitter
	API       ProblemAPI          // nil only with InlineSubmitter
	Poll      PollConfig          // zero value uses DefaultPollConfig
	Embedding embedding.Embedding // nil uses the identity embedding
	Observer  Observer            // optional
}

var _ sim.Sampler = (*ServiceSampler)(nil)

// Sample implements sim.Sampler.
func (s *ServiceSampler) Sample(ctx context.Context, bqm *sim.BQM, params sim.SampleParams) (*sim.SampleSet, error) {
	emb := s.Embedding
	if emb == nil {
		emb = embedding.Identity(bqm.NumVariables())
	}
	prob, err := embedding.EmbedBQM(bqm, emb)
	if err != nil {
		return nil, err
	}
	sub, err := s.Submitter.Submit(ctx, prob, params)
	if err != nil {
		return nil, fmt.Errorf("submitting job: %w", err)
	}
	if s.Observer != nil {
		if err := s.Observer.JobSubmitted(ctx, sub, params); err != nil {
			return nil, err
		}
	}

	cfg := s.Poll
	if cfg.Interval <= 0 {
		cfg = DefaultPollConfig
	}
	status, err := NewPoller(s.API, cfg).Wait(ctx, sub)
	if err != nil {
		return nil, err
	}
	if s.Observer != nil {
		if err := s.Observer.JobFinished(ctx, sub, status); err != nil {
			return nil, err
		}
	}
	if status != StatusCompleted {
		return nil, fmt.Errorf("job %s finished with status %s", shortID(sub.JobID), status)
	}
	return Samples(ctx, s.API, sub.JobID, emb, bqm)
}
