// Package pipeline turns campaign candidates into trading agents: intake
// scores and persists a campaign, the create_agent job configures its
// agent and the execute_trading job runs it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"airdrop-optimizer/internal/domain"
	"airdrop-optimizer/internal/idhash"
	"airdrop-optimizer/internal/observability"
	"airdrop-optimizer/internal/queue"
	"airdrop-optimizer/internal/storage"
	"airdrop-optimizer/internal/viability"
)

// ErrCampaignRejected is returned for a campaign scoring below the threshold.
var ErrCampaignRejected = errors.New("campaign rejected")

// CreateAgentPayload is the payload of a create_agent job.
type CreateAgentPayload struct {
	CampaignID string `json:"campaign_id"`
}

// Submission describes what intake did with one campaign.
type Submission struct {
	Campaign  domain.Campaign `json:"campaign"`
	JobID     string          `json:"job_id,omitempty"` // create_agent job, empty unless enqueued now
	Duplicate bool            `json:"duplicate,omitempty"`
}

// BatchResult summarizes SubmitAll.
type BatchResult struct {
	Submitted []Submission
	Rejected  int
	Invalid   int
}

// IntakeOptions configures an Intake.
type IntakeOptions struct {
	Campaigns storage.CampaignStore
	Queue     *queue.Queue
	Threshold float64 // minimum viability score; zero selects viability.Threshold
	Now       func() time.Time
	Logger    *log.Logger
}

// Intake scores campaigns and enqueues agent creation for viable ones.
type Intake struct {
	campaigns storage.CampaignStore
	queue     *queue.Queue
	threshold float64
	now       func() time.Time
	logger    *log.Logger
}

// NewIntake creates an Intake.
func NewIntake(opts IntakeOptions) *Intake {
	in := &Intake{
		campaigns: opts.Campaigns,
		queue:     opts.Queue,
		threshold: opts.Threshold,
		now:       opts.Now,
		logger:    opts.Logger,
	}
	if in.threshold == 0 {
		in.threshold = viability.Threshold
	}
	if in.now == nil {
		in.now = time.Now
	}
	if in.logger == nil {
		in.logger = log.Default()
	}
	return in
}

// Submit normalizes, scores and records raw. A viable campaign gets a
// create_agent job. Resubmitting a known campaign returns the stored
// record with Duplicate set and enqueues nothing.
//
// Errors: viability.ErrInvalidCampaign for bad input, ErrCampaignRejected
// below the threshold, wrapped store/queue errors otherwise.
func (in *Intake) Submit(ctx context.Context, raw domain.RawCampaign) (Submission, error) {
	c, err := viability.Normalize(raw)
	if err != nil {
		observability.RecordCampaignEvaluated("invalid", 0)
		return Submission{}, err
	}
	score, err := viability.Score(c)
	if err != nil {
		observability.RecordCampaignEvaluated("invalid", 0)
		return Submission{}, err
	}

	c.CampaignID = idhash.ComputeCampaignID(c.Token, c.VolumeRequired, c.Reward, c.PeriodDays, c.URL)
	c.ViabilityScore = &score
	c.CreatedAt = in.now().UTC()

	if score < in.threshold {
		c.Status = domain.CampaignStatusRejected
		if err := in.campaigns.Insert(ctx, &c); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return Submission{}, fmt.Errorf("record rejected campaign %s: %w", c.CampaignID, err)
		}
		observability.RecordCampaignEvaluated("rejected", score)
		in.logger.Printf("rejected campaign %s (%s): score %.1f below %.1f", c.CampaignID, c.Token, score, in.threshold)
		return Submission{Campaign: c}, fmt.Errorf("%w: %s score %.1f", ErrCampaignRejected, c.Token, score)
	}

	err = in.campaigns.Insert(ctx, &c)
	if errors.Is(err, storage.ErrDuplicateKey) {
		existing, getErr := in.campaigns.GetByID(ctx, c.CampaignID)
		if getErr != nil {
			return Submission{}, fmt.Errorf("load campaign %s: %w", c.CampaignID, getErr)
		}
		in.logger.Printf("campaign %s (%s) already submitted, status %s", c.CampaignID, c.Token, existing.Status)
		return Submission{Campaign: *existing, Duplicate: true}, nil
	}
	if err != nil {
		return Submission{}, fmt.Errorf("insert campaign %s: %w", c.CampaignID, err)
	}

	h, err := in.queue.Submit(ctx, domain.JobKindCreateAgent, CreateAgentPayload{CampaignID: c.CampaignID})
	if err != nil {
		return Submission{}, err
	}
	observability.RecordCampaignEvaluated("accepted", score)
	in.logger.Printf("accepted campaign %s (%s): score %.1f, job %s", c.CampaignID, c.Token, score, h.ID())

	return Submission{Campaign: c, JobID: h.ID()}, nil
}

// SubmitAll submits every campaign in order. Rejected and invalid
// campaigns are logged and counted; the first store or queue error stops
// the batch and is returned with the partial result.
func (in *Intake) SubmitAll(ctx context.Context, raws []domain.RawCampaign) (BatchResult, error) {
	var res BatchResult
	for i, raw := range raws {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		sub, err := in.Submit(ctx, raw)
		switch {
		case err == nil:
			res.Submitted = append(res.Submitted, sub)
		case errors.Is(err, ErrCampaignRejected):
			res.Rejected++
		case errors.Is(err, viability.ErrInvalidCampaign):
			res.Invalid++
			in.logger.Printf("skipping campaign %d (%q): %v", i, raw.Token, err)
		default:
			return res, err
		}
	}
	return res, nil
}
