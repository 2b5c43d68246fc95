package orchestrator

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airdrop-optimizer/internal/config"
	"airdrop-optimizer/internal/domain"
)

var quiet = log.New(io.Discard, "", 0)

type instantClock struct{}

func (instantClock) Now() time.Time { return time.Now() }

func (instantClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

type alternating struct {
	mu sync.Mutex
	n  int
}

func (a *alternating) Predict(context.Context, string) (domain.Action, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.n++
	if a.n%2 == 1 {
		return domain.ActionBuy, nil
	}
	return domain.ActionSell, nil
}

type flatPrice float64

func (p flatPrice) Price(context.Context, string) (float64, error) { return float64(p), nil }

func f64(v float64) *float64 { return &v }

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Queue.PollInterval = 2 * time.Millisecond
	cfg.Queue.Workers = 2
	cfg.Trading.Seed = 42
	return cfg
}

func newTestOrchestrator(t *testing.T, cfg *config.Config) *Orchestrator {
	t.Helper()
	o, err := New(context.Background(), cfg, Options{
		Predictor: &alternating{},
		Prices:    flatPrice(100),
		Clock:     instantClock{},
		Logger:    quiet,
	})
	require.NoError(t, err)
	t.Cleanup(o.Close)
	return o
}

func TestRunOnce(t *testing.T) {
	o := newTestOrchestrator(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	report, err := o.RunOnce(ctx, []domain.RawCampaign{
		{Token: "abc", VolumeRequired: 1000, Reward: 50, PeriodDays: f64(7)},
		{Token: "XYZ", VolumeRequired: 1000, Reward: 50, PeriodDays: f64(7)},
		{Token: "LOSS", VolumeRequired: 100000, Reward: 50},
		{Token: "", VolumeRequired: 10, Reward: 5},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Rejected)
	assert.Equal(t, 1, report.Invalid)
	require.Len(t, report.Outcomes, 2)

	for _, out := range report.Outcomes {
		require.Empty(t, out.Err)
		require.NotNil(t, out.Summary)
		assert.True(t, strings.HasPrefix(out.AgentID, "trader-"+out.Campaign.Token+"-"))
		assert.Equal(t, out.AgentID, out.Summary.AgentID)
		assert.Equal(t, domain.AgentStatusCompleted, out.Summary.FinalStatus)
		assert.GreaterOrEqual(t, out.Summary.TradedVolume, out.Campaign.VolumeRequired)

		stored, err := o.Stores().Summaries.GetByAgentID(ctx, out.AgentID)
		require.NoError(t, err)
		assert.Equal(t, out.Summary.TotalTrades, stored.TotalTrades)

		c, err := o.Stores().Campaigns.GetByID(ctx, out.Campaign.CampaignID)
		require.NoError(t, err)
		assert.Equal(t, domain.CampaignStatusAgentCreated, c.Status)
	}
	assert.Equal(t, "ABC", report.Outcomes[0].Campaign.Token)
}

func TestRunOnce_Resubmission(t *testing.T) {
	o := newTestOrchestrator(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	raw := []domain.RawCampaign{{Token: "ABC", VolumeRequired: 1000, Reward: 50, PeriodDays: f64(7)}}
	_, err := o.RunOnce(ctx, raw)
	require.NoError(t, err)

	report, err := o.RunOnce(ctx, raw)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, "already submitted", report.Outcomes[0].Err)
	assert.Nil(t, report.Outcomes[0].Summary)
}

func TestRunOnce_Canceled(t *testing.T) {
	o := newTestOrchestrator(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.RunOnce(ctx, []domain.RawCampaign{{Token: "ABC", VolumeRequired: 1000, Reward: 50}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_PollsFeedAndServesAPI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campaigns.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`campaigns:
  - token: FEED
    volume_required: 1000
    reward: 50
    period_days: 7
`), 0o600))

	cfg := testConfig()
	cfg.Feed.File = path
	o := newTestOrchestrator(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	require.Eventually(t, func() bool {
		list, err := o.Stores().Summaries.GetAll(context.Background())
		return err == nil && len(list) == 1
	}, 10*time.Second, 10*time.Millisecond)

	srv := httptest.NewServer(o.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNew_RejectsBadOverride(t *testing.T) {
	cfg := testConfig()
	cfg.Trading.OverrideProbability = 2
	_, err := New(context.Background(), cfg, Options{Logger: quiet})
	assert.Error(t, err)
}

func TestFetchCampaigns_DefaultsWithoutFeed(t *testing.T) {
	o := newTestOrchestrator(t, testConfig())
	raws, err := o.FetchCampaigns(context.Background())
	require.NoError(t, err)
	require.Len(t, raws, 2)
	assert.Equal(t, "ABC", raws[0].Token)
}
