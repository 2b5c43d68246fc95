package advisory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"airdrop-optimizer/internal/domain"
)

type sentimentReply struct {
	SentimentScore *float64 `json:"sentiment_score"`
	Explanation    string   `json:"explanation"`
	Recommendation *string  `json:"recommendation"`
}

type forecastReply struct {
	PredictionScore *float64 `json:"prediction_score"`
	Explanation     string   `json:"explanation"`
	Recommendation  *string  `json:"recommendation"`
}

type comprehensiveReply struct {
	Recommendation *string  `json:"recommendation"`
	Confidence     *float64 `json:"confidence"`
	Explanation    string   `json:"explanation"`
	RiskLevel      *string  `json:"risk_level"`
}

// decodeReply decodes exactly one JSON object into v, rejecting trailing
// data. Keys v does not declare are ignored. A single surrounding markdown
// code fence is tolerated.
func decodeReply(content string, v any) error {
	body := stripFence(strings.TrimSpace(content))
	if body == "" {
		return fmt.Errorf("%w: empty reply", ErrMalformedResponse)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("%w: trailing data after object", ErrMalformedResponse)
	}
	return nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	s = strings.TrimPrefix(s, "json")
	return strings.TrimSpace(s)
}

func parseAction(s *string) (domain.Action, error) {
	if s == nil {
		return "", fmt.Errorf("%w: missing recommendation", ErrMalformedResponse)
	}
	a := domain.Action(*s)
	if !a.IsValid() {
		return "", fmt.Errorf("%w: unknown recommendation %q", ErrMalformedResponse, *s)
	}
	return a, nil
}

func parseBounded(name string, v *float64, lo, hi float64) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("%w: missing %s", ErrMalformedResponse, name)
	}
	if math.IsNaN(*v) || *v < lo || *v > hi {
		return 0, fmt.Errorf("%w: %s %v outside [%v, %v]", ErrMalformedResponse, name, *v, lo, hi)
	}
	return *v, nil
}

// parseOptionalBounded is parseBounded for a field that may be absent; an
// absent field reads as zero.
func parseOptionalBounded(name string, v *float64, lo, hi float64) (float64, error) {
	if v == nil {
		return 0, nil
	}
	return parseBounded(name, v, lo, hi)
}

func decodeSentiment(content string) (Recommendation, error) {
	var r sentimentReply
	if err := decodeReply(content, &r); err != nil {
		return Recommendation{}, err
	}
	action, err := parseAction(r.Recommendation)
	if err != nil {
		return Recommendation{}, err
	}
	score, err := parseOptionalBounded("sentiment_score", r.SentimentScore, -1, 1)
	if err != nil {
		return Recommendation{}, err
	}
	return Recommendation{Action: action, Score: score, Explanation: r.Explanation}, nil
}

func decodeForecast(content string) (Recommendation, error) {
	var r forecastReply
	if err := decodeReply(content, &r); err != nil {
		return Recommendation{}, err
	}
	action, err := parseAction(r.Recommendation)
	if err != nil {
		return Recommendation{}, err
	}
	score, err := parseOptionalBounded("prediction_score", r.PredictionScore, -1, 1)
	if err != nil {
		return Recommendation{}, err
	}
	return Recommendation{Action: action, Score: score, Explanation: r.Explanation}, nil
}

func decodeComprehensive(content string) (Recommendation, error) {
	var r comprehensiveReply
	if err := decodeReply(content, &r); err != nil {
		return Recommendation{}, err
	}
	action, err := parseAction(r.Recommendation)
	if err != nil {
		return Recommendation{}, err
	}
	confidence, err := parseBounded("confidence", r.Confidence, 0, 1)
	if err != nil {
		return Recommendation{}, err
	}

	rec := Recommendation{Action: action, Confidence: confidence, Explanation: r.Explanation}
	if r.RiskLevel != nil {
		switch domain.RiskTier(*r.RiskLevel) {
		case domain.RiskTierLow, domain.RiskTierMedium, domain.RiskTierHigh:
			rec.RiskLevel = *r.RiskLevel
		default:
			return Recommendation{}, fmt.Errorf("%w: unknown risk_level %q", ErrMalformedResponse, *r.RiskLevel)
		}
	}
	return rec, nil
}
