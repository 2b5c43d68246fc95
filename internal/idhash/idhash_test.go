package idhash

import (
	"testing"

	"github.com/mr-tron/base58"
)

func TestComputeCampaignID(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		volume float64
		reward float64
		period float64
		url    string
	}{
		{name: "with url", token: "SOL", volume: 1000, reward: 50, period: 7, url: "https://example.com/c/1"},
		{name: "without url", token: "SOL", volume: 1000, reward: 50, period: 7},
		{name: "fractional", token: "BTC", volume: 1234.5, reward: 20.25, period: 3.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeCampaignID(tt.token, tt.volume, tt.reward, tt.period, tt.url)
			if len(got) != 64 {
				t.Errorf("ComputeCampaignID() length = %d, want 64", len(got))
			}

			// Same inputs should produce same output
			again := ComputeCampaignID(tt.token, tt.volume, tt.reward, tt.period, tt.url)
			if got != again {
				t.Errorf("ComputeCampaignID() not deterministic: %s != %s", got, again)
			}
		})
	}
}

func TestComputeCampaignID_FieldsMatter(t *testing.T) {
	base := ComputeCampaignID("SOL", 1000, 50, 7, "")

	variants := map[string]string{
		"token":  ComputeCampaignID("ETH", 1000, 50, 7, ""),
		"volume": ComputeCampaignID("SOL", 1001, 50, 7, ""),
		"reward": ComputeCampaignID("SOL", 1000, 51, 7, ""),
		"period": ComputeCampaignID("SOL", 1000, 50, 8, ""),
		"url":    ComputeCampaignID("SOL", 1000, 50, 7, "x"),
	}
	for field, id := range variants {
		if id == base {
			t.Errorf("changing %s did not change the id", field)
		}
	}
}

func TestComputeCampaignID_KnownValue(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{ComputeCampaignID("SOL", 1000, 50, 7, ""), "0557b5c66423f09f74d9b3f54b030014d4fcde1c8852d5eac75d68ad0e70454b"},
		{ComputeCampaignID("BTC", 1234.5, 20.25, 3.5, "https://x.io"), "a35ac922a9cd506cd24407bfc47f35636310d17e6c77735bc438c871f8a560d2"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("ComputeCampaignID() = %s, want %s", tt.got, tt.want)
		}
	}
}

func TestNewJobID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := NewJobID()
		raw, err := base58.Decode(id)
		if err != nil {
			t.Fatalf("NewJobID() returned non-base58 id %q: %v", id, err)
		}
		if len(raw) != jobIDBytes {
			t.Errorf("decoded length = %d, want %d", len(raw), jobIDBytes)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate job id %s", id)
		}
		seen[id] = struct{}{}
	}
}
