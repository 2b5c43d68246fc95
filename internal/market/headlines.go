package market

import "fmt"

var (
	positiveHeadlines = []string{
		"%s reaches new all-time high as institutional adoption increases",
		"Major exchange announces support for %s staking",
		"Developers release new update for %s network, improving scalability",
	}
	neutralHeadlines = []string{
		"%s trades sideways as market awaits macro data",
		"Analysts split on short-term outlook for %s",
		"%s network activity steady over the past week",
	}
	negativeHeadlines = []string{
		"%s drops as large holders move funds to exchanges",
		"Regulators signal closer scrutiny of %s markets",
		"Outage on %s network raises reliability concerns",
	}
)

// Headlines returns synthetic news for token matching the sentiment band.
func Headlines(token string, sentiment float64) []string {
	templates := neutralHeadlines
	switch {
	case sentiment > SentimentBuyThreshold:
		templates = positiveHeadlines
	case sentiment < SentimentSellThreshold:
		templates = negativeHeadlines
	}

	out := make([]string, len(templates))
	for i, tpl := range templates {
		out[i] = fmt.Sprintf(tpl, token)
	}
	return out
}
