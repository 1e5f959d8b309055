package wallet

import "fmt"

// Feature is an optional capability of a coin.
type Feature string

// Known features. The set is closed: asking about anything else is a programming error.
const (
	FeatureNFT                Feature = "NFT"
	FeatureCustomTokens       Feature = "CustomTokens"
	FeatureSocketTransactions Feature = "SocketTransactions"
	FeatureStaking            Feature = "Staking"
	FeatureMemo               Feature = "Memo"
)

var features = map[Feature]struct{}{
	FeatureNFT:                {},
	FeatureCustomTokens:       {},
	FeatureSocketTransactions: {},
	FeatureStaking:            {},
	FeatureMemo:               {},
}

// ParseFeature returns the feature named s.
func ParseFeature(s string) (Feature, error) {
	f := Feature(s)
	if _, ok := features[f]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFeature, s)
	}
	return f, nil
}

// parseFeatures keeps the known names of list, in order and without duplicates, and returns the unknown ones apart.
func parseFeatures(list []string) (res []Feature, unknown []string) {
	seen := make(map[Feature]bool, len(list))
	for _, s := range list {
		f, err := ParseFeature(s)
		if err != nil {
			unknown = append(unknown, s)
			continue
		}
		if !seen[f] {
			seen[f] = true
			res = append(res, f)
		}
	}
	return res, unknown
}
