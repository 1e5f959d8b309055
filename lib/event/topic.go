package event

import (
	"fmt"
	"strings"
)

// Kind enumerates the topics wallets publish and listen to.
type Kind uint8

// Topic kinds. The zero value is not a valid kind.
const (
	BalanceUpdated Kind = iota + 1
	HistoryUpdated
	Touched
	NewTransaction
	NewTokenTx
	NewSocketTx
	ConfirmedSocketTx
	ConfigUpdated
	StakingBalancesUpdated
	StakingCache
	PredefinedValidatorsUpdated
)

// formats hold the wire format of each kind, %s is replaced by the topic scope (usually a wallet id).
var formats = map[Kind]string{
	BalanceUpdated:              "update::%s::balance",
	HistoryUpdated:              "update::%s::history",
	Touched:                     "update::%s::touched",
	NewTransaction:              "update::%s::new-tx",
	NewTokenTx:                  "%s::new-token-tx",
	NewSocketTx:                 "%s::new-socket-tx",
	ConfirmedSocketTx:           "%s::confirmed-socket-tx",
	ConfigUpdated:               "update::%s::config",
	StakingBalancesUpdated:      "update::%s::staking-balances",
	StakingCache:                "update::%s::staking-cache",
	PredefinedValidatorsUpdated: "update::%s::predefined-validators",
}

// SocketKinds are the transaction topics a coin listens to for real time transfers.
var SocketKinds = []Kind{NewSocketTx, ConfirmedSocketTx}

// Topic is a structured event topic: a kind and the scope it applies to.
type Topic struct {
	Kind  Kind
	Scope string
}

// String renders the topic in its wire format, ie. "update::BTC::balance".
func (t Topic) String() string {
	f, ok := formats[t.Kind]
	if !ok {
		return fmt.Sprintf("unknown(%d)::%s", t.Kind, t.Scope)
	}
	return fmt.Sprintf(f, t.Scope)
}

// ParseTopic is the inverse of Topic.String.
func ParseTopic(s string) (Topic, error) {
	for k, f := range formats {
		i := strings.Index(f, "%s")
		prefix, suffix := f[:i], f[i+2:]
		if len(s) > len(prefix)+len(suffix) && strings.HasPrefix(s, prefix) && strings.HasSuffix(s, suffix) {
			scope := s[len(prefix) : len(s)-len(suffix)]
			if strings.Contains(scope, "::") {
				continue
			}
			return Topic{Kind: k, Scope: scope}, nil
		}
	}
	return Topic{}, fmt.Errorf("event: unknown topic %q", s)
}

// Name is the last segment of the kind wire format, ie. "balance" or "new-tx".
func (k Kind) Name() string {
	f, ok := formats[k]
	if !ok {
		return fmt.Sprintf("unknown(%d)", k)
	}
	return f[strings.LastIndex(f, "::")+2:]
}
