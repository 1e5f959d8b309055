// Package api implements the RESTful API of the wallet service.
//
// Wallets are addressed by id: the coin id for coins and the token id for tokens. Every reply is a JSON Response
// whose body holds the JSON encoded result.
package api

import (
	"context"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/tarancss/hd"
	"go.uber.org/zap"

	"github.com/tarancss/mcw/wallet"
)

// Service serves the wallets over http and https.
type Service struct {
	wallets *wallet.Wallets
	hd      *hd.HdWallet // may be nil
	log     *zap.SugaredLogger
	s       *http.Server // http server
	ss      *http.Server // https server
	sc      chan struct{} // closed once the servers are shut down
}

// New returns the service of the given wallets. hdw derives the keys of LoadHDKeys and the /address route; it may be
// nil.
func New(w *wallet.Wallets, hdw *hd.HdWallet, log *zap.SugaredLogger) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{wallets: w, hd: hdw, log: log.Named("api"), sc: make(chan struct{})}
}

// LoadHDKeys sets the key of HD account/external/0 on every EVM coin. It returns the number of coins keyed.
func (s *Service) LoadHDKeys(account uint32) (int, error) {
	if s.hd == nil {
		return 0, nil
	}
	_, key, _, err := s.hd.Address(account, hd.External, 0)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range s.wallets.Coins {
		if !strings.EqualFold(c.NetworkType(), "EVM") {
			continue
		}
		if err = c.SetPrivateKey(hex.EncodeToString(key)); err != nil {
			return n, err
		}
		s.log.Infow("key loaded", "coin", c.ID(), "address", c.Address())
		n++
	}
	return n, nil
}

// Stop shuts down the http servers and closes the wallets.
func (s *Service) Stop() {
	if s.s != nil {
		if err := s.s.Shutdown(context.Background()); err != nil {
			s.log.Errorw("http server shutdown", "err", err)
		}
	}
	if s.ss != nil {
		if err := s.ss.Shutdown(context.Background()); err != nil {
			s.log.Errorw("https server shutdown", "err", err)
		}
	}
	select {
	case <-s.sc:
	default:
		close(s.sc)
	}
	s.wallets.Close()
}
