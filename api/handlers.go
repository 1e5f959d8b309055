package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/tarancss/hd"

	"github.com/tarancss/mcw/lib/types"
	"github.com/tarancss/mcw/wallet"
)

// Errors returned to client requests.
var (
	ErrBadRequest = errors.New("bad request")
	ErrChange     = errors.New("invalid change: has to be either 0 /1 or external / change")
	ErrNoWallet   = errors.New("wallet not available")
	ErrNoHD       = errors.New("no HD wallet loaded")
)

// Response defines the data structure returned to the client making the http request.
type Response struct {
	Body  string `json:"body"`
	Error string `json:"error,omitempty"`
}

// SendReq asks to send Amount (currency units) to To. With DryRun the signed transaction is returned and not
// broadcast.
type SendReq struct {
	wallet.TxArgs
	DryRun bool `json:"dryRun,omitempty"`
}

// Sent is the body replied to a send request.
type Sent struct {
	Hash string `json:"hash,omitempty"`
	Raw  string `json:"raw,omitempty"`
}

// Summary describes a wallet. Balance is in currency units and empty while unknown.
type Summary struct {
	ID       string `json:"id"`
	Ticker   string `json:"ticker"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Decimal  int    `json:"decimal"`
	Address  string `json:"address,omitempty"`
	Balance  string `json:"balance,omitempty"`
	Parent   string `json:"parent,omitempty"`
	Contract string `json:"contract,omitempty"`
}

// Availability is the body of the available route. Sendable is only set when an amount was queried.
type Availability struct {
	Available string `json:"available"`
	Sendable  *bool  `json:"sendable,omitempty"`
}

func summary(w wallet.Wallet) Summary {
	s := Summary{ID: w.ID(), Ticker: w.Ticker(), Name: w.Name(), Decimal: w.Decimal(), Address: w.Address()}
	if _, known := w.Balance(); known {
		s.Balance = w.DivisibleBalance()
	}
	switch x := w.(type) {
	case *wallet.Coin:
		s.Type = x.NetworkType()
	case *wallet.Token:
		s.Type = x.NetworkType()
		s.Parent = x.Parent().ID()
		s.Contract = x.Contract()
	}
	return s
}

// status maps wallet errors to http status codes.
func status(err error) int {
	var (
		ve *wallet.ValidationError
		ae *wallet.AbstractMethodError
		ee *wallet.ExplorerRequestError
	)
	switch {
	case errors.Is(err, wallet.ErrSkipped):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrNoWallet):
		return http.StatusNotFound
	case errors.As(err, &ve), errors.Is(err, ErrBadRequest), errors.Is(err, ErrChange),
		errors.Is(err, wallet.ErrInsufficient):
		return http.StatusBadRequest
	case errors.Is(err, wallet.ErrNoAddress), errors.Is(err, wallet.ErrNoPrivateKey), errors.Is(err, ErrNoHD):
		return http.StatusConflict
	case errors.As(err, &ae), errors.Is(err, types.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.As(err, &ee):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// reply writes the JSON response. On error the status is derived from err; body is encoded unless it is a string.
func (s *Service) reply(rw http.ResponseWriter, r *http.Request, code int, body interface{}, err error) {
	var res Response
	if err != nil {
		code = status(err)
		res.Error = err.Error()
	} else {
		switch v := body.(type) {
		case nil:
		case string:
			res.Body = v
		default:
			b, errM := json.Marshal(v)
			if errM != nil {
				code, res.Error = http.StatusInternalServerError, errM.Error()
			}
			res.Body = string(b)
		}
	}
	if err != nil && code >= http.StatusInternalServerError {
		s.log.Warnw("httpreq", "from", r.RemoteAddr, "uri", r.RequestURI, "status", code, "err", err)
	} else {
		s.log.Debugw("httpreq", "from", r.RemoteAddr, "uri", r.RequestURI, "status", code, "err", err)
	}
	rw.Header().Set("Content-Type", "application/json;charset=utf8")
	rw.WriteHeader(code)
	_ = json.NewEncoder(rw).Encode(&res)
}

// find returns the wallet of the route id.
func (s *Service) find(r *http.Request) (wallet.Wallet, error) {
	w := s.wallets.Get(mux.Vars(r)["id"])
	if w == nil {
		return nil, ErrNoWallet
	}
	return w, nil
}

// intParam reads an optional non negative integer from the query.
func intParam(r *http.Request, name string) (int, error) {
	v := r.Form.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, ErrBadRequest
	}
	return n, nil
}

// homeHandler just replies a welcome message to the client.
func (s *Service) homeHandler(rw http.ResponseWriter, r *http.Request) {
	s.reply(rw, r, http.StatusOK, "Hello, this is your multi-currency wallet!", nil)
}

// walletsHandler replies the wallets of the service, narrowed to a ticker when queried.
func (s *Service) walletsHandler(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.reply(rw, r, 0, nil, ErrBadRequest)
		return
	}
	var ws []wallet.Wallet
	if ticker := r.Form.Get("ticker"); ticker != "" {
		ws = s.wallets.Find(wallet.Query{Ticker: ticker, Network: r.Form.Get("network")})
	} else {
		ws = s.wallets.All()
	}
	res := make([]Summary, 0, len(ws))
	for _, w := range ws {
		res = append(res, summary(w))
	}
	s.reply(rw, r, http.StatusOK, res, nil)
}

// walletHandler refreshes the balance of the wallet and replies its summary.
func (s *Service) walletHandler(rw http.ResponseWriter, r *http.Request) {
	w, err := s.find(r)
	if err != nil {
		s.reply(rw, r, 0, nil, err)
		return
	}
	w.GetInfo(r.Context())
	s.reply(rw, r, http.StatusOK, summary(w), nil)
}

// txsHandler replies a page of the wallet history.
func (s *Service) txsHandler(rw http.ResponseWriter, r *http.Request) {
	var txs []types.Transaction

	w, err := s.find(r)
	if err == nil {
		err = r.ParseForm()
	}
	var offset, limit int
	if err == nil {
		offset, err = intParam(r, "offset")
	}
	if err == nil {
		limit, err = intParam(r, "limit")
	}
	if err != nil {
		s.reply(rw, r, 0, nil, err)
		return
	}

	switch x := w.(type) {
	case *wallet.Coin:
		txs, err = x.GetTransactions(r.Context(), wallet.TxQuery{Offset: offset, Limit: limit})
	case *wallet.Token:
		txs = x.GetTransactions(r.Context(), offset, limit)
	}
	if txs == nil {
		txs = []types.Transaction{}
	}
	s.reply(rw, r, http.StatusOK, txs, err)
}

// availableHandler replies the balance available after the fee and, when an amount is given, whether it can be sent.
func (s *Service) availableHandler(rw http.ResponseWriter, r *http.Request) {
	w, err := s.find(r)
	if err == nil {
		err = r.ParseForm()
	}
	if err != nil {
		s.reply(rw, r, 0, nil, err)
		return
	}
	fee := r.Form.Get("fee")
	var res Availability
	if res.Available, err = w.AvailableBalance(r.Context(), fee); err != nil {
		s.reply(rw, r, 0, nil, err)
		return
	}
	if amt := r.Form.Get("amount"); amt != "" {
		ok := w.IsAvailableForSend(r.Context(), amt, fee)
		res.Sendable = &ok
	}
	s.reply(rw, r, http.StatusOK, res, nil)
}

// sendHandler creates a transaction and sends it to the network of the wallet. A create request repeated within the
// cooldown is refused with 429.
func (s *Service) sendHandler(rw http.ResponseWriter, r *http.Request) {
	var req SendReq
	var res Sent

	w, err := s.find(r)
	if err == nil && json.NewDecoder(r.Body).Decode(&req) != nil {
		err = ErrBadRequest
	}
	if err == nil {
		res.Raw, err = w.CreateTransactionOnce(r.Context(), req.TxArgs)
	}
	if err != nil {
		s.reply(rw, r, 0, nil, err)
		return
	}
	if req.DryRun {
		s.reply(rw, r, http.StatusOK, res, nil)
		return
	}
	if res.Hash, err = w.SendTransaction(r.Context(), res.Raw); err != nil {
		s.reply(rw, r, 0, nil, err)
		return
	}
	s.log.Infow("transaction sent", "wallet", w.ID(), "to", req.To, "amount", req.Amount, "hash", res.Hash)
	s.reply(rw, r, http.StatusAccepted, Sent{Hash: res.Hash}, nil)
}

// hdAddrHandler replies the HD wallet address of wallet, change and id.
func (s *Service) hdAddrHandler(rw http.ResponseWriter, r *http.Request) {
	if s.hd == nil {
		s.reply(rw, r, 0, nil, ErrNoHD)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.reply(rw, r, 0, nil, ErrBadRequest)
		return
	}
	acc, err := strconv.ParseUint(r.Form.Get("wallet"), 0, 32)
	if err != nil {
		s.reply(rw, r, 0, nil, ErrBadRequest)
		return
	}
	id, err := strconv.ParseUint(r.Form.Get("id"), 0, 32)
	if err != nil {
		s.reply(rw, r, 0, nil, ErrBadRequest)
		return
	}
	var change uint8
	switch r.Form.Get("change") {
	case "0", "external":
		change = hd.External
	case "1", "change":
		change = hd.Change
	case "":
		s.reply(rw, r, 0, nil, ErrBadRequest)
		return
	default:
		s.reply(rw, r, 0, nil, ErrChange)
		return
	}
	addr, _, _, err := s.hd.Address(uint32(acc), change, uint32(id))
	if err != nil {
		s.reply(rw, r, 0, nil, err)
		return
	}
	s.reply(rw, r, http.StatusOK, "0x"+hex.EncodeToString(addr), nil)
}
