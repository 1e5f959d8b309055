package wallet

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/mcw/lib/config"
	"github.com/tarancss/mcw/lib/event"
	"github.com/tarancss/mcw/lib/explorer/web3"
)

func TestCreateEVMCoin(t *testing.T) {
	c, err := CreateEVMCoin(EVMParams{
		Ticker: "pol", Name: "Polygon", ChainID: 137, RPCBaseURL: "https://polygon-rpc.com",
		TxWebURL: "https://polygonscan.com/tx/", FeeData: map[string]string{"gasPrice": "30000000000"},
	}, testOpts(event.New())...)
	require.NoError(t, err)

	assert.Equal(t, "POL137", c.ID())
	assert.Equal(t, "pol", c.Ticker())
	assert.Equal(t, 18, c.Decimal())
	assert.Equal(t, EVMClassName, c.ClassName())
	assert.Equal(t, "EVM", c.NetworkType())
	assert.Equal(t, config.ChainID("137"), c.ChainID())
	assert.Equal(t, map[string]string{"gasPrice": "30000000000", "gasLimit": "21000", "tokenGasLimit": "150000"},
		c.FeeData())
	require.Len(t, c.Config().Explorers, 1)
	assert.Equal(t, web3.ClassName, c.Config().Explorers[0].ClassName)
	assert.Equal(t, "https://polygon-rpc.com", c.Config().Explorers[0].BaseURL)
	assert.Equal(t, uint64(137), c.Strategy().(*EVM).ChainID())

	// explorers are wired on demand, the client dials lazily
	assert.Nil(t, c.Explorer())
	require.NoError(t, c.LoadExplorers())
	assert.Equal(t, web3.ClassName, c.Explorer().Name())
	c.Close()
}

func TestCreateEVMCoinValidation(t *testing.T) {
	ok := EVMParams{Ticker: "POL", Name: "Polygon", ChainID: 137, RPCBaseURL: "https://polygon-rpc.com"}
	cases := []struct {
		name  string
		edit  func(p *EVMParams)
		field string
	}{
		{"insecure rpc", func(p *EVMParams) { p.RPCBaseURL = "http://polygon-rpc.com" }, "rpcBaseUrl"},
		{"websocket rpc", func(p *EVMParams) { p.RPCBaseURL = "wss://polygon-rpc.com" }, "rpcBaseUrl"},
		{"no host", func(p *EVMParams) { p.RPCBaseURL = "https://" }, "rpcBaseUrl"},
		{"no rpc", func(p *EVMParams) { p.RPCBaseURL = "" }, "rpcBaseUrl"},
		{"no ticker", func(p *EVMParams) { p.Ticker = " " }, "ticker"},
		{"no name", func(p *EVMParams) { p.Name = "" }, "name"},
		{"no chain", func(p *EVMParams) { p.ChainID = 0 }, "chainId"},
	}
	for _, tc := range cases {
		p := ok
		tc.edit(&p)
		_, err := CreateEVMCoin(p, testOpts(event.New())...)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve, tc.name)
		assert.Equal(t, tc.field, ve.Field, tc.name)
	}
}

func TestCreateCoin(t *testing.T) {
	cfg := btcConfig()
	cfg.RPCBaseURL = "https://ignored"
	cfg.Tokens = []config.TokenConfig{usdtConfig()}
	class, found := LookupClass("BTCCoin")
	require.True(t, found)

	c, err := CreateCoin(cfg, class, testOpts(event.New())...)
	require.NoError(t, err)
	assert.Equal(t, "BTC", c.ID())
	assert.Equal(t, "BTCCoin", c.ClassName())
	assert.Equal(t, "utxo", c.Strategy().Kind())
	assert.Empty(t, c.Config().RPCBaseURL)
	assert.Empty(t, c.Config().Tokens)
	assert.Equal(t, "546", c.UnspendableBalance())

	// EVM records take the EVM path whatever their class
	evm := config.CoinConfig{
		ID: "BNB56", ClassName: "BNBCoin", WalletType: "EVM", Ticker: "BNB", Name: "BNB Chain", ChainID: "56",
		RPCBaseURL: "http://bsc-dataseed.binance.org",
	}
	class, _ = LookupClass("BNBCoin")
	_, err = CreateCoin(evm, class, testOpts(event.New())...)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	// chain ids come from the record, its explorers or the class default
	eth := ethConfig()
	eth.ChainID = ""
	class, _ = LookupClass("BNBCoin")
	c, err = CreateCoin(eth, class, testOpts(event.New())...)
	require.NoError(t, err)
	assert.Equal(t, uint64(56), c.Strategy().(*EVM).ChainID())
	eth.Explorers[0].ChainID = "10"
	c, err = CreateCoin(eth, class, testOpts(event.New())...)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), c.Strategy().(*EVM).ChainID())

	class, _ = LookupClass(EVMClassName)
	eth.Explorers[0].ChainID = ""
	_, err = CreateCoin(eth, class, testOpts(event.New())...)
	assert.ErrorAs(t, err, &ve)
}

func TestClasses(t *testing.T) {
	for _, n := range []string{"BTCCoin", "LTCCoin", "ETHCoin", "BNBCoin", "MATICCoin", "EVMCoin"} {
		assert.Contains(t, Classes(), n)
	}
	ltc, _ := LookupClass("LTCCoin")
	s, err := ltc.NewStrategy(config.CoinConfig{})
	require.NoError(t, err)
	assert.Equal(t, "litecoin", s.(*UTXO).Params().Name)

	btc, _ := LookupClass("BTCCoin")
	s, err = btc.NewStrategy(config.CoinConfig{Network: "testnet"})
	require.NoError(t, err)
	assert.Equal(t, "testnet3", s.(*UTXO).Params().Name)
}

func coinsTable() []config.CoinConfig {
	eth := ethConfig()
	eth.Tokens = []config.TokenConfig{usdtConfig()}
	return []config.CoinConfig{
		btcConfig(),
		{ID: "DOGE", ClassName: "DOGECoin", Ticker: "DOGE", Decimal: 8},
		eth,
	}
}

func TestCreateWallets(t *testing.T) {
	ctx := context.Background()
	w, err := CreateWallets(ctx, StaticSource(coinsTable()), "", testOpts(event.New())...)
	require.NoError(t, err)

	// unregistered classes are skipped
	require.Len(t, w.Coins, 2)
	assert.Equal(t, "BTC", w.Coins[0].ID())
	assert.Equal(t, "ETH", w.Coins[1].ID())
	assert.NotNil(t, w.Coins[0].Explorer())
	require.Len(t, w.Tokens["ETH"], 1)
	assert.Len(t, w.All(), 3)

	tok := w.Tokens["ETH"][0]
	assert.Same(t, tok, w.Get(tok.ID()))
	assert.Nil(t, w.Get("DOGE"))
	found := w.Find(Query{Ticker: "usdt"})
	require.Len(t, found, 1)
	assert.Equal(t, tok.ID(), found[0].ID())

	w, err = CreateWallets(ctx, StaticSource(coinsTable()), "ETH", testOpts(event.New())...)
	require.NoError(t, err)
	require.Len(t, w.Coins, 1)
	assert.Equal(t, "ETH", w.Coins[0].ID())
	w.Close()

	// construction errors are reported, the other coins are built
	table := append(coinsTable(), config.CoinConfig{
		ID: "POL137", ClassName: EVMClassName, WalletType: "EVM", Ticker: "POL", Name: "Polygon", ChainID: "137",
		RPCBaseURL: "http://polygon-rpc.com",
	})
	w, err = CreateWallets(ctx, StaticSource(table), "", testOpts(event.New())...)
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
	assert.Len(t, w.Coins, 2)
}

func TestWalletSources(t *testing.T) {
	dir := t.TempDir()
	b := []byte(`[{"id":"BTC","className":"BTCCoin","ticker":"BTC","name":"Bitcoin","decimal":8,"explorers":[]}]`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "coins.json"), b, 0o600))
	ctx := context.Background()

	w, err := CreateWallets(ctx, FileSource(filepath.Join(dir, "coins.json")), "", testOpts(event.New())...)
	require.NoError(t, err)
	require.Len(t, w.Coins, 1)

	w, err = CreateWallets(ctx, ManagerSource{Manager: config.NewFileManager(dir), ID: "coins"}, "",
		testOpts(event.New())...)
	require.NoError(t, err)
	require.Len(t, w.Coins, 1)
	assert.Equal(t, "Bitcoin", w.Coins[0].Name())

	_, err = CreateWallets(ctx, ManagerSource{Manager: config.Rejecting{}, ID: "coins"}, "")
	assert.ErrorIs(t, err, config.ErrNoManager)
	_, err = CreateWallets(ctx, FileSource(filepath.Join(dir, "missing.json")), "")
	assert.Error(t, err)
}
