package wallet

import (
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/tarancss/mcw/lib/config"
	"github.com/tarancss/mcw/lib/explorer"
)

// Explorers returns the explorers of the coin, the active one first.
func (c *Coin) Explorers() []explorer.Explorer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]explorer.Explorer(nil), c.explorers...)
}

// Explorer returns the active explorer, nil when none is wired.
func (c *Coin) Explorer() explorer.Explorer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.explorers) == 0 {
		return nil
	}
	return c.explorers[0]
}

// CreateExplorer builds an explorer of cfg.ClassName bound to the coin and appends it to the explorers.
func (c *Coin) CreateExplorer(cfg config.ExplorerConfig) (explorer.Explorer, error) {
	e, err := explorer.New(cfg.ClassName, cfg, c, explorer.Deps{
		Log:  c.log.With("explorer", explorer.Resolve(cfg.ClassName)),
		HTTP: c.http,
	})
	if err != nil {
		return nil, fmt.Errorf("wallet: %s: explorer %s: %w", c.ID(), cfg.ClassName, err)
	}
	c.mu.Lock()
	c.explorers = append(c.explorers, e)
	c.mu.Unlock()
	c.log.Debugw("explorer created", "explorer", e.Name(), "url", cfg.BaseURL)
	return e, nil
}

// ProcessExplorerConfig returns the explorer whose configuration deeply equals cfg, creating it when there is none,
// and applies cfg to it.
func (c *Coin) ProcessExplorerConfig(cfg config.ExplorerConfig) (explorer.Explorer, error) {
	var found explorer.Explorer
	for _, e := range c.Explorers() {
		if reflect.DeepEqual(e.Config(), cfg) {
			found = e
			break
		}
	}
	if found == nil {
		var err error
		if found, err = c.CreateExplorer(cfg); err != nil {
			return nil, err
		}
	}
	found.UpdateParams(cfg)
	return found, nil
}

// LoadExplorers wires the explorers of the configuration and makes the first one configured the active one.
// Explorers that cannot be built are skipped and reported in the returned error.
func (c *Coin) LoadExplorers() error {
	c.mu.RLock()
	cfgs := append([]config.ExplorerConfig(nil), c.explorerCfgs...)
	c.mu.RUnlock()

	var errs []error
	for _, cfg := range cfgs {
		if _, err := c.ProcessExplorerConfig(cfg); err != nil {
			c.log.Warnw("loading explorer", "explorer", cfg.ClassName, "err", err)
			errs = append(errs, err)
		}
	}

	rank := func(e explorer.Explorer) int {
		for i, cfg := range cfgs {
			if reflect.DeepEqual(e.Config(), cfg) {
				return i
			}
		}
		return len(cfgs)
	}
	c.mu.Lock()
	sort.SliceStable(c.explorers, func(i, j int) bool { return rank(c.explorers[i]) < rank(c.explorers[j]) })
	c.mu.Unlock()
	return errors.Join(errs...)
}

// SetFeeData overwrites the fee schedule entries that are already set. Unknown or empty entries are left alone, as
// are the gasLimit, coefficient and unspendableBalance fields when they are unset.
func (c *Coin) SetFeeData(fd map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range fd {
		if cur, ok := c.feeData[k]; ok && cur != "" {
			c.feeData[k] = v
		}
		switch k {
		case "coefficient":
			if c.coefficient != "" {
				c.coefficient = v
			}
		case "unspendableBalance":
			if c.unspendable != "" {
				c.unspendable = v
			}
		}
	}
}

// UpdateConfigValue sets one configuration field by its JSON name. Only known fields that are already set change; it
// reports whether the value was applied.
func (c *Coin) UpdateConfigValue(key string, value interface{}) bool {
	switch v := value.(type) {
	case string:
		return c.updateString(key, v)
	case bool:
		if key != "socket" {
			return false
		}
		c.mu.Lock()
		c.socket = v
		c.mu.Unlock()
		return true
	case config.ChainID:
		if key != "chainId" || v == "" {
			return false
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.chainID == "" {
			return false
		}
		c.chainID = v
		return true
	case uint64:
		if key != "gasLimit" || v == 0 {
			return false
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gasLimit == 0 {
			return false
		}
		c.gasLimit = v
		return true
	case []string:
		if key != "features" {
			return false
		}
		fs, unknown := parseFeatures(v)
		if len(unknown) > 0 {
			c.log.Warnw("ignoring unknown features", "features", unknown)
		}
		c.mu.Lock()
		c.features = fs
		c.mu.Unlock()
		return true
	}
	return false
}

func (c *Coin) updateString(key, v string) bool {
	if v == "" {
		return false
	}
	switch key {
	case "name":
		if c.Name() == "" {
			return false
		}
		c.setName(v, "")
		return true
	case "alias":
		if c.Alias() == "" {
			return false
		}
		c.setName("", v)
		return true
	case "memoRegexp":
		if c.MemoRegexp() == "" {
			return false
		}
		c.setMemoRegexp(v)
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var field *string
	switch key {
	case "network":
		field = &c.network
	case "denom":
		field = &c.denom
	case "txWebUrl":
		field = &c.txWebURL
	case "coefficient":
		field = &c.coefficient
	case "unspendableBalance":
		field = &c.unspendable
	default:
		return false
	}
	if *field == "" {
		return false
	}
	*field = v
	return true
}

// UpdateCoinParamsFromServer applies a fresh configuration in place. It does nothing when cfg is the current
// configuration itself; otherwise every field is replayed through UpdateConfigValue, the fee schedule through
// SetFeeData, and the explorers are reloaded.
func (c *Coin) UpdateCoinParamsFromServer(cfg *config.CoinConfig) error {
	if cfg == nil || cfg == c.Config() {
		return nil
	}
	for k, v := range map[string]interface{}{
		"name":               cfg.Name,
		"alias":              cfg.Alias,
		"memoRegexp":         cfg.MemoRegexp,
		"network":            cfg.Network,
		"denom":              cfg.Denom,
		"txWebUrl":           cfg.TxWebURL,
		"coefficient":        cfg.Coefficient,
		"unspendableBalance": cfg.UnspendableBalance,
		"socket":             cfg.Socket,
		"chainId":            cfg.ChainID,
		"gasLimit":           cfg.GasLimit,
		"features":           cfg.Features,
	} {
		c.UpdateConfigValue(k, v)
	}
	c.SetFeeData(cfg.FeeData)

	c.mu.Lock()
	c.cfg = cfg
	c.explorerCfgs = append([]config.ExplorerConfig(nil), cfg.Explorers...)
	c.mu.Unlock()
	c.log.Infow("configuration updated", "explorers", len(cfg.Explorers))
	return c.LoadExplorers()
}
