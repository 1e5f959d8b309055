package explorer

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tarancss/mcw/lib/config"
	"github.com/tarancss/mcw/lib/types"
)

// Base carries the state shared by all explorers and answers types.ErrUnsupported for every chain call, so concrete
// explorers embed it and override what they serve.
type Base struct {
	mu    sync.RWMutex
	name  string
	cfg   config.ExplorerConfig
	owner Owner
	log   *zap.SugaredLogger
}

// Init sets the class name, configuration, owner and logger.
func (b *Base) Init(name string, cfg config.ExplorerConfig, owner Owner, log *zap.SugaredLogger) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.name, b.cfg, b.owner, b.log = name, cfg, owner, log
	if b.log == nil {
		b.log = zap.NewNop().Sugar()
	}
}

// Name implements Explorer.
func (b *Base) Name() string { return b.name }

// Config implements Explorer.
func (b *Base) Config() config.ExplorerConfig {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

// UpdateParams implements Explorer.
func (b *Base) UpdateParams(cfg config.ExplorerConfig) {
	b.mu.Lock()
	b.cfg = cfg
	b.mu.Unlock()
}

// Owner returns the coin the explorer works for.
func (b *Base) Owner() Owner { return b.owner }

// Log returns the explorer logger.
func (b *Base) Log() *zap.SugaredLogger { return b.log }

// TxLimit implements Explorer.
func (b *Base) TxLimit() int { return b.Config().TxLimit }

// CanPaginate implements Explorer.
func (b *Base) CanPaginate() bool { return false }

// GetInfo implements Explorer.
func (b *Base) GetInfo(context.Context, string) (types.Info, error) {
	return types.Info{}, types.ErrUnsupported
}

// GetTransaction implements Explorer.
func (b *Base) GetTransaction(context.Context, string, string) (*types.Transaction, error) {
	return nil, types.ErrUnsupported
}

// GetTransactions implements Explorer.
func (b *Base) GetTransactions(context.Context, Query) ([]types.Transaction, error) {
	return nil, types.ErrUnsupported
}

// GetUnspentOutputs implements Explorer.
func (b *Base) GetUnspentOutputs(context.Context, string, string) ([]types.UTXO, error) {
	return nil, types.ErrUnsupported
}

// SendTransaction implements Explorer.
func (b *Base) SendTransaction(context.Context, string) (string, error) {
	return "", types.ErrUnsupported
}

// CheckTransaction implements Explorer.
func (b *Base) CheckTransaction(_ context.Context, _ string, tx types.Transaction) (types.Transaction, error) {
	return tx, types.ErrUnsupported
}
