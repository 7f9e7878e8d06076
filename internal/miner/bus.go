package miner

import (
	"context"

	"github.com/eore-labs/eore-cli/internal/chain"
	"github.com/eore-labs/eore-cli/internal/protocol"

	"go.uber.org/zap"
)

// SelectBus picks the bus with the most remaining rewards from accounts,
// which must be ordered like protocol.BusAddresses. Only a strictly greater
// balance displaces the current pick, so ties keep the lower index. When
// nothing decodes the first bus is used.
func SelectBus(accounts []*chain.AccountInfo) (chain.PublicKey, uint64) {
	best := protocol.BusAddresses[0]
	var rewards uint64
	for i, acct := range accounts {
		if i >= len(protocol.BusAddresses) || acct == nil {
			continue
		}
		bus, err := protocol.DecodeBus(acct.Data)
		if err != nil {
			continue
		}
		if bus.Rewards > rewards {
			best, rewards = protocol.BusAddresses[i], bus.Rewards
		}
	}
	return best, rewards
}

// findBus reads all buses and selects one. It never fails: a failed read
// falls back to the first bus.
func (m *Miner) findBus(ctx context.Context) chain.PublicKey {
	accounts, err := read(ctx, m, "get_buses", func(ctx context.Context) ([]*chain.AccountInfo, error) {
		return m.chain.GetMultipleAccounts(ctx, protocol.BusAddresses[:])
	})
	if err != nil {
		m.logger.Warn("bus lookup failed, using default bus", zap.Error(err))
		return protocol.BusAddresses[0]
	}
	bus, rewards := SelectBus(accounts)
	m.logger.Debug("selected bus", zap.Stringer("bus", bus), zap.String("rewards", protocol.FormatAmount(rewards)))
	return bus
}
