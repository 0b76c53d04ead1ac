// Package custody is the token-transfer collaborator boundary. The
// ledger only computes amounts; moving value is delegated here, and a
// transfer failure must abort the enclosing operation before any ledger
// state is committed.
package custody

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/kalefund/fundgate/internal/pkg/logger"
)

// FundAccount is the custody identity holding deposited tokens.
const FundAccount = "fund-custody"

type TokenTransfer interface {
	// Transfer moves amount of the settlement token from source to
	// destination, failing the whole enclosing operation on any error.
	Transfer(ctx context.Context, from, to string, amount *big.Int) error
}

// Movement is one recorded transfer, kept for inspection and tests.
type Movement struct {
	From   string
	To     string
	Amount *big.Int
}

// SimulatedCustody tracks token movement in memory. It stands in for
// the on-chain token client in local runs; swap in a real client by
// implementing TokenTransfer.
type SimulatedCustody struct {
	mu        sync.Mutex
	movements []Movement
}

func NewSimulatedCustody() *SimulatedCustody {
	return &SimulatedCustody{}
}

func (c *SimulatedCustody) Transfer(ctx context.Context, from, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("custody: invalid transfer amount")
	}
	c.mu.Lock()
	c.movements = append(c.movements, Movement{From: from, To: to, Amount: new(big.Int).Set(amount)})
	c.mu.Unlock()

	logger.Debug("token transfer", "from", from, "to", to, "amount", amount.String())
	return nil
}

// Movements returns a copy of all recorded transfers.
func (c *SimulatedCustody) Movements() []Movement {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Movement, len(c.movements))
	copy(out, c.movements)
	return out
}
