package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/RichardoC/mintchat/internal/metrics"
	"github.com/RichardoC/mintchat/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxHolders is how many of the largest accounts get owner lookups.
const DefaultMaxHolders = 5

// RPC is the subset of the node API the snapshot builder needs.
type RPC interface {
	GetTokenSupply(ctx context.Context, mint string) (*TokenAmount, error)
	GetTokenLargestAccounts(ctx context.Context, mint string) ([]TokenAccount, error)
	GetAccountOwner(ctx context.Context, address string) (string, error)
}

type Builder struct {
	rpc        RPC
	timeout    time.Duration
	maxHolders int
	logger     *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewBuilder(rpc RPC, timeout time.Duration, maxHolders int, logger *zap.Logger, m *metrics.Metrics) *Builder {
	if maxHolders <= 0 {
		maxHolders = DefaultMaxHolders
	}
	return &Builder{
		rpc:        rpc,
		timeout:    timeout,
		maxHolders: maxHolders,
		logger:     logger,
		metrics:    m,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// BuildSnapshot fetches supply and the largest holders concurrently, then
// resolves each holder's owner concurrently. A failed owner lookup leaves
// that holder's Owner nil; any other failure aborts the snapshot.
func (b *Builder) BuildSnapshot(ctx context.Context, mint string) (*models.TokenSnapshot, error) {
	if err := ValidateAddress(mint); err != nil {
		return nil, err
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	var (
		supply  *TokenAmount
		largest []TokenAccount
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		supply, err = b.rpc.GetTokenSupply(gctx, mint)
		return err
	})
	g.Go(func() error {
		var err error
		largest, err = b.rpc.GetTokenLargestAccounts(gctx, mint)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", mint, err)
	}

	if len(largest) > b.maxHolders {
		largest = largest[:b.maxHolders]
	}
	holders := b.resolveHolders(ctx, largest)

	snap := &models.TokenSnapshot{
		Mint:           mint,
		Decimals:       supply.Decimals,
		RawAmount:      supply.Amount,
		UIAmountString: supply.UIAmountString,
		LargestHolders: holders,
		LastUpdated:    b.now(),
	}
	if supply.UIAmount != nil {
		snap.Supply = *supply.UIAmount
	}
	return snap, nil
}

func (b *Builder) resolveHolders(ctx context.Context, accounts []TokenAccount) []models.HolderRecord {
	holders := make([]models.HolderRecord, len(accounts))

	// Lookups never return an error to the group so one failure cannot
	// cancel its siblings.
	var g errgroup.Group
	g.SetLimit(b.maxHolders)
	for i, acct := range accounts {
		holders[i] = models.HolderRecord{
			Address:        acct.Address,
			Amount:         acct.Amount,
			Decimals:       acct.Decimals,
			UIAmountString: acct.UIAmountString,
		}
		if acct.UIAmount != nil {
			holders[i].UIAmount = *acct.UIAmount
		}

		g.Go(func() error {
			owner, err := b.rpc.GetAccountOwner(ctx, acct.Address)
			if err != nil {
				b.metrics.OwnerLookupFailed()
				b.logger.Warn("owner lookup failed",
					zap.String("account", acct.Address),
					zap.Error(err))
				return nil
			}
			holders[i].Owner = &owner
			return nil
		})
	}
	_ = g.Wait()

	return holders
}
