package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/atmx/vault-engine/internal/metrics"
	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/num"
)

// refund returns amount of asset, already pulled into custody but never
// credited to any ledger, to acct. A failed refund is recorded as stranded.
func (e *Engine) refund(ctx context.Context, op string, acct model.Account, asset model.Asset, amount num.Nat, cause error) {
	idx, err := e.push(ctx, asset, acct, amount)
	if err != nil {
		e.strand(ctx, &model.StrandedFunds{
			Operation: op,
			Reason:    model.StrandedRefund,
			Account:   acct,
			Asset:     asset,
			Amount:    amount,
			Detail:    fmt.Sprintf("refund after %v failed: %v", cause, err),
		})
		return
	}
	slog.Info("refunded pulled funds", "op", op, "account", acct.String(),
		"asset", string(asset), "amount", amount.String(), "cause", cause.Error())
	e.commit(ctx, &model.Entry{
		Kind:      model.KindRefund,
		Account:   acct,
		AssetOut:  asset,
		AmountOut: amount,
		Receipts:  []model.BlockIndex{idx},
	}, nil)
}

func (e *Engine) strand(ctx context.Context, sf *model.StrandedFunds) {
	sf.ID = uuid.New().String()
	sf.CreatedAt = e.now()

	e.mu.Lock()
	e.stranded[sf.ID] = sf
	cp := *sf
	e.mu.Unlock()

	metrics.StrandedFunds.Inc()
	slog.Error("funds stranded",
		"id", sf.ID,
		"operation", sf.Operation,
		"reason", sf.Reason,
		"account", sf.Account.String(),
		"asset", string(sf.Asset),
		"amount", sf.Amount.String(),
		"detail", sf.Detail,
	)
	e.saveStranded(ctx, &cp)
}

func (e *Engine) saveStranded(ctx context.Context, sf *model.StrandedFunds) {
	if e.journal == nil {
		return
	}
	if err := e.journal.SaveStranded(context.WithoutCancel(ctx), sf); err != nil {
		slog.Error("stranded record write failed", "id", sf.ID, "err", err)
	}
}

// LoadStranded restores the recovery registry from the journal so records
// written before a restart stay visible and retryable. Records already in
// the registry are kept as they are. It returns the number of unresolved
// records loaded.
func (e *Engine) LoadStranded(ctx context.Context) (int, error) {
	if e.journal == nil {
		return 0, nil
	}
	records, err := e.journal.ListStranded(ctx)
	if err != nil {
		return 0, fmt.Errorf("load stranded records: %w", err)
	}

	open := 0
	e.mu.Lock()
	for i := range records {
		sf := records[i]
		if _, ok := e.stranded[sf.ID]; ok {
			continue
		}
		e.stranded[sf.ID] = &sf
		if sf.ResolvedAt == nil {
			open++
		}
	}
	e.mu.Unlock()

	metrics.StrandedFunds.Add(float64(open))
	return open, nil
}

// Stranded lists every stranded-fund record, oldest first.
func (e *Engine) Stranded() []model.StrandedFunds {
	e.mu.Lock()
	out := make([]model.StrandedFunds, 0, len(e.stranded))
	for _, sf := range e.stranded {
		out = append(out, *sf)
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// RetryStranded re-attempts a failed refund. Unsettled payouts have no
// transfer to retry and must be reconciled by the operator.
func (e *Engine) RetryStranded(ctx context.Context, id string) (rec model.StrandedFunds, err error) {
	e.mu.Lock()
	sf, ok := e.stranded[id]
	switch {
	case !ok:
		e.mu.Unlock()
		return model.StrandedFunds{}, fmt.Errorf("%w: %s", ErrStrandedNotFound, id)
	case sf.ResolvedAt != nil:
		e.mu.Unlock()
		return model.StrandedFunds{}, fmt.Errorf("%w: %s already resolved", ErrNotRetryable, id)
	case sf.Reason != model.StrandedRefund:
		e.mu.Unlock()
		return model.StrandedFunds{}, fmt.Errorf("%w: %s is an unsettled payout", ErrNotRetryable, id)
	case e.retrying[id]:
		e.mu.Unlock()
		return model.StrandedFunds{}, fmt.Errorf("%w: %s retry already in flight", ErrNotRetryable, id)
	}
	e.retrying[id] = true
	acct, asset, amount := sf.Account, sf.Asset, sf.Amount
	e.mu.Unlock()

	idx, err := e.push(ctx, asset, acct, amount)

	e.mu.Lock()
	delete(e.retrying, id)
	if err == nil {
		at := e.now()
		sf.ResolvedAt = &at
		sf.Receipt = idx
	} else {
		sf.Detail = fmt.Sprintf("%s; retry failed: %v", sf.Detail, err)
	}
	rec = *sf
	e.mu.Unlock()

	e.saveStranded(ctx, &rec)
	if err != nil {
		return rec, fmt.Errorf("retry stranded %s: %w", id, err)
	}

	metrics.StrandedFunds.Dec()
	e.commit(ctx, &model.Entry{
		Kind:      model.KindRefund,
		Account:   acct,
		AssetOut:  asset,
		AmountOut: amount,
		Receipts:  []model.BlockIndex{idx},
	}, nil)
	return rec, nil
}
