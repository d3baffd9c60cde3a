/**
 * @description
 * Reconciliation for stuck PENDING payments. Webhooks are best-effort; when
 * one is lost, the ledger entry stays PENDING forever unless something asks
 * the provider directly. A periodic pass polls orders older than a cutoff
 * and applies the same conditional terminal transition the webhook path
 * uses, so the two can race without double-applying.
 */

package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/soulsadhna/booking-service/internal/domain"
	"github.com/soulsadhna/booking-service/internal/store"
	"github.com/soulsadhna/booking-service/pkg/cashfree"
)

// ReconcilePendingPayments runs one reconciliation pass: list PENDING entries
// older than the configured age, fetch the provider's view of each order and
// finalize the ones the provider has settled. Orders still payable at the
// provider are left alone.
func (s *Service) ReconcilePendingPayments(ctx context.Context) (*domain.ReconcileResult, error) {
	cutoff := time.Now().UTC().Add(-s.reconcilePendingAge)
	pending, err := s.repo.ListPendingPaymentsOlderThan(ctx, cutoff, s.reconcileBatchLimit)
	if err != nil {
		return nil, err
	}

	result := &domain.ReconcileResult{Scanned: len(pending)}
	for i := range pending {
		payment := &pending[i]
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		order, err := s.payments.GetOrder(ctx, payment.OrderID)
		if err != nil {
			log.Printf("level=warn component=service flow=reconcile msg=\"provider lookup failed\" order_id=%s err=%v", payment.OrderID, err)
			result.Errors++
			continue
		}

		var status string
		switch order.OrderStatus {
		case cashfree.OrderStatusPaid:
			status = domain.PaymentStatusSuccess
		case cashfree.OrderStatusExpired, cashfree.OrderStatusTerminated:
			status = domain.PaymentStatusFailed
		default:
			// Still payable at the provider; leave the entry PENDING.
			result.Skipped++
			continue
		}

		updated, err := s.repo.MarkPaymentTerminal(ctx, payment.OrderID, store.TerminalUpdateParams{
			Status:          status,
			TransactionTime: time.Now().UTC(),
		})
		if err != nil {
			if errors.Is(err, store.ErrPaymentAlreadyTerminal) {
				// A webhook landed between the listing and this update.
				result.Skipped++
				continue
			}
			log.Printf("level=warn component=service flow=reconcile msg=\"terminal update failed\" order_id=%s err=%v", payment.OrderID, err)
			result.Errors++
			continue
		}

		if status == domain.PaymentStatusSuccess {
			result.Completed++
		} else {
			result.Failed++
		}
		log.Printf("level=info component=service flow=reconcile msg=\"payment reconciled\" order_id=%s status=%s", payment.OrderID, status)
		s.publishTerminalEvent(ctx, updated)
	}

	return result, nil
}

// RunReconcileLoop runs reconciliation passes on a fixed interval until the
// context is cancelled. Intended to run in its own goroutine from main.
func (s *Service) RunReconcileLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("level=info component=service flow=reconcile msg=\"reconcile loop started\" interval=%s pending_age=%s", interval, s.reconcilePendingAge)
	for {
		select {
		case <-ctx.Done():
			log.Printf("level=info component=service flow=reconcile msg=\"reconcile loop stopped\"")
			return
		case <-ticker.C:
			res, err := s.ReconcilePendingPayments(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				log.Printf("level=warn component=service flow=reconcile msg=\"reconcile pass failed\" err=%v", err)
				continue
			}
			if res.Scanned > 0 {
				log.Printf("level=info component=service flow=reconcile msg=\"reconcile pass finished\" scanned=%d completed=%d failed=%d skipped=%d errors=%d", res.Scanned, res.Completed, res.Failed, res.Skipped, res.Errors)
			}
		}
	}
}
