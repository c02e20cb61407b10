// Package paymenttest provides a scriptable in-memory payment processor.
package paymenttest

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Processor records every call. ChargeFunc and RefundFunc, when set, are
// consulted before a call succeeds; a non-nil error fails that call.
// Attempts are numbered from 1.
type Processor struct {
	ChargeFunc func(attempt int, key string) error
	RefundFunc func(attempt int, receiptID string) error
	// Delay is slept inside Charge, honouring ctx.
	Delay time.Duration

	mu            sync.Mutex
	chargeCalls   int
	refundCalls   int
	charged       map[string]string
	successByKey  map[string]int
	refunds       map[string]string
	nextReceiptID int
}

func New() *Processor {
	return &Processor{
		charged:      make(map[string]string),
		successByKey: make(map[string]int),
		refunds:      make(map[string]string),
	}
}

func (p *Processor) Charge(ctx context.Context, key string, amount int64, currency, token string) (string, error) {
	p.mu.Lock()
	p.chargeCalls++
	attempt := p.chargeCalls
	p.mu.Unlock()

	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if p.ChargeFunc != nil {
		if err := p.ChargeFunc(attempt, key); err != nil {
			return "", err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextReceiptID++
	receipt := fmt.Sprintf("rcpt-%d", p.nextReceiptID)
	p.charged[receipt] = key
	p.successByKey[key]++
	return receipt, nil
}

func (p *Processor) Refund(ctx context.Context, receiptID string) (string, error) {
	p.mu.Lock()
	p.refundCalls++
	attempt := p.refundCalls
	p.mu.Unlock()

	if p.RefundFunc != nil {
		if err := p.RefundFunc(attempt, receiptID); err != nil {
			return "", err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.charged[receiptID]; !ok {
		return "", fmt.Errorf("unknown receipt %s", receiptID)
	}
	if id, ok := p.refunds[receiptID]; ok {
		return id, nil
	}
	id := "refund-" + receiptID
	p.refunds[receiptID] = id
	return id, nil
}

func (p *Processor) ChargeCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chargeCalls
}

func (p *Processor) RefundCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refundCalls
}

// SuccessfulCharges reports how many charges succeeded for key.
func (p *Processor) SuccessfulCharges(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.successByKey[key]
}

// TotalSuccessfulCharges reports charges that succeeded across all keys.
func (p *Processor) TotalSuccessfulCharges() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.charged)
}

func (p *Processor) Refunded(receiptID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.refunds[receiptID]
	return ok
}
