package mongo

import (
	"context"
	"fmt"
	"time"

	apperrors "skyport/pkg/errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

type TransactionFunc func(ctx mongo.SessionContext) error

type TransactionManager interface {
	ExecuteTransaction(ctx context.Context, fn TransactionFunc) error
}

type Option func(*mongoTransactionManager)

// WithTimeout bounds a transaction including the driver's commit retries.
func WithTimeout(d time.Duration) Option {
	return func(m *mongoTransactionManager) {
		m.timeout = d
	}
}

type mongoTransactionManager struct {
	client  *mongo.Client
	opts    *options.TransactionOptions
	timeout time.Duration
}

// NewTransactionManager runs transactions with majority reads and writes on
// the primary, so a superseding write never builds on a rolled-back revision.
func NewTransactionManager(client *mongo.Client, opts ...Option) TransactionManager {
	m := &mongoTransactionManager{
		client: client,
		opts: options.Transaction().
			SetReadConcern(readconcern.Majority()).
			SetWriteConcern(writeconcern.Majority()).
			SetReadPreference(readpref.Primary()),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *mongoTransactionManager) ExecuteTransaction(ctx context.Context, fn TransactionFunc) error {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	session, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (any, error) {
		return nil, fn(sessCtx)
	}, m.opts)
	if err != nil {
		if apperrors.IsAppError(err) {
			return err
		}
		return fmt.Errorf("transaction failed: %w", err)
	}
	return nil
}
