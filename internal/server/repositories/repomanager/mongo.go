package repomanager

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/erpkeeper/internal/server/repositories/accounts"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// MongoRepositoryManager vends MongoDB-backed repositories.
type MongoRepositoryManager struct {
	client   *mongo.Client
	accounts *accounts.MongoRepository
}

// mongoConnect is a seam for tests.
var mongoConnect = func(uri string) (*mongo.Client, error) {
	return mongo.Connect(options.Client().ApplyURI(uri))
}

// NewMongoRepositoryManager connects to uri and makes sure the unique
// indexes of the accounts collection exist.
func NewMongoRepositoryManager(ctx context.Context, uri, database string) (*MongoRepositoryManager, error) {
	client, err := mongoConnect(uri)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	repo := accounts.NewMongoRepository(client.Database(database))
	if err := repo.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return &MongoRepositoryManager{client: client, accounts: repo}, nil
}

func (m *MongoRepositoryManager) Accounts() accounts.Repository {
	return m.accounts
}

func (m *MongoRepositoryManager) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *MongoRepositoryManager) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
