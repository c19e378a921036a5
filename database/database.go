package database

import (
	"context"
	"log"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo is the process-wide document-store handle. Connect is idempotent so
// repeated initialization (serverless cold starts, retries) is a no-op after
// the first success.
type Mongo struct {
	mu     sync.Mutex
	uri    string
	name   string
	client *mongo.Client
	db     *mongo.Database
}

func New(uri, name string) *Mongo {
	if uri == "" {
		uri = "mongodb://127.0.0.1:27017"
	}
	if name == "" {
		name = "wellnest"
	}
	return &Mongo{uri: uri, name: name}
}

func (m *Mongo) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(m.uri))
	if err != nil {
		return err
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return err
	}

	m.client = client
	m.db = client.Database(m.name)
	log.Println("Connected to MongoDB successfully")
	return nil
}

func (m *Mongo) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client != nil
}

func (m *Mongo) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := m.client.Disconnect(ctx); err != nil {
		return err
	}
	m.client = nil
	m.db = nil
	log.Println("Disconnected from MongoDB")
	return nil
}

func (m *Mongo) Collection(name string) *mongo.Collection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Collection(name)
}

func (m *Mongo) Ping(ctx context.Context) error {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	if client == nil {
		return mongo.ErrClientDisconnected
	}
	return client.Ping(ctx, nil)
}
