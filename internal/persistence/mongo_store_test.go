package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jfet97/perform/internal/testutil"
)

const mongoTestDB = "perform_test"

type MongoStoreTestSuite struct {
	suite.Suite
	client *mongo.Client
	store  *MongoStore
}

func TestMongoStoreTestSuite(t *testing.T) {
	uri := testutil.GetMongoURI(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("mongo.Connect failed: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Disconnect(context.Background())
	})

	suite.Run(t, &MongoStoreTestSuite{
		client: client,
		store:  NewMongoStore(client, mongoTestDB),
	})
}

func (m *MongoStoreTestSuite) SetupTest() {
	err := m.client.Database(mongoTestDB).Drop(context.Background())
	m.Require().NoError(err)
}

func (m *MongoStoreTestSuite) TestRunLifecycle() {
	checkRunStore(m.T(), m.store)
}

func (m *MongoStoreTestSuite) TestEvents() {
	checkEventStore(m.T(), m.store)
}
