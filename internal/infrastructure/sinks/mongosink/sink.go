package mongosink

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/pathway100k/intake/internal/infrastructure/sinks"
	"github.com/pathway100k/intake/internal/model"
)

// applicationDocument is the stored shape of one application.
type applicationDocument struct {
	ApplicationID string    `bson:"applicationId"`
	FullName      string    `bson:"fullName"`
	Email         string    `bson:"email"`
	CountryCode   string    `bson:"countryCode"`
	Phone         string    `bson:"phone"`
	Plan          string    `bson:"plan"`
	Experience    string    `bson:"experience"`
	SubmittedAt   time.Time `bson:"submittedAt"`
	SourceIP      string    `bson:"sourceIp"`
}

func newApplicationDocument(rec model.SubmissionRecord) applicationDocument {
	return applicationDocument{
		ApplicationID: rec.ID,
		FullName:      rec.FullName,
		Email:         rec.Email,
		CountryCode:   rec.CountryCode,
		Phone:         rec.Phone,
		Plan:          rec.Plan,
		Experience:    rec.Experience,
		SubmittedAt:   rec.SubmittedAt,
		SourceIP:      rec.SourceIP,
	}
}

// Sink inserts applications into a MongoDB collection.
type Sink struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// Connect dials MongoDB and ensures the applicationId/submittedAt indexes exist.
func Connect(ctx context.Context, uri, database, collection string, timeout time.Duration) (*Sink, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1))
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "applicationId", Value: 1}}},
		{Keys: bson.D{{Key: "submittedAt", Value: -1}}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo indexes: %w", err)
	}
	return &Sink{client: client, collection: coll}, nil
}

func (s *Sink) Record(ctx context.Context, rec model.SubmissionRecord) error {
	if _, err := s.collection.InsertOne(ctx, newApplicationDocument(rec)); err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

func (s *Sink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Sink) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Factory registers the MongoDB sink as "mongo".
type Factory struct{}

func (f *Factory) Name() string { return "mongo" }

func (f *Factory) ConfigSpec() sinks.SinkTypeInfo {
	return sinks.SinkTypeInfo{
		Type:        "mongo",
		Description: "Inserts each application as a document into a MongoDB collection.",
		Fields: []sinks.ConfigField{
			{Name: "sinks.mongo.uri", Env: "INTAKE_SINKS__MONGO__URI", Type: "string", Required: true, Description: "Connection URI", Example: "mongodb://localhost:27017"},
			{Name: "sinks.mongo.database", Env: "INTAKE_SINKS__MONGO__DATABASE", Type: "string", Required: true, Description: "Database name", Example: "pathway"},
			{Name: "sinks.mongo.collection", Env: "INTAKE_SINKS__MONGO__COLLECTION", Type: "string", Required: false, Description: "Collection name", Example: "applications"},
			{Name: "sinks.mongo.connect_timeout", Env: "INTAKE_SINKS__MONGO__CONNECT_TIMEOUT", Type: "number", Required: false, Description: "Connect timeout in seconds", Example: "10"},
		},
	}
}

func (f *Factory) Create(ctx context.Context, deps sinks.Deps) (sinks.Recorder, error) {
	mc := deps.Config.Sinks.Mongo
	collection := mc.Collection
	if collection == "" {
		collection = "applications"
	}
	timeout := time.Duration(mc.ConnectTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return Connect(ctx, mc.URI, mc.Database, collection, timeout)
}

func init() {
	sinks.GlobalRegistry.Register(&Factory{})
}
