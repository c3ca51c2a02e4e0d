//go:build integration

package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"autoposter/internal/autopost/coordinator"
	"autoposter/internal/autopost/repository"
	"autoposter/internal/autopost/schedule"
	"autoposter/internal/autopost/service"
	"autoposter/internal/config"
	"autoposter/internal/linkedin"
	mongoclient "autoposter/internal/mongo"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
)

func TestAutoPostRunAgainstMongo(t *testing.T) {
	t.Parallel()

	db := setupIntegrationDatabase(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var published atomic.Int32
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/ugcPosts" {
			http.NotFound(w, r)
			return
		}
		id := fmt.Sprintf("urn:li:share:%d", 900+published.Add(1))
		w.Header().Set("X-RestLi-Id", id)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"` + id + `"}`))
	}))
	defer provider.Close()

	posts := repository.NewMongoPostRepository(db)
	users := repository.NewMongoUserRepository(db, "users")
	collections := []string{"posts", "scheduledPosts"}
	if err := posts.EnsureIndexes(ctx, collections); err != nil {
		t.Fatalf("failed to ensure post indexes: %v", err)
	}
	if err := users.EnsureIndexes(ctx); err != nil {
		t.Fatalf("failed to ensure user indexes: %v", err)
	}

	zone := schedule.IST()
	dueWall := schedule.Naive(zone.Wall(time.Now())).Add(-time.Minute)

	validOwner := primitive.NewObjectID()
	expiredOwner := primitive.NewObjectID()
	_, err := db.Collection("users").InsertMany(ctx, []interface{}{
		bson.M{"_id": validOwner, "email": "valid@example.com", "linkedinAccessToken": "tok", "linkedinTokenExpiry": time.Now().Add(24 * time.Hour), "linkedinProfileId": "abc"},
		bson.M{"_id": expiredOwner, "email": "expired@example.com", "linkedinAccessToken": "tok", "linkedinTokenExpiry": time.Now().Add(-time.Hour), "linkedinProfileId": "def"},
	})
	if err != nil {
		t.Fatalf("failed to insert users: %v", err)
	}

	okID := primitive.NewObjectID()
	if _, err := db.Collection("posts").InsertOne(ctx, bson.M{
		"_id": okID, "status": "scheduled", "scheduledFor": dueWall, "userId": validOwner, "content": "Hello",
	}); err != nil {
		t.Fatalf("failed to insert post: %v", err)
	}
	if _, err := db.Collection("scheduledPosts").InsertOne(ctx, bson.M{
		"_id": "legacy-1", "postStatus": "scheduled", "scheduledTime": dueWall, "ownerEmail": "EXPIRED@example.com", "text": "Hi",
	}); err != nil {
		t.Fatalf("failed to insert legacy post: %v", err)
	}

	client := linkedin.NewClient(config.LinkedInConfig{BaseURL: provider.URL, Timeout: 5 * time.Second})
	scanner := service.NewScanner(posts, schedule.NewWindow(zone, schedule.DefaultBuffer), time.Now)
	processor := service.NewProcessor(users, service.NewCredentialValidator(5*time.Minute, nil, time.Now), client, service.NewLifecycle(posts, 3, time.Now))
	coord := coordinator.New(coordinator.Config{Collections: collections}, scanner, processor)

	summary, err := coord.Run(ctx, coordinator.TriggerManual)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.TotalProcessed != 2 || summary.Posted != 1 || summary.Errors != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	var posted bson.M
	if err := db.Collection("posts").FindOne(ctx, bson.M{"_id": okID}).Decode(&posted); err != nil {
		t.Fatalf("failed to load posted post: %v", err)
	}
	if posted["status"] != "posted" || posted["linkedinUrl"] != "https://www.linkedin.com/feed/update/urn:li:share:901/" {
		t.Fatalf("unexpected posted document: %+v", posted)
	}
	if _, ok := posted["scheduledFor"]; ok {
		t.Fatalf("scheduledFor should be removed after posting")
	}

	var failed bson.M
	if err := db.Collection("scheduledPosts").FindOne(ctx, bson.M{"_id": "legacy-1"}).Decode(&failed); err != nil {
		t.Fatalf("failed to load failed post: %v", err)
	}
	if failed["postStatus"] != "failed" || failed["needsReauth"] != true {
		t.Fatalf("unexpected failed document: %+v", failed)
	}

	// 第二次运行不应再发布任何内容
	second, err := coordinator.New(coordinator.Config{Collections: collections}, scanner, processor).Run(ctx, coordinator.TriggerManual)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if second.TotalProcessed != 0 || published.Load() != 1 {
		t.Fatalf("expected nothing to process on second run, got %d (published=%d)", second.TotalProcessed, published.Load())
	}
}

func setupIntegrationDatabase(t *testing.T) *mongodriver.Database {
	t.Helper()

	uri := envOrDefault("MONGO_URI", "mongodb://localhost:27017")
	baseDatabase := envOrDefault("TEST_DATABASE", "test_autoposter")
	databaseName := fmt.Sprintf("%s_%d", baseDatabase, time.Now().UnixNano())

	client, err := mongoclient.NewClient(mongoclient.Config{
		URI:      uri,
		Database: databaseName,
		Timeout:  5 * time.Second,
	})
	if err != nil {
		if isCIEnvironment() {
			t.Fatalf("failed to connect MongoDB in CI: %v", err)
		}
		t.Skipf("MongoDB is not available locally, skip integration test: %v", err)
		return nil
	}

	db := client.Database()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := db.Drop(ctx); err != nil {
			t.Errorf("failed to drop integration database %s: %v", databaseName, err)
		}
		if err := client.Close(ctx); err != nil {
			t.Errorf("failed to close MongoDB connection: %v", err)
		}
	})

	return db
}

func envOrDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func isCIEnvironment() bool {
	return os.Getenv("CI") == "true" || os.Getenv("GITHUB_ACTIONS") == "true"
}
