//go:build integration

package apnsservice_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-test/emulators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/tinywideclouds/go-apns-service/apnsservice"
	"github.com/tinywideclouds/go-apns-service/apnsservice/config"
	relay "github.com/tinywideclouds/go-apns-service/internal/platform/apns"
	fsStore "github.com/tinywideclouds/go-apns-service/internal/storage/firestore"
	"github.com/tinywideclouds/go-apns-service/pkg/apns"
	"github.com/tinywideclouds/go-apns-service/pkg/push"
)

// --- MOCKS ---

// scriptedSender answers every push with the response registered for its token.
type scriptedSender struct {
	mu        sync.Mutex
	responses map[string]*apns.Response
	sent      []string
}

func (s *scriptedSender) Send(_ context.Context, n *push.Notification) (*apns.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n.Target())
	if res, ok := s.responses[n.Target()]; ok {
		return res, nil
	}
	return &apns.Response{Successful: true, Reason: apns.ReasonSuccess, StatusCode: http.StatusOK}, nil
}

func (s *scriptedSender) sentTo(token string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, t := range s.sent {
		if t == token {
			count++
		}
	}
	return count
}

func (s *scriptedSender) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// --- TEST ---

func TestAPNSService_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	projectID := "test-apns-integ"

	// 1. Emulators
	pubsubConn := emulators.SetupPubsubEmulator(t, ctx, emulators.GetDefaultPubsubConfig(projectID))
	psClient, err := pubsub.NewClient(ctx, projectID, pubsubConn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = psClient.Close() })

	fsConn := emulators.SetupFirestoreEmulator(t, ctx, emulators.GetDefaultFirestoreConfig(projectID))
	fsClient, err := firestore.NewClient(ctx, projectID, fsConn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fsClient.Close() })

	noopAuth := func(h http.Handler) http.Handler { return h }

	t.Run("Full Lifecycle: Publish -> Dispatch -> Record -> Block", func(t *testing.T) {
		// Arrange
		topicID := "push-requests-" + uuid.NewString()
		createTopic(t, ctx, psClient, projectID, topicID)

		cfg := &config.Config{
			ProjectID:          projectID,
			ListenAddr:         ":0",
			TopicID:            topicID,
			SubscriptionID:     topicID + "-sub",
			NumPipelineWorkers: 2,
		}
		consumer, err := apnsservice.NewIngestionConsumer(ctx, cfg, psClient, logger)
		require.NoError(t, err)

		store := fsStore.NewFirestoreStore(fsClient, "invalid-"+uuid.NewString())
		sender := &scriptedSender{responses: map[string]*apns.Response{
			"dead-token": {
				StatusCode:   http.StatusGone,
				Reason:       apns.ReasonUnregistered,
				ReasonString: "Unregistered",
				Timestamp:    time.UnixMilli(1700000000000),
			},
		}}
		dispatcher := relay.NewDispatcher(relay.NewTokenGuard(sender, store, time.Hour, logger), logger)

		svc, err := apnsservice.New(cfg, consumer, dispatcher, store, noopAuth, logger)
		require.NoError(t, err)

		svcCtx, svcCancel := context.WithCancel(ctx)
		defer svcCancel()
		go func() { _ = svc.Start(svcCtx) }()
		t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

		publish := func(payload string) {
			_, err := psClient.Publisher(topicID).Publish(ctx, &pubsub.Message{Data: []byte(payload)}).Get(ctx)
			require.NoError(t, err)
		}

		// Step A: a healthy token is delivered.
		publish(`{"push_type":"alert","token":"live-token","alert":{"body":"hello"}}`)
		require.Eventually(t, func() bool { return sender.sentTo("live-token") == 1 }, 10*time.Second, 100*time.Millisecond)

		// Step B: APNs reports the token unregistered; the guard records it.
		publish(`{"push_type":"alert","token":"dead-token","alert":{"body":"hello"}}`)
		require.Eventually(t, func() bool {
			rec, err := store.Lookup(ctx, "dead-token")
			return err == nil && rec != nil
		}, 10*time.Second, 100*time.Millisecond)

		rec, err := store.Lookup(ctx, "dead-token")
		require.NoError(t, err)
		assert.Equal(t, "Unregistered", rec.Reason)
		assert.True(t, time.UnixMilli(1700000000000).Equal(rec.Since))

		// Step C: later pushes to the recorded token never reach APNs and are acked.
		publish(`{"push_type":"alert","token":"dead-token","alert":{"body":"again"}}`)
		assert.Never(t, func() bool { return sender.sentTo("dead-token") > 1 }, 3*time.Second, 100*time.Millisecond)
	})

	t.Run("Poison pill is dead-lettered", func(t *testing.T) {
		// Arrange: main topic, DLQ topic and a subscription on the DLQ.
		runID := uuid.NewString()
		mainTopicID := "push-main-" + runID
		dlqTopicID := "push-dlq-" + runID
		dlqSubID := dlqTopicID + "-sub"

		createTopic(t, ctx, psClient, projectID, dlqTopicID)
		createSubscription(t, ctx, psClient, projectID, dlqTopicID, dlqSubID)
		createTopic(t, ctx, psClient, projectID, mainTopicID)

		cfg := &config.Config{
			ProjectID:              projectID,
			ListenAddr:             ":0",
			TopicID:                mainTopicID,
			SubscriptionID:         mainTopicID + "-sub",
			SubscriptionDLQTopicID: dlqTopicID,
			NumPipelineWorkers:     2,
		}
		consumer, err := apnsservice.NewIngestionConsumer(ctx, cfg, psClient, logger)
		require.NoError(t, err)

		sender := &scriptedSender{}
		svc, err := apnsservice.New(cfg, consumer, relay.NewDispatcher(sender, logger), nil, noopAuth, logger)
		require.NoError(t, err)

		svcCtx, svcCancel := context.WithCancel(ctx)
		defer svcCancel()
		go func() {
			if err := svc.Start(svcCtx); err != nil && !errors.Is(err, context.Canceled) {
				t.Logf("service.Start() returned an error: %v", err)
			}
		}()
		t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

		// Act: malformed JSON fails in the transformer on every delivery.
		poisonPayload := []byte(`{"this is not valid json"`)
		_, err = psClient.Publisher(mainTopicID).Publish(ctx, &pubsub.Message{Data: poisonPayload}).Get(ctx)
		require.NoError(t, err)

		// Assert: the message arrives on the DLQ.
		var receivedMsg *pubsub.Message
		rctx, rcancel := context.WithTimeout(ctx, 30*time.Second)
		defer rcancel()
		err = psClient.Subscriber(dlqSubID).Receive(rctx, func(_ context.Context, msg *pubsub.Message) {
			msg.Ack()
			receivedMsg = msg
			rcancel()
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("DLQ Receive returned an unexpected error: %v", err)
		}

		require.NotNil(t, receivedMsg, "Did not receive message on the DLQ subscription")
		assert.Equal(t, poisonPayload, receivedMsg.Data)
		assert.Zero(t, sender.total(), "Sender should not be called for a poison pill message")
	})
}

func createTopic(t *testing.T, ctx context.Context, client *pubsub.Client, projectID, topicID string) {
	t.Helper()
	topicName := fmt.Sprintf("projects/%s/topics/%s", projectID, topicID)
	_, err := client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: topicName})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.TopicAdminClient.DeleteTopic(context.Background(), &pubsubpb.DeleteTopicRequest{Topic: topicName})
	})
}

func createSubscription(t *testing.T, ctx context.Context, client *pubsub.Client, projectID, topicID, subID string) {
	t.Helper()
	subName := fmt.Sprintf("projects/%s/subscriptions/%s", projectID, subID)
	sub := &pubsubpb.Subscription{
		Name:               subName,
		Topic:              fmt.Sprintf("projects/%s/topics/%s", projectID, topicID),
		AckDeadlineSeconds: 10,
		RetryPolicy: &pubsubpb.RetryPolicy{
			MinimumBackoff: &durationpb.Duration{Seconds: 1},
		},
	}
	_, err := client.SubscriptionAdminClient.CreateSubscription(ctx, sub)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.SubscriptionAdminClient.DeleteSubscription(context.Background(), &pubsubpb.DeleteSubscriptionRequest{Subscription: subName})
	})
}
