//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/couchcryptid/parking-recommender/internal/adapter/kafka"
	"github.com/couchcryptid/parking-recommender/internal/config"
	"github.com/couchcryptid/parking-recommender/internal/domain"
	"github.com/couchcryptid/parking-recommender/internal/observability"
	"github.com/couchcryptid/parking-recommender/internal/pipeline"
	"github.com/couchcryptid/parking-recommender/internal/recommend"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSourceTopic = "test-requests"
	testSinkTopic   = "test-recommendations"
)

// publishedResponse holds a response read back from the sink topic.
type publishedResponse struct {
	Rows    []recommend.CandidateScores
	Key     string
	Headers map[string]string
}

func readResponse(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedResponse {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var rows []recommend.CandidateScores
	require.NoError(t, json.Unmarshal(msg.Value, &rows), "unmarshal sink message")
	return publishedResponse{Rows: rows, Key: string(msg.Key), Headers: headers}
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 5 * time.Second,
	}
}

func sinkConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

func requestPayload(ids ...string) []byte {
	candidates := make([]map[string]any, len(ids))
	for i, id := range ids {
		candidates[i] = map[string]any{"p_id": id, "review": 4.0, "weekday": 3, "hour": 14}
	}
	data, _ := json.Marshal(map[string]any{"candidates": candidates, "parking_duration": 180})
	return data
}

// TestKafkaReaderWriter verifies the adapter layer: kafka.Reader and
// kafka.Writer round-trip a request through Kafka.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-reader")

	payload := requestPayload("A", "lot-l")
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, kafkago.Message{Key: []byte("req-1"), Value: payload}))

	// Retry because the consumer group may need time to rebalance before
	// partitions are assigned and messages become available.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawEvent
	for {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if len(batch) > 0 {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for message from source topic")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("req-1"), raw.Key)
	assert.Equal(t, payload, raw.Value)
	assert.Equal(t, testSourceTopic, raw.Topic)
	require.NotNil(t, raw.Commit, "commit callback should be set")
	require.NoError(t, raw.Commit(ctx))

	metrics := observability.NewMetricsForTesting()
	transformer := pipeline.NewTransformer(newRecommender(t, testDataset(), metrics), discardLogger(), metrics)
	out, err := transformer.Transform(ctx, raw)
	require.NoError(t, err)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.LoadBatch(ctx, []domain.OutputEvent{out}))

	resp := readResponse(ctx, t, sinkConsumer(t, broker))
	assert.Equal(t, "req-1", resp.Key)
	assert.Equal(t, "2", resp.Headers["candidates"])
	_, err = time.Parse(time.RFC3339, resp.Headers["processed_at"])
	assert.NoError(t, err, "processed_at should be valid RFC3339")

	require.Len(t, resp.Rows, 2)
	assert.Equal(t, "A", resp.Rows[0].ID)
	assert.Equal(t, "lot-l", resp.Rows[1].ID)
}

// TestPipelineEndToEnd wires Reader, Transformer, and Writer against a real
// broker and checks that every request produces exactly one response.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-pipeline")

	requests := [][]string{{"A"}, {"A", "B"}, {"B", "lot-l", "unknown"}, {}}
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	msgs := make([]kafkago.Message, len(requests))
	for i, ids := range requests {
		msgs[i] = kafkago.Message{Key: []byte(fmt.Sprintf("req-%d", i)), Value: requestPayload(ids...)}
	}
	require.NoError(t, producer.WriteMessages(ctx, msgs...))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	transformer := pipeline.NewTransformer(newRecommender(t, testDataset(), metrics), discardLogger(), metrics)
	p := pipeline.New(reader, transformer, writer, discardLogger(), metrics, 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	byKey := map[string]publishedResponse{}
	for len(byKey) < len(requests) {
		resp := readResponse(ctx, t, consumer)
		byKey[resp.Key] = resp
	}

	pipelineCancel()
	require.NoError(t, <-errCh)

	for i, ids := range requests {
		resp, ok := byKey[fmt.Sprintf("req-%d", i)]
		require.True(t, ok, "missing response for req-%d", i)
		require.Len(t, resp.Rows, len(ids))
		for j, id := range ids {
			assert.Equal(t, id, resp.Rows[j].ID)
		}
	}
	// The unknown facility still gets a row, scored at worst-case congestion.
	rows := byKey["req-2"].Rows
	assert.Less(t, rows[2].CongestionPriority, rows[1].CongestionPriority)
}

// TestPipelineTransformError verifies that a malformed request is skipped
// and the pipeline keeps processing valid ones.
func TestPipelineTransformError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-poison")

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		kafkago.Message{Key: []byte("missing-id"), Value: []byte(`{"candidates": [{"review": 4}]}`)},
		kafkago.Message{Key: []byte("good"), Value: requestPayload("A")},
	))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	transformer := pipeline.NewTransformer(newRecommender(t, testDataset(), metrics), discardLogger(), metrics)
	p := pipeline.New(reader, transformer, writer, discardLogger(), metrics, 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	resp := readResponse(ctx, t, consumer)
	assert.Equal(t, "good", resp.Key)

	// No second message arrives: both poison messages were skipped.
	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err := consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no second message on sink topic")

	pipelineCancel()
	require.NoError(t, <-errCh)
}
