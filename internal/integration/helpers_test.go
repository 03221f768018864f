//go:build integration

package integration_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/parking-recommender/internal/congestion"
	"github.com/couchcryptid/parking-recommender/internal/model"
	"github.com/couchcryptid/parking-recommender/internal/observability"
	"github.com/couchcryptid/parking-recommender/internal/recommend"
	"github.com/couchcryptid/parking-recommender/internal/reference"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }

// 2024-01-03 is a Wednesday.
var wednesday = time.Date(2024, time.January, 3, 14, 0, 0, 0, time.UTC)

// testDataset has two realtime facilities and one legacy facility with three
// weeks of occupancy history at the same Wednesday 14:00 slot.
func testDataset() reference.Dataset {
	return reference.Dataset{
		Realtime: []reference.TariffRow{
			{ID: "A", BaseFee: ptr(2000.0), BaseMinutes: ptr(120.0), ExtraFee: ptr(100.0)},
			{ID: "B", BaseFee: ptr(5000.0), BaseMinutes: ptr(120.0), ExtraFee: ptr(100.0)},
		},
		Legacy: []reference.TariffRow{
			{ID: "lot-l", BaseFee: ptr(1000.0), BaseMinutes: ptr(60.0), ExtraFee: ptr(500.0), UnitMinutes: ptr(10.0), DailyCap: ptr(4000.0)},
		},
		Occupancy: []reference.OccupancyRecord{
			{FacilityID: "lot-l", ObservedAt: wednesday.AddDate(0, 0, -14), Capacity: 100, Inflow: 20, Outflow: 0},
			{FacilityID: "lot-l", ObservedAt: wednesday.AddDate(0, 0, -7), Capacity: 100, Inflow: 40, Outflow: 0},
			{FacilityID: "lot-l", ObservedAt: wednesday, Capacity: 100, Inflow: 60, Outflow: 0},
		},
	}
}

func newRecommender(t *testing.T, ds reference.Dataset, metrics *observability.Metrics) *recommend.Recommender {
	t.Helper()
	ref, err := reference.Build(ds)
	require.NoError(t, err)

	bundle := model.SampleBundle()
	forecaster := congestion.NewModelForecaster(congestion.NewFeatureBuilder(ref.History, bundle), model.NewLinear(bundle), metrics)
	resolver := congestion.NewResolver(reference.NewMembershipRouter(ref.Realtime), forecaster, time.Second, discardLogger(), metrics)
	return recommend.New(ref, resolver, 4, discardLogger(), metrics)
}

// startKafka runs a single-node KRaft broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("parking-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// startPostgres runs a throwaway PostgreSQL server and returns its URL.
func startPostgres(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "parking",
				"POSTGRES_PASSWORD": "parking",
				"POSTGRES_DB":       "parking",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("postgres://parking:parking@%s/parking?sslmode=disable", net.JoinHostPort(host, port.Port()))
}
