package healthsink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/mesh-intelligence/liftsync/internal/logging"
	"github.com/mesh-intelligence/liftsync/pkg/types"
)

// KafkaConfig locates the topic receiving workout events.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Validate checks that brokers and topic are set.
func (c KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka sink requires at least one broker")
	}
	if c.Topic == "" {
		return errors.New("kafka sink requires a topic")
	}
	return nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// topicProbe returns nil when the topic exists and has partitions.
type topicProbe func(ctx context.Context) error

var errTopicMissing = errors.New("topic has no partitions")

// workoutEvent is the JSON value written for each exported workout.
type workoutEvent struct {
	ExternalID      string    `json:"externalID"`
	SessionID       string    `json:"sessionID"`
	ActivityType    string    `json:"activityType"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	DurationSeconds float64   `json:"durationSeconds"`
	TotalCalories   float64   `json:"totalCalories"`
	Notes           string    `json:"notes,omitempty"`
	RecordedAt      time.Time `json:"recordedAt"`
}

// Kafka publishes workouts as JSON events keyed by their external id.
// Authorization is granted once the broker reports the topic.
type Kafka struct {
	cfg    KafkaConfig
	writer messageWriter
	probe  topicProbe
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	status AuthorizationStatus
}

var _ Sink = (*Kafka)(nil)

// NewKafka returns a sink writing to cfg.Topic.
func NewKafka(cfg KafkaConfig, logger *slog.Logger) (*Kafka, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: false,
		BatchTimeout:           50 * time.Millisecond,
	}
	return newKafka(cfg, writer, brokerProbe(cfg), logger), nil
}

func newKafka(cfg KafkaConfig, w messageWriter, probe topicProbe, logger *slog.Logger) *Kafka {
	return &Kafka{
		cfg:    cfg,
		writer: w,
		probe:  probe,
		logger: logging.Component(logger, "healthsink"),
		now:    func() time.Time { return time.Now().UTC() },
		status: StatusNotDetermined,
	}
}

// brokerProbe reads the topic's partitions from the first reachable
// broker.
func brokerProbe(cfg KafkaConfig) topicProbe {
	return func(ctx context.Context) error {
		var lastErr error
		for _, broker := range cfg.Brokers {
			conn, err := kafka.DialContext(ctx, "tcp", broker)
			if err != nil {
				lastErr = err
				continue
			}
			partitions, err := conn.ReadPartitions(cfg.Topic)
			conn.Close()
			if err != nil {
				return err
			}
			if len(partitions) == 0 {
				return errTopicMissing
			}
			return nil
		}
		return lastErr
	}
}

// RequestAuthorization probes the broker for the topic. A missing topic
// denies access; an unreachable broker leaves the status undetermined.
func (k *Kafka) RequestAuthorization(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.status == StatusAuthorized {
		return nil
	}

	err := k.probe(ctx)
	switch {
	case err == nil:
		k.status = StatusAuthorized
		k.logger.Info("health export authorized", "topic", k.cfg.Topic)
		return nil
	case errors.Is(err, errTopicMissing), errors.Is(err, kafka.UnknownTopicOrPartition),
		errors.Is(err, kafka.TopicAuthorizationFailed):
		k.status = StatusDenied
		return types.NewOpError("healthsink.authorize", types.ErrSinkAuthorizationDenied, err)
	default:
		return types.NewOpError("healthsink.authorize", types.ErrSinkUnavailable, err)
	}
}

// CheckAuthorizationStatus returns the last known status without
// contacting the broker.
func (k *Kafka) CheckAuthorizationStatus(context.Context) (AuthorizationStatus, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.status, nil
}

// SaveWorkout publishes w and returns the generated external id.
func (k *Kafka) SaveWorkout(ctx context.Context, w Workout) (string, error) {
	status, _ := k.CheckAuthorizationStatus(ctx)
	if status != StatusAuthorized {
		return "", types.NewOpError("healthsink.save", types.ErrSinkAuthorizationDenied,
			fmt.Errorf("authorization %s", status))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", types.NewOpError("healthsink.save", types.ErrSinkUnavailable, err)
	}
	event := workoutEvent{
		ExternalID:      id.String(),
		SessionID:       w.SessionID,
		ActivityType:    ActivityStrengthTraining,
		StartTime:       w.Start,
		EndTime:         w.End,
		DurationSeconds: w.Duration().Seconds(),
		TotalCalories:   w.TotalCalories,
		Notes:           w.Notes,
		RecordedAt:      k.now(),
	}
	value, err := json.Marshal(event)
	if err != nil {
		return "", types.NewOpError("healthsink.save", types.ErrSinkUnavailable, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.ExternalID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte("workout.saved")},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		if errors.Is(err, kafka.TopicAuthorizationFailed) {
			return "", types.NewOpError("healthsink.save", types.ErrSinkAuthorizationDenied, err)
		}
		return "", types.NewOpError("healthsink.save", types.ErrSinkUnavailable, err)
	}
	k.logger.Debug("workout exported", "session", w.SessionID, "external_id", event.ExternalID)
	return event.ExternalID, nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
