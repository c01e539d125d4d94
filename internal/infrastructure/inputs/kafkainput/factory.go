package kafkainput

import (
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/akave-ai/gameevents/internal/infrastructure/inputs"
)

// TypeName is the registry name of the Kafka input.
const TypeName = "kafka"

const (
	defaultBatchSize = 100
	defaultMaxWait   = time.Second
)

func init() {
	inputs.GlobalRegistry.Register(&Factory{})
}

// Factory creates Kafka consumer-group inputs.
type Factory struct {
	// newReader is swapped in tests.
	newReader func(kafka.ReaderConfig) Reader
}

func (f *Factory) Name() string {
	return TypeName
}

func (f *Factory) ConfigSpec() inputs.InputTypeInfo {
	return inputs.InputTypeInfo{
		Type:        TypeName,
		Description: "Kafka consumer group. Each message value is one event payload; offsets are committed after the batch is processed.",
		Fields: []inputs.ConfigField{
			{Name: "brokers", Type: "list", Required: true, Description: "Broker addresses", Example: "localhost:9092"},
			{Name: "topic", Type: "string", Required: true, Description: "Topic to consume", Example: "game-client-events"},
			{Name: "group_id", Type: "string", Required: true, Description: "Consumer group", Example: "gameevents"},
			{Name: "batch_size", Type: "number", Description: "Messages per batch", Default: fmt.Sprint(defaultBatchSize)},
			{Name: "max_wait", Type: "duration", Description: "How long to wait to fill a batch", Default: defaultMaxWait.String()},
		},
	}
}

func (f *Factory) ValidateConfig(cfg inputs.Config) error {
	_, err := parseOptions(cfg)
	return err
}

func (f *Factory) Create(cfg inputs.Config, handler inputs.BatchHandler) (inputs.MessageInput, error) {
	opts, err := parseOptions(cfg)
	if err != nil {
		return nil, err
	}
	newReader := f.newReader
	if newReader == nil {
		newReader = func(rc kafka.ReaderConfig) Reader { return kafka.NewReader(rc) }
	}
	reader := newReader(kafka.ReaderConfig{
		Brokers:  opts.brokers,
		GroupID:  opts.groupID,
		Topic:    opts.topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	return NewInput(reader, handler, opts.batchSize, opts.maxWait), nil
}

type options struct {
	brokers   []string
	topic     string
	groupID   string
	batchSize int
	maxWait   time.Duration
}

func parseOptions(cfg inputs.Config) (options, error) {
	o := options{
		brokers: cfg.Strings("brokers"),
		topic:   cfg.String("topic"),
		groupID: cfg.String("group_id"),
	}
	if len(o.brokers) == 0 {
		return o, fmt.Errorf("kafka input requires at least one broker")
	}
	if o.topic == "" {
		return o, fmt.Errorf("kafka input requires a topic")
	}
	if o.groupID == "" {
		return o, fmt.Errorf("kafka input requires a group id")
	}
	var err error
	if o.batchSize, err = cfg.Int("batch_size", defaultBatchSize); err != nil {
		return o, fmt.Errorf("kafka input: %w", err)
	}
	if o.batchSize <= 0 {
		return o, fmt.Errorf("kafka input: batch_size must be positive")
	}
	if o.maxWait, err = cfg.Duration("max_wait", defaultMaxWait); err != nil {
		return o, fmt.Errorf("kafka input: %w", err)
	}
	return o, nil
}
