package outbox

import (
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const (
	TransportGoChannel = "gochannel"
	TransportKafka     = "kafka"
)

type TransportConfig struct {
	Transport     string
	KafkaBrokers  []string
	ConsumerGroup string
}

// NewTransport builds the publisher and subscriber of the outbox. The in-process gochannel
// transport loses messages published while no consumer runs; DispatchPending cannot recover those.
func NewTransport(config TransportConfig, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error) {
	switch config.Transport {
	case "", TransportGoChannel:
		pubSub := gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer:            1000,
				Persistent:                     false,
				BlockPublishUntilSubscriberAck: false,
			},
			logger,
		)
		return pubSub, pubSub, nil
	case TransportKafka:
		return newKafkaTransport(config, logger)
	default:
		return nil, nil, fmt.Errorf("unsupported outbox transport '%s'", config.Transport)
	}
}

func newKafkaTransport(config TransportConfig, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error) {
	if len(config.KafkaBrokers) == 0 || config.KafkaBrokers[0] == "" {
		return nil, nil, errors.New("kafka brokers are not configured")
	}
	group := config.ConsumerGroup
	if group == "" {
		group = "cg-pneumatic"
	}

	saramaSubscriberConfig := kafka.DefaultSaramaSubscriberConfig()
	saramaSubscriberConfig.Consumer.Offsets.Initial = sarama.OffsetOldest

	subscriber, err := kafka.NewSubscriber(
		kafka.SubscriberConfig{
			Brokers:               config.KafkaBrokers,
			Unmarshaler:           kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaSubscriberConfig,
			ConsumerGroup:         group,
		},
		logger,
	)
	if err != nil {
		return nil, nil, err
	}

	saramaPublisherConfig := sarama.NewConfig()
	saramaPublisherConfig.Producer.Return.Successes = true
	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               config.KafkaBrokers,
			Marshaler:             kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaPublisherConfig,
		},
		logger,
	)
	if err != nil {
		_ = subscriber.Close()
		return nil, nil, err
	}
	return publisher, subscriber, nil
}
