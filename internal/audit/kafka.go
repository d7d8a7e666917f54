package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/arsmhmt/paycrypt-sub000/internal/logger"
)

// MessageWriter는 kafka.Writer의 쓰기 연산입니다
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher는 이벤트를 JSON으로 Kafka 토픽에 기록합니다.
// 같은 요청의 이벤트는 같은 파티션으로 가도록 요청 ID를 키로 사용합니다.
type KafkaPublisher struct {
	writer MessageWriter
	logger *zap.Logger
}

// NewKafkaWriter는 감사 토픽용 kafka.Writer를 생성합니다
func NewKafkaWriter(brokers []string, topic string, log *zap.Logger) *kafka.Writer {
	log = logger.OrNop(log)
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Warn(fmt.Sprintf(msg, args...))
		}),
	}
}

// NewKafkaPublisher는 새로운 KafkaPublisher를 생성합니다
func NewKafkaPublisher(writer MessageWriter, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, logger: logger.OrNop(log)}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("감사 이벤트 직렬화 실패: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(strconv.FormatInt(e.RequestID, 10)),
			Value: data,
			Time:  e.At,
			Headers: []kafka.Header{
				{Key: "action", Value: []byte(e.Action)},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("감사 이벤트 발행 실패: %w", err)
	}
	p.logger.Debug("감사 이벤트 발행", zap.Int("count", len(msgs)))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
