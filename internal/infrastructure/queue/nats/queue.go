package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mammoai/mammoannotator/internal/core/domain"
	"github.com/mammoai/mammoannotator/internal/infrastructure/resilience"
)

// queueGroup makes all workers share one subscription so each study is
// prepared by exactly one of them.
const queueGroup = "workers"

type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("mammoannotator"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("nats reconnected: %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// PublishStudy enqueues one study preparation job. The ref must carry
// the task id and study directory the worker needs to start.
func (q *Queue) PublishStudy(ctx context.Context, ref domain.StudyRef) error {
	payload, err := encodeStudyRef(ref)
	if err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "publish study", err)
	}

	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeStudies consumes study jobs until ctx is cancelled, then
// drains the subscription so in-flight studies finish. Malformed
// payloads are logged and dropped; handler errors are logged and the
// message is considered consumed, failure state lives in the task row.
func (q *Queue) SubscribeStudies(ctx context.Context, handler func(context.Context, domain.StudyRef) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, queueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		ref, err := decodeStudyRef(msg.Data)
		if err != nil {
			log.Printf("drop study message: %v", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, ref); err != nil {
			log.Printf("prepare study task=%s patient=%s study=%s: %v", ref.TaskID, ref.PatientID, ref.StudyID, err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func encodeStudyRef(ref domain.StudyRef) ([]byte, error) {
	if ref.TaskID == "" || ref.StudyDir == "" {
		return nil, fmt.Errorf("study ref needs task id and study dir, got task=%q dir=%q", ref.TaskID, ref.StudyDir)
	}
	payload, err := json.Marshal(ref)
	if err != nil {
		return nil, fmt.Errorf("encode study ref: %w", err)
	}
	return payload, nil
}

func decodeStudyRef(data []byte) (domain.StudyRef, error) {
	var ref domain.StudyRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return domain.StudyRef{}, fmt.Errorf("decode study ref: %w", err)
	}
	if ref.TaskID == "" || ref.StudyDir == "" {
		return domain.StudyRef{}, fmt.Errorf("study ref needs task id and study dir, got task=%q dir=%q", ref.TaskID, ref.StudyDir)
	}
	return ref, nil
}
