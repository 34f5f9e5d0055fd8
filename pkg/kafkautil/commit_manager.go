package kafkautil

import (
	"sync"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

// OffsetCommitter is the slice of kafka.Consumer the commit manager needs.
type OffsetCommitter interface {
	CommitOffsets(offsets []kafka.TopicPartition) ([]kafka.TopicPartition, error)
}

type topicPartition struct {
	topic     string
	partition int32
}

type partitionState struct {
	pending  []int64 // offsets dispatched to handlers, in read order
	finished map[int64]struct{}
}

// CommitManager serializes offset commits per partition. Handlers run
// concurrently and finish out of order; committing each message as its
// handler completes could stamp an offset past a message still in flight,
// and a crash in that window would skip the unapplied message on restart.
// Track registers a message at dispatch; Ack marks it done and commits only
// through the contiguous finished prefix.
type CommitManager struct {
	mu        sync.Mutex
	parts     map[topicPartition]*partitionState
	committer OffsetCommitter
	logger    *zap.Logger
}

func NewCommitManager(committer OffsetCommitter, logger *zap.Logger) *CommitManager {
	return &CommitManager{
		parts:     make(map[topicPartition]*partitionState),
		committer: committer,
		logger:    logger,
	}
}

// Track records a message handed to a handler. Call it from the read loop
// before dispatching, so the manager knows the full in-order set.
func (m *CommitManager) Track(msg *kafka.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := partitionKey(msg)
	st := m.parts[key]
	if st == nil {
		st = &partitionState{finished: make(map[int64]struct{})}
		m.parts[key] = st
	}
	st.pending = append(st.pending, int64(msg.TopicPartition.Offset))
}

// Ack marks a tracked message as applied and commits the next offset after
// the longest finished prefix. A failed broker commit leaves the state
// untouched; the next Ack retries with a higher watermark.
func (m *CommitManager) Ack(msg *kafka.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := partitionKey(msg)
	st := m.parts[key]
	if st == nil {
		return
	}
	st.finished[int64(msg.TopicPartition.Offset)] = struct{}{}

	cut := 0
	last := int64(-1)
	for cut < len(st.pending) {
		off := st.pending[cut]
		if _, ok := st.finished[off]; !ok {
			break
		}
		last = off
		cut++
	}
	if cut == 0 {
		return
	}

	topic := key.topic
	commit := kafka.TopicPartition{
		Topic:     &topic,
		Partition: key.partition,
		Offset:    kafka.Offset(last + 1),
	}
	if _, err := m.committer.CommitOffsets([]kafka.TopicPartition{commit}); err != nil {
		m.logger.Error("Failed to commit offsets",
			zap.String("topic", key.topic),
			zap.Int32("partition", key.partition),
			zap.Int64("attempted_offset", last+1),
			zap.Error(err))
		return
	}

	for i := 0; i < cut; i++ {
		delete(st.finished, st.pending[i])
	}
	st.pending = st.pending[cut:]
	m.logger.Debug("Offsets committed",
		zap.String("topic", key.topic),
		zap.Int32("partition", key.partition),
		zap.Int64("offset", last+1))
}

func partitionKey(msg *kafka.Message) topicPartition {
	key := topicPartition{partition: msg.TopicPartition.Partition}
	if msg.TopicPartition.Topic != nil {
		key.topic = *msg.TopicPartition.Topic
	}
	return key
}
