package errors_repo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"purchaseorders/internal/domain"
)

const DefaultStream = "purchase-order:error-records"

type redisErrorRecordRepository struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisErrorRecordRepository keeps entries in a Redis stream. A positive maxLen caps
// the stream approximately.
func NewRedisErrorRecordRepository(client *redis.Client, stream string, maxLen int64) *redisErrorRecordRepository {
	if stream == "" {
		stream = DefaultStream
	}
	return &redisErrorRecordRepository{client: client, stream: stream, maxLen: maxLen}
}

func (r *redisErrorRecordRepository) Append(ctx context.Context, entry domain.ErrorAuditEntry) (string, error) {
	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			"code":        entry.Code,
			"message":     entry.Message,
			"account_id":  entry.AccountID,
			"package_id":  entry.PackageID,
			"recorded_at": entry.RecordedAt.UTC().Format(time.RFC3339Nano),
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	id, err := r.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to append error record to %s: %w", r.stream, err)
	}
	return id, nil
}

func (r *redisErrorRecordRepository) List(ctx context.Context, after string, count int64) ([]domain.ErrorAuditEntry, error) {
	start := "-"
	if after != "" {
		start = after
		// The start bound is inclusive; fetch one extra and drop after itself.
		if count > 0 {
			count++
		}
	}
	var messages []redis.XMessage
	var err error
	if count > 0 {
		messages, err = r.client.XRangeN(ctx, r.stream, start, "+", count).Result()
	} else {
		messages, err = r.client.XRange(ctx, r.stream, start, "+").Result()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read error records from %s: %w", r.stream, err)
	}

	entries := make([]domain.ErrorAuditEntry, 0, len(messages))
	for _, msg := range messages {
		if msg.ID == after {
			continue
		}
		entry, err := decodeEntry(msg)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if after != "" && count > 0 && int64(len(entries)) == count {
		entries = entries[:count-1]
	}
	return entries, nil
}

func decodeEntry(msg redis.XMessage) (domain.ErrorAuditEntry, error) {
	entry := domain.ErrorAuditEntry{
		ID:        msg.ID,
		Message:   stringValue(msg.Values, "message"),
		AccountID: stringValue(msg.Values, "account_id"),
	}
	code, err := strconv.Atoi(stringValue(msg.Values, "code"))
	if err != nil {
		return entry, fmt.Errorf("error record %s has invalid code: %w", msg.ID, err)
	}
	entry.Code = code
	if raw := stringValue(msg.Values, "package_id"); raw != "" {
		entry.PackageID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return entry, fmt.Errorf("error record %s has invalid package id: %w", msg.ID, err)
		}
	}
	if raw := stringValue(msg.Values, "recorded_at"); raw != "" {
		entry.RecordedAt, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return entry, fmt.Errorf("error record %s has invalid timestamp: %w", msg.ID, err)
		}
	}
	return entry, nil
}

func stringValue(values map[string]interface{}, key string) string {
	if v, ok := values[key].(string); ok {
		return v
	}
	return ""
}
