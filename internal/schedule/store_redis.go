package schedule

import (
	"context"
	"encoding/json"
	"fmt"

	"game-bridge/internal/db/redis_tools"
)

// RedisStore keeps the pending set in a hash of id -> JSON command.
type RedisStore struct {
	dao *redis_tools.RedisDao
	key string
}

func NewRedisStore(dao *redis_tools.RedisDao, key string) *RedisStore {
	return &RedisStore{dao: dao, key: redis_tools.KeyScheduled(key)}
}

func (s *RedisStore) Load(ctx context.Context) ([]Command, error) {
	fields, err := s.dao.HGetAll(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", s.key, err)
	}

	cmds := make([]Command, 0, len(fields))
	for id, raw := range fields {
		var cmd Command
		if err := json.Unmarshal([]byte(raw), &cmd); err != nil {
			return nil, fmt.Errorf("decode %s[%s]: %w", s.key, id, err)
		}
		if cmd.ID == "" {
			cmd.ID = id
		}
		cmds = append(cmds, cmd)
	}
	sortCommands(cmds)
	return cmds, nil
}

func (s *RedisStore) Save(ctx context.Context, cmds []Command) error {
	fields := make(map[string]string, len(cmds))
	for _, cmd := range cmds {
		data, err := json.Marshal(cmd)
		if err != nil {
			return fmt.Errorf("encode command %s: %w", cmd.ID, err)
		}
		fields[cmd.ID] = string(data)
	}
	if err := s.dao.ReplaceHash(ctx, s.key, fields); err != nil {
		return fmt.Errorf("save %s: %w", s.key, err)
	}
	return nil
}
