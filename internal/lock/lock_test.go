package lock

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestLocal(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	release, err := l.TryAcquire(ctx)
	require.NoError(t, err)

	_, err = l.TryAcquire(ctx)
	assert.ErrorIs(t, err, ErrHeld)

	release()
	release()

	release, err = l.TryAcquire(ctx)
	require.NoError(t, err)
	release()
}

func TestLocalCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLocal().TryAcquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// MockRedisClient is a mock implementation of RedisClient
type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	args := m.Called(ctx, key, value, expiration)
	return args.Get(0).(*redis.BoolCmd)
}

func (m *MockRedisClient) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	called := m.Called(ctx, script, keys, args)
	return called.Get(0).(*redis.Cmd)
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func boolCmd(val bool, err error) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(context.Background())
	cmd.SetVal(val)
	cmd.SetErr(err)
	return cmd
}

func TestRedisAcquireAndRelease(t *testing.T) {
	client := new(MockRedisClient)
	var token string
	client.On("SetNX", mock.Anything, "lock:scrape", mock.AnythingOfType("string"), time.Hour).
		Run(func(args mock.Arguments) { token = args.String(2) }).
		Return(boolCmd(true, nil))

	evalCmd := redis.NewCmd(context.Background())
	evalCmd.SetVal(int64(1))
	client.On("Eval", mock.Anything, releaseScript, []string{"lock:scrape"}, mock.MatchedBy(func(args []interface{}) bool {
		return len(args) == 1 && args[0] == token
	})).Return(evalCmd).Once()

	l := NewRedis(client, "lock:scrape", time.Hour, discard)
	release, err := l.TryAcquire(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	release()
	release()
	client.AssertExpectations(t)
}

func TestRedisHeld(t *testing.T) {
	client := new(MockRedisClient)
	client.On("SetNX", mock.Anything, "lock:scrape", mock.Anything, time.Hour).Return(boolCmd(false, nil))

	_, err := NewRedis(client, "lock:scrape", time.Hour, discard).TryAcquire(context.Background())
	assert.ErrorIs(t, err, ErrHeld)
	client.AssertNotCalled(t, "Eval", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRedisError(t *testing.T) {
	client := new(MockRedisClient)
	client.On("SetNX", mock.Anything, "lock:scrape", mock.Anything, time.Hour).Return(boolCmd(false, errors.New("connection refused")))

	_, err := NewRedis(client, "lock:scrape", time.Hour, discard).TryAcquire(context.Background())
	assert.ErrorContains(t, err, "failed to acquire lock")
	assert.NotErrorIs(t, err, ErrHeld)
}

func TestRedisReleaseFailureIsLogged(t *testing.T) {
	tests := []struct {
		name    string
		val     interface{}
		err     error
		wantLog string
	}{
		{"eval error", nil, errors.New("i/o timeout"), "failed to release run lock"},
		{"token gone", int64(0), nil, "run lock expired before release"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			client := new(MockRedisClient)
			client.On("SetNX", mock.Anything, "lock:scrape", mock.Anything, time.Hour).Return(boolCmd(true, nil))
			evalCmd := redis.NewCmd(context.Background())
			if tt.err != nil {
				evalCmd.SetErr(tt.err)
			} else {
				evalCmd.SetVal(tt.val)
			}
			client.On("Eval", mock.Anything, releaseScript, []string{"lock:scrape"}, mock.Anything).Return(evalCmd).Once()

			release, err := NewRedis(client, "lock:scrape", time.Hour, logger).TryAcquire(context.Background())
			require.NoError(t, err)
			release()

			assert.Contains(t, buf.String(), tt.wantLog)
			assert.Contains(t, buf.String(), `"key":"lock:scrape"`)
			client.AssertExpectations(t)
		})
	}
}
