package rabbitmq

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestInProcess_PublishConsume(t *testing.T) {
	b := NewInProcess(8)

	var (
		mu  sync.Mutex
		got []string
	)
	done, err := b.Consume(QueueNotifications, func(body []byte) error {
		var msg map[string]string
		require.NoError(t, json.Unmarshal(body, &msg))
		mu.Lock()
		got = append(got, msg["title"])
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.PublishJSON(QueueNotifications, map[string]string{"title": "one"}))
	require.NoError(t, b.PublishJSON(QueueNotifications, map[string]string{"title": "two"}))

	require.NoError(t, b.Close())
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"one", "two"}, got)

	assert.ErrorIs(t, b.PublishJSON(QueueNotifications, "late"), ErrClosed)
	_, err = b.Consume(QueueNotifications, func([]byte) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, b.Close())
}

func TestInProcess_FullQueue(t *testing.T) {
	b := NewInProcess(1)
	defer b.Close()

	require.NoError(t, b.PublishJSON(QueueAuthMessages, "first"))
	assert.Error(t, b.PublishJSON(QueueAuthMessages, "second"))
}

func TestInProcess_MarshalError(t *testing.T) {
	b := NewInProcess(1)
	defer b.Close()

	assert.Error(t, b.PublishJSON(QueueAuthMessages, make(chan int)))
}
