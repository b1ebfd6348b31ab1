package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/puppetd/api/schemas"
)

type stubBrowser struct {
	mu         sync.Mutex
	closeCalls int
}

func (b *stubBrowser) NewPage(ctx context.Context) (Page, error) { return nil, nil }

func (b *stubBrowser) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeCalls++
	return nil
}

func (b *stubBrowser) closes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeCalls
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	b := &stubBrowser{}

	sess, err := r.Register("exec-1", b)
	require.NoError(t, err)
	assert.Equal(t, "exec-1", sess.ExecutionID)
	assert.Equal(t, 1, r.Len())

	found, ok := r.Lookup("exec-1")
	require.True(t, ok)
	assert.Same(t, sess, found)

	_, ok = r.Lookup("exec-2")
	assert.False(t, ok)
}

func TestRegistryRefusesDuplicates(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	_, err := r.Register("exec-1", &stubBrowser{})
	require.NoError(t, err)

	_, err = r.Register("exec-1", &stubBrowser{})
	assert.ErrorIs(t, err, ErrExists)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryCloseIsExactlyOnce(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	b := &stubBrowser{}
	_, err := r.Register("exec-1", b)
	require.NoError(t, err)

	assert.True(t, r.Close(context.Background(), "exec-1"))
	assert.False(t, r.Close(context.Background(), "exec-1"))
	assert.Equal(t, 1, b.closes())
	assert.Equal(t, 0, r.Len())
}

func TestRegistryCloseAll(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	b1 := &stubBrowser{}
	b2 := &stubBrowser{}
	_, err := r.Register("exec-1", b1)
	require.NoError(t, err)
	_, err = r.Register("exec-2", b2)
	require.NoError(t, err)

	r.CloseAll(context.Background())
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 1, b1.closes())
	assert.Equal(t, 1, b2.closes())
}

func TestSessionCarry(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	sess, err := r.Register("exec-1", &stubBrowser{})
	require.NoError(t, err)

	page, resp := sess.Carry()
	assert.Nil(t, page)
	assert.Nil(t, resp)

	want := &schemas.PageResponse{URL: "https://example.com", StatusCode: 200}
	sess.SetCarry(nil, want)
	_, resp = sess.Carry()
	assert.Equal(t, want, resp)
}

func TestSessionArmReaperOnce(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	sess, err := r.Register("exec-1", &stubBrowser{})
	require.NoError(t, err)

	assert.True(t, sess.ArmReaper())
	assert.False(t, sess.ArmReaper())
}
