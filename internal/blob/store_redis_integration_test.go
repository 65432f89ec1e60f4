//go:build integration

package blob_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"intake/internal/blob"
	"intake/pkg/platform/sentinel"
	"intake/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *blob.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.store = blob.NewRedis(s.redis.Client, blob.WithTTL(time.Hour))
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestStoreAndFetch() {
	ctx := context.Background()
	data := []byte("\x89PNG\r\n\x1a\nfake-image")

	ref, err := s.store.Store(ctx, data, "image/png")
	s.Require().NoError(err)
	s.Equal(blob.ContentRef(data), ref)

	obj, err := s.store.Fetch(ctx, ref)
	s.Require().NoError(err)
	s.Equal("image/png", obj.ContentType)
	s.Equal(data, obj.Data)

	ttl, err := s.redis.KeyTTL(ctx, "intake:blob:"+ref)
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
}

func (s *RedisStoreSuite) TestFetchMissing() {
	_, err := s.store.Fetch(context.Background(), blob.ContentRef([]byte("never stored")))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestIdenticalContentSharesOneKey() {
	ctx := context.Background()
	data := []byte("%PDF-1.4\nsame bytes")

	first, err := s.store.Store(ctx, data, "application/pdf")
	s.Require().NoError(err)
	second, err := s.store.Store(ctx, data, "application/pdf")
	s.Require().NoError(err)
	s.Equal(first, second)

	n, err := s.redis.CountKeys(ctx, "intake:blob:*")
	s.Require().NoError(err)
	s.Equal(1, n)
}
