package audience

import (
	"context"
	"errors"
	"testing"

	"gitee.com/flycash/notify-center/internal/domain"
	"gitee.com/flycash/notify-center/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMembershipRepo 内存版成员查询，游标语义与数据库实现一致
type fakeMembershipRepo struct {
	users    []int64
	segments map[string][]int64
	err      error
}

func (f *fakeMembershipRepo) ListUserIDsAfter(_ context.Context, afterID int64, limit int) ([]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return pageAfter(f.users, afterID, limit), nil
}

func (f *fakeMembershipRepo) ListSegmentUserIDsAfter(_ context.Context, segment string, afterID int64, limit int) ([]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return pageAfter(f.segments[segment], afterID, limit), nil
}

func pageAfter(ids []int64, afterID int64, limit int) []int64 {
	var res []int64
	for _, id := range ids {
		if id > afterID {
			res = append(res, id)
		}
		if len(res) >= limit {
			break
		}
	}
	return res
}

func drain(t *testing.T, it *Iterator) [][]int64 {
	t.Helper()
	var batches [][]int64
	for {
		batch, err := it.Next(t.Context())
		require.NoError(t, err)
		if len(batch) == 0 {
			return batches
		}
		batches = append(batches, batch)
	}
}

func TestResolveListChunks(t *testing.T) {
	t.Parallel()
	r := NewResolver(&fakeMembershipRepo{})
	it, err := r.Resolve(t.Context(), domain.AudienceSpec{
		Kind:    domain.AudienceList,
		UserIDs: []int64{1, 2, 3, 4, 5},
	}, 2)
	require.NoError(t, err)

	batches := drain(t, it)
	assert.Equal(t, [][]int64{{1, 2}, {3, 4}, {5}}, batches)
}

func TestResolveSegmentPagination(t *testing.T) {
	t.Parallel()
	r := NewResolver(&fakeMembershipRepo{
		segments: map[string][]int64{"beta-testers": {10, 20, 30, 40, 50, 60, 70}},
	})
	it, err := r.Resolve(t.Context(), domain.AudienceSpec{
		Kind:    domain.AudienceSegment,
		Segment: "beta-testers",
	}, 3)
	require.NoError(t, err)

	batches := drain(t, it)
	assert.Equal(t, [][]int64{{10, 20, 30}, {40, 50, 60}, {70}}, batches)
}

func TestResolveAllPagination(t *testing.T) {
	t.Parallel()
	r := NewResolver(&fakeMembershipRepo{users: []int64{1, 2, 3}})
	it, err := r.Resolve(t.Context(), domain.AudienceSpec{Kind: domain.AudienceAll}, 3)
	require.NoError(t, err)

	// 首批恰好填满：还要再取一次空批次才能确认结束
	batches := drain(t, it)
	assert.Equal(t, [][]int64{{1, 2, 3}}, batches)
}

func TestResolveEmptySegment(t *testing.T) {
	t.Parallel()
	r := NewResolver(&fakeMembershipRepo{segments: map[string][]int64{}})
	it, err := r.Resolve(t.Context(), domain.AudienceSpec{
		Kind:    domain.AudienceSegment,
		Segment: "nobody",
	}, 10)
	require.NoError(t, err)

	batch, err := it.Next(t.Context())
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestResolveInvalidSpec(t *testing.T) {
	t.Parallel()
	r := NewResolver(&fakeMembershipRepo{})

	_, err := r.Resolve(t.Context(), domain.AudienceSpec{Kind: domain.AudienceList}, 10)
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)

	_, err = r.Resolve(t.Context(), domain.AudienceSpec{Kind: domain.AudienceSegment}, 10)
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)

	_, err = r.Resolve(t.Context(), domain.AudienceSpec{Kind: "UNKNOWN"}, 10)
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func TestResolveQueryFailureWrapsError(t *testing.T) {
	t.Parallel()
	r := NewResolver(&fakeMembershipRepo{err: errors.New("connection refused")})
	it, err := r.Resolve(t.Context(), domain.AudienceSpec{Kind: domain.AudienceAll}, 10)
	require.NoError(t, err)

	_, err = it.Next(t.Context())
	assert.ErrorIs(t, err, errs.ErrAudienceResolution)
}
