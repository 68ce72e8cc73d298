package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solari/invest-engine/internal/model"
)

const testTTL = 30 * time.Second

func TestCachedStore_GetPlanHit(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	primary := NewMemoryStore()
	s := NewCachedStore(primary, rdb, testTTL)

	cached, _ := json.Marshal(model.Plan{ID: "growth", Name: "Growth", AnnualRatePercent: d(18)})
	mock.ExpectGet("plan:growth").SetVal(string(cached))

	p, err := s.GetPlan(context.Background(), "growth")
	require.NoError(t, err)
	assert.Equal(t, "Growth", p.Name)
	assert.True(t, p.AnnualRatePercent.Equal(d(18)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedStore_GetPlanMissPopulates(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	primary := seededStore(t, 0)
	s := NewCachedStore(primary, rdb, testTTL)

	want, err := primary.GetPlan(context.Background(), "growth")
	require.NoError(t, err)
	data, _ := json.Marshal(want)

	mock.ExpectGet("plan:growth").RedisNil()
	mock.ExpectSet("plan:growth", data, testTTL).SetVal("OK")

	p, err := s.GetPlan(context.Background(), "growth")
	require.NoError(t, err)
	assert.Equal(t, "growth", p.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedStore_CorruptEntryFallsBack(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	primary := seededStore(t, 250)
	s := NewCachedStore(primary, rdb, testTTL)

	want, _ := primary.GetAccount(context.Background(), "u1")
	data, _ := json.Marshal(want)

	mock.ExpectGet("account:u1").SetVal("not json")
	mock.ExpectSet("account:u1", data, testTTL).SetVal("OK")

	a, err := s.GetAccount(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, a.WalletBalance.Equal(d(250)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedStore_MissingNotCached(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	s := NewCachedStore(NewMemoryStore(), rdb, testTTL)

	mock.ExpectGet("investment:nope").RedisNil()

	_, err := s.GetInvestment(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedStore_WritesInvalidate(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	primary := seededStore(t, 1000)
	s := NewCachedStore(primary, rdb, testTTL)
	ctx := context.Background()

	mock.ExpectDel("account:u1").SetVal(1)
	require.NoError(t, s.CreditWallet(ctx, &model.Transaction{
		ID: "t1", UserID: "u1", Type: model.TxDeposit, Amount: d(10),
	}))

	inv := newInvestment("i1", 100)
	mock.ExpectDel("account:u1", "investment:i1").SetVal(2)
	require.NoError(t, s.PlaceInvestment(ctx, &model.Placement{
		UserID: "u1", Amount: d(100), Investment: inv,
	}))

	mock.ExpectDel("investment:i1").SetVal(1)
	require.NoError(t, s.UpdateAccrual(ctx, "i1", inv.Basis(), d(1), d(9)))

	mock.ExpectDel("investment:i1").SetVal(1)
	require.NoError(t, s.CompleteInvestment(ctx, "i1", inv.Basis()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedStore_FailedWriteKeepsCache(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	s := NewCachedStore(seededStore(t, 0), rdb, testTTL)

	err := s.PlaceInvestment(context.Background(), &model.Placement{
		UserID: "u1", Amount: d(100), Investment: newInvestment("i1", 100),
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.NoError(t, mock.ExpectationsWereMet())
}
