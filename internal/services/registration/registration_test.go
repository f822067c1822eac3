package registration

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quipper/poc/membercard/internal/repositories/members/sqlite"
	"github.com/quipper/poc/membercard/pkg/common/apperr"
	"github.com/quipper/poc/membercard/pkg/common/membernumber"
	"github.com/quipper/poc/membercard/pkg/common/metrics"
	"github.com/quipper/poc/membercard/pkg/repositories/members"
)

func newStore(t *testing.T) *sqlite.SQLiteRepo {
	t.Helper()
	store, err := sqlite.NewSQLiteRepo(filepath.Join(t.TempDir(), "members.db"))
	require.NoError(t, err)
	t.Cleanup(store.Disconnect)
	return store
}

// flakyRepo injects failures into the transactional Insert.
type flakyRepo struct {
	members.Repository
	insertErrs []error
}

func (f *flakyRepo) RunInTx(ctx context.Context, fn func(ctx context.Context, tx members.Tx) error) error {
	return f.Repository.RunInTx(ctx, func(ctx context.Context, tx members.Tx) error {
		return fn(ctx, &flakyTx{Tx: tx, repo: f})
	})
}

type flakyTx struct {
	members.Tx
	repo *flakyRepo
}

func (t *flakyTx) Insert(ctx context.Context, m *members.Member) error {
	if len(t.repo.insertErrs) > 0 {
		err := t.repo.insertErrs[0]
		t.repo.insertErrs = t.repo.insertErrs[1:]
		return err
	}
	return t.Tx.Insert(ctx, m)
}

func TestRegisterScenario(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	m := metrics.New(prometheus.NewRegistry())
	svc := NewService(store, nil, m)

	res, err := svc.Register(ctx, Input{ExternalID: "U1", Name: "Taro", Region: "Tokyo"})
	require.NoError(t, err)
	assert.Equal(t, Created, res.Outcome)
	assert.Equal(t, "M0001", res.Member.MemberNumber)

	res, err = svc.Register(ctx, Input{ExternalID: "U2", Name: "Hana", Region: "Osaka"})
	require.NoError(t, err)
	assert.Equal(t, Created, res.Outcome)
	assert.Equal(t, "M0002", res.Member.MemberNumber)

	res, err = svc.Register(ctx, Input{ExternalID: "U1", Name: "Taro Y", Region: "Tokyo"})
	require.NoError(t, err)
	assert.Equal(t, Updated, res.Outcome)
	assert.Equal(t, "M0001", res.Member.MemberNumber)
	assert.Equal(t, "Taro Y", res.Member.Name)

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Registrations.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Registrations.WithLabelValues("updated")))
}

func TestRegisterUpdateOverwritesOptionalFields(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	svc := NewService(store, nil, nil)

	_, err := svc.Register(ctx, Input{ExternalID: "U1", Name: "Taro", Region: "Tokyo", Email: "taro@example.com", PhoneNumber: "0312345678"})
	require.NoError(t, err)

	res, err := svc.Register(ctx, Input{ExternalID: "U1", Name: "Taro", Region: "Kyoto"})
	require.NoError(t, err)
	assert.Equal(t, "Kyoto", res.Member.Region)
	assert.Empty(t, res.Member.Email)
	assert.Empty(t, res.Member.PhoneNumber)
}

func TestRegisterIssuesDistinctNumbers(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newStore(t), nil, nil)
	shape := regexp.MustCompile(`^M\d{4}$`)

	seen := map[string]bool{}
	for i := 0; i < 25; i++ {
		res, err := svc.Register(ctx, Input{ExternalID: "U" + membernumber.Format(i), Name: "n", Region: "r"})
		require.NoError(t, err)
		assert.Regexp(t, shape, res.Member.MemberNumber)
		assert.False(t, seen[res.Member.MemberNumber], res.Member.MemberNumber)
		seen[res.Member.MemberNumber] = true
	}
}

func TestRegisterConcurrentIssuesDistinctNumbers(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	svc := NewService(store, nil, nil)

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Register(ctx, Input{ExternalID: "U" + membernumber.Format(i), Name: "n", Region: "r"})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, n)
	seen := map[string]bool{}
	for _, m := range all {
		assert.False(t, seen[m.MemberNumber], m.MemberNumber)
		seen[m.MemberNumber] = true
	}
}

func TestRegisterReusesFreeNumberPastRange(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newStore(t), nil, nil)

	_, err := svc.Register(ctx, Input{ExternalID: "U1", Name: "Taro", Region: "Tokyo"})
	require.NoError(t, err)
	m, err := svc.UpdateProfile(ctx, "U1", ProfileInput{MemberNumber: "M9999"})
	require.NoError(t, err)
	require.Equal(t, "M9999", m.MemberNumber)

	res, err := svc.Register(ctx, Input{ExternalID: "U2", Name: "Hana", Region: "Osaka"})
	require.NoError(t, err)
	assert.Equal(t, Created, res.Outcome)
	assert.Equal(t, "M0001", res.Member.MemberNumber)

	res, err = svc.Register(ctx, Input{ExternalID: "U3", Name: "Ken", Region: "Nagoya"})
	require.NoError(t, err)
	assert.Equal(t, "M0002", res.Member.MemberNumber)
}

func TestRegisterValidation(t *testing.T) {
	cases := []struct {
		name string
		in   Input
		msg  string
	}{
		{"missing name", Input{ExternalID: "U1", Region: "Tokyo"}, MsgRequiredMissing},
		{"blank region", Input{ExternalID: "U1", Name: "Taro", Region: "  "}, MsgRequiredMissing},
		{"missing external id", Input{Name: "Taro", Region: "Tokyo"}, MsgRequiredMissing},
		{"bad email", Input{ExternalID: "U1", Name: "Taro", Region: "Tokyo", Email: "not-an-email"}, MsgInvalidEmail},
		{"email without tld", Input{ExternalID: "U1", Name: "Taro", Region: "Tokyo", Email: "a@b"}, MsgInvalidEmail},
		{"phone with dashes", Input{ExternalID: "U1", Name: "Taro", Region: "Tokyo", PhoneNumber: "03-1234-5678"}, MsgInvalidPhone},
		{"required wins over email", Input{ExternalID: "U1", Region: "Tokyo", Email: "bad"}, MsgRequiredMissing},
	}

	ctx := context.Background()
	store := newStore(t)
	svc := NewService(store, nil, nil)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.in)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
			assert.Equal(t, tc.msg, apperr.PublicMessage(err))
		})
	}

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRegisterRetriesTakenNumber(t *testing.T) {
	ctx := context.Background()
	repo := &flakyRepo{Repository: newStore(t), insertErrs: []error{members.ErrDuplicateMemberNumber}}
	svc := NewService(repo, nil, nil)

	res, err := svc.Register(ctx, Input{ExternalID: "U1", Name: "Taro", Region: "Tokyo"})
	require.NoError(t, err)
	assert.Equal(t, "M0002", res.Member.MemberNumber)
}

func TestRegisterExhaustsAttempts(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	repo := &flakyRepo{Repository: store, insertErrs: []error{
		members.ErrDuplicateMemberNumber,
		members.ErrDuplicateMemberNumber,
	}}
	svc := NewService(repo, &membernumber.Generator{Attempts: 2}, nil)

	_, err := svc.Register(ctx, Input{ExternalID: "U1", Name: "Taro", Region: "Tokyo"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRegistrationFailed)
	assert.ErrorIs(t, err, membernumber.ErrExhausted)
	assert.Equal(t, apperr.KindSystem, apperr.KindOf(err))
	assert.Equal(t, 1, strings.Count(err.Error(), ErrRegistrationFailed.Error()), err.Error())
}

func TestRegisterStoreFailureLeavesNoRow(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	cause := errors.New("disk I/O error")
	svc := NewService(&flakyRepo{Repository: store, insertErrs: []error{cause}}, nil, nil)

	_, err := svc.Register(ctx, Input{ExternalID: "U1", Name: "Taro", Region: "Tokyo"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRegistrationFailed)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, apperr.GenericMessage, apperr.PublicMessage(err))

	_, err = store.FindByExternalID(ctx, "U1")
	assert.ErrorIs(t, err, members.ErrNotFound)
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	svc := NewService(store, nil, nil)
	_, err := svc.Register(ctx, Input{ExternalID: "U1", Name: "Taro", Region: "Tokyo"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, Input{ExternalID: "U2", Name: "Hana", Region: "Osaka"})
	require.NoError(t, err)

	t.Run("email only keeps number", func(t *testing.T) {
		m, err := svc.UpdateProfile(ctx, "U1", ProfileInput{Email: "taro@example.com"})
		require.NoError(t, err)
		assert.Equal(t, "taro@example.com", m.Email)
		assert.Equal(t, "M0001", m.MemberNumber)
	})

	t.Run("new member number", func(t *testing.T) {
		m, err := svc.UpdateProfile(ctx, "U1", ProfileInput{Email: "taro@example.com", MemberNumber: "M0100"})
		require.NoError(t, err)
		assert.Equal(t, "M0100", m.MemberNumber)
	})

	t.Run("number held by another member", func(t *testing.T) {
		_, err := svc.UpdateProfile(ctx, "U1", ProfileInput{MemberNumber: "M0002"})
		assert.True(t, apperr.Is(err, apperr.KindConflict))
	})

	t.Run("malformed number", func(t *testing.T) {
		_, err := svc.UpdateProfile(ctx, "U1", ProfileInput{MemberNumber: "0100"})
		assert.True(t, apperr.Is(err, apperr.KindValidation))
		assert.Equal(t, MsgInvalidMemberNumber, apperr.PublicMessage(err))
	})

	t.Run("bad email", func(t *testing.T) {
		_, err := svc.UpdateProfile(ctx, "U1", ProfileInput{Email: "nope"})
		assert.Equal(t, MsgInvalidEmail, apperr.PublicMessage(err))
	})

	t.Run("unknown member", func(t *testing.T) {
		_, err := svc.UpdateProfile(ctx, "U9", ProfileInput{Email: "x@example.com"})
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})
}
