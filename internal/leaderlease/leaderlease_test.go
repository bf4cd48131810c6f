package leaderlease

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	coordinationv1 "k8s.io/api/coordination/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func TestTryAcquireCreatesMissingLease(t *testing.T) {
	client := fake.NewSimpleClientset()
	lease := New(client, "feeds", "feeds-refresher")

	acquired, err := lease.TryAcquireOrRenew(context.Background())
	require.NoError(t, err)
	assert.True(t, acquired)

	created, err := client.CoordinationV1().Leases("feeds").Get(context.Background(), "feeds-refresher", metav1.GetOptions{})
	require.NoError(t, err)
	require.NotNil(t, created.Spec.HolderIdentity)
	assert.Equal(t, lease.HolderID(), *created.Spec.HolderIdentity)
	require.NotNil(t, created.Spec.LeaseDurationSeconds)
	assert.Equal(t, int32(TTL.Seconds()), *created.Spec.LeaseDurationSeconds)
}

func TestTryAcquireRenewsOwnLease(t *testing.T) {
	client := fake.NewSimpleClientset()
	lease := New(client, "feeds", "feeds-refresher")

	acquired, err := lease.TryAcquireOrRenew(context.Background())
	require.NoError(t, err)
	require.True(t, acquired)

	first, err := client.CoordinationV1().Leases("feeds").Get(context.Background(), "feeds-refresher", metav1.GetOptions{})
	require.NoError(t, err)
	firstRenew := first.Spec.RenewTime.Time

	acquired, err = lease.TryAcquireOrRenew(context.Background())
	require.NoError(t, err)
	assert.True(t, acquired)

	second, err := client.CoordinationV1().Leases("feeds").Get(context.Background(), "feeds-refresher", metav1.GetOptions{})
	require.NoError(t, err)
	assert.False(t, second.Spec.RenewTime.Time.Before(firstRenew))
}

func foreignLease(holder string, renewedAt time.Time, ttlSeconds int32) *coordinationv1.Lease {
	renew := metav1.NewMicroTime(renewedAt)
	acquire := renew
	return &coordinationv1.Lease{
		ObjectMeta: metav1.ObjectMeta{Name: "feeds-refresher", Namespace: "feeds"},
		Spec: coordinationv1.LeaseSpec{
			HolderIdentity:       &holder,
			LeaseDurationSeconds: &ttlSeconds,
			AcquireTime:          &acquire,
			RenewTime:            &renew,
		},
	}
}

func TestTryAcquireRespectsLiveForeignLease(t *testing.T) {
	client := fake.NewSimpleClientset(foreignLease("other-holder", time.Now(), int32(TTL.Seconds())))
	lease := New(client, "feeds", "feeds-refresher")

	acquired, err := lease.TryAcquireOrRenew(context.Background())
	require.NoError(t, err)
	assert.False(t, acquired)

	current, err := client.CoordinationV1().Leases("feeds").Get(context.Background(), "feeds-refresher", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "other-holder", *current.Spec.HolderIdentity)
}

func TestTryAcquireTakesOverExpiredLease(t *testing.T) {
	expiredAt := time.Now().Add(-TTL - time.Minute)
	client := fake.NewSimpleClientset(foreignLease("other-holder", expiredAt, int32(TTL.Seconds())))
	lease := New(client, "feeds", "feeds-refresher")

	acquired, err := lease.TryAcquireOrRenew(context.Background())
	require.NoError(t, err)
	assert.True(t, acquired)

	current, err := client.CoordinationV1().Leases("feeds").Get(context.Background(), "feeds-refresher", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, lease.HolderID(), *current.Spec.HolderIdentity)
	// takeover resets the acquire time
	assert.True(t, current.Spec.AcquireTime.Time.After(expiredAt))
}

func TestTryAcquireTakesOverReleasedLease(t *testing.T) {
	released := foreignLease("", time.Now(), int32(TTL.Seconds()))
	released.Spec.HolderIdentity = nil
	released.Spec.RenewTime = nil
	released.Spec.AcquireTime = nil
	client := fake.NewSimpleClientset(released)
	lease := New(client, "feeds", "feeds-refresher")

	acquired, err := lease.TryAcquireOrRenew(context.Background())
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestStepDownReleasesOwnLease(t *testing.T) {
	client := fake.NewSimpleClientset()
	lease := New(client, "feeds", "feeds-refresher")

	acquired, err := lease.TryAcquireOrRenew(context.Background())
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, lease.StepDown(context.Background()))

	current, err := client.CoordinationV1().Leases("feeds").Get(context.Background(), "feeds-refresher", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Nil(t, current.Spec.HolderIdentity)
	assert.Nil(t, current.Spec.RenewTime)
}

func TestStepDownLeavesForeignLeaseAlone(t *testing.T) {
	client := fake.NewSimpleClientset(foreignLease("other-holder", time.Now(), int32(TTL.Seconds())))
	lease := New(client, "feeds", "feeds-refresher")

	require.NoError(t, lease.StepDown(context.Background()))

	current, err := client.CoordinationV1().Leases("feeds").Get(context.Background(), "feeds-refresher", metav1.GetOptions{})
	require.NoError(t, err)
	require.NotNil(t, current.Spec.HolderIdentity)
	assert.Equal(t, "other-holder", *current.Spec.HolderIdentity)
}

func TestStepDownWithoutLease(t *testing.T) {
	client := fake.NewSimpleClientset()
	lease := New(client, "feeds", "feeds-refresher")
	assert.NoError(t, lease.StepDown(context.Background()))
}

func TestHolderIDsAreUnique(t *testing.T) {
	client := fake.NewSimpleClientset()
	a := New(client, "feeds", "feeds-refresher")
	b := New(client, "feeds", "feeds-refresher")
	assert.NotEqual(t, a.HolderID(), b.HolderID())
}
