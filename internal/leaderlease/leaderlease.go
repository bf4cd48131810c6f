// Package leaderlease implements leader election on a Kubernetes Lease
// resource. One replica holds the lease at a time; the holder renews it on
// every tick and an expired lease can be taken over by anyone.
package leaderlease

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	coordinationv1 "k8s.io/api/coordination/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// TTL is how long a held lease stays valid without renewal.
const TTL = 120 * time.Second

const holderSuffixLength = 8

// Lease is one contender for a named lease.
type Lease struct {
	client    kubernetes.Interface
	namespace string
	leaseName string
	holderID  string
	ttl       time.Duration
}

// New creates a contender with a unique holder identity derived from the
// lease name.
func New(client kubernetes.Interface, namespace string, leaseName string) *Lease {
	return &Lease{
		client:    client,
		namespace: namespace,
		leaseName: leaseName,
		holderID:  fmt.Sprintf("%s-%s", leaseName, randomSuffix(holderSuffixLength)),
		ttl:       TTL,
	}
}

// NewInCluster creates a contender using the pod service account credentials.
func NewInCluster(namespace string, leaseName string) (*Lease, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create in-cluster config: %w", err)
	}
	client, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	return New(client, namespace, leaseName), nil
}

// HolderID returns this contender's identity.
func (l *Lease) HolderID() string {
	return l.holderID
}

// TryAcquireOrRenew attempts to take or keep the lease. It returns true only
// when this contender holds the lease after the call: a missing lease is
// created, an owned one renewed, an expired one taken over and a live
// foreign one left alone.
func (l *Lease) TryAcquireOrRenew(ctx context.Context) (bool, error) {
	leases := l.client.CoordinationV1().Leases(l.namespace)
	now := metav1.NewMicroTime(time.Now())
	ttlSeconds := int32(l.ttl.Seconds())

	current, err := leases.Get(ctx, l.leaseName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		lease := &coordinationv1.Lease{
			ObjectMeta: metav1.ObjectMeta{
				Name:      l.leaseName,
				Namespace: l.namespace,
			},
			Spec: coordinationv1.LeaseSpec{
				HolderIdentity:       &l.holderID,
				LeaseDurationSeconds: &ttlSeconds,
				AcquireTime:          &now,
				RenewTime:            &now,
			},
		}
		if _, err := leases.Create(ctx, lease, metav1.CreateOptions{}); err != nil {
			if apierrors.IsAlreadyExists(err) {
				// lost the creation race
				return false, nil
			}
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}

	holder := ""
	if current.Spec.HolderIdentity != nil {
		holder = *current.Spec.HolderIdentity
	}
	if holder != "" && holder != l.holderID && !l.expired(current, now.Time) {
		return false, nil
	}

	current.Spec.HolderIdentity = &l.holderID
	current.Spec.LeaseDurationSeconds = &ttlSeconds
	current.Spec.RenewTime = &now
	if holder != l.holderID {
		current.Spec.AcquireTime = &now
	}
	if _, err := leases.Update(ctx, current, metav1.UpdateOptions{}); err != nil {
		if apierrors.IsConflict(err) {
			// another contender updated first
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// StepDown releases the lease if this contender holds it so another replica
// can take over without waiting for expiry.
func (l *Lease) StepDown(ctx context.Context) error {
	leases := l.client.CoordinationV1().Leases(l.namespace)
	current, err := leases.Get(ctx, l.leaseName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if current.Spec.HolderIdentity == nil || *current.Spec.HolderIdentity != l.holderID {
		return nil
	}
	current.Spec.HolderIdentity = nil
	current.Spec.AcquireTime = nil
	current.Spec.RenewTime = nil
	_, err = leases.Update(ctx, current, metav1.UpdateOptions{})
	return err
}

func (l *Lease) expired(lease *coordinationv1.Lease, now time.Time) bool {
	if lease.Spec.RenewTime == nil {
		return true
	}
	ttl := l.ttl
	if lease.Spec.LeaseDurationSeconds != nil {
		ttl = time.Duration(*lease.Spec.LeaseDurationSeconds) * time.Second
	}
	return lease.Spec.RenewTime.Add(ttl).Before(now)
}

func randomSuffix(length int) string {
	id := uuid.Must(uuid.NewV4())
	return strings.ReplaceAll(id.String(), "-", "")[:length]
}
