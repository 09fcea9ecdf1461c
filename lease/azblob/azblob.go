// Package azblob implements lease.Store with Azure Blob Storage leases. Every
// resource is an empty placeholder blob in the lock container.
package azblob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	azlease "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/lease"
	"github.com/google/uuid"

	"github.com/enverbisevac/actors/lease"
)

const (
	DefaultContainer = "entitylocks"

	// service limits for finite leases
	minLease = 15 * time.Second
	maxLease = 60 * time.Second
)

type Config struct {
	Container string
}

type Option interface {
	Apply(*Config)
}

type OptionFunc func(*Config)

func (f OptionFunc) Apply(config *Config) {
	f(config)
}

func WithContainer(value string) Option {
	return OptionFunc(func(c *Config) {
		c.Container = value
	})
}

// Store implements lease.Store.
type Store struct {
	config  Config
	client  *azblob.Client
	created atomic.Bool
}

func New(client *azblob.Client, options ...Option) *Store {
	config := Config{
		Container: DefaultContainer,
	}
	for _, opt := range options {
		opt.Apply(&config)
	}

	return &Store{
		config: config,
		client: client,
	}
}

// NewFromConnectionString creates a client from a storage account
// connection string, Azurite included.
func NewFromConnectionString(conn string, options ...Option) (*Store, error) {
	client, err := azblob.NewClientFromConnectionString(conn, nil)
	if err != nil {
		return nil, fmt.Errorf("azblob: client: %w", err)
	}
	return New(client, options...), nil
}

// Ensure creates the container once and an empty placeholder blob when the
// resource blob does not exist yet.
func (s *Store) Ensure(ctx context.Context, resource string) error {
	if !s.created.Load() {
		_, err := s.client.CreateContainer(ctx, s.config.Container, nil)
		if err != nil && !hasCode(err, "ContainerAlreadyExists") {
			return fmt.Errorf("azblob: create container %s: %w", s.config.Container, err)
		}
		s.created.Store(true)
	}

	_, err := s.client.UploadStream(ctx, s.config.Container, resource, bytes.NewReader(nil), &azblob.UploadStreamOptions{
		AccessConditions: &blob.AccessConditions{
			ModifiedAccessConditions: &blob.ModifiedAccessConditions{
				IfNoneMatch: to.Ptr(azcore.ETagAny),
			},
		},
	})
	// an existing blob answers 409, a leased one 412
	if err != nil && !hasStatus(err, http.StatusConflict, http.StatusPreconditionFailed) {
		return fmt.Errorf("azblob: ensure %s: %w", resource, err)
	}
	return nil
}

func (s *Store) leaseClient(resource, token string) (*azlease.BlobClient, error) {
	blobClient := s.client.ServiceClient().NewContainerClient(s.config.Container).NewBlobClient(resource)
	return azlease.NewBlobClient(blobClient, &azlease.BlobClientOptions{LeaseID: to.Ptr(token)})
}

// Acquire leases the placeholder blob. d is clamped to the 15s to 60s range
// accepted by the service.
func (s *Store) Acquire(ctx context.Context, resource string, d time.Duration) (string, error) {
	token := uuid.NewString()

	lc, err := s.leaseClient(resource, token)
	if err != nil {
		return "", fmt.Errorf("azblob: acquire %s: %w", resource, err)
	}

	resp, err := lc.AcquireLease(ctx, leaseSeconds(d), nil)
	if hasStatus(err, http.StatusConflict, http.StatusPreconditionFailed) {
		return "", fmt.Errorf("azblob: %s: %w: %w", resource, lease.ErrConflict, err)
	}
	if err != nil {
		return "", fmt.Errorf("azblob: acquire %s: %w", resource, err)
	}

	if resp.LeaseID != nil {
		token = *resp.LeaseID
	}
	return token, nil
}

// Renew renews with the duration the lease was acquired with.
func (s *Store) Renew(ctx context.Context, resource, token string, _ time.Duration) error {
	lc, err := s.leaseClient(resource, token)
	if err != nil {
		return fmt.Errorf("azblob: renew %s: %w", resource, err)
	}

	_, err = lc.RenewLease(ctx, nil)
	return s.tokenErr("renew", resource, err)
}

func (s *Store) Release(ctx context.Context, resource, token string) error {
	lc, err := s.leaseClient(resource, token)
	if err != nil {
		return fmt.Errorf("azblob: release %s: %w", resource, err)
	}

	_, err = lc.ReleaseLease(ctx, nil)
	return s.tokenErr("release", resource, err)
}

func (s *Store) tokenErr(op, resource string, err error) error {
	if err == nil {
		return nil
	}
	if hasStatus(err, http.StatusConflict, http.StatusPreconditionFailed) {
		return fmt.Errorf("azblob: %s %s: %w: %w", op, resource, lease.ErrNotHeld, err)
	}
	return fmt.Errorf("azblob: %s %s: %w", op, resource, err)
}

func leaseSeconds(d time.Duration) int32 {
	switch {
	case d < 0:
		return -1
	case d < minLease:
		d = minLease
	case d > maxLease:
		d = maxLease
	}
	return int32(math.Ceil(d.Seconds()))
}

func hasStatus(err error, codes ...int) bool {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return false
	}
	for _, code := range codes {
		if respErr.StatusCode == code {
			return true
		}
	}
	return false
}

func hasCode(err error, code string) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && strings.EqualFold(respErr.ErrorCode, code)
}
