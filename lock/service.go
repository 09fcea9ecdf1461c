package lock

import "github.com/enverbisevac/actors/lease"

// Service hands out locks sharing one lease store and configuration.
type Service struct {
	config Config
	store  lease.Store
}

// NewService creates a lock service, options are applied on DefaultConfig.
func NewService(store lease.Store, options ...Option) *Service {
	config := DefaultConfig()
	for _, opt := range options {
		opt.Apply(&config)
	}

	return &Service{
		config: config,
		store:  store,
	}
}

func (s *Service) Config() Config {
	return s.config
}

// Policy is the acquisition policy locks of s use by default.
func (s *Service) Policy() Policy {
	return s.config.Policy()
}

// NewLock creates an unacquired lock on resource.
func (s *Service) NewLock(resource string) (*Lock, error) {
	return New(s.store, resource)
}
