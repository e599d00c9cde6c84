package authz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/casbin/casbin/v2"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	"github.com/sirupsen/logrus"
)

type Authorizer interface {
	Authorize(ctx context.Context, req Request) error
}

type allowAll struct{}

func (allowAll) Authorize(context.Context, Request) error { return nil }

// AllowAll permits every request. Used when authorization is disabled and in tests.
func AllowAll() Authorizer { return allowAll{} }

// Service evaluates requests against a casbin model and a file policy.
// In shadow mode denials are logged but not returned.
type Service struct {
	flags FlagProvider
	log   *logrus.Entry

	mu       sync.RWMutex
	enforcer *casbin.Enforcer
}

func NewService(cfg Config) (*Service, error) {
	if cfg.ModelPath == "" || cfg.PolicyPath == "" {
		return nil, fmt.Errorf("authz: model and policy paths are required")
	}
	flags, err := cfg.flags()
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewEnforcer(cfg.ModelPath, fileadapter.NewAdapter(cfg.PolicyPath))
	if err != nil {
		return nil, fmt.Errorf("authz: build enforcer: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		flags:    flags,
		log:      logger.WithField("component", "authz"),
		enforcer: enforcer,
	}, nil
}

func (s *Service) Authorize(ctx context.Context, req Request) error {
	mode := s.flags.ModeFor(req.Object)
	if mode == ModeDisabled {
		return nil
	}
	start := time.Now()
	allowed, err := s.Check(req)
	if err != nil {
		return err
	}
	observe(req, mode, allowed, time.Since(start))
	if allowed {
		return nil
	}

	entry := s.log.WithContext(ctx).WithFields(logrus.Fields{
		"subject": req.Subject,
		"domain":  req.Domain,
		"object":  req.Object,
		"action":  req.Action,
	})
	if mode == ModeShadow {
		entry.Info("authz: shadow deny")
		return nil
	}
	entry.Warn("authz: denied")
	return denied(req)
}

// Check reports the raw policy decision, ignoring the enforcement mode.
func (s *Service) Check(req Request) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ok, err := s.enforcer.Enforce(req.Subject, req.Domain, req.Object, req.Action)
	if err != nil {
		return false, fmt.Errorf("authz: enforce %s/%s: %w", req.Object, req.Action, err)
	}
	return ok, nil
}

// ReloadPolicy re-reads the policy file.
func (s *Service) ReloadPolicy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enforcer.LoadPolicy(); err != nil {
		return fmt.Errorf("authz: reload policy: %w", err)
	}
	return nil
}
