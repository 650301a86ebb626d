package epicflow

import (
	"github.com/epicflow/epicflow/machine"
	"github.com/epicflow/epicflow/model/epic"
	"github.com/epicflow/epicflow/policy"
	"github.com/epicflow/epicflow/service/approval"
	"github.com/epicflow/epicflow/service/checkpoint"
	"github.com/epicflow/epicflow/service/event"
	"github.com/epicflow/epicflow/service/notify"
	"github.com/epicflow/epicflow/service/router"
)

// Option customises the coordinator assembled by New.
type Option func(s *Service)

// WithConfig sets the engine configuration.
func WithConfig(config *Config) Option {
	return func(s *Service) { s.config = config }
}

// WithRouter sets the workflow router.
func WithRouter(svc *router.Service) Option {
	return func(s *Service) { s.router = svc }
}

// WithApprovalService sets the approval manager.
func WithApprovalService(svc approval.Service) Option {
	return func(s *Service) { s.approvals = svc }
}

// WithExecutor sets the step executor, replacing the HTTP backend client.
func WithExecutor(executor machine.Executor) Option {
	return func(s *Service) { s.executor = executor }
}

// WithCheckpointStore sets the state snapshot store.
func WithCheckpointStore(store checkpoint.Store[string, epic.State]) Option {
	return func(s *Service) { s.store = store }
}

// WithNotifier sets the notification channel.
func WithNotifier(svc notify.Service) Option {
	return func(s *Service) { s.notifier = svc }
}

// WithPublisher sets the lifecycle event publisher.
func WithPublisher(publisher *event.Publisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

// WithEventListener registers a synchronous listener on the default
// publisher.
func WithEventListener(fn func(*event.Event)) Option {
	return func(s *Service) { s.listener = fn }
}

// WithPolicy applies a step execution policy to every run the coordinator
// launches.
func WithPolicy(p *policy.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithRegistry sets the step dispatch registry.
func WithRegistry(registry machine.Registry) Option {
	return func(s *Service) { s.registry = registry }
}
