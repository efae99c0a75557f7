// Package service 组装所有业务服务并管理后台工作循环的生命周期
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ashwinyue/llm-governance/internal/config"
	"github.com/ashwinyue/llm-governance/internal/queue"
	"github.com/ashwinyue/llm-governance/internal/repository"
	"github.com/ashwinyue/llm-governance/internal/service/cost"
	"github.com/ashwinyue/llm-governance/internal/service/dataset"
	"github.com/ashwinyue/llm-governance/internal/service/evaluation"
	"github.com/ashwinyue/llm-governance/internal/service/gateway"
	"github.com/ashwinyue/llm-governance/internal/service/judge"
	"github.com/ashwinyue/llm-governance/internal/service/persistence"
	"github.com/ashwinyue/llm-governance/internal/service/prompt"
	"github.com/ashwinyue/llm-governance/internal/service/provider"
	"github.com/ashwinyue/llm-governance/internal/service/telemetry"
)

const sinkElasticsearch = "elasticsearch"

// Queues 后台任务队列
type Queues struct {
	Evaluation  queue.Queue
	RequestLogs queue.Queue
}

// NewQueues client 为空时使用进程内队列
func NewQueues(cfg *config.Config, client *redis.Client) Queues {
	if client == nil {
		return Queues{
			Evaluation:  queue.NewMemoryQueue(0),
			RequestLogs: queue.NewMemoryQueue(cfg.Persistence.BufferSize),
		}
	}
	return Queues{
		Evaluation:  queue.NewRedisQueue(client, cfg.Evaluation.QueueName),
		RequestLogs: queue.NewRedisQueue(client, cfg.Persistence.QueueName),
	}
}

// Services 服务集合
type Services struct {
	Config *config.Config

	Registry    *provider.Registry
	Metrics     *telemetry.PrometheusRecorder // 未启用指标时为 nil
	Persistence *persistence.Service
	Gateway     *gateway.Pipeline
	Prompt      *prompt.Service
	Judge       *judge.Panel
	Dataset     *dataset.Service
	Evaluation  *evaluation.Orchestrator

	queues  Queues
	sink    persistence.Sink
	log     zerolog.Logger
	workers []*queue.Worker

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Option 构造可选项
type Option func(*options)

type options struct {
	registry *provider.Registry
	sink     persistence.Sink
}

// WithRegistry 使用给定的供应商注册表，不再按配置创建
func WithRegistry(r *provider.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithSink 替换请求日志落地
func WithSink(s persistence.Sink) Option {
	return func(o *options) { o.sink = s }
}

// NewServices 创建所有服务
func NewServices(ctx context.Context, cfg *config.Config, repos *repository.Repositories, queues Queues, log zerolog.Logger, opts ...Option) (*Services, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	registry := o.registry
	if registry == nil {
		registry = provider.NewRegistryFromConfig(ctx, cfg.AI, log)
	}

	sink := o.sink
	if sink == nil {
		var err error
		if sink, err = newSink(ctx, cfg, repos); err != nil {
			return nil, err
		}
	}

	var recorder telemetry.Recorder = telemetry.Nop{}
	var metrics *telemetry.PrometheusRecorder
	if cfg.Telemetry.MetricsEnabled {
		metrics = telemetry.NewPrometheusRecorder(cfg.Telemetry.Namespace)
		recorder = metrics
	}

	prompts := prompt.NewService(repos.Prompt)
	logs := persistence.NewService(cfg.Persistence, queues.RequestLogs, log)
	pipeline := gateway.NewPipeline(
		registry,
		cost.NewCalculator(cfg.Cost),
		recorder,
		logs,
		log,
		gateway.WithPromptResolver(prompts),
	)
	panel := judge.NewPanel(pipeline, cfg.Evaluation, log)

	return &Services{
		Config:      cfg,
		Registry:    registry,
		Metrics:     metrics,
		Persistence: logs,
		Gateway:     pipeline,
		Prompt:      prompts,
		Judge:       panel,
		Dataset:     dataset.NewService(repos.Dataset, log),
		Evaluation: evaluation.NewOrchestrator(
			cfg.Evaluation,
			repos.Evaluation,
			repos.Dataset,
			pipeline,
			panel,
			queues.Evaluation,
			recorder,
			log,
		),
		queues: queues,
		sink:   sink,
		log:    log.With().Str("component", "services").Logger(),
	}, nil
}

func newSink(ctx context.Context, cfg *config.Config, repos *repository.Repositories) (persistence.Sink, error) {
	if cfg.Persistence.Sink != sinkElasticsearch {
		return persistence.NewDBSink(repos.RequestLog), nil
	}
	client, err := persistence.NewElasticClient(cfg.Elastic)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	sink, err := persistence.NewElasticSink(ctx, client, cfg.Elastic.IndexPrefix)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch sink: %w", err)
	}
	return sink, nil
}

// Start 启动请求日志推送以及日志、评估两个工作循环
func (s *Services) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.Persistence.Start(ctx)
	if s.Config.Persistence.Enabled {
		s.workers = append(s.workers, persistence.NewWorker(s.Config.Persistence, s.queues.RequestLogs, s.sink, s.log))
	}
	s.workers = append(s.workers, evaluation.NewWorker(s.Evaluation, s.log))

	for _, w := range s.workers {
		go w.Run(ctx)
	}
	s.log.Info().Int("workers", len(s.workers)).Msg("background workers started")
}

// Close 先清空日志缓冲，再停止工作循环并关闭队列
func (s *Services) Close() {
	s.Persistence.Close()

	s.mu.Lock()
	cancel := s.cancel
	workers := s.workers
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, w := range workers {
		select {
		case <-w.Done():
		case <-time.After(10 * time.Second):
			s.log.Warn().Msg("worker did not stop in time")
		}
	}

	for _, q := range []queue.Queue{s.queues.Evaluation, s.queues.RequestLogs} {
		if q == nil {
			continue
		}
		if err := q.Close(); err != nil {
			s.log.Error().Err(err).Msg("failed to close queue")
		}
	}
}
