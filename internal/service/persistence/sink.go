package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/ashwinyue/llm-governance/internal/config"
	"github.com/ashwinyue/llm-governance/internal/model"
	"github.com/ashwinyue/llm-governance/internal/repository"
)

// Sink 请求日志最终落地
type Sink interface {
	Write(ctx context.Context, logs []*model.RequestLog) error
}

// DBSink 写入 request_logs 表
type DBSink struct {
	repo repository.RequestLogRepository
}

// NewDBSink 创建数据库落地
func NewDBSink(repo repository.RequestLogRepository) *DBSink {
	return &DBSink{repo: repo}
}

// Write 实现 Sink
func (s *DBSink) Write(ctx context.Context, logs []*model.RequestLog) error {
	return s.repo.CreateBatch(ctx, logs)
}

// ElasticSink 写入 Elasticsearch 索引
type ElasticSink struct {
	client *elasticsearch.Client
	index  string
}

// NewElasticClient 创建 ES 客户端
func NewElasticClient(cfg config.ElasticConfig) (*elasticsearch.Client, error) {
	return elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.Host},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
}

// NewElasticSink 创建 ES 落地并确保索引存在
func NewElasticSink(ctx context.Context, client *elasticsearch.Client, indexPrefix string) (*ElasticSink, error) {
	index := indexPrefix + "_request_logs"
	if err := ensureLogIndex(ctx, client, index); err != nil {
		return nil, err
	}
	return &ElasticSink{client: client, index: index}, nil
}

// Write 实现 Sink
func (s *ElasticSink) Write(ctx context.Context, logs []*model.RequestLog) error {
	for _, entry := range logs {
		body, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal request log: %w", err)
		}
		req := esapi.IndexRequest{
			Index: s.index,
			Body:  bytes.NewReader(body),
		}
		res, err := req.Do(ctx, s.client)
		if err != nil {
			return fmt.Errorf("index request log: %w", err)
		}
		isErr, text := res.IsError(), res.String()
		res.Body.Close()
		if isErr {
			return fmt.Errorf("index request log: %s", text)
		}
	}
	return nil
}

// ensureLogIndex 确保日志索引存在（如不存在则创建）
func ensureLogIndex(ctx context.Context, client *elasticsearch.Client, index string) error {
	res, err := client.Indices.Exists([]string{index}, client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	mapping := map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"request_id":     map[string]interface{}{"type": "keyword"},
				"timestamp":      map[string]interface{}{"type": "date"},
				"env":            map[string]interface{}{"type": "keyword"},
				"provider":       map[string]interface{}{"type": "keyword"},
				"model":          map[string]interface{}{"type": "keyword"},
				"prompt_id":      map[string]interface{}{"type": "keyword"},
				"prompt_version": map[string]interface{}{"type": "keyword"},
				"latency_ms":     map[string]interface{}{"type": "long"},
				"tokens_in":      map[string]interface{}{"type": "integer"},
				"tokens_out":     map[string]interface{}{"type": "integer"},
				"cost_usd":       map[string]interface{}{"type": "double"},
				"status":         map[string]interface{}{"type": "keyword"},
				"error_code":     map[string]interface{}{"type": "keyword"},
				"error_message":  map[string]interface{}{"type": "text"},
				"metadata":       map[string]interface{}{"type": "object", "enabled": false},
			},
		},
	}
	data, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	req := esapi.IndicesCreateRequest{Index: index, Body: bytes.NewReader(data)}
	res, err = req.Do(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("failed to create index: %s", res.String())
	}
	return nil
}
