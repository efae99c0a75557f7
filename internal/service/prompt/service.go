// Package prompt 提示词注册表：版本管理与环境绑定
package prompt

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashwinyue/llm-governance/internal/model"
	"github.com/ashwinyue/llm-governance/internal/repository"
	"github.com/ashwinyue/llm-governance/internal/service/gateway"
)

var (
	// ErrNoBinding 环境未绑定任何版本
	ErrNoBinding = errors.New("no prompt version bound to environment")
	// ErrVersionMismatch 版本不属于该提示词
	ErrVersionMismatch = errors.New("version does not belong to prompt")
)

// Service 提示词服务
type Service struct {
	repo repository.PromptRepository
}

// NewService 创建提示词服务
func NewService(repo repository.PromptRepository) *Service {
	return &Service{repo: repo}
}

// CreatePromptRequest 创建提示词请求
type CreatePromptRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// CreatePrompt 创建提示词
func (s *Service) CreatePrompt(ctx context.Context, req *CreatePromptRequest) (*model.Prompt, error) {
	p := &model.Prompt{Name: req.Name, Description: req.Description}
	if err := s.repo.CreatePrompt(ctx, p); err != nil {
		return nil, fmt.Errorf("create prompt: %w", err)
	}
	return p, nil
}

// CreateVersionRequest 创建版本请求
type CreateVersionRequest struct {
	Version  string         `json:"version" binding:"required"`
	Template string         `json:"template" binding:"required"`
	Metadata map[string]any `json:"metadata"`
}

// CreateVersion 为提示词新增一个版本
func (s *Service) CreateVersion(ctx context.Context, promptIDOrName string, req *CreateVersionRequest) (*model.PromptVersion, error) {
	p, err := s.repo.GetPrompt(ctx, promptIDOrName)
	if err != nil {
		return nil, fmt.Errorf("get prompt %s: %w", promptIDOrName, err)
	}
	v := &model.PromptVersion{
		PromptID: p.ID,
		Version:  req.Version,
		Template: req.Template,
		Metadata: req.Metadata,
	}
	if err := s.repo.CreateVersion(ctx, v); err != nil {
		return nil, fmt.Errorf("create prompt version: %w", err)
	}
	return v, nil
}

// BindEnvironment 将环境指向某个版本
func (s *Service) BindEnvironment(ctx context.Context, promptIDOrName, versionID, env string) (*model.PromptBinding, error) {
	p, err := s.repo.GetPrompt(ctx, promptIDOrName)
	if err != nil {
		return nil, fmt.Errorf("get prompt %s: %w", promptIDOrName, err)
	}
	v, err := s.repo.GetVersion(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("get version %s: %w", versionID, err)
	}
	if v.PromptID != p.ID {
		return nil, fmt.Errorf("%w: %s not in %s", ErrVersionMismatch, versionID, p.Name)
	}

	b := &model.PromptBinding{PromptID: p.ID, Env: env, VersionID: v.ID}
	if err := s.repo.UpsertBinding(ctx, b); err != nil {
		return nil, fmt.Errorf("bind environment: %w", err)
	}
	return b, nil
}

// GetPrompt 解析环境对应的模板，实现 gateway.PromptResolver
func (s *Service) GetPrompt(ctx context.Context, idOrName, env string) (*gateway.ResolvedPrompt, error) {
	p, err := s.repo.GetPrompt(ctx, idOrName)
	if err != nil {
		return nil, fmt.Errorf("get prompt %s: %w", idOrName, err)
	}
	b, err := s.repo.GetBinding(ctx, p.ID, env)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s@%s", ErrNoBinding, p.Name, env)
	}
	if err != nil {
		return nil, fmt.Errorf("get binding: %w", err)
	}
	v, err := s.repo.GetVersion(ctx, b.VersionID)
	if err != nil {
		return nil, fmt.Errorf("get version %s: %w", b.VersionID, err)
	}
	return &gateway.ResolvedPrompt{
		PromptID: p.ID,
		Template: v.Template,
		Version:  v.Version,
		Metadata: v.Metadata,
	}, nil
}

var _ gateway.PromptResolver = (*Service)(nil)
