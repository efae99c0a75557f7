// Package dataset 评估数据集导入与查询
package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"

	"github.com/ashwinyue/llm-governance/internal/model"
	"github.com/ashwinyue/llm-governance/internal/repository"
)

// Document 数据集导入文档
type Document struct {
	DatasetID        string         `json:"dataset_id" yaml:"dataset_id" validate:"required,max=255"`
	Name             string         `json:"name,omitempty" yaml:"name,omitempty" validate:"max=255"`
	Description      string         `json:"description,omitempty" yaml:"description,omitempty"`
	Version          string         `json:"version" yaml:"version" validate:"required,max=64"`
	Domain           string         `json:"domain,omitempty" yaml:"domain,omitempty" validate:"max=128"`
	Owner            string         `json:"owner,omitempty" yaml:"owner,omitempty" validate:"max=128"`
	Guidelines       any            `json:"guidelines,omitempty" yaml:"guidelines,omitempty"`
	ScoringRubric    map[string]any `json:"scoring_rubric,omitempty" yaml:"scoring_rubric,omitempty"`
	RegressionPolicy map[string]any `json:"regression_policy,omitempty" yaml:"regression_policy,omitempty"`
	Samples          []Sample       `json:"samples" yaml:"samples" validate:"dive"`
}

// Sample 单条测试样本
type Sample struct {
	ID                 string         `json:"id,omitempty" yaml:"id,omitempty"`
	Input              map[string]any `json:"input" yaml:"input" validate:"required,min=1"`
	ExpectedOutput     string         `json:"expected_output,omitempty" yaml:"expected_output,omitempty"`
	EvaluationCriteria any            `json:"evaluation_criteria,omitempty" yaml:"evaluation_criteria,omitempty"`
	ExpectedTraits     any            `json:"expected_traits,omitempty" yaml:"expected_traits,omitempty"`
	CriticalDimensions []string       `json:"critical_dimensions,omitempty" yaml:"critical_dimensions,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ValidationError 文档格式不合法，导入未写入任何数据
type ValidationError struct {
	Issues []string
	Err    error
}

func (e *ValidationError) Error() string {
	return "invalid dataset format: " + strings.Join(e.Issues, "; ")
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ImportResult 导入结果
type ImportResult struct {
	Dataset   *model.Dataset `json:"dataset"`
	TestCases int            `json:"test_cases"`
}

// Service 数据集服务
type Service struct {
	repo     repository.DatasetRepository
	validate *validator.Validate
	log      zerolog.Logger
}

// NewService 创建数据集服务
func NewService(repo repository.DatasetRepository, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log.With().Str("component", "dataset").Logger(),
	}
}

// ImportDataset 按 dataset_id upsert 数据集并整体替换测试用例，全部成功或全部不写
func (s *Service) ImportDataset(ctx context.Context, doc *Document) (*ImportResult, error) {
	if err := s.Validate(doc); err != nil {
		return nil, err
	}

	ds, err := datasetFromDocument(doc)
	if err != nil {
		return nil, err
	}
	cases := make([]*model.TestCase, 0, len(doc.Samples))
	for i := range doc.Samples {
		tc, err := testCaseFromSample(&doc.Samples[i])
		if err != nil {
			return nil, &ValidationError{Issues: []string{fmt.Sprintf("samples[%d]: %v", i, err)}, Err: err}
		}
		cases = append(cases, tc)
	}

	if err := s.repo.ReplaceDataset(ctx, ds, cases); err != nil {
		return nil, fmt.Errorf("import dataset %s: %w", doc.DatasetID, err)
	}

	s.log.Info().Str("dataset", ds.Name).Str("version", ds.Version).Int("test_cases", len(cases)).Msg("dataset imported")
	return &ImportResult{Dataset: ds, TestCases: len(cases)}, nil
}

// Validate 只做文档校验，不写存储
func (s *Service) Validate(doc *Document) error {
	if doc == nil {
		return &ValidationError{Issues: []string{"document is empty"}}
	}
	if err := s.validate.Struct(doc); err != nil {
		return toValidationError(err)
	}
	return nil
}

func datasetFromDocument(doc *Document) (*model.Dataset, error) {
	guidelines, err := guidelinesText(doc.Guidelines)
	if err != nil {
		return nil, &ValidationError{Issues: []string{"guidelines: " + err.Error()}, Err: err}
	}
	title := doc.Name
	if title == "" {
		title = doc.DatasetID
	}
	return &model.Dataset{
		Name:             doc.DatasetID,
		Title:            title,
		Description:      doc.Description,
		Version:          doc.Version,
		Domain:           doc.Domain,
		Owner:            doc.Owner,
		Guidelines:       guidelines,
		RegressionPolicy: doc.RegressionPolicy,
		ScoringRubric:    doc.ScoringRubric,
	}, nil
}

// testCaseFromSample expected_traits 为旧字段，归一到 evaluation_criteria
func testCaseFromSample(sm *Sample) (*model.TestCase, error) {
	criteria := sm.EvaluationCriteria
	if criteria == nil {
		criteria = sm.ExpectedTraits
	}

	metadata := make(map[string]any, len(sm.Metadata)+1)
	for k, v := range sm.Metadata {
		metadata[k] = v
	}
	if sm.ID != "" {
		metadata["external_id"] = sm.ID
	}

	tc := &model.TestCase{
		Input:          sm.Input,
		ExpectedOutput: sm.ExpectedOutput,
		Metadata:       metadata,
	}
	if criteria != nil {
		b, err := json.Marshal(criteria)
		if err != nil {
			return nil, fmt.Errorf("evaluation_criteria: %w", err)
		}
		tc.EvaluationCriteria = datatypes.JSON(b)
	}
	if len(sm.CriticalDimensions) > 0 {
		b, err := json.Marshal(sm.CriticalDimensions)
		if err != nil {
			return nil, fmt.Errorf("critical_dimensions: %w", err)
		}
		tc.CriticalDimensions = datatypes.JSON(b)
	}
	return tc, nil
}

func guidelinesText(v any) (string, error) {
	switch g := v.(type) {
	case nil:
		return "", nil
	case string:
		return g, nil
	default:
		b, err := json.Marshal(g)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

func toValidationError(err error) *ValidationError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Issues: []string{err.Error()}, Err: err}
	}
	issues := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
	}
	return &ValidationError{Issues: issues, Err: err}
}

// LoadDocument 读取 JSON 或 YAML 数据集文件
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset file: %w", err)
	}
	return ParseDocument(data, filepath.Ext(path))
}

// ParseDocument 按扩展名解析文档，.yaml/.yml 使用 YAML，其余按 JSON
func ParseDocument(data []byte, ext string) (*Document, error) {
	var doc Document
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, &ValidationError{Issues: []string{"malformed YAML: " + err.Error()}, Err: err}
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, &ValidationError{Issues: []string{"malformed JSON: " + err.Error()}, Err: err}
		}
	}
	return &doc, nil
}

// GetDataset 获取数据集及其有序测试用例
func (s *Service) GetDataset(ctx context.Context, id string) (*model.Dataset, error) {
	ds, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get dataset %s: %w", id, err)
	}
	return s.withCases(ctx, ds)
}

// GetDatasetByName 按名称获取数据集
func (s *Service) GetDatasetByName(ctx context.Context, name string) (*model.Dataset, error) {
	ds, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("get dataset %s: %w", name, err)
	}
	return s.withCases(ctx, ds)
}

// Resolve 先按 id 再按名称查找，附带测试用例
func (s *Service) Resolve(ctx context.Context, idOrName string) (*model.Dataset, error) {
	ds, err := s.repo.GetByID(ctx, idOrName)
	if errors.Is(err, repository.ErrNotFound) {
		ds, err = s.repo.GetByName(ctx, idOrName)
	}
	if err != nil {
		return nil, fmt.Errorf("get dataset %s: %w", idOrName, err)
	}
	return s.withCases(ctx, ds)
}

func (s *Service) withCases(ctx context.Context, ds *model.Dataset) (*model.Dataset, error) {
	cases, err := s.repo.ListTestCases(ctx, ds.ID)
	if err != nil {
		return nil, fmt.Errorf("list test cases: %w", err)
	}
	ds.TestCases = make([]model.TestCase, 0, len(cases))
	for _, tc := range cases {
		ds.TestCases = append(ds.TestCases, *tc)
	}
	return ds, nil
}

// ListDatasets 分页列出数据集
func (s *Service) ListDatasets(ctx context.Context, page, size int) ([]*model.Dataset, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	datasets, err := s.repo.List(ctx, (page-1)*size, size)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	return datasets, nil
}
