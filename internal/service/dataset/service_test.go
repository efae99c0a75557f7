package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashwinyue/llm-governance/internal/testutil"
)

func sampleDocument(n int) *Document {
	doc := &Document{
		DatasetID:        "golden-qa",
		Name:             "Golden QA",
		Version:          "1.0.0",
		Domain:           "support",
		RegressionPolicy: map[string]any{"overall_score_drop_percentage": 10.0},
	}
	for i := 0; i < n; i++ {
		doc.Samples = append(doc.Samples, Sample{
			ID:    "case-" + string(rune('a'+i)),
			Input: map[string]any{"question": "q"},
		})
	}
	return doc
}

func TestImportDataset_ReplacesTestCases(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMemoryDatasetRepository()
	svc := NewService(repo, zerolog.Nop())

	first, err := svc.ImportDataset(ctx, sampleDocument(3))
	require.NoError(t, err)
	assert.Equal(t, 3, first.TestCases)

	second, err := svc.ImportDataset(ctx, sampleDocument(2))
	require.NoError(t, err)
	assert.Equal(t, 2, second.TestCases)
	assert.Equal(t, first.Dataset.ID, second.Dataset.ID, "same name keeps the dataset")

	ds, err := svc.GetDatasetByName(ctx, "golden-qa")
	require.NoError(t, err)
	require.Len(t, ds.TestCases, 2)
	assert.Equal(t, "case-a", ds.TestCases[0].Metadata["external_id"])
	assert.Equal(t, "case-b", ds.TestCases[1].Metadata["external_id"])
	assert.Equal(t, 1, ds.TestCases[1].Position)
	assert.NotEqual(t, "case-a", ds.TestCases[0].ID, "storage assigns ids")

	v, ok := ds.PolicyFloat("overall_score_drop_percentage")
	assert.True(t, ok)
	assert.Equal(t, 10.0, v)
}

func TestImportDataset_EmptySamplesClearsDataset(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMemoryDatasetRepository()
	svc := NewService(repo, zerolog.Nop())

	first, err := svc.ImportDataset(ctx, sampleDocument(3))
	require.NoError(t, err)
	assert.Equal(t, 3, first.TestCases)

	doc, err := ParseDocument([]byte(`{"dataset_id":"golden-qa","version":"1.0.1","samples":[]}`), ".json")
	require.NoError(t, err)
	second, err := svc.ImportDataset(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, 0, second.TestCases)
	assert.Equal(t, first.Dataset.ID, second.Dataset.ID)

	ds, err := svc.GetDatasetByName(ctx, "golden-qa")
	require.NoError(t, err)
	assert.Empty(t, ds.TestCases)
	assert.Equal(t, "1.0.1", ds.Version)
}

func TestImportDataset_InvalidDocumentWritesNothing(t *testing.T) {
	tests := []struct {
		name string
		doc  *Document
	}{
		{"nil document", nil},
		{"missing dataset_id", &Document{Version: "1", Samples: []Sample{{Input: map[string]any{"q": 1}}}}},
		{"missing version", &Document{DatasetID: "d", Samples: []Sample{{Input: map[string]any{"q": 1}}}}},
		{"empty input", &Document{DatasetID: "d", Version: "1", Samples: []Sample{{Input: map[string]any{}}}}},
		{"sample without input", &Document{DatasetID: "d", Version: "1", Samples: []Sample{{ID: "x"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := testutil.NewMemoryDatasetRepository()
			svc := NewService(repo, zerolog.Nop())

			_, err := svc.ImportDataset(context.Background(), tt.doc)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.NotEmpty(t, ve.Issues)
			assert.Equal(t, 0, repo.Writes)
		})
	}
}

func TestImportDataset_StorageFailureLeavesPreviousState(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMemoryDatasetRepository()
	svc := NewService(repo, zerolog.Nop())

	_, err := svc.ImportDataset(ctx, sampleDocument(2))
	require.NoError(t, err)

	repo.ReplaceErr = errors.New("constraint violation")
	_, err = svc.ImportDataset(ctx, sampleDocument(4))
	require.Error(t, err)

	ds, err := svc.GetDatasetByName(ctx, "golden-qa")
	require.NoError(t, err)
	assert.Len(t, ds.TestCases, 2)
}

func TestImportDataset_ExpectedTraitsNormalized(t *testing.T) {
	ctx := context.Background()
	svc := NewService(testutil.NewMemoryDatasetRepository(), zerolog.Nop())

	doc := &Document{
		DatasetID: "legacy",
		Version:   "0.1",
		Samples: []Sample{
			{Input: map[string]any{"q": "hi"}, ExpectedTraits: map[string]any{"tone": "polite"}},
			{Input: map[string]any{"q": "bye"}, EvaluationCriteria: map[string]any{"tone": "warm"}, ExpectedTraits: map[string]any{"tone": "ignored"}},
		},
	}
	_, err := svc.ImportDataset(ctx, doc)
	require.NoError(t, err)

	ds, err := svc.GetDatasetByName(ctx, "legacy")
	require.NoError(t, err)
	require.Len(t, ds.TestCases, 2)

	var c0, c1 map[string]any
	require.NoError(t, json.Unmarshal(ds.TestCases[0].EvaluationCriteria, &c0))
	require.NoError(t, json.Unmarshal(ds.TestCases[1].EvaluationCriteria, &c1))
	assert.Equal(t, "polite", c0["tone"])
	assert.Equal(t, "warm", c1["tone"])
	_, hasExternal := ds.TestCases[0].Metadata["external_id"]
	assert.False(t, hasExternal)
}

func TestLoadDocument_YAMLAndJSON(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "ds.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
dataset_id: yaml-set
version: "2"
regression_policy:
  overall_score_drop_percentage: 8
samples:
  - id: s1
    input:
      question: what is go?
    expected_traits:
      mentions: [concurrency]
`), 0o644))

	doc, err := LoadDocument(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "yaml-set", doc.DatasetID)
	require.Len(t, doc.Samples, 1)
	assert.Equal(t, "what is go?", doc.Samples[0].Input["question"])

	jsonPath := filepath.Join(dir, "ds.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"dataset_id":"json-set","version":"1","samples":[{"input":{"q":"x"}}]}`), 0o644))
	doc, err = LoadDocument(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "json-set", doc.DatasetID)

	badPath := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badPath, []byte(`{"dataset_id":`), 0o644))
	_, err = LoadDocument(badPath)
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestImportDataset_YAMLPolicyIsUsable(t *testing.T) {
	doc, err := ParseDocument([]byte("dataset_id: p\nversion: '1'\nregression_policy:\n  overall_score_drop_percentage: 8\nsamples:\n  - input: {q: 1}\n"), ".yml")
	require.NoError(t, err)

	svc := NewService(testutil.NewMemoryDatasetRepository(), zerolog.Nop())
	res, err := svc.ImportDataset(context.Background(), doc)
	require.NoError(t, err)

	v, ok := res.Dataset.PolicyFloat("overall_score_drop_percentage")
	assert.True(t, ok)
	assert.Equal(t, 8.0, v)
}

func TestValidate_WithoutStorage(t *testing.T) {
	svc := NewService(nil, zerolog.Nop())

	assert.NoError(t, svc.Validate(sampleDocument(1)))

	err := svc.Validate(&Document{DatasetID: "d"})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "got %v", err)
	assert.NotEmpty(t, ve.Issues)
}
