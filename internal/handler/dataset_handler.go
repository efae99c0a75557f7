package handler

import (
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/llm-governance/internal/service/dataset"
)

// DatasetHandler 数据集处理器
type DatasetHandler struct {
	svc *dataset.Service
}

// NewDatasetHandler 创建数据集处理器
func NewDatasetHandler(svc *dataset.Service) *DatasetHandler {
	return &DatasetHandler{svc: svc}
}

// ImportDataset 导入数据集文档，Content-Type 含 yaml 时按 YAML 解析
// POST /api/v1/datasets/import
func (h *DatasetHandler) ImportDataset(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	ext := ".json"
	if strings.Contains(c.ContentType(), "yaml") {
		ext = ".yaml"
	}
	doc, err := dataset.ParseDocument(body, ext)
	if err != nil {
		Error(c, err)
		return
	}

	result, err := h.svc.ImportDataset(c.Request.Context(), doc)
	if err != nil {
		Error(c, err)
		return
	}

	Created(c, result)
}

// GetDataset 获取数据集，支持 ID 或名称
func (h *DatasetHandler) GetDataset(c *gin.Context) {
	data, err := h.svc.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, data)
}

// ListDatasets 列出数据集
func (h *DatasetHandler) ListDatasets(c *gin.Context) {
	page, size := pageParams(c)

	datasets, err := h.svc.ListDatasets(c.Request.Context(), page, size)
	if err != nil {
		Error(c, err)
		return
	}

	SuccessWithPagination(c, datasets, page, size)
}
