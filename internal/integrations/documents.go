package integrations

import (
	"fmt"
	"sort"

	"github.com/shaiso/stepflow/internal/steps"
)

// IntegrationDocuments — имя документной интеграции.
const IntegrationDocuments = "documents"

// Типы шагов документной интеграции.
const (
	StepGenerate  = "generate"
	StepCompress  = "compress"
	StepWatermark = "watermark"
	StepMerge     = "merge"
	StepConvert   = "convert"
)

// documentTemplates — шаблоны документов и их поля.
var documentTemplates = map[string][]string{
	"welcome_packet": {"customer_name", "company_name", "plan_name", "signup_date"},
	"contract":       {"customer_name", "company_name", "terms", "effective_date"},
	"guide":          {"customer_name", "features", "tutorials"},
}

const localDocumentsURL = "local://documents"

// RegisterDocumentHandlers регистрирует шаги документной интеграции:
// generate, compress, watermark, merge, convert.
func RegisterDocumentHandlers(reg *steps.Registry, client *VendorClient) {
	reg.Register(StepGenerate, &vendorHandler{client: client, path: "documents/generate", local: generateDocument})
	reg.Register(StepCompress, &vendorHandler{client: client, path: "documents/compress", local: compressDocument})
	reg.Register(StepWatermark, &vendorHandler{client: client, path: "documents/watermark", local: watermarkDocument})
	reg.Register(StepMerge, &vendorHandler{client: client, path: "documents/merge", local: mergeDocuments})
	reg.Register(StepConvert, &vendorHandler{client: client, path: "documents/convert", local: convertDocument})
}

// generateDocument — опции: template_id (по умолчанию welcome_packet), format.
func generateDocument(req *steps.Request) (map[string]any, error) {
	templateID := stringOption(req, "template_id", "welcome_packet")
	fields, ok := documentTemplates[templateID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, templateID)
	}

	dataFields := make([]string, 0, len(req.Input))
	for k := range req.Input {
		dataFields = append(dataFields, k)
	}
	sort.Strings(dataFields)

	missing := make([]string, 0)
	for _, f := range fields {
		if _, ok := req.Input[f]; !ok {
			missing = append(missing, f)
		}
	}

	id := "doc_" + templateID + "_" + stepRef(req)
	return map[string]any{
		"document_id":    id,
		"template_id":    templateID,
		"url":            localDocumentsURL + "/" + id,
		"format":         stringOption(req, "format", "pdf"),
		"status":         "generated",
		"data_fields":    dataFields,
		"missing_fields": missing,
	}, nil
}

// compressDocument — опции: document_url, quality (по умолчанию medium).
func compressDocument(req *steps.Request) (map[string]any, error) {
	source := documentURL(req)
	return map[string]any{
		"original_url":      source,
		"compressed_url":    localDocumentsURL + "/compressed/" + stepRef(req),
		"quality":           stringOption(req, "quality", "medium"),
		"compression_ratio": 0.5,
		"status":            "compressed",
	}, nil
}

// watermarkDocument — опции: watermark_text (обязательно), document_url, position.
func watermarkDocument(req *steps.Request) (map[string]any, error) {
	text, err := requireOption(req, "watermark_text")
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"original_url":    documentURL(req),
		"watermarked_url": localDocumentsURL + "/watermarked/" + stepRef(req),
		"watermark_text":  text,
		"position":        stringOption(req, "position", "center"),
		"status":          "watermarked",
	}, nil
}

// mergeDocuments — опции: document_urls.
func mergeDocuments(req *steps.Request) (map[string]any, error) {
	sources := stringsOption(req, "document_urls")
	if len(sources) == 0 {
		sources = []string{documentURL(req)}
	}
	return map[string]any{
		"merged_url":       localDocumentsURL + "/merged/" + stepRef(req),
		"source_documents": sources,
		"total_pages":      len(sources) * 2,
		"status":           "merged",
	}, nil
}

// convertDocument — опции: target_format (обязательно), document_url.
func convertDocument(req *steps.Request) (map[string]any, error) {
	target, err := requireOption(req, "target_format")
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"original_url":    documentURL(req),
		"converted_url":   localDocumentsURL + "/converted/" + stepRef(req) + "." + target,
		"original_format": "pdf",
		"target_format":   target,
		"status":          "converted",
	}, nil
}

// documentURL берёт document_url из опций, затем из входных данных run.
func documentURL(req *steps.Request) string {
	if v := steps.GetConfigString(req.Options, "document_url"); v != "" {
		return v
	}
	if v, ok := req.Input["document_url"].(string); ok && v != "" {
		return v
	}
	return localDocumentsURL + "/source"
}
