/**
 * @description
 * Analysis Service.
 * Turns a staged upload into a persisted, normalized analysis:
 * 1. Read the file (spreadsheets are flattened to CSV text)
 * 2. Ask the AI provider
 * 3. Normalize the response
 * 4. Append the record to the user's history
 *
 * @dependencies
 * - backend/internal/integrations/deepseek (through the Completer interface)
 * - backend/internal/analysis
 * - github.com/xuri/excelize/v2
 */

package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vitalchain-project/backend/internal/analysis"
	"github.com/vitalchain-project/backend/internal/logger"
	"github.com/vitalchain-project/backend/internal/models"
	"github.com/vitalchain-project/backend/internal/uploads"
	"github.com/xuri/excelize/v2"
)

const (
	maxPromptChars = 24000
	xlsxMimeType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var (
	// ErrAnalysisFailed is the client-safe error for any provider or parsing failure.
	ErrAnalysisFailed = errors.New("analysis failed, please retry")
	// ErrUnreadableFile means the upload passed type checks but holds no usable text.
	ErrUnreadableFile = errors.New("uploaded file could not be read")
	// ErrLegacySpreadsheet is returned for binary .xls workbooks, which are not decoded.
	ErrLegacySpreadsheet = errors.New("legacy .xls workbooks are not supported, save the file as .xlsx or .csv")

	zipSignature = []byte("PK\x03\x04")
	oleSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// Completer is the AI provider surface used by the analysis flows.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) ([]byte, error)
	CompleteWithImage(ctx context.Context, systemPrompt, userPrompt, mimeType string, image []byte) ([]byte, error)
}

type AnalysisService struct {
	ai      Completer
	users   UserStore
	metrics *Metrics
	now     func() time.Time
}

func NewAnalysisService(ai Completer, users UserStore, metrics *Metrics) *AnalysisService {
	return &AnalysisService{ai: ai, users: users, metrics: metrics, now: time.Now}
}

const healthDataSystemPrompt = `You are a careful health data analyst. Review the user's health data and
respond with ONLY a JSON object, no markdown:
{
  "summary": string,
  "recommendations": [{"text": string, "priority": "low"|"medium"|"high"}],
  "risks": [{"description": string, "severity": "low"|"medium"|"high"}],
  "generalHealthScore": number, // 0-100
  "metrics": {"stressLevel": "low"|"medium"|"high", "sleepQuality": "low"|"medium"|"high"}
}
This is informational only and not a diagnosis.`

const imageSystemPrompt = `You are a medical imaging assistant. Describe what the image shows and
respond with ONLY a JSON object, no markdown:
{
  "summary": string,
  "recommendations": [{"text": string, "category": string, "priority": "low"|"medium"|"high"}],
  "risks": [{"description": string, "severity": "low"|"medium"|"high", "type": string}],
  "scores": {"generalHealth": number, "riskFactors": number, "lifestyle": number}, // each 0-100
  "metrics": {"stressLevel": "low"|"medium"|"high", "sleepQuality": "low"|"medium"|"high"}
}
This is informational only and not a diagnosis.`

// AnalyzeHealthFile analyzes a text/CSV/JSON/spreadsheet upload and stores the result.
func (s *AnalysisService) AnalyzeHealthFile(ctx context.Context, user *models.User, file *uploads.StagedFile) (*models.AnalysisRecord, error) {
	content, err := readHealthData(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableFile, err)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: file is empty", ErrUnreadableFile)
	}

	prompt := fmt.Sprintf("File: %s\n\nHealth data:\n%s", file.OriginalName, truncateRunes(content, maxPromptChars))

	started := s.now()
	raw, err := s.ai.Complete(ctx, healthDataSystemPrompt, prompt)
	s.metrics.observeAnalysis("text", started, err)
	if err != nil {
		logger.Error("Health data analysis failed for %s: %v", user.WalletAddress, err)
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}

	record, err := analysis.NormalizeText(raw, s.now())
	if err != nil {
		logger.Error("Unparseable AI response for %s: %v | raw: %s", user.WalletAddress, err, truncateRunes(string(raw), 500))
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}
	record.FileName = file.OriginalName

	if err := s.users.AppendAnalysis(ctx, user.ID, record); err != nil {
		return nil, fmt.Errorf("failed to save analysis: %w", err)
	}
	return record, nil
}

// AnalyzeImage analyzes a medical image upload and stores the result.
func (s *AnalysisService) AnalyzeImage(ctx context.Context, user *models.User, file *uploads.StagedFile) (*models.ImageAnalysisRecord, error) {
	image, err := file.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded image: %w", err)
	}

	started := s.now()
	raw, err := s.ai.CompleteWithImage(ctx, imageSystemPrompt, "Analyze this medical image.", file.MimeType, image)
	s.metrics.observeAnalysis("image", started, err)
	if err != nil {
		logger.Error("Image analysis failed for %s: %v", user.WalletAddress, err)
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}

	record, err := analysis.NormalizeImage(raw, s.now())
	if err != nil {
		logger.Error("Unparseable AI image response for %s: %v | raw: %s", user.WalletAddress, err, truncateRunes(string(raw), 500))
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}
	record.FileName = file.OriginalName

	if err := s.users.AppendImageAnalysis(ctx, user.ID, record); err != nil {
		return nil, fmt.Errorf("failed to save image analysis: %w", err)
	}
	return record, nil
}

// RecordUpload stores metadata for a plain upload. The bytes themselves are not kept.
func (s *AnalysisService) RecordUpload(ctx context.Context, user *models.User, file *uploads.StagedFile) (*models.HealthFile, error) {
	record := &models.HealthFile{
		FileName:     filepath.Base(file.Path),
		OriginalName: file.OriginalName,
		MimeType:     file.MimeType,
		Size:         file.Size,
		UploadedAt:   s.now(),
	}
	if err := s.users.AppendHealthFile(ctx, user.ID, record); err != nil {
		return nil, fmt.Errorf("failed to save upload: %w", err)
	}
	return record, nil
}

// readHealthData returns the upload as prompt text.
func readHealthData(file *uploads.StagedFile) (string, error) {
	data, err := file.Read()
	if err != nil {
		return "", err
	}
	// Browsers label both workbooks and CSVs as application/vnd.ms-excel, so the bytes decide.
	switch {
	case bytes.HasPrefix(data, oleSignature):
		return "", ErrLegacySpreadsheet
	case bytes.HasPrefix(data, zipSignature),
		file.MimeType == xlsxMimeType,
		strings.EqualFold(filepath.Ext(file.OriginalName), ".xlsx"):
		return spreadsheetToText(data)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("file is not valid UTF-8 text")
	}
	return string(data), nil
}

// spreadsheetToText flattens every sheet of an xlsx workbook into CSV blocks.
func spreadsheetToText(data []byte) (string, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer book.Close()

	var out strings.Builder
	for _, sheet := range book.GetSheetList() {
		rows, err := book.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		fmt.Fprintf(&out, "# Sheet: %s\n", sheet)
		w := csv.NewWriter(&out)
		if err := w.WriteAll(rows); err != nil {
			return "", err
		}
		out.WriteString("\n")
	}
	return out.String(), nil
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "...(truncated)"
}
