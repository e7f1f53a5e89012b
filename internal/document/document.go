package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/spigell/hr-intake/internal/ai"
	"github.com/spigell/hr-intake/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	DefaultMaxTokens = 100000

	operationName = "process_document"
	pageSeparator = "\n\n"
)

var printer = message.NewPrinter(language.English)

// Result is the outcome of processing one uploaded document.
// Text is empty unless Accepted is set. Status is always a user-facing message.
type Result struct {
	Text     string
	Tokens   int
	Accepted bool
	Status   string
}

// Processor extracts text from PDF documents and enforces the token limit.
type Processor struct {
	counter   ai.TokenCounter
	maxTokens int
	logger    *zap.Logger
	readFile  func(string) ([]byte, error)
}

// NewProcessor creates a Processor. A nil counter falls back to a rough token estimate.
func NewProcessor(counter ai.TokenCounter, maxTokens int, log *zap.Logger) *Processor {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{
		counter:   counter,
		maxTokens: maxTokens,
		logger:    log,
		readFile:  os.ReadFile,
	}
}

func (p *Processor) MaxTokens() int {
	return p.maxTokens
}

// ProcessFile reads and processes the PDF stored at path.
func (p *Processor) ProcessFile(ctx context.Context, path string) Result {
	data, err := p.readFile(path)
	if err != nil {
		return p.fail(path, fmt.Errorf("read file: %w", err))
	}
	return p.Process(ctx, filepath.Base(path), data)
}

// Process extracts the text of an in-memory PDF named name.
func (p *Processor) Process(ctx context.Context, name string, data []byte) Result {
	if err := ctx.Err(); err != nil {
		return p.fail(name, err)
	}

	text, err := ExtractPDF(data)
	if err != nil {
		return p.fail(name, err)
	}

	tokens := p.countTokens(ctx, text)
	if tokens > p.maxTokens {
		err := fmt.Errorf("document has %d tokens, limit is %d", tokens, p.maxTokens)
		logger.LogOperation(p.logger, operationName, err, zap.String("document", name), zap.Int("token_count", tokens))
		return Result{
			Tokens: tokens,
			Status: printer.Sprintf("Sorry, the PDF is too large (%d tokens). At most %d tokens are allowed.", tokens, p.maxTokens),
		}
	}

	logger.LogOperation(p.logger, operationName, nil, zap.String("document", name), zap.Int("token_count", tokens))

	return Result{
		Text:     text,
		Tokens:   tokens,
		Accepted: true,
		Status:   printer.Sprintf("PDF processed (%d tokens)", tokens),
	}
}

func (p *Processor) fail(name string, err error) Result {
	logger.LogOperation(p.logger, operationName, err, zap.String("document", name))
	return Result{Status: fmt.Sprintf("Failed to process PDF: %v", err)}
}

func (p *Processor) countTokens(ctx context.Context, text string) int {
	if p.counter != nil && text != "" {
		tokens, err := p.counter.CountTokens(ctx, text)
		if err == nil {
			return tokens
		}
		p.logger.Warn("token count failed, using estimate", zap.Error(err))
	}
	return EstimateTokens(text)
}

// EstimateTokens approximates the token count as one token per four characters.
func EstimateTokens(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

// ExtractPDF returns the text of every page joined by a blank line.
// Pages without content contribute an empty string.
func ExtractPDF(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty pdf data")
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("read page %d: %w", i, err)
		}
		pages = append(pages, strings.TrimSpace(text))
	}

	return strings.Join(pages, pageSeparator), nil
}
