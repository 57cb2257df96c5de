package extract

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// OCRConfig holds the external recognizer settings shared by every OCR profile.
type OCRConfig struct {
	Tesseract   string
	Pdftoppm    string
	Language    string
	TessdataDir string
	DPI         int
	MaxPages    int // 0 means no limit
}

// Profile selects a recognizer mode.
type Profile struct {
	Name   string
	Method models.ExtractionMethod
	PSM    int // tesseract page segmentation mode
}

// ProfileA is full-page layout analysis.
func ProfileA(psm int) Profile {
	return Profile{Name: "ocr_a", Method: models.MethodOCRA, PSM: psm}
}

// ProfileB is sparse text, suited to scanned forms.
func ProfileB(psm int) Profile {
	return Profile{Name: "ocr_b", Method: models.MethodOCRB, PSM: psm}
}

// OCRAdapter rasterizes PDFs with pdftoppm and recognizes images with tesseract.
// Confidence is the mean per-word certainty reported by tesseract, discounted for
// garbled words by the policy.
type OCRAdapter struct {
	profile Profile
	cfg     OCRConfig
	runner  Runner
	limiter *rate.Limiter
	policy  Policy
	logger  *zap.Logger
}

// OCROption configures an OCRAdapter.
type OCROption func(*OCRAdapter)

// WithRunner replaces the command runner.
func WithRunner(r Runner) OCROption {
	return func(a *OCRAdapter) { a.runner = r }
}

// WithLimiter bounds how fast recognizer processes are started. Adapters that share a
// limiter share the budget.
func WithLimiter(l *rate.Limiter) OCROption {
	return func(a *OCRAdapter) { a.limiter = l }
}

// WithPolicy sets the policy used to score recognized tokens.
func WithPolicy(p Policy) OCROption {
	return func(a *OCRAdapter) { a.policy = p }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) OCROption {
	return func(a *OCRAdapter) { a.logger = logger }
}

// NewOCRAdapter returns a recognizer adapter for profile.
func NewOCRAdapter(profile Profile, cfg OCRConfig, opts ...OCROption) *OCRAdapter {
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	a := &OCRAdapter{
		profile: profile,
		cfg:     cfg,
		policy:  DefaultPolicy(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.runner == nil {
		a.runner = NewExecRunner(a.logger)
	}
	return a
}

// Name implements Adapter.
func (a *OCRAdapter) Name() string { return a.profile.Name }

// Method implements Adapter.
func (a *OCRAdapter) Method() models.ExtractionMethod { return a.profile.Method }

var imageExt = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/tiff": ".tif",
	"image/bmp":  ".bmp",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	mimePDF:      ".pdf",
}

// Supports implements Adapter.
func (a *OCRAdapter) Supports(mimeHint string) bool {
	_, ok := imageExt[mimeHint]
	return ok
}

// Attempt implements Adapter.
func (a *OCRAdapter) Attempt(ctx context.Context, content []byte, mimeHint string) models.ExtractionAttempt {
	ext, ok := imageExt[mimeHint]
	if !ok {
		return models.ExtractionAttempt{Err: engineErr(a.Name(), "unsupported type %q", mimeHint)}
	}

	tmpDir, err := os.MkdirTemp("", "shiryo-ocr-*")
	if err != nil {
		return models.ExtractionAttempt{Err: engineErr(a.Name(), "temp dir: %v", err)}
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			a.logger.Warn("remove ocr temp dir", zap.String("dir", tmpDir), zap.Error(err))
		}
	}()

	input := filepath.Join(tmpDir, "input"+ext)
	if err := os.WriteFile(input, content, 0600); err != nil {
		return models.ExtractionAttempt{Err: engineErr(a.Name(), "write input: %v", err)}
	}

	images := []string{input}
	if mimeHint == mimePDF {
		images, err = a.rasterize(ctx, input, tmpDir)
		if err != nil {
			return models.ExtractionAttempt{Err: err}
		}
	}

	var pages []string
	var tokens []Token
	for _, img := range images {
		page, err := a.recognize(ctx, img)
		if err != nil {
			return models.ExtractionAttempt{Err: err}
		}
		tokens = append(tokens, page.tokens...)
		if page.text != "" {
			pages = append(pages, page.text)
		}
	}

	conf := a.policy.OCRConfidence(tokens)
	a.logger.Debug("ocr attempt",
		zap.String("engine", a.Name()),
		zap.Int("pages", len(images)),
		zap.Int("tokens", len(tokens)),
		zap.Float64("confidence", conf),
	)
	return models.ExtractionAttempt{
		Text:       strings.Join(pages, "\n\f\n"),
		Confidence: conf,
	}
}

// rasterize renders each PDF page to PNG and returns the image paths in page order.
func (a *OCRAdapter) rasterize(ctx context.Context, pdfPath, dir string) ([]string, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	prefix := filepath.Join(dir, "page")
	args := []string{"-r", strconv.Itoa(a.cfg.DPI), "-png"}
	if a.cfg.MaxPages > 0 {
		args = append(args, "-l", strconv.Itoa(a.cfg.MaxPages))
	}
	args = append(args, pdfPath, prefix)
	if _, errb, err := a.runner.Run(ctx, a.cfg.Pdftoppm, args...); err != nil {
		return nil, engineErr(a.Name(), "pdftoppm: %v: %s", err, utils.Truncate(strings.TrimSpace(string(errb)), 512))
	}
	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, engineErr(a.Name(), "glob pages: %v", err)
	}
	sort.Strings(matches)
	if a.cfg.MaxPages > 0 && len(matches) > a.cfg.MaxPages {
		matches = matches[:a.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return nil, engineErr(a.Name(), "pdftoppm produced no images")
	}
	return matches, nil
}

type recognizedPage struct {
	text   string
	tokens []Token
}

// recognize runs tesseract in TSV mode on one image.
func (a *OCRAdapter) recognize(ctx context.Context, image string) (recognizedPage, error) {
	if err := a.wait(ctx); err != nil {
		return recognizedPage{}, err
	}
	args := []string{image, "stdout", "-l", a.cfg.Language, "--psm", strconv.Itoa(a.profile.PSM)}
	if a.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", a.cfg.TessdataDir)
	}
	args = append(args, "tsv")

	out, errb, err := a.runner.Run(ctx, a.cfg.Tesseract, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return recognizedPage{}, ctxErr
		}
		return recognizedPage{}, engineErr(a.Name(), "tesseract: %v: %s", err, utils.Truncate(strings.TrimSpace(string(errb)), 512))
	}
	return parseTSV(string(out)), nil
}

func (a *OCRAdapter) wait(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}
	if err := a.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return engineErr(a.Name(), "rate limit: %v", err)
	}
	return nil
}

// tesseract TSV word rows have level 5.
const tsvWordLevel = "5"

// parseTSV reads tesseract TSV output. Word rows with conf -1 or empty text are skipped;
// words on the same (page, block, paragraph, line) are joined by spaces.
func parseTSV(out string) recognizedPage {
	lines := strings.Split(strings.ReplaceAll(out, "\r\n", "\n"), "\n")
	if len(lines) == 0 {
		return recognizedPage{}
	}
	col := make(map[string]int)
	for i, name := range strings.Split(lines[0], "\t") {
		col[strings.TrimSpace(name)] = i
	}
	confIdx, okConf := col["conf"]
	textIdx, okText := col["text"]
	if !okConf || !okText {
		return recognizedPage{}
	}
	lineKey := func(cols []string) string {
		var parts []string
		for _, name := range []string{"page_num", "block_num", "par_num", "line_num"} {
			if i, ok := col[name]; ok && i < len(cols) {
				parts = append(parts, cols[i])
			}
		}
		return strings.Join(parts, ".")
	}

	var page recognizedPage
	var b strings.Builder
	prevKey := ""
	for _, ln := range lines[1:] {
		if ln == "" {
			continue
		}
		cols := strings.Split(ln, "\t")
		if len(cols) <= confIdx || len(cols) <= textIdx {
			continue
		}
		if i, ok := col["level"]; ok && cols[i] != tsvWordLevel {
			continue
		}
		word := strings.TrimSpace(cols[textIdx])
		conf, err := strconv.ParseFloat(strings.TrimSpace(cols[confIdx]), 64)
		if err != nil || conf < 0 || word == "" {
			continue
		}
		page.tokens = append(page.tokens, Token{Text: word, Confidence: conf / 100})

		key := lineKey(cols)
		switch {
		case b.Len() == 0:
		case key != prevKey:
			b.WriteByte('\n')
		default:
			b.WriteByte(' ')
		}
		b.WriteString(word)
		prevKey = key
	}
	page.text = b.String()
	return page
}
