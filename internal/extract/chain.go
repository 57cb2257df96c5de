package extract

import "fmt"

// Adapter names accepted by NewChain.
const (
	NameDirect = "direct"
	NameOffice = "office"
	NameOCRA   = "ocr_a"
	NameOCRB   = "ocr_b"
)

// ChainConfig describes the enabled adapters in priority order.
type ChainConfig struct {
	Names []string
	OCR   OCRConfig
	PSMA  int
	PSMB  int
}

// NewChain builds adapters in the order given by cfg.Names. OCR options apply to both
// recognizer profiles, so a shared limiter bounds them together.
func NewChain(cfg ChainConfig, ocrOpts ...OCROption) ([]Adapter, error) {
	psmA, psmB := cfg.PSMA, cfg.PSMB
	if psmA == 0 {
		psmA = 3
	}
	if psmB == 0 {
		psmB = 11
	}
	seen := make(map[string]bool, len(cfg.Names))
	chain := make([]Adapter, 0, len(cfg.Names))
	for _, name := range cfg.Names {
		if seen[name] {
			return nil, fmt.Errorf("duplicate adapter %q", name)
		}
		seen[name] = true
		switch name {
		case NameDirect:
			chain = append(chain, NewDirectAdapter())
		case NameOffice:
			chain = append(chain, NewOfficeAdapter())
		case NameOCRA:
			chain = append(chain, NewOCRAdapter(ProfileA(psmA), cfg.OCR, ocrOpts...))
		case NameOCRB:
			chain = append(chain, NewOCRAdapter(ProfileB(psmB), cfg.OCR, ocrOpts...))
		default:
			return nil, fmt.Errorf("unknown adapter %q", name)
		}
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("no adapters enabled")
	}
	return chain, nil
}
