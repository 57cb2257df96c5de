package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/shiryo/data/db/documents.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/shiryo/data/indices/bleve"
	}
	applyExtractionDefaults(&cfg.Extraction)
	applySearchDefaults(&cfg.Search)
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 5 * time.Minute
	}
	if cfg.Cache.SweepInterval == 0 {
		cfg.Cache.SweepInterval = time.Minute
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 10000
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".pdf", ".docx", ".xlsx", ".pptx", ".odp", ".ods", ".odt", ".rtf", ".png", ".jpg", ".jpeg", ".tif", ".tiff"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}

func applyExtractionDefaults(e *ExtractionConfig) {
	if len(e.Adapters) == 0 {
		e.Adapters = []string{AdapterDirect, AdapterOffice, AdapterOCRA, AdapterOCRB}
	}
	if e.AcceptThreshold == 0 {
		e.AcceptThreshold = 0.55
	}
	if e.Floor == 0 {
		e.Floor = 0.15
	}
	if e.GarblePenalty == 0 {
		e.GarblePenalty = 0.5
	}
	if e.AttemptTimeout == 0 {
		e.AttemptTimeout = 30 * time.Second
	}
	if e.OverallTimeout == 0 {
		e.OverallTimeout = 2 * time.Minute
	}
	if e.Workers == 0 {
		e.Workers = 4
	}
	if e.QueueSize == 0 {
		e.QueueSize = 256
	}
	o := &e.OCR
	if o.Tesseract == "" {
		o.Tesseract = "tesseract"
	}
	if o.Pdftoppm == "" {
		o.Pdftoppm = "pdftoppm"
	}
	if o.Language == "" {
		o.Language = "eng"
	}
	if o.DPI == 0 {
		o.DPI = 300
	}
	if o.EngineAPSM == 0 {
		o.EngineAPSM = 3
	}
	if o.EngineBPSM == 0 {
		o.EngineBPSM = 11
	}
	if o.RatePerSecond == 0 {
		o.RatePerSecond = 4
	}
	if o.Burst == 0 {
		o.Burst = 4
	}
}

func applySearchDefaults(s *SearchConfig) {
	if s.DefaultLimit == 0 {
		s.DefaultLimit = 10
	}
	if s.MaxLimit == 0 {
		s.MaxLimit = 100
	}
	if s.CandidateSource == "" {
		s.CandidateSource = CandidateSourceScan
	}
	if s.TitleMatchScore == 0 {
		s.TitleMatchScore = 0.9
	}
	if s.BodyMatchScore == 0 {
		s.BodyMatchScore = 0.7
	}
	if s.TokenMatchCap == 0 {
		s.TokenMatchCap = 0.6
	}
	if s.TagBoost == 0 {
		s.TagBoost = 0.1
	}
	if s.MaxStructuralBoost == 0 {
		s.MaxStructuralBoost = 0.2
	}
}
