package restore

import (
	"go.uber.org/zap"

	"github.com/mwhite/zotrestore/internal/catalog"
)

// validatePart opens the part and runs a full integrity scan without
// writing any output. Every failure is captured into the part's Validity
// and ErrorDetail; nothing propagates past this boundary.
func (s *Service) validatePart(p *catalog.Part) {
	arc, err := s.reader.Open(p.Path)
	if err != nil {
		p.Validity = catalog.Invalid
		p.ErrorDetail = "bad zip file: " + err.Error()
		return
	}
	defer func() { _ = arc.Close() }()

	bad, err := arc.TestIntegrity()
	switch {
	case err != nil:
		p.Validity = catalog.Invalid
		p.ErrorDetail = "validation error: " + err.Error()
	case bad != "":
		p.Validity = catalog.Invalid
		p.ErrorDetail = "corrupted file in archive: " + bad
	default:
		p.Validity = catalog.Valid
	}

	if p.Validity == catalog.Invalid {
		s.log.Warn("part failed validation",
			zap.String("part", p.Path),
			zap.String("detail", p.ErrorDetail))
	} else {
		s.log.Debug("part validated", zap.String("part", p.Path))
	}
}
