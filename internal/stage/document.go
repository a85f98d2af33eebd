package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"genserver/internal/domain"

	"github.com/jung-kurt/gofpdf"
	"github.com/rs/zerolog/log"
)

// Document renders the decomposed script and its scene images into a PDF:
// a title page followed by one section per scene with timing, description
// and the generated image when one exists.
type Document struct {
	OutputDir string
}

func (d *Document) Run(ctx context.Context, title string, scenes []domain.Scene, images []string) (string, error) {
	if err := os.MkdirAll(d.OutputDir, 0755); err != nil {
		return "", err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 20)

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 24)
	pdf.CellFormat(0, 14, "Generated Script Document", "", 1, "C", false, 0, "")
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "", 12)
	pdf.MultiCell(0, 6, title, "", "C", false)
	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("%d scenes, %.0f seconds total", len(scenes), domain.TotalDuration(scenes)), "", 1, "C", false, 0, "")

	for i, sc := range scenes {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "B", 16)
		pdf.CellFormat(0, 10, fmt.Sprintf("Scene %d", sc.Number), "", 1, "L", false, 0, "")

		pdf.SetFont("Helvetica", "I", 10)
		pdf.CellFormat(0, 6, fmt.Sprintf("%.1fs - %.1fs (%.1f seconds)", sc.Start, sc.End, sc.Duration), "", 1, "L", false, 0, "")
		pdf.Ln(2)

		pdf.SetFont("Helvetica", "", 12)
		pdf.MultiCell(0, 6, sc.Description, "", "L", false)
		pdf.Ln(4)

		if images[i] != "" {
			if _, err := os.Stat(images[i]); err == nil {
				pdf.ImageOptions(images[i], 15, pdf.GetY(), 180, 0, true,
					gofpdf.ImageOptions{ImageType: "", ReadDpi: true}, 0, "")
			} else {
				log.Ctx(ctx).Warn().Str("image", images[i]).Msg("scene image missing, omitted from document")
			}
		}
	}

	outPath := filepath.Join(d.OutputDir, fmt.Sprintf("generated_document_%s.pdf", time.Now().Format("20060102_150405")))
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return "", fmt.Errorf("write pdf: %w", err)
	}

	log.Ctx(ctx).Info().Str("output", outPath).Int("scenes", len(scenes)).Msg("document generated")
	return outPath, nil
}
