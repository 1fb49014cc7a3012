package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/signintech/gopdf"

	"medical-voice-agent/internal/catalog"
	"medical-voice-agent/internal/consultation"
	"medical-voice-agent/internal/dialogue"
	"medical-voice-agent/internal/platform/logger"
)

// DejaVuSans covers Polish diacritics. Common paths on Alpine and Debian.
var DefaultFontPaths = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

var ErrNoFont = errors.New("report: no usable font found")

const (
	fontName    = "DejaVu"
	textWidth   = 500
	pageBottom  = 780
	marginLeft  = 40
	marginTop   = 40
	contentType = "application/pdf"
)

// Messenger delivers to the doctor's chat.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendDocument(ctx context.Context, chatID int64, fileData []byte, fileName, caption string) error
}

type Archive interface {
	Put(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

type Options struct {
	// Telegram and DoctorChatID enable delivery to the doctor's chat.
	Telegram     Messenger
	DoctorChatID int64
	// Archive keeps a copy of every report.
	Archive   Archive
	FontPaths []string
}

type Service struct {
	catalog *catalog.Catalog
	opts    Options
	log     zerolog.Logger
}

func NewService(c *catalog.Catalog, opts Options) *Service {
	if len(opts.FontPaths) == 0 {
		opts.FontPaths = DefaultFontPaths
	}
	return &Service{catalog: c, opts: opts, log: logger.NewLogger("report")}
}

func FileName(c consultation.Consultation) string {
	return fmt.Sprintf("report_%s.pdf", c.ID.String())
}

// Notice is the short text posted to the doctor's chat ahead of the PDF.
func (s *Service) Notice(c consultation.Consultation) string {
	var present []string
	statuses := c.Session.Statuses(s.catalog)
	for _, sym := range s.catalog.Symptoms {
		if statuses[sym.ID] == catalog.Present {
			present = append(present, sym.Name)
		}
	}
	symptoms := "brak"
	if len(present) > 0 {
		symptoms = strings.Join(present, ", ")
	}
	diagnosis := c.Diagnosis
	if diagnosis == "" {
		diagnosis = "brak"
	}
	return fmt.Sprintf("Nowa konsultacja %s\nObjawy: %s\nZalecenia: %s", c.ID, symptoms, diagnosis)
}

// SendDoctorReport posts the notice and the rendered report to every
// configured destination. Failures of one destination do not stop the
// others; the notice goes out even when the PDF cannot be rendered.
func (s *Service) SendDoctorReport(ctx context.Context, c consultation.Consultation) error {
	toTelegram := s.opts.Telegram != nil && s.opts.DoctorChatID != 0
	if !toTelegram && s.opts.Archive == nil {
		return nil
	}
	log := s.log.With().Str("consultation_id", c.ID.String()).Logger()

	var errs []error
	if toTelegram {
		if err := s.opts.Telegram.SendMessage(ctx, s.opts.DoctorChatID, s.Notice(c)); err != nil {
			errs = append(errs, fmt.Errorf("telegram notice: %w", err))
		}
	}

	log.Info().Msg("Generating PDF report")
	pdf, err := s.Render(c)
	if err != nil {
		return errors.Join(append(errs, err)...)
	}

	if toTelegram {
		log.Info().Int64("chat_id", s.opts.DoctorChatID).Msg("Sending PDF document to Telegram")
		caption := fmt.Sprintf("Konsultacja %s", c.ID)
		if err := s.opts.Telegram.SendDocument(ctx, s.opts.DoctorChatID, pdf, FileName(c), caption); err != nil {
			errs = append(errs, fmt.Errorf("telegram: %w", err))
		}
	}
	if s.opts.Archive != nil {
		loc, err := s.opts.Archive.Put(ctx, FileName(c), pdf, contentType)
		if err != nil {
			errs = append(errs, fmt.Errorf("archive: %w", err))
		} else {
			log.Info().Str("location", loc).Msg("Report archived")
		}
	}
	return errors.Join(errs...)
}

// Render builds the PDF: patient data, the symptom table, the recommendation
// and the conversation transcript.
func (s *Service) Render(c consultation.Consultation) ([]byte, error) {
	w, err := s.newWriter()
	if err != nil {
		return nil, err
	}

	w.line(20, "Raport z konsultacji (MedykBot)")
	w.gap(15)
	w.line(11, fmt.Sprintf("Data: %s", time.Now().Format("02.01.2006 15:04")))
	w.line(11, fmt.Sprintf("ID konsultacji: %s", c.ID))
	w.line(11, fmt.Sprintf("ID pacjenta: %s", c.PatientID))
	w.gap(15)

	w.line(14, "Objawy:")
	statuses := c.Session.Statuses(s.catalog)
	for _, sym := range s.catalog.Symptoms {
		w.paragraph(11, fmt.Sprintf("- %s: %s", sym.Name, dialogue.Label(statuses[sym.ID], s.catalog)))
	}
	w.gap(15)

	w.line(14, "Zalecenia:")
	if c.Diagnosis == "" {
		w.paragraph(11, "- Brak zaleceń.")
	} else {
		w.paragraph(11, c.Diagnosis)
	}
	w.gap(15)

	if len(c.History) > 0 {
		w.line(14, "Przebieg rozmowy:")
		for _, m := range c.History {
			who := "Asystent"
			if m.Role == consultation.RoleUser {
				who = "Pacjent"
			}
			w.paragraph(10, fmt.Sprintf("%s: %s", who, m.Content))
		}
	}
	if w.err != nil {
		return nil, w.err
	}

	var buf bytes.Buffer
	if _, err := w.pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Service) newWriter() (*writer, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})

	var fontErr error
	for _, path := range s.opts.FontPaths {
		if fontErr = pdf.AddTTFFont(fontName, path); fontErr == nil {
			s.log.Debug().Str("path", path).Msg("Loaded font")
			w := &writer{pdf: pdf}
			w.newPage()
			return w, nil
		}
	}
	return nil, fmt.Errorf("%w (install ttf-dejavu): %v", ErrNoFont, fontErr)
}

// writer lays text out top to bottom and starts a new page when needed. The
// first error sticks and turns later calls into no-ops.
type writer struct {
	pdf *gopdf.GoPdf
	err error
}

func (w *writer) newPage() {
	w.pdf.AddPage()
	w.pdf.SetX(marginLeft)
	w.pdf.SetY(marginTop)
}

func (w *writer) line(size float64, text string) {
	if w.err != nil {
		return
	}
	if w.pdf.GetY() > pageBottom {
		w.newPage()
	}
	if w.err = w.pdf.SetFont(fontName, "", size); w.err != nil {
		return
	}
	w.pdf.SetX(marginLeft)
	if w.err = w.pdf.Cell(nil, text); w.err != nil {
		return
	}
	w.pdf.Br(size + 4)
}

func (w *writer) paragraph(size float64, text string) {
	if w.err != nil {
		return
	}
	if w.err = w.pdf.SetFont(fontName, "", size); w.err != nil {
		return
	}
	for _, part := range splitLines(text) {
		lines, err := w.pdf.SplitText(part, textWidth)
		if err != nil {
			w.err = err
			return
		}
		for _, l := range lines {
			w.line(size, l)
		}
	}
}

func (w *writer) gap(h float64) {
	w.pdf.Br(h)
}

func splitLines(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
