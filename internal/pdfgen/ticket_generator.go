package pdfgen

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/signintech/gopdf"

	"ms-boxoffice/internal/models"
)

type TicketPDFGenerator struct {
	FontPath string
}

func NewTicketPDFGenerator(fontPath string) *TicketPDFGenerator {
	if fontPath == "" {
		fontPath = "./fonts/DejaVuSans.ttf"
	}
	return &TicketPDFGenerator{FontPath: fontPath}
}

// Generate renders a printable A4 ticket with the attendee details and
// the embedded QR image.
func (g *TicketPDFGenerator) Generate(ticket models.Ticket, event models.Event, qrCode []byte) ([]byte, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	if err := pdf.AddTTFFont("dejavu", g.FontPath); err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}
	if err := pdf.SetFont("dejavu", "", 14); err != nil {
		return nil, fmt.Errorf("failed to set font: %w", err)
	}

	pdf.SetX(40)
	pdf.SetY(30)
	pdf.Cell(nil, event.Name)

	pdf.SetY(60)
	addTicketInfo(pdf, ticket, event)

	if len(qrCode) > 0 {
		pdf.SetY(pdf.GetY() + 20)
		addQRCode(pdf, qrCode)
	}

	pdf.SetY(260)
	pdf.SetX(40)
	pdf.Cell(nil, "Present this ticket at the entrance. One scan per authorized day.")

	var buf bytes.Buffer
	if err := pdf.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}

	return buf.Bytes(), nil
}

func addTicketInfo(pdf *gopdf.GoPdf, ticket models.Ticket, event models.Event) {
	days := "all event days"
	if len(ticket.AuthorizedDays) > 0 {
		days = ticket.AuthorizedDays[0]
		if len(ticket.AuthorizedDays) > 1 {
			days += " - " + ticket.AuthorizedDays[len(ticket.AuthorizedDays)-1]
		}
	}

	info := []struct {
		Label string
		Value string
	}{
		{"Attendee", ticket.AttendeeName},
		{"Event", event.Name},
		{"Location", event.Location},
		{"Valid days", days},
		{"Order", ticket.OrderID},
		{"Ticket", ticket.ID},
	}

	for _, item := range info {
		pdf.SetX(40)
		pdf.Cell(nil, item.Label+": "+item.Value)
		pdf.Br(20)
	}
}

func addQRCode(pdf *gopdf.GoPdf, qrCode []byte) {
	img, err := png.Decode(bytes.NewReader(qrCode))
	if err != nil {
		pdf.Cell(nil, "Failed to load QR code")
		return
	}

	rect := &gopdf.Rect{W: 100, H: 100}
	if err := pdf.ImageFrom(img, 100, pdf.GetY(), rect); err != nil {
		pdf.Cell(nil, "Failed to draw QR code")
	}
}
