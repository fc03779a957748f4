// Package receipt renders the PDF receipt of a confirmed booking.
package receipt

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"

	"github.com/wanderly-travel/service-checkout/internal/domain/booking"
)

// Issuer is printed in the receipt header.
const Issuer = "Wanderly Travel"

// Render returns the receipt PDF of b. b must be confirmed.
func Render(b *booking.Booking, currency string, issuedAt time.Time) ([]byte, error) {
	if b.Status() != booking.StatusConfirmed {
		return nil, fmt.Errorf("booking %s is %s, not confirmed", b.Reference(), b.Status())
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Receipt %s", b.Reference()), false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(190, 10, Issuer)
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 11)
	line(pdf, "Booking reference: %s", b.Reference())
	line(pdf, "Issued: %s", issuedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	if at := b.ConfirmedAt(); at != nil {
		line(pdf, "Paid: %s", at.UTC().Format("2006-01-02 15:04:05 MST"))
	}
	line(pdf, "Customer: %s <%s>", b.Contact().Name, b.Contact().Email)
	if d, ok := b.TourDetails(); ok && d.PickupLocation != "" {
		line(pdf, "Pickup: %s / Drop-off: %s", d.PickupLocation, d.DropLocation)
	}
	if d, ok := b.VisaDetails(); ok {
		line(pdf, "Visa: %s, travel %s", d.Nationality, d.TravelDate.Format("2006-01-02"))
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(80, 8, "Item", "B", 0, "L", false, 0, "")
	pdf.CellFormat(30, 8, "Date", "B", 0, "L", false, 0, "")
	pdf.CellFormat(40, 8, "Guests", "B", 0, "L", false, 0, "")
	pdf.CellFormat(40, 8, "Total", "B", 1, "R", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	for _, it := range b.Items() {
		title := it.Title
		if title == "" {
			title = it.ProductRef
		}
		pdf.CellFormat(80, 7, title, "", 0, "L", false, 0, "")
		pdf.CellFormat(30, 7, it.Date.Format("2006-01-02"), "", 0, "L", false, 0, "")
		pdf.CellFormat(40, 7, fmt.Sprintf("%d adult, %d child", it.AdultCount, it.ChildCount), "", 0, "L", false, 0, "")
		pdf.CellFormat(40, 7, money(it.LineTotal, currency), "", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	p := b.Pricing()
	total(pdf, "Subtotal", money(p.Subtotal, currency))
	total(pdf, fmt.Sprintf("Transaction fee (%s%%)", p.TransactionFeeRate.Shift(2).String()), money(p.TransactionFee, currency))
	if p.CouponDiscount.IsPositive() {
		code := ""
		if b.CouponCode() != nil {
			code = " " + *b.CouponCode()
		}
		total(pdf, "Coupon"+code, "-"+money(p.CouponDiscount, currency))
	}
	pdf.SetFont("Arial", "B", 11)
	total(pdf, "Amount paid", money(p.FinalPayable, currency))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render receipt %s: %w", b.Reference(), err)
	}
	return buf.Bytes(), nil
}

// Filename is the download name of the receipt of b.
func Filename(b *booking.Booking) string {
	return fmt.Sprintf("receipt_%s.pdf", b.Reference())
}

func line(pdf *gofpdf.Fpdf, format string, args ...any) {
	pdf.Cell(190, 7, fmt.Sprintf(format, args...))
	pdf.Ln(7)
}

func total(pdf *gofpdf.Fpdf, label, amount string) {
	pdf.CellFormat(150, 7, label, "", 0, "R", false, 0, "")
	pdf.CellFormat(40, 7, amount, "", 1, "R", false, 0, "")
}

func money(d decimal.Decimal, currency string) string {
	return d.StringFixed(2) + " " + currency
}
