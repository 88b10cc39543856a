package notify

import (
	"fmt"
	"strings"

	"github.com/Ken-Obieze/travel-tasks/internal/store"
)

const dateLayout = "2006-01-02"

func bookingConfirmationBody(b store.Booking) string {
	var w strings.Builder
	fmt.Fprintf(&w, "Dear %s,\n\n", b.GuestName)
	w.WriteString("Your booking has been confirmed by the host.\n\n")
	w.WriteString("Booking Details:\n")
	fmt.Fprintf(&w, "  Property:    %s\n", b.PropertyName)
	fmt.Fprintf(&w, "  Location:    %s\n", b.Location)
	fmt.Fprintf(&w, "  Check-in:    %s\n", b.StartDate.Format(dateLayout))
	fmt.Fprintf(&w, "  Check-out:   %s\n", b.EndDate.Format(dateLayout))
	fmt.Fprintf(&w, "  Total Price: %s %s\n\n", b.Currency, b.TotalPrice)
	w.WriteString("Host Information:\n")
	fmt.Fprintf(&w, "  Name:  %s\n", b.HostName)
	fmt.Fprintf(&w, "  Email: %s\n", b.HostEmail)
	phone := b.HostPhone
	if phone == "" {
		phone = "N/A"
	}
	fmt.Fprintf(&w, "  Phone: %s\n\n", phone)
	w.WriteString("We hope you have a wonderful stay!\n\nBest regards,\nALX Travel Team\n")
	return w.String()
}

func paymentConfirmationBody(p store.Payment, b store.Booking) string {
	nights := int(b.EndDate.Sub(b.StartDate).Hours() / 24)
	paidAt := ""
	if p.PaidAt != nil {
		paidAt = p.PaidAt.Format("2006-01-02 15:04")
	}
	var w strings.Builder
	fmt.Fprintf(&w, "Dear %s,\n\n", p.GuestName)
	w.WriteString("Your payment has been successfully processed.\n\n")
	w.WriteString("Booking Details:\n")
	fmt.Fprintf(&w, "  Property:  %s\n", b.PropertyName)
	fmt.Fprintf(&w, "  Location:  %s\n", b.Location)
	fmt.Fprintf(&w, "  Check-in:  %s\n", b.StartDate.Format(dateLayout))
	fmt.Fprintf(&w, "  Check-out: %s\n", b.EndDate.Format(dateLayout))
	fmt.Fprintf(&w, "  Duration:  %d nights\n\n", nights)
	w.WriteString("Payment Details:\n")
	fmt.Fprintf(&w, "  Amount Paid:    %s %s\n", p.Currency, p.Amount)
	fmt.Fprintf(&w, "  Transaction ID: %s\n", p.TransactionID)
	if paidAt != "" {
		fmt.Fprintf(&w, "  Payment Date:   %s\n", paidAt)
	}
	w.WriteString("\nThank you for choosing our service!\n\nBest regards,\nALX Travel Team\n")
	return w.String()
}

func paymentFailedBody(p store.Payment) string {
	var w strings.Builder
	fmt.Fprintf(&w, "Dear %s,\n\n", p.GuestName)
	w.WriteString("Unfortunately, your payment could not be processed.\n\n")
	fmt.Fprintf(&w, "Booking Reference: %s\n", p.BookingID)
	fmt.Fprintf(&w, "Amount: %s %s\n\n", p.Currency, p.Amount)
	w.WriteString("Please try again or contact our support team for assistance.\n\nBest regards,\nALX Travel Team\n")
	return w.String()
}
