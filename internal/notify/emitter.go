package notify

import "fmt"

// Emitter wraps a Dispatcher to emit quote lifecycle notifications.
// All methods are fire-and-forget: errors are logged by the dispatcher
// and never returned. A nil Emitter is safe to call.
type Emitter struct {
	d *Dispatcher
}

// NewEmitter creates a new notification emitter.
func NewEmitter(d *Dispatcher) *Emitter {
	return &Emitter{d: d}
}

func (e *Emitter) emit(userID, quoteID, subject, message string) {
	if e == nil || e.d == nil {
		return
	}
	e.d.Enqueue(NewNotification(userID, quoteID, subject, message))
}

// QuotePlaced tells the owner a new quote arrived.
func (e *Emitter) QuotePlaced(ownerID, quoteID, productName, customerName string) {
	e.emit(ownerID, quoteID,
		"New quote for "+productName,
		fmt.Sprintf("%s placed a quote for your %s. Review and respond.", customerName, productName))
}

// QuoteUpdated tells the counterparty the terms changed.
func (e *Emitter) QuoteUpdated(recipientID, quoteID, productName string) {
	e.emit(recipientID, quoteID,
		"Quote updated for "+productName,
		fmt.Sprintf("The quote for %s was updated. Review the new terms.", productName))
}

// QuoteApproved tells the counterparty the other side approved.
func (e *Emitter) QuoteApproved(recipientID, quoteID, productName string) {
	e.emit(recipientID, quoteID,
		"Quote approved for "+productName,
		fmt.Sprintf("The quote for %s was approved by the other party.", productName))
}

// QuoteRejected tells the counterparty the quote was rejected.
func (e *Emitter) QuoteRejected(recipientID, quoteID, productName string) {
	e.emit(recipientID, quoteID,
		"Quote rejected for "+productName,
		fmt.Sprintf("The quote for %s was rejected and is now closed.", productName))
}

// MeetupRequested asks both parties of a SHARE quote to meet and exchange.
func (e *Emitter) MeetupRequested(recipientID, quoteID, productName string) {
	e.emit(recipientID, quoteID,
		"Arrange exchange for "+productName,
		fmt.Sprintf("Both parties approved the share of %s. Arrange a meetup and confirm the exchange.", productName))
}

// PaymentRequested tells a party that a payment link is on its way.
func (e *Emitter) PaymentRequested(recipientID, quoteID, productName, amount string) {
	e.emit(recipientID, quoteID,
		"Payment requested for "+productName,
		fmt.Sprintf("A payment of %s is due for %s. A payment link has been sent.", amount, productName))
}

// PaymentReceived confirms a link was paid.
func (e *Emitter) PaymentReceived(recipientID, quoteID, productName, amount string) {
	e.emit(recipientID, quoteID,
		"Payment received for "+productName,
		fmt.Sprintf("The payment of %s for %s was received. The exchange can proceed.", amount, productName))
}

// PaymentExpired tells both parties the link lapsed and the quote closed.
func (e *Emitter) PaymentExpired(recipientID, quoteID, productName string) {
	e.emit(recipientID, quoteID,
		"Payment link expired for "+productName,
		fmt.Sprintf("The payment link for %s expired before payment. The quote is closed.", productName))
}

// ExchangeConfirmed tells both parties the item changed hands.
func (e *Emitter) ExchangeConfirmed(recipientID, quoteID, productName string) {
	e.emit(recipientID, quoteID,
		"Exchange confirmed for "+productName,
		fmt.Sprintf("Both parties confirmed the exchange of %s.", productName))
}

// RentSettled tells the owner rent landed in their wallet.
func (e *Emitter) RentSettled(ownerID, quoteID, productName, amount string) {
	e.emit(ownerID, quoteID,
		"Rent credited for "+productName,
		fmt.Sprintf("Rent of %s for %s was credited to your wallet.", amount, productName))
}

// ReturnConfirmed tells both parties the item came back and the quote closed.
func (e *Emitter) ReturnConfirmed(recipientID, quoteID, productName string) {
	e.emit(recipientID, quoteID,
		"Return confirmed for "+productName,
		fmt.Sprintf("Both parties confirmed the return of %s. The quote is closed.", productName))
}

// DepositRefunded tells the customer their deposit came back.
func (e *Emitter) DepositRefunded(customerID, quoteID, productName, amount string) {
	e.emit(customerID, quoteID,
		"Deposit refunded for "+productName,
		fmt.Sprintf("Your deposit of %s for %s was refunded to your wallet.", amount, productName))
}
