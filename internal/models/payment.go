package models

// PaymentCompleted is the capture status returned by the payment
// processor when funds were collected.
const PaymentCompleted = "COMPLETED"

// CaptureResult is the outcome of capturing an approved payment order.
type CaptureResult struct {
	Status    string `json:"status"`
	CaptureID string `json:"capture_id"`
}
