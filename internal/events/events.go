// Package events delivers sale saga events to logs, NATS and metrics.
package events

import (
	"context"
	"encoding/json"
	"time"

	"api_sales/internal/sales"
)

// Message is the wire form of a sales.Event.
type Message struct {
	SaleID     string      `json:"sale_id"`
	Step       string      `json:"step"`
	Attempt    int         `json:"attempt"`
	Customer   string      `json:"customer_username"`
	Item       string      `json:"item_name"`
	Quantity   int         `json:"quantity"`
	Amount     json.Number `json:"amount"`
	PurchaseID int64       `json:"purchase_id,omitempty"`
	Failed     bool        `json:"failed"`
	Error      string      `json:"error,omitempty"`
	Code       string      `json:"code,omitempty"`
	Alert      bool        `json:"alert"`
	At         time.Time   `json:"at"`
}

// NewMessage converts e.
func NewMessage(e sales.Event) Message {
	m := Message{
		SaleID:     e.SaleID,
		Step:       string(e.Step),
		Attempt:    e.Attempt,
		Customer:   e.Customer,
		Item:       e.Item,
		Quantity:   e.Quantity,
		Amount:     json.Number(e.Amount.String()),
		PurchaseID: e.PurchaseID,
		Failed:     e.Failed(),
		Code:       e.Code,
		Alert:      e.Alert,
		At:         e.At,
	}
	if e.Err != nil {
		m.Error = e.Err.Error()
	}
	return m
}

type multi []sales.Observer

// Multi fans every event out to observers, in order. Nil observers are skipped.
func Multi(observers ...sales.Observer) sales.Observer {
	out := make(multi, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

func (m multi) Observe(ctx context.Context, e sales.Event) {
	for _, o := range m {
		o.Observe(ctx, e)
	}
}
