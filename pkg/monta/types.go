package monta

import (
	"bytes"
	"encoding/json"
	"strings"
)

// FlexString decodes JSON strings and numbers alike; Monta is not consistent
// about ids and house numbers.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*f = ""
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string {
	return strings.TrimSpace(string(f))
}

// Report is one generated report as listed by GET reports.
type Report struct {
	ID      FlexString `json:"Id"`
	Created string     `json:"Created,omitempty"`
	Type    string     `json:"Type,omitempty"`
}

// OrderRef is one entry of the paged GET orders listing.
type OrderRef struct {
	WebshopOrderID FlexString `json:"WebshopOrderId"`
}

// Order is the detail view of GET order/{id}.
type Order struct {
	WebshopOrderID  FlexString      `json:"WebshopOrderId"`
	Received        string          `json:"Received"`
	Shipped         *string         `json:"Shipped"`
	ConsumerDetails ConsumerDetails `json:"ConsumerDetails"`
}

// IsShipped reports whether Monta recorded a ship moment.
func (o Order) IsShipped() bool {
	return o.Shipped != nil && strings.TrimSpace(*o.Shipped) != ""
}

type ConsumerDetails struct {
	DeliveryAddress Address `json:"DeliveryAddress"`
}

type Address struct {
	FirstName           string     `json:"FirstName"`
	LastName            string     `json:"LastName"`
	EmailAddress        string     `json:"EmailAddress"`
	Street              string     `json:"Street"`
	HouseNumber         FlexString `json:"HouseNumber"`
	HouseNumberAddition string     `json:"HouseNumberAddition"`
	PostalCode          string     `json:"PostalCode"`
	City                string     `json:"City"`
	CountryCode         string     `json:"CountryCode"`
}

// OrderBatches is the payload of GET order/{id}/batches. The shipped items
// live in the third tuple element.
type OrderBatches struct {
	Items []BatchItem `json:"m_Item3"`
}

type BatchItem struct {
	SKU      FlexString `json:"sku"`
	Quantity int64      `json:"quantity"`
	Batch    BatchInfo  `json:"batch"`
}

type BatchInfo struct {
	Title          FlexString `json:"title"`
	BestBeforeDate *string    `json:"bestbeforedate"`
}

// Inbound is passed through untouched.
type Inbound map[string]any
