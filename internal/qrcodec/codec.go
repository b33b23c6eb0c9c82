// Package qrcodec parses and serializes the pipe-delimited QR payload carried
// by every ticket. Three wire layouts are in circulation: the legacy 12-field
// layout, v1 which appended city/country, and v2 which inserted a quantity
// field for group tickets. All three must keep scanning without a migration.
package qrcodec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Marker is the fixed first field of every payload.
const Marker = "AURA"

const (
	legacyFieldCount = 12
	v1FieldCount     = 14
	v2FieldCount     = 15
)

// ErrMalformed is returned for any payload that cannot be parsed: wrong
// marker, too few fields, unrecognized layout or a non-numeric quantity.
var ErrMalformed = errors.New("malformed QR payload")

// Payload is one parsed QR payload variant. SigningFields returns the exact
// ordered field list (signature excluded) that must be joined with "|" and
// signed; the ordering differs between variants and must not be reshuffled.
type Payload interface {
	Version() string
	OrderID() string
	Token() string
	Signature() string
	Quantity() int
	SigningFields() []string
	Fields() map[string]string
	Encode() string
}

// LegacyPayload is the original 12-field layout:
// AURA|version|order_id|ticket_type|event_date|name|email|phone|price|paid|token|signature
type LegacyPayload struct {
	VersionTag string
	Order      string
	TicketType string
	EventDate  string
	Name       string
	Email      string
	Phone      string
	Price      string
	Paid       string
	QRToken    string
	Sig        string
}

// V1Payload appends city and country before the signature:
// ...|price|paid|token|city|country|signature
type V1Payload struct {
	LegacyPayload
	City    string
	Country string
}

// V2Payload additionally carries a quantity field between price and paid:
// ...|price|quantity|paid|token|city|country|signature
type V2Payload struct {
	V1Payload
	Qty int
}

func (p *LegacyPayload) Version() string   { return p.VersionTag }
func (p *LegacyPayload) OrderID() string   { return p.Order }
func (p *LegacyPayload) Token() string     { return p.QRToken }
func (p *LegacyPayload) Signature() string { return p.Sig }
func (p *LegacyPayload) Quantity() int     { return 1 }

func (p *LegacyPayload) SigningFields() []string {
	return []string{Marker, p.VersionTag, p.Order, p.TicketType, p.EventDate,
		p.Name, p.Email, p.Phone, p.Price, p.Paid, p.QRToken}
}

func (p *LegacyPayload) Fields() map[string]string {
	return map[string]string{
		"version":     p.VersionTag,
		"order_id":    p.Order,
		"ticket_type": p.TicketType,
		"event_date":  p.EventDate,
		"name":        p.Name,
		"email":       p.Email,
		"phone":       p.Phone,
		"price":       p.Price,
		"paid":        p.Paid,
		"token":       p.QRToken,
		"signature":   p.Sig,
	}
}

func (p *LegacyPayload) Encode() string {
	return strings.Join(append(p.SigningFields(), p.Sig), "|")
}

func (p *V1Payload) SigningFields() []string {
	return []string{Marker, p.VersionTag, p.Order, p.TicketType, p.EventDate,
		p.Name, p.Email, p.Phone, p.Price, p.Paid, p.QRToken, p.City, p.Country}
}

func (p *V1Payload) Fields() map[string]string {
	fields := p.LegacyPayload.Fields()
	fields["city"] = p.City
	fields["country"] = p.Country
	return fields
}

func (p *V1Payload) Encode() string {
	return strings.Join(append(p.SigningFields(), p.Sig), "|")
}

func (p *V2Payload) Quantity() int { return p.Qty }

func (p *V2Payload) SigningFields() []string {
	return []string{Marker, p.VersionTag, p.Order, p.TicketType, p.EventDate,
		p.Name, p.Email, p.Phone, p.Price, strconv.Itoa(p.Qty), p.Paid,
		p.QRToken, p.City, p.Country}
}

func (p *V2Payload) Fields() map[string]string {
	fields := p.V1Payload.Fields()
	fields["quantity"] = strconv.Itoa(p.Qty)
	return fields
}

func (p *V2Payload) Encode() string {
	return strings.Join(append(p.SigningFields(), p.Sig), "|")
}

// Parse turns a scanned string into one of the three payload variants,
// selected by field count. Any other shape is malformed.
func Parse(raw string) (Payload, error) {
	parts := strings.Split(raw, "|")
	if len(parts) < legacyFieldCount {
		return nil, fmt.Errorf("%w: expected at least %d fields, got %d", ErrMalformed, legacyFieldCount, len(parts))
	}
	if parts[0] != Marker {
		return nil, fmt.Errorf("%w: bad marker %q", ErrMalformed, parts[0])
	}

	legacy := LegacyPayload{
		VersionTag: parts[1],
		Order:      parts[2],
		TicketType: parts[3],
		EventDate:  parts[4],
		Name:       parts[5],
		Email:      parts[6],
		Phone:      parts[7],
		Price:      parts[8],
	}

	switch len(parts) {
	case legacyFieldCount:
		legacy.Paid = parts[9]
		legacy.QRToken = parts[10]
		legacy.Sig = parts[11]
		return &legacy, nil

	case v1FieldCount:
		legacy.Paid = parts[9]
		legacy.QRToken = parts[10]
		legacy.Sig = parts[13]
		return &V1Payload{
			LegacyPayload: legacy,
			City:          parts[11],
			Country:       parts[12],
		}, nil

	case v2FieldCount:
		qty, err := strconv.Atoi(parts[9])
		if err != nil {
			return nil, fmt.Errorf("%w: quantity %q is not numeric", ErrMalformed, parts[9])
		}
		if qty < 1 {
			qty = 1
		}
		legacy.Paid = parts[10]
		legacy.QRToken = parts[11]
		legacy.Sig = parts[14]
		return &V2Payload{
			V1Payload: V1Payload{
				LegacyPayload: legacy,
				City:          parts[12],
				Country:       parts[13],
			},
			Qty: qty,
		}, nil

	default:
		return nil, fmt.Errorf("%w: unrecognized layout with %d fields", ErrMalformed, len(parts))
	}
}
