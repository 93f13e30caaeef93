package payment

import (
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/chobbledotcom/tickets-sub006/internal/domain"
)

// Metadata keys.
const (
	MetaEventID             = "event_id"
	MetaQuantity            = "quantity"
	MetaDate                = "date"
	MetaItems               = "items"
	MetaName                = "name"
	MetaEmail               = "email"
	MetaPhone               = "phone"
	MetaAddress             = "address"
	MetaSpecialInstructions = "special_instructions"
)

// EncodeIntent flattens a booking into provider metadata whose values are
// at most limit characters long.
//
// A single item is stored as event_id/quantity/date; several items are
// stored as a JSON list under items. Contact fields are truncated to fit.
// The item list is never truncated: if it does not fit, EncodeIntent fails
// with ErrMetadataTooLong.
func EncodeIntent(items []Item, c domain.Contact, limit int) (map[string]string, error) {
	const op = "payment.EncodeIntent"

	if len(items) == 0 {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidMetadata)
	}

	md := map[string]string{}

	if len(items) == 1 {
		md[MetaEventID] = strconv.FormatInt(items[0].EventID, 10)
		md[MetaQuantity] = strconv.Itoa(items[0].Quantity)
		if items[0].Date != "" {
			md[MetaDate] = items[0].Date
		}
	} else {
		b, err := json.Marshal(items)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		if utf8.RuneCount(b) > limit {
			return nil, fmt.Errorf("%s:%w", op, ErrMetadataTooLong)
		}
		md[MetaItems] = string(b)
	}

	putTruncated(md, MetaName, c.Name, limit)
	putTruncated(md, MetaEmail, c.Email, limit)
	putTruncated(md, MetaPhone, c.Phone, limit)
	putTruncated(md, MetaAddress, c.Address, limit)
	putTruncated(md, MetaSpecialInstructions, c.SpecialInstructions, limit)

	return md, nil
}

// DecodeIntent reverses EncodeIntent.
func DecodeIntent(md map[string]string) (*Booking, error) {
	const op = "payment.DecodeIntent"

	b := &Booking{
		Contact: domain.Contact{
			Name:                md[MetaName],
			Email:               md[MetaEmail],
			Phone:               md[MetaPhone],
			Address:             md[MetaAddress],
			SpecialInstructions: md[MetaSpecialInstructions],
		},
	}

	if raw, ok := md[MetaItems]; ok {
		if err := json.Unmarshal([]byte(raw), &b.Items); err != nil {
			return nil, fmt.Errorf("%s:%w", op, ErrInvalidMetadata)
		}
	} else {
		eventID, err := strconv.ParseInt(md[MetaEventID], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, ErrInvalidMetadata)
		}
		qty, err := strconv.Atoi(md[MetaQuantity])
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, ErrInvalidMetadata)
		}
		b.Items = []Item{{EventID: eventID, Quantity: qty, Date: md[MetaDate]}}
	}

	if len(b.Items) == 0 {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidMetadata)
	}
	for _, it := range b.Items {
		if it.EventID <= 0 || it.Quantity <= 0 {
			return nil, fmt.Errorf("%s:%w", op, ErrInvalidMetadata)
		}
	}

	return b, nil
}

func putTruncated(md map[string]string, key, val string, limit int) {
	if val == "" {
		return
	}
	md[key] = truncate(val, limit)
}

// truncate cuts s to at most n runes without splitting a rune.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}

	return s
}
