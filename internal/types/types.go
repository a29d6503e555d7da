package types

import "strings"

type Book string

type PositionStatus string

type TradeType string

type LedgerEntryType string

const (
	BookA Book = "A"
	BookB Book = "B"
)

const (
	PositionStatusActive PositionStatus = "active"
	PositionStatusClosed PositionStatus = "closed"
)

const (
	TradeTypeBuy  TradeType = "buy"
	TradeTypeSell TradeType = "sell"
)

const (
	LedgerEntryTypeDeposit    LedgerEntryType = "deposit"
	LedgerEntryTypeWithdrawal LedgerEntryType = "withdrawal"
)

// LedgerEntryStatusATM is the only status cash movements are booked with.
const LedgerEntryStatusATM = "atm"

// ParseBook accepts "A", "B" and the long "A Book" / "B Book" spellings.
func ParseBook(raw string) (Book, bool) {
	v := strings.ToUpper(strings.TrimSpace(raw))
	v = strings.TrimSpace(strings.TrimSuffix(v, "BOOK"))
	switch Book(v) {
	case BookA:
		return BookA, true
	case BookB:
		return BookB, true
	}
	return "", false
}

func (b Book) Valid() bool {
	return b == BookA || b == BookB
}

func ParseTradeType(raw string) (TradeType, bool) {
	switch TradeType(strings.ToLower(strings.TrimSpace(raw))) {
	case "", TradeTypeBuy:
		return TradeTypeBuy, true
	case TradeTypeSell:
		return TradeTypeSell, true
	}
	return "", false
}
