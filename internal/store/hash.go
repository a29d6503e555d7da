package store

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"lv-marginledger/internal/model"
)

// EntryHash chains a ledger entry to the previous entry of the same account.
func EntryHash(e model.LedgerEntry, prevHash string) string {
	buf := e.ID + "|" + e.AccountID + "|" + e.UserID + "|" + string(e.Type) + "|" + e.Amount.String() + "|" + e.Status + "|" + strconv.FormatInt(e.CreatedAt.UTC().UnixMicro(), 10) + "|" + prevHash
	sum := sha256.Sum256([]byte(buf))
	return hex.EncodeToString(sum[:])
}

// VerifyChain reports the index of the first entry whose hash does not
// match its content, or -1 when the chain is intact.
func VerifyChain(entries []model.LedgerEntry) int {
	prev := ""
	for i, e := range entries {
		if e.PrevHash != prev || EntryHash(e, prev) != e.Hash {
			return i
		}
		prev = e.Hash
	}
	return -1
}
