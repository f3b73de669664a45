// Package accounting is the bookkeeping export handler: it posts one
// transaction per invoice against a pluggable ledger API, skipping invoices
// that already have a matching journal entry.
package accounting

import "context"

// AccountingYear is one fiscal year window known to the ledger.
type AccountingYear struct {
	ID        int
	StartDate string // YYYY-MM-DD
	EndDate   string // YYYY-MM-DD
}

// JournalEntry is one posted transaction line as the ledger reports it.
type JournalEntry struct {
	Date  string // YYYY-MM-DD
	Label string
}

// Transaction is a posted double-entry transaction.
type Transaction struct {
	ID int
}

// TransactionRequest is the input to CreateTransaction.
type TransactionRequest struct {
	AccountingYearID int
	Label            string
	Date             string
	Type             string
	Amount           float64
	Debit            string
	Credit           string
}

// LedgerAPI is the pluggable contract the handler drives; a concrete
// implementation wraps whatever bookkeeping system the deployment uses.
type LedgerAPI interface {
	AccountingYears(ctx context.Context) ([]AccountingYear, error)
	AccountJournal(ctx context.Context, accountingYearID int, accountCode string) ([]JournalEntry, error)
	CreateTransaction(ctx context.Context, req TransactionRequest) (Transaction, error)
}
