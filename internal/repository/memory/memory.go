// Package memory provides in-memory implementations of the repository
// interfaces. They mirror the guard and compare-and-set semantics of the
// postgres repositories and back the usecase and router tests.
package memory

import (
	"sort"
	"sync"
	"time"

	"payment-service/internal/domain"
	"payment-service/pkg/utils"
)

// Store holds every entity map behind a single mutex, so each exported
// operation is atomic the way one database transaction is.
type Store struct {
	mu  sync.Mutex
	ids *utils.IDGenerator

	wallets      map[string]*domain.Wallet // by wallet id
	walletByUser map[string]string         // user id -> wallet id
	transactions map[string]*domain.Transaction
	txByRef      map[string]string // reference -> transaction id
	escrows      map[string]*domain.Escrow
	withdrawals  map[string]*domain.Withdrawal
	methods      map[string]*domain.PaymentMethod
}

func NewStore() *Store {
	return &Store{
		ids:          utils.NewIDGenerator(),
		wallets:      make(map[string]*domain.Wallet),
		walletByUser: make(map[string]string),
		transactions: make(map[string]*domain.Transaction),
		txByRef:      make(map[string]string),
		escrows:      make(map[string]*domain.Escrow),
		withdrawals:  make(map[string]*domain.Withdrawal),
		methods:      make(map[string]*domain.PaymentMethod),
	}
}

func (s *Store) Wallets() *WalletRepo               { return &WalletRepo{s} }
func (s *Store) Transactions() *TransactionRepo     { return &TransactionRepo{s} }
func (s *Store) Escrows() *EscrowRepo               { return &EscrowRepo{s} }
func (s *Store) Withdrawals() *WithdrawalRepo       { return &WithdrawalRepo{s} }
func (s *Store) PaymentMethods() *PaymentMethodRepo { return &PaymentMethodRepo{s} }

func copyWallet(w *domain.Wallet) *domain.Wallet {
	c := *w
	return &c
}

func copyTransaction(t *domain.Transaction) *domain.Transaction {
	c := *t
	return &c
}

func copyEscrow(e *domain.Escrow) *domain.Escrow {
	c := *e
	c.Milestones = make([]domain.Milestone, len(e.Milestones))
	copy(c.Milestones, e.Milestones)
	return &c
}

func copyWithdrawal(w *domain.Withdrawal) *domain.Withdrawal {
	c := *w
	return &c
}

func copyMethod(m *domain.PaymentMethod) *domain.PaymentMethod {
	c := *m
	return &c
}

func sortNewestFirst[T any](items []T, createdAt func(T) time.Time) {
	sort.SliceStable(items, func(i, j int) bool {
		return createdAt(items[i]).After(createdAt(items[j]))
	})
}

func paginate[T any](items []T, page, limit int) []T {
	start := (page - 1) * limit
	if start >= len(items) {
		return nil
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
