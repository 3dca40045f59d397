package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"learncoins-ledger/internal/adapter/storage/memory"
	"learncoins-ledger/internal/core/domain"
	"learncoins-ledger/internal/core/ports"
	"learncoins-ledger/internal/core/ports/mocks"
	"learncoins-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type ledgerFixture struct {
	svc      *LedgerServiceImpl
	store    *memory.Store
	tx       *memory.Transactor
	wallets  *memory.WalletRepo
	records  *memory.TransactionRepo
	products *memory.ProductRepo
	cart     *memory.CartRepo
	orders   *memory.OrderRepo
	idemp    *memory.IdempotencyRepo
	hasher   *Argon2HashService
	clock    time.Time
}

func testLedgerConfig() LedgerConfig {
	return LedgerConfig{
		InitialBalance:      decimal.NewFromInt(100),
		DailyReward:         decimal.NewFromInt(10),
		DailyRewardCooldown: 24 * time.Hour,
		IdempotencyTTL:      time.Hour,
	}
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	store := memory.NewStore()
	f := &ledgerFixture{
		store:    store,
		tx:       memory.NewTransactor(store),
		wallets:  memory.NewWalletRepo(store),
		records:  memory.NewTransactionRepo(store),
		products: memory.NewProductRepo(store),
		cart:     memory.NewCartRepo(store),
		orders:   memory.NewOrderRepo(store),
		idemp:    memory.NewIdempotencyRepo(store),
		hasher:   cheapHasher(),
		clock:    time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewLedgerService(LedgerDeps{
		Transactor:   f.tx,
		Wallets:      f.wallets,
		Transactions: f.records,
		Products:     f.products,
		Cart:         f.cart,
		Orders:       f.orders,
		Idempotency:  f.idemp,
		IdempCache:   memory.NewIdempotencyCache(),
		Pins:         NewPinVerifier(f.hasher, memory.NewPinAttemptLimiter(5, 15*time.Minute), zerolog.Nop()),
	}, testLedgerConfig(), zerolog.Nop())
	f.svc.now = func() time.Time { return f.clock }
	return f
}

// seedWallet opens a wallet with the given balance and a hashed PIN.
func (f *ledgerFixture) seedWallet(t *testing.T, balance int64, pin string) *domain.Wallet {
	t.Helper()
	cred := domain.PlainPin(domain.DefaultPin)
	if pin != "" {
		encoded, err := f.hasher.Hash(pin)
		require.NoError(t, err)
		cred = domain.HashedPin(encoded)
	}
	return f.seedWalletWith(t, balance, cred)
}

func (f *ledgerFixture) seedWalletWith(t *testing.T, balance int64, cred domain.PinCredential) *domain.Wallet {
	t.Helper()
	w := &domain.Wallet{UserID: uuid.New(), Balance: decimal.NewFromInt(balance), Pin: cred}
	err := f.tx.WithinTx(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
		if err := f.wallets.Create(ctx, tx, w); err != nil {
			return err
		}
		if balance == 0 {
			return nil
		}
		return f.records.Create(ctx, tx, &domain.TransactionRecord{
			ID: uuid.New(), UserID: w.UserID, WalletID: w.ID,
			Kind: domain.TransactionKindCredit, Amount: w.Balance,
			Status: domain.TransactionStatusSuccess, Source: domain.TransactionSourceOpeningBalance,
			Note: domain.OpeningBalanceNote, CreatedAt: f.clock,
		})
	})
	require.NoError(t, err)
	return w
}

func (f *ledgerFixture) seedProduct(t *testing.T, name string, price int64, stock int) *domain.Product {
	t.Helper()
	p := &domain.Product{Name: name, Price: decimal.NewFromInt(price), Stock: stock, CreatorID: uuid.New()}
	require.NoError(t, f.products.Create(context.Background(), p))
	return p
}

func (f *ledgerFixture) balance(t *testing.T, userID uuid.UUID) decimal.Decimal {
	t.Helper()
	w, err := f.wallets.GetByUserID(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, w)
	return w.Balance
}

func (f *ledgerFixture) history(t *testing.T, userID uuid.UUID) []domain.TransactionRecord {
	t.Helper()
	recs, _, err := f.records.List(context.Background(), ports.TransactionListParams{UserID: userID, Page: 1, PageSize: 100})
	require.NoError(t, err)
	return recs
}

func (f *ledgerFixture) assertNoDrift(t *testing.T) {
	t.Helper()
	drift, err := f.wallets.FindDrift(context.Background())
	require.NoError(t, err)
	assert.Empty(t, drift)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLedger_Transfer_Success(t *testing.T) {
	f := newLedgerFixture(t)
	alice := f.seedWallet(t, 100, "482913")
	bob := f.seedWallet(t, 50, "111222")

	res, err := f.svc.Transfer(context.Background(), ports.TransferRequest{
		SenderUserID:      alice.UserID,
		RecipientWalletID: bob.ID,
		Amount:            dec("30"),
		Note:              "lunch",
		Pin:               "482913",
	})
	require.NoError(t, err)

	assert.True(t, f.balance(t, alice.UserID).Equal(dec("70")))
	assert.True(t, f.balance(t, bob.UserID).Equal(dec("80")))

	assert.Equal(t, domain.TransactionKindDebit, res.Debit.Kind)
	assert.Equal(t, domain.TransactionKindCredit, res.Credit.Kind)
	assert.Equal(t, res.Debit.CreatedAt, res.Credit.CreatedAt)
	assert.Equal(t, "Sent to Wallet #2: lunch", res.Debit.Note)
	assert.Equal(t, "Received from Wallet #1: lunch", res.Credit.Note)
	require.NotNil(t, res.Debit.CounterpartWalletID)
	assert.Equal(t, bob.ID, *res.Debit.CounterpartWalletID)

	assert.Len(t, f.history(t, alice.UserID), 2)
	assert.Len(t, f.history(t, bob.UserID), 2)
	f.assertNoDrift(t)
}

func TestLedger_Transfer_RejectsWithoutSideEffects(t *testing.T) {
	tests := []struct {
		name      string
		amount    string
		pin       string
		recipient func(alice, bob *domain.Wallet) int64
		code      string
	}{
		{"insufficient funds", "150", "482913", func(_, b *domain.Wallet) int64 { return b.ID }, "LED_001"},
		{"wrong pin", "10", "000001", func(_, b *domain.Wallet) int64 { return b.ID }, "WAL_001"},
		{"malformed pin", "10", "12ab", func(_, b *domain.Wallet) int64 { return b.ID }, "VAL_003"},
		{"zero amount", "0", "482913", func(_, b *domain.Wallet) int64 { return b.ID }, "VAL_002"},
		{"negative amount", "-5", "482913", func(_, b *domain.Wallet) int64 { return b.ID }, "VAL_002"},
		{"too many decimals", "1.005", "482913", func(_, b *domain.Wallet) int64 { return b.ID }, "VAL_002"},
		{"unknown recipient", "10", "482913", func(_, _ *domain.Wallet) int64 { return 999 }, "RES_001"},
		{"self transfer", "10", "482913", func(a, _ *domain.Wallet) int64 { return a.ID }, "WAL_003"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newLedgerFixture(t)
			alice := f.seedWallet(t, 100, "482913")
			bob := f.seedWallet(t, 50, "111222")

			_, err := f.svc.Transfer(context.Background(), ports.TransferRequest{
				SenderUserID:      alice.UserID,
				RecipientWalletID: tt.recipient(alice, bob),
				Amount:            dec(tt.amount),
				Pin:               tt.pin,
			})
			require.Error(t, err)
			assert.True(t, apperror.HasCode(err, tt.code), "got %v", err)

			assert.True(t, f.balance(t, alice.UserID).Equal(dec("100")))
			assert.True(t, f.balance(t, bob.UserID).Equal(dec("50")))
			assert.Len(t, f.history(t, alice.UserID), 1)
			assert.Len(t, f.history(t, bob.UserID), 1)
		})
	}
}

func TestLedger_Transfer_PinCheckedBeforeBalance(t *testing.T) {
	f := newLedgerFixture(t)
	alice := f.seedWallet(t, 10, "482913")
	bob := f.seedWallet(t, 0, "111222")

	_, err := f.svc.Transfer(context.Background(), ports.TransferRequest{
		SenderUserID: alice.UserID, RecipientWalletID: bob.ID, Amount: dec("500"), Pin: "999999",
	})
	assert.True(t, apperror.HasCode(err, "WAL_001"), "a wrong PIN must not reveal the balance check")
}

func TestLedger_Transfer_DefaultPinNeverAuthorizes(t *testing.T) {
	f := newLedgerFixture(t)
	alice := f.seedWallet(t, 100, "")
	bob := f.seedWallet(t, 0, "111222")

	_, err := f.svc.Transfer(context.Background(), ports.TransferRequest{
		SenderUserID: alice.UserID, RecipientWalletID: bob.ID, Amount: dec("1"), Pin: domain.DefaultPin,
	})
	assert.True(t, apperror.HasCode(err, "WAL_004"))
	assert.True(t, f.balance(t, alice.UserID).Equal(dec("100")))
}

func TestLedger_Transfer_SenderWithoutWallet(t *testing.T) {
	f := newLedgerFixture(t)
	bob := f.seedWallet(t, 0, "111222")

	_, err := f.svc.Transfer(context.Background(), ports.TransferRequest{
		SenderUserID: uuid.New(), RecipientWalletID: bob.ID, Amount: dec("1"), Pin: "111222",
	})
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
}

func TestLedger_Transfer_UpgradesLegacyPlainPin(t *testing.T) {
	f := newLedgerFixture(t)
	alice := f.seedWalletWith(t, 100, domain.PlainPin("482913"))
	bob := f.seedWallet(t, 0, "111222")

	_, err := f.svc.Transfer(context.Background(), ports.TransferRequest{
		SenderUserID: alice.UserID, RecipientWalletID: bob.ID, Amount: dec("5"), Pin: "482913",
	})
	require.NoError(t, err)

	stored, err := f.wallets.GetByUserID(context.Background(), alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.PinKindHashed, stored.Pin.Kind)
	ok, err := f.hasher.Verify("482913", stored.Pin.Value)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLedger_Transfer_IdempotentReplay(t *testing.T) {
	f := newLedgerFixture(t)
	alice := f.seedWallet(t, 100, "482913")
	bob := f.seedWallet(t, 0, "111222")
	req := ports.TransferRequest{
		SenderUserID: alice.UserID, RecipientWalletID: bob.ID, Amount: dec("25"), Pin: "482913",
		IdempotencyKey: "tx-001",
	}

	first, err := f.svc.Transfer(context.Background(), req)
	require.NoError(t, err)

	// Replay from the DB log, not just the cache.
	f.svc.idempCache = nil
	second, err := f.svc.Transfer(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Debit.ID, second.Debit.ID)
	assert.Equal(t, first.Credit.ID, second.Credit.ID)
	assert.True(t, f.balance(t, alice.UserID).Equal(dec("75")))
	assert.Len(t, f.history(t, alice.UserID), 2)

	// The key is scoped to the sender.
	carol := f.seedWallet(t, 100, "333444")
	req.SenderUserID = carol.UserID
	req.Pin = "333444"
	third, err := f.svc.Transfer(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, first.Debit.ID, third.Debit.ID)
}

func TestLedger_Transfer_ConcurrentDrain(t *testing.T) {
	f := newLedgerFixture(t)
	alice := f.seedWallet(t, 100, "482913")
	bob := f.seedWallet(t, 0, "111222")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		refused   int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Transfer(context.Background(), ports.TransferRequest{
				SenderUserID: alice.UserID, RecipientWalletID: bob.ID, Amount: dec("30"), Pin: "482913",
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if apperror.IsKind(err, apperror.KindInsufficientFunds) {
				refused++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 7, refused)
	assert.True(t, f.balance(t, alice.UserID).Equal(dec("10")))
	assert.True(t, f.balance(t, bob.UserID).Equal(dec("90")))
	f.assertNoDrift(t)
}

func TestLedger_Transfer_ConcurrentOppositeDirections(t *testing.T) {
	f := newLedgerFixture(t)
	alice := f.seedWallet(t, 500, "482913")
	bob := f.seedWallet(t, 500, "111222")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.svc.Transfer(context.Background(), ports.TransferRequest{
				SenderUserID: alice.UserID, RecipientWalletID: bob.ID, Amount: dec("7"), Pin: "482913",
			})
		}()
		go func() {
			defer wg.Done()
			_, _ = f.svc.Transfer(context.Background(), ports.TransferRequest{
				SenderUserID: bob.UserID, RecipientWalletID: alice.ID, Amount: dec("3"), Pin: "111222",
			})
		}()
	}
	wg.Wait()

	total := f.balance(t, alice.UserID).Add(f.balance(t, bob.UserID))
	assert.True(t, total.Equal(dec("1000")), "coins are conserved, got %s", total)
	assert.True(t, f.balance(t, alice.UserID).Equal(dec("420")))
	f.assertNoDrift(t)
}

func TestLedger_Transfer_RecordFailureRollsBack(t *testing.T) {
	f := newLedgerFixture(t)
	alice := f.seedWallet(t, 100, "482913")
	bob := f.seedWallet(t, 0, "111222")

	ctrl := gomock.NewController(t)
	records := mocks.NewMockTransactionRepository(ctrl)
	f.svc.records = records

	gomock.InOrder(
		records.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil),
		records.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("disk full")),
	)

	_, err := f.svc.Transfer(context.Background(), ports.TransferRequest{
		SenderUserID: alice.UserID, RecipientWalletID: bob.ID, Amount: dec("40"), Pin: "482913",
	})
	assert.True(t, apperror.IsKind(err, apperror.KindInternal))
	assert.True(t, f.balance(t, alice.UserID).Equal(dec("100")))
	assert.True(t, f.balance(t, bob.UserID).Equal(dec("0")))
}

func TestLedger_Transfer_PublishesEvent(t *testing.T) {
	f := newLedgerFixture(t)
	alice := f.seedWallet(t, 100, "482913")
	bob := f.seedWallet(t, 0, "111222")

	ctrl := gomock.NewController(t)
	events := mocks.NewMockEventPublisher(ctrl)
	f.svc.events = events

	events.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e *domain.LedgerEvent) error {
			assert.Equal(t, domain.EventTransfer, e.Type)
			assert.Equal(t, alice.ID, e.WalletID)
			assert.Len(t, e.Records, 2)
			return errors.New("nats: connection closed")
		})

	_, err := f.svc.Transfer(context.Background(), ports.TransferRequest{
		SenderUserID: alice.UserID, RecipientWalletID: bob.ID, Amount: dec("1"), Pin: "482913",
	})
	require.NoError(t, err, "publish failures do not undo a committed transfer")
}

func TestLedger_Transfer_DuplicateKeyRaceReplays(t *testing.T) {
	ctrl := gomock.NewController(t)
	wallets := mocks.NewMockWalletRepository(ctrl)
	records := mocks.NewMockTransactionRepository(ctrl)
	idemp := mocks.NewMockIdempotencyRepository(ctrl)
	pins := mocks.NewMockPinVerifier(ctrl)

	store := memory.NewStore()
	svc := NewLedgerService(LedgerDeps{
		Transactor:   memory.NewTransactor(store),
		Wallets:      wallets,
		Transactions: records,
		Idempotency:  idemp,
		Pins:         pins,
	}, testLedgerConfig(), zerolog.Nop())

	sender := &domain.Wallet{ID: 1, UserID: uuid.New(), Balance: dec("50")}
	recipient := &domain.Wallet{ID: 2, UserID: uuid.New()}
	key := domain.BuildIdempotencyKey(sender.UserID, domain.OperationTransfer, "k1")

	winner := ports.TransferResult{
		Debit:  &domain.TransactionRecord{ID: uuid.New(), Kind: domain.TransactionKindDebit, Amount: dec("5")},
		Credit: &domain.TransactionRecord{ID: uuid.New(), Kind: domain.TransactionKindCredit, Amount: dec("5")},
	}
	stored, err := json.Marshal(winner)
	require.NoError(t, err)

	gomock.InOrder(
		idemp.EXPECT().Get(gomock.Any(), key).Return(nil, nil),
		idemp.EXPECT().Get(gomock.Any(), key).Return(&domain.IdempotencyLog{Key: key, ResponseJSON: stored}, nil),
	)
	wallets.EXPECT().GetByUserID(gomock.Any(), sender.UserID).Return(sender, nil)
	wallets.EXPECT().LockByIDs(gomock.Any(), gomock.Any(), int64(1), int64(2)).
		Return(map[int64]*domain.Wallet{1: sender, 2: recipient}, nil)
	pins.EXPECT().Verify(gomock.Any(), sender, "123456").Return(ports.PinCheck{}, nil)
	wallets.EXPECT().AdjustBalance(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)
	records.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)
	idemp.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).Return(apperror.ErrDuplicateRequest(nil))

	res, err := svc.Transfer(context.Background(), ports.TransferRequest{
		SenderUserID: sender.UserID, RecipientWalletID: 2, Amount: dec("5"), Pin: "123456", IdempotencyKey: "k1",
	})
	require.NoError(t, err)
	assert.Equal(t, winner.Debit.ID, res.Debit.ID)
}

func TestLedger_Checkout_Success(t *testing.T) {
	f := newLedgerFixture(t)
	buyer := f.seedWallet(t, 150, "482913")
	pencil := f.seedProduct(t, "Pencil", 50, 3)
	ctx := context.Background()

	require.NoError(t, f.cart.Upsert(ctx, &domain.CartItem{UserID: buyer.UserID, ProductID: pencil.ID, Quantity: 2, PriceSnapshot: pencil.Price}))

	order, err := f.svc.Checkout(ctx, ports.CheckoutRequest{UserID: buyer.UserID, Pin: "482913"})
	require.NoError(t, err)

	assert.True(t, order.TotalAmount.Equal(dec("100")))
	assert.Equal(t, domain.OrderStatusCompleted, order.Status)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 2, order.Items[0].Quantity)

	assert.True(t, f.balance(t, buyer.UserID).Equal(dec("50")))
	p, err := f.products.GetByID(ctx, pencil.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Stock)

	cart, err := f.cart.ListByUser(ctx, buyer.UserID)
	require.NoError(t, err)
	assert.Empty(t, cart)

	recs := f.history(t, buyer.UserID)
	require.Len(t, recs, 2)
	assert.Equal(t, domain.TransactionSourceCheckout, recs[0].Source)
	assert.Equal(t, domain.CheckoutNote(order.ID), recs[0].Note)
	require.NotNil(t, recs[0].OrderID)
	assert.Equal(t, order.ID, *recs[0].OrderID)
	f.assertNoDrift(t)
}

func TestLedger_Checkout_ChargesCurrentPrice(t *testing.T) {
	f := newLedgerFixture(t)
	buyer := f.seedWallet(t, 100, "482913")
	ctx := context.Background()
	p := f.seedProduct(t, "Sticker Pack", 20, 5)

	// Snapshot disagrees with the catalogue price.
	require.NoError(t, f.cart.Upsert(ctx, &domain.CartItem{UserID: buyer.UserID, ProductID: p.ID, Quantity: 2, PriceSnapshot: dec("5")}))

	order, err := f.svc.Checkout(ctx, ports.CheckoutRequest{UserID: buyer.UserID, Pin: "482913"})
	require.NoError(t, err)
	assert.True(t, order.TotalAmount.Equal(dec("40")))
	assert.True(t, order.Items[0].UnitPrice.Equal(dec("20")))
}

func TestLedger_Checkout_InsufficientStockChangesNothing(t *testing.T) {
	f := newLedgerFixture(t)
	buyer := f.seedWallet(t, 500, "482913")
	ctx := context.Background()
	pen := f.seedProduct(t, "Pen", 10, 10)
	badge := f.seedProduct(t, "Badge", 10, 1)

	require.NoError(t, f.cart.Upsert(ctx, &domain.CartItem{UserID: buyer.UserID, ProductID: pen.ID, Quantity: 3, PriceSnapshot: pen.Price}))
	require.NoError(t, f.cart.Upsert(ctx, &domain.CartItem{UserID: buyer.UserID, ProductID: badge.ID, Quantity: 1, PriceSnapshot: badge.Price}))

	// Someone else buys the last badge first.
	other := f.seedWallet(t, 50, "111222")
	require.NoError(t, f.cart.Upsert(ctx, &domain.CartItem{UserID: other.UserID, ProductID: badge.ID, Quantity: 1, PriceSnapshot: badge.Price}))
	_, err := f.svc.Checkout(ctx, ports.CheckoutRequest{UserID: other.UserID, Pin: "111222"})
	require.NoError(t, err)

	_, err = f.svc.Checkout(ctx, ports.CheckoutRequest{UserID: buyer.UserID, Pin: "482913"})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, "MKT_001"))
	assert.Contains(t, err.Error(), "Badge")

	assert.True(t, f.balance(t, buyer.UserID).Equal(dec("500")))
	p, _ := f.products.GetByID(ctx, pen.ID)
	assert.Equal(t, 10, p.Stock)
	cart, _ := f.cart.ListByUser(ctx, buyer.UserID)
	assert.Len(t, cart, 2)
	orders, total, err := f.orders.ListByUser(ctx, buyer.UserID, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, orders)
}

func TestLedger_Checkout_Rejections(t *testing.T) {
	t.Run("empty cart", func(t *testing.T) {
		f := newLedgerFixture(t)
		buyer := f.seedWallet(t, 100, "482913")
		_, err := f.svc.Checkout(context.Background(), ports.CheckoutRequest{UserID: buyer.UserID, Pin: "482913"})
		assert.True(t, apperror.HasCode(err, "MKT_002"))
	})

	t.Run("insufficient funds", func(t *testing.T) {
		f := newLedgerFixture(t)
		buyer := f.seedWallet(t, 30, "482913")
		p := f.seedProduct(t, "Notebook", 40, 2)
		require.NoError(t, f.cart.Upsert(context.Background(), &domain.CartItem{UserID: buyer.UserID, ProductID: p.ID, Quantity: 1, PriceSnapshot: p.Price}))

		_, err := f.svc.Checkout(context.Background(), ports.CheckoutRequest{UserID: buyer.UserID, Pin: "482913"})
		assert.True(t, apperror.HasCode(err, "LED_001"))
		stored, _ := f.products.GetByID(context.Background(), p.ID)
		assert.Equal(t, 2, stored.Stock)
	})

	t.Run("wrong pin", func(t *testing.T) {
		f := newLedgerFixture(t)
		buyer := f.seedWallet(t, 100, "482913")
		_, err := f.svc.Checkout(context.Background(), ports.CheckoutRequest{UserID: buyer.UserID, Pin: "000111"})
		assert.True(t, apperror.HasCode(err, "WAL_001"))
	})

	t.Run("no wallet", func(t *testing.T) {
		f := newLedgerFixture(t)
		_, err := f.svc.Checkout(context.Background(), ports.CheckoutRequest{UserID: uuid.New(), Pin: "482913"})
		assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
	})
}

func TestLedger_Checkout_FreeItemsWriteNoRecord(t *testing.T) {
	f := newLedgerFixture(t)
	buyer := f.seedWallet(t, 10, "482913")
	ctx := context.Background()
	p := &domain.Product{Name: "Free Sample", Price: decimal.Zero, Stock: 4, CreatorID: uuid.New()}
	require.NoError(t, f.products.Create(ctx, p))
	require.NoError(t, f.cart.Upsert(ctx, &domain.CartItem{UserID: buyer.UserID, ProductID: p.ID, Quantity: 1, PriceSnapshot: p.Price}))

	order, err := f.svc.Checkout(ctx, ports.CheckoutRequest{UserID: buyer.UserID, Pin: "482913"})
	require.NoError(t, err)
	assert.True(t, order.TotalAmount.IsZero())
	assert.Len(t, f.history(t, buyer.UserID), 1)
}

func TestLedger_Checkout_IdempotentReplay(t *testing.T) {
	f := newLedgerFixture(t)
	buyer := f.seedWallet(t, 100, "482913")
	ctx := context.Background()
	p := f.seedProduct(t, "Eraser", 10, 5)
	require.NoError(t, f.cart.Upsert(ctx, &domain.CartItem{UserID: buyer.UserID, ProductID: p.ID, Quantity: 1, PriceSnapshot: p.Price}))

	req := ports.CheckoutRequest{UserID: buyer.UserID, Pin: "482913", IdempotencyKey: "cart-1"}
	first, err := f.svc.Checkout(ctx, req)
	require.NoError(t, err)
	second, err := f.svc.Checkout(ctx, req)
	require.NoError(t, err, "the replay answers even though the cart is now empty")

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, f.balance(t, buyer.UserID).Equal(dec("90")))
}

func TestLedger_OpenWallet(t *testing.T) {
	f := newLedgerFixture(t)
	userID := uuid.New()

	w, err := f.svc.OpenWallet(context.Background(), userID, domain.HashedPin("$argon2id$stub"))
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(dec("100")))

	recs := f.history(t, userID)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.TransactionSourceOpeningBalance, recs[0].Source)

	_, err = f.svc.OpenWallet(context.Background(), userID, domain.HashedPin("$argon2id$stub"))
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
	f.assertNoDrift(t)
}

func TestLedger_ClaimDailyReward(t *testing.T) {
	f := newLedgerFixture(t)
	userID := uuid.New()
	ctx := context.Background()

	res, err := f.svc.ClaimDailyReward(ctx, userID)
	require.NoError(t, err)
	assert.True(t, res.Wallet.Balance.Equal(dec("10")))
	assert.True(t, res.Wallet.Pin.IsDefault(), "an implicit wallet carries the default PIN")
	assert.Equal(t, f.clock.Add(24*time.Hour), res.NextClaim)

	f.clock = f.clock.Add(23 * time.Hour)
	_, err = f.svc.ClaimDailyReward(ctx, userID)
	assert.True(t, apperror.HasCode(err, "WAL_006"))

	f.clock = f.clock.Add(time.Hour)
	res, err = f.svc.ClaimDailyReward(ctx, userID)
	require.NoError(t, err)
	assert.True(t, f.balance(t, userID).Equal(dec("20")))
	assert.Equal(t, domain.DailyRewardNote, res.Record.Note)
	f.assertNoDrift(t)
}

func TestLedger_ClaimDailyReward_Guard(t *testing.T) {
	ctrl := gomock.NewController(t)
	claims := mocks.NewMockClaimGuard(ctrl)
	f := newLedgerFixture(t)
	f.svc.claims = claims
	userID := uuid.New()
	key := "daily_reward:" + userID.String()

	t.Run("held elsewhere", func(t *testing.T) {
		claims.EXPECT().Acquire(gomock.Any(), key, 24*time.Hour).Return(false, nil)
		_, err := f.svc.ClaimDailyReward(context.Background(), userID)
		assert.True(t, apperror.HasCode(err, "WAL_006"))
	})

	t.Run("guard down falls back to ledger", func(t *testing.T) {
		claims.EXPECT().Acquire(gomock.Any(), key, 24*time.Hour).Return(false, errors.New("redis: i/o timeout"))
		_, err := f.svc.ClaimDailyReward(context.Background(), userID)
		require.NoError(t, err)
	})

	t.Run("released when the ledger refuses", func(t *testing.T) {
		claims.EXPECT().Acquire(gomock.Any(), key, 24*time.Hour).Return(true, nil)
		claims.EXPECT().Release(gomock.Any(), key).Return(nil)
		_, err := f.svc.ClaimDailyReward(context.Background(), userID)
		assert.True(t, apperror.HasCode(err, "WAL_006"))
	})
}

func TestLedger_ClaimDailyReward_ConcurrentSingleCredit(t *testing.T) {
	f := newLedgerFixture(t)
	f.svc.claims = memory.NewClaimGuard()
	userID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.ClaimDailyReward(context.Background(), userID)
		}()
	}
	wg.Wait()

	assert.True(t, f.balance(t, userID).Equal(dec("10")))
	assert.Len(t, f.history(t, userID), 1)
}
