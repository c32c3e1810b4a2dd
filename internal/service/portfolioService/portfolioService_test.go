package portfolioService

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stocktracker/config"
	"stocktracker/data/cache"
	"stocktracker/data/repository"
	"stocktracker/internal/externalApi"
	"stocktracker/internal/model"
	"stocktracker/internal/service"
)

func testConfig() *config.Config {
	return &config.Config{
		API: config.API{
			Timeout: time.Second,
		},
		Cache: config.Cache{
			QuoteExpiration: 300 * time.Second,
		},
		Quotes: config.Quotes{
			BatchSize:  5,
			BatchPause: time.Millisecond,
		},
	}
}

// fakeRepo is an in-memory Repository. WithinTransaction simply runs the
// function: the ledger's own lock already serializes mutations in tests.
type fakeRepo struct {
	mu           sync.Mutex
	portfolios   map[string]model.Portfolio
	positions    map[string]model.Position
	transactions []model.Transaction
	nextID       int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		portfolios: make(map[string]model.Portfolio),
		positions:  make(map[string]model.Position),
	}
}

func (r *fakeRepo) id(prefix string) string {
	r.nextID++
	return fmt.Sprintf("%s-%d", prefix, r.nextID)
}

func (r *fakeRepo) WithinTransaction(ctx context.Context, tFunc func(ctx context.Context) error) error {
	return tFunc(ctx)
}

func (r *fakeRepo) CreatePortfolio(_ context.Context, name string) (model.Portfolio, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	portfolio := model.Portfolio{PortfolioID: r.id("pf"), Name: name, CreatedAt: time.Now()}
	r.portfolios[portfolio.PortfolioID] = portfolio
	return portfolio, nil
}

func (r *fakeRepo) GetPortfolio(_ context.Context, portfolioID string) (model.Portfolio, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	portfolio, ok := r.portfolios[portfolioID]
	if !ok {
		return model.Portfolio{}, repository.ErrNotFound
	}
	return portfolio, nil
}

func (r *fakeRepo) GetPortfolios(_ context.Context) ([]model.Portfolio, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	portfolios := make([]model.Portfolio, 0, len(r.portfolios))
	for _, portfolio := range r.portfolios {
		portfolios = append(portfolios, portfolio)
	}
	return portfolios, nil
}

func (r *fakeRepo) DeletePortfolio(_ context.Context, portfolioID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.portfolios[portfolioID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.portfolios, portfolioID)
	for id, position := range r.positions {
		if position.PortfolioID == portfolioID {
			delete(r.positions, id)
		}
	}
	return nil
}

func (r *fakeRepo) GetPosition(_ context.Context, portfolioID, symbol string) (model.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, position := range r.positions {
		if position.PortfolioID == portfolioID && position.Symbol == symbol {
			return position, nil
		}
	}
	return model.Position{}, repository.ErrNotFound
}

func (r *fakeRepo) GetPositions(_ context.Context, portfolioID string) ([]model.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	positions := make([]model.Position, 0)
	for _, position := range r.positions {
		if position.PortfolioID == portfolioID {
			positions = append(positions, position)
		}
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })
	return positions, nil
}

func (r *fakeRepo) InsertPosition(_ context.Context, portfolioID, symbol string, shares, avgPrice decimal.Decimal) (model.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	position := model.Position{
		PositionID:  r.id("pos"),
		PortfolioID: portfolioID,
		Symbol:      symbol,
		Shares:      shares,
		AvgPrice:    avgPrice,
	}
	r.positions[position.PositionID] = position
	return position, nil
}

func (r *fakeRepo) UpdatePosition(_ context.Context, positionID string, shares, avgPrice decimal.Decimal) (model.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	position, ok := r.positions[positionID]
	if !ok {
		return model.Position{}, repository.ErrNotFound
	}
	position.Shares = shares
	position.AvgPrice = avgPrice
	r.positions[positionID] = position
	return position, nil
}

func (r *fakeRepo) DeletePosition(_ context.Context, positionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.positions[positionID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.positions, positionID)
	return nil
}

func (r *fakeRepo) InsertTransaction(_ context.Context, transaction model.Transaction) (model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	transaction.TransactionID = r.id("trn")
	r.transactions = append(r.transactions, transaction)
	return transaction, nil
}

func (r *fakeRepo) GetTransactionsByPortfolio(_ context.Context, portfolioID string) ([]model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	transactions := make([]model.Transaction, 0)
	for _, transaction := range r.transactions {
		if transaction.PortfolioID == portfolioID {
			transactions = append(transactions, transaction)
		}
	}
	sort.Slice(transactions, func(i, j int) bool { return transactions[i].Date.After(transactions[j].Date) })
	return transactions, nil
}

func (r *fakeRepo) GetHeldSymbols(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{})
	symbols := make([]string, 0)
	for _, position := range r.positions {
		if _, ok := seen[position.Symbol]; ok {
			continue
		}
		seen[position.Symbol] = struct{}{}
		symbols = append(symbols, position.Symbol)
	}
	sort.Strings(symbols)
	return symbols, nil
}

// fakeProvider serves quotes from a fixed map and records call statistics.
type fakeProvider struct {
	mu          sync.Mutex
	quotes      map[string]model.Quote
	delay       time.Duration
	calls       map[string]int
	inFlight    int
	maxInFlight int
}

func newFakeProvider(quotes map[string]model.Quote) *fakeProvider {
	return &fakeProvider{quotes: quotes, calls: make(map[string]int)}
}

func (p *fakeProvider) GetQuote(_ context.Context, symbol string) (model.Quote, error) {
	p.mu.Lock()
	p.calls[symbol]++
	p.inFlight++
	if p.inFlight > p.maxInFlight {
		p.maxInFlight = p.inFlight
	}
	p.mu.Unlock()

	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	p.mu.Lock()
	p.inFlight--
	quote, ok := p.quotes[symbol]
	p.mu.Unlock()

	if !ok {
		return model.Quote{}, externalApi.ErrNotFound
	}
	return quote, nil
}

func (p *fakeProvider) totalCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, n := range p.calls {
		total += n
	}
	return total
}

type noopReportGenerator struct{}

func (noopReportGenerator) Generate(_ context.Context, _ model.PortfolioDetail, _ []model.Transaction) ([]byte, string, error) {
	return []byte{}, ".xlsx", nil
}

func newTestService(repo *fakeRepo, provider *fakeProvider) *PortfolioService {
	cfg := testConfig()
	return New(cfg, repo, cache.NewMemoryCache(cfg), provider, noopReportGenerator{})
}

func mustCreatePortfolio(t *testing.T, s *PortfolioService) model.Portfolio {
	t.Helper()
	portfolio, err := s.CreatePortfolio(context.Background(), "test portfolio")
	if err != nil {
		t.Fatalf("CreatePortfolio: %v", err)
	}
	return portfolio
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestBuySellScenario(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	s := newTestService(repo, newFakeProvider(nil))
	portfolio := mustCreatePortfolio(t, s)

	// buy 10 AAPL at 100
	position, transaction, err := s.Buy(ctx, portfolio.PortfolioID, "aapl", dec("10"), dec("100"), nil)
	if err != nil {
		t.Fatalf("first buy: %v", err)
	}
	if position.Symbol != "AAPL" {
		t.Errorf("symbol = %s, want AAPL", position.Symbol)
	}
	if transaction.Type != model.TransactionBuy {
		t.Errorf("transaction type = %s, want BUY", transaction.Type)
	}

	// buy 10 more at 120 → 20 shares at 110
	position, _, err = s.Buy(ctx, portfolio.PortfolioID, "AAPL", dec("10"), dec("120"), nil)
	if err != nil {
		t.Fatalf("second buy: %v", err)
	}
	if !position.Shares.Equal(dec("20")) {
		t.Errorf("shares = %s, want 20", position.Shares)
	}
	if !position.AvgPrice.Equal(dec("110")) {
		t.Errorf("avgPrice = %s, want 110", position.AvgPrice)
	}

	// sell 15 at 150 → 5 shares, avgPrice unchanged
	remaining, transaction, err := s.Sell(ctx, portfolio.PortfolioID, "AAPL", dec("15"), dec("150"), nil)
	if err != nil {
		t.Fatalf("partial sell: %v", err)
	}
	if transaction.Type != model.TransactionSell {
		t.Errorf("transaction type = %s, want SELL", transaction.Type)
	}
	if !transaction.Shares.Equal(dec("15")) || !transaction.Price.Equal(dec("150")) {
		t.Errorf("transaction = %s @ %s, want 15 @ 150", transaction.Shares, transaction.Price)
	}
	if remaining == nil {
		t.Fatal("position = nil after partial sell")
	}
	if !remaining.Shares.Equal(dec("5")) {
		t.Errorf("shares = %s, want 5", remaining.Shares)
	}
	if !remaining.AvgPrice.Equal(dec("110")) {
		t.Errorf("avgPrice = %s, want 110 (sells must not change it)", remaining.AvgPrice)
	}

	// sell the last 5 at 130 → position closed
	remaining, _, err = s.Sell(ctx, portfolio.PortfolioID, "AAPL", dec("5"), dec("130"), nil)
	if err != nil {
		t.Fatalf("closing sell: %v", err)
	}
	if remaining != nil {
		t.Errorf("position = %+v, want nil after closing sell", remaining)
	}

	if _, err := repo.GetPosition(ctx, portfolio.PortfolioID, "AAPL"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("position lookup after close: err = %v, want ErrNotFound", err)
	}
}

func TestBuyWeightedAverage(t *testing.T) {
	tests := []struct {
		name      string
		buys      [][2]string // shares, price
		wantShare string
		wantAvg   string
	}{
		{
			name:      "single buy",
			buys:      [][2]string{{"10", "100"}},
			wantShare: "10",
			wantAvg:   "100",
		},
		{
			name:      "equal lots",
			buys:      [][2]string{{"10", "100"}, {"10", "120"}},
			wantShare: "20",
			wantAvg:   "110",
		},
		{
			name:      "unequal lots",
			buys:      [][2]string{{"10", "100"}, {"5", "110"}},
			wantShare: "15",
			wantAvg:   "103.3333333333333333",
		},
		{
			name:      "fractional shares",
			buys:      [][2]string{{"0.5", "200"}, {"1.5", "100"}},
			wantShare: "2",
			wantAvg:   "125",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			s := newTestService(newFakeRepo(), newFakeProvider(nil))
			portfolio := mustCreatePortfolio(t, s)

			var position model.Position
			var err error
			totalCost := decimal.Zero
			for _, buy := range tc.buys {
				position, _, err = s.Buy(ctx, portfolio.PortfolioID, "MSFT", dec(buy[0]), dec(buy[1]), nil)
				if err != nil {
					t.Fatalf("buy %v: %v", buy, err)
				}
				totalCost = totalCost.Add(dec(buy[0]).Mul(dec(buy[1])))
			}

			if !position.Shares.Equal(dec(tc.wantShare)) {
				t.Errorf("shares = %s, want %s", position.Shares, tc.wantShare)
			}
			if !position.AvgPrice.Round(10).Equal(dec(tc.wantAvg).Round(10)) {
				t.Errorf("avgPrice = %s, want %s", position.AvgPrice, tc.wantAvg)
			}
			// avgPrice * shares must equal the cumulative cost of all buys
			if !position.AvgPrice.Mul(position.Shares).Round(8).Equal(totalCost.Round(8)) {
				t.Errorf("cost basis = %s, want %s", position.AvgPrice.Mul(position.Shares), totalCost)
			}
		})
	}
}

func TestBuyValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestService(newFakeRepo(), newFakeProvider(nil))
	portfolio := mustCreatePortfolio(t, s)

	tests := []struct {
		name        string
		portfolioID string
		symbol      string
		shares      string
		price       string
		wantErr     error
	}{
		{"zero shares", portfolio.PortfolioID, "AAPL", "0", "100", service.ErrInvalidArgument},
		{"negative shares", portfolio.PortfolioID, "AAPL", "-1", "100", service.ErrInvalidArgument},
		{"zero price", portfolio.PortfolioID, "AAPL", "10", "0", service.ErrInvalidArgument},
		{"negative price", portfolio.PortfolioID, "AAPL", "10", "-5", service.ErrInvalidArgument},
		{"empty symbol", portfolio.PortfolioID, "  ", "10", "100", service.ErrInvalidArgument},
		{"unknown portfolio", "missing", "AAPL", "10", "100", service.ErrNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := s.Buy(ctx, tc.portfolioID, tc.symbol, dec(tc.shares), dec(tc.price), nil)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestSellInsufficientShares(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	s := newTestService(repo, newFakeProvider(nil))
	portfolio := mustCreatePortfolio(t, s)

	if _, _, err := s.Buy(ctx, portfolio.PortfolioID, "AAPL", dec("10"), dec("100"), nil); err != nil {
		t.Fatalf("buy: %v", err)
	}

	_, _, err := s.Sell(ctx, portfolio.PortfolioID, "AAPL", dec("11"), dec("100"), nil)
	if !errors.Is(err, service.ErrInsufficientShares) {
		t.Fatalf("err = %v, want ErrInsufficientShares", err)
	}

	// position must be untouched and no SELL transaction recorded
	position, err := repo.GetPosition(ctx, portfolio.PortfolioID, "AAPL")
	if err != nil {
		t.Fatalf("position lookup: %v", err)
	}
	if !position.Shares.Equal(dec("10")) || !position.AvgPrice.Equal(dec("100")) {
		t.Errorf("position = %s @ %s, want 10 @ 100", position.Shares, position.AvgPrice)
	}

	transactions, err := repo.GetTransactionsByPortfolio(ctx, portfolio.PortfolioID)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	for _, transaction := range transactions {
		if transaction.Type == model.TransactionSell {
			t.Errorf("unexpected SELL transaction recorded: %+v", transaction)
		}
	}
}

func TestSellUnknownPosition(t *testing.T) {
	ctx := context.Background()
	s := newTestService(newFakeRepo(), newFakeProvider(nil))
	portfolio := mustCreatePortfolio(t, s)

	_, _, err := s.Sell(ctx, portfolio.PortfolioID, "AAPL", dec("1"), dec("100"), nil)
	if !errors.Is(err, service.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListTransactionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestService(newFakeRepo(), newFakeProvider(nil))
	portfolio := mustCreatePortfolio(t, s)

	day := func(d int) *time.Time {
		t := time.Date(2025, time.March, d, 0, 0, 0, 0, time.UTC)
		return &t
	}

	if _, _, err := s.Buy(ctx, portfolio.PortfolioID, "AAPL", dec("10"), dec("100"), day(1)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, _, err := s.Buy(ctx, portfolio.PortfolioID, "MSFT", dec("5"), dec("200"), day(3)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, _, err := s.Sell(ctx, portfolio.PortfolioID, "AAPL", dec("5"), dec("120"), day(2)); err != nil {
		t.Fatalf("sell: %v", err)
	}

	transactions, err := s.ListTransactions(ctx, portfolio.PortfolioID)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}

	if len(transactions) != 3 {
		t.Fatalf("len = %d, want 3", len(transactions))
	}
	for i := 1; i < len(transactions); i++ {
		if transactions[i].Date.After(transactions[i-1].Date) {
			t.Errorf("transactions not ordered newest first: %v before %v", transactions[i-1].Date, transactions[i].Date)
		}
	}

	if _, err := s.ListTransactions(ctx, "missing"); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("unknown portfolio err = %v, want ErrNotFound", err)
	}
}

func TestTransactionHistorySurvivesPositionClose(t *testing.T) {
	ctx := context.Background()
	s := newTestService(newFakeRepo(), newFakeProvider(nil))
	portfolio := mustCreatePortfolio(t, s)

	if _, _, err := s.Buy(ctx, portfolio.PortfolioID, "AAPL", dec("10"), dec("100"), nil); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, _, err := s.Sell(ctx, portfolio.PortfolioID, "AAPL", dec("10"), dec("120"), nil); err != nil {
		t.Fatalf("sell: %v", err)
	}

	transactions, err := s.ListTransactions(ctx, portfolio.PortfolioID)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(transactions) != 2 {
		t.Fatalf("len = %d, want 2 (history must survive position closure)", len(transactions))
	}
}

func TestConcurrentBuysSamePosition(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	s := newTestService(repo, newFakeProvider(nil))
	portfolio := mustCreatePortfolio(t, s)

	const workers = 20

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := s.Buy(ctx, portfolio.PortfolioID, "AAPL", dec("1"), dec("100"), nil); err != nil {
				t.Errorf("concurrent buy: %v", err)
			}
		}()
	}
	wg.Wait()

	position, err := repo.GetPosition(ctx, portfolio.PortfolioID, "AAPL")
	if err != nil {
		t.Fatalf("position lookup: %v", err)
	}
	if !position.Shares.Equal(decimal.NewFromInt(workers)) {
		t.Errorf("shares = %s, want %d (lost update under concurrency)", position.Shares, workers)
	}
	if !position.AvgPrice.Equal(dec("100")) {
		t.Errorf("avgPrice = %s, want 100", position.AvgPrice)
	}
}

func TestGetPortfolioValuation(t *testing.T) {
	ctx := context.Background()
	provider := newFakeProvider(map[string]model.Quote{
		"AAPL": {Symbol: "AAPL", Price: dec("150")},
	})
	s := newTestService(newFakeRepo(), provider)
	portfolio := mustCreatePortfolio(t, s)

	if _, _, err := s.Buy(ctx, portfolio.PortfolioID, "AAPL", dec("10"), dec("100"), nil); err != nil {
		t.Fatalf("buy: %v", err)
	}
	// MSFT has no quote: it must be valued at cost basis
	if _, _, err := s.Buy(ctx, portfolio.PortfolioID, "MSFT", dec("5"), dec("200"), nil); err != nil {
		t.Fatalf("buy: %v", err)
	}

	detail, err := s.GetPortfolio(ctx, portfolio.PortfolioID)
	if err != nil {
		t.Fatalf("GetPortfolio: %v", err)
	}

	if detail.Summary.PositionCount != 2 {
		t.Fatalf("positionCount = %d, want 2", detail.Summary.PositionCount)
	}

	bySymbol := make(map[string]model.PositionValuation)
	for _, valuation := range detail.Positions {
		bySymbol[valuation.Symbol] = valuation
	}

	aapl := bySymbol["AAPL"]
	if !aapl.CurrentPrice.Equal(dec("150")) {
		t.Errorf("AAPL currentPrice = %s, want 150", aapl.CurrentPrice)
	}
	if !aapl.GainLoss.Equal(dec("500")) {
		t.Errorf("AAPL gainLoss = %s, want 500", aapl.GainLoss)
	}
	if aapl.Quote == nil {
		t.Error("AAPL quote = nil, want resolved quote")
	}

	msft := bySymbol["MSFT"]
	if !msft.CurrentPrice.Equal(dec("200")) {
		t.Errorf("MSFT currentPrice = %s, want avgPrice 200 fallback", msft.CurrentPrice)
	}
	if !msft.GainLoss.IsZero() {
		t.Errorf("MSFT gainLoss = %s, want 0 at cost basis", msft.GainLoss)
	}
	if msft.Quote != nil {
		t.Error("MSFT quote != nil, want nil for unresolved symbol")
	}

	// totals: 10*150 + 5*200 = 2500 against 10*100 + 5*200 = 2000
	if !detail.Summary.TotalValue.Equal(dec("2500")) {
		t.Errorf("totalValue = %s, want 2500", detail.Summary.TotalValue)
	}
	if !detail.Summary.TotalCostBasis.Equal(dec("2000")) {
		t.Errorf("totalCostBasis = %s, want 2000", detail.Summary.TotalCostBasis)
	}
	if !detail.Summary.TotalGainLoss.Equal(dec("500")) {
		t.Errorf("totalGainLoss = %s, want 500", detail.Summary.TotalGainLoss)
	}
	if !detail.Summary.TotalGainLossPercent.Equal(dec("25")) {
		t.Errorf("totalGainLossPercent = %s, want 25", detail.Summary.TotalGainLossPercent)
	}
}

func TestGetPortfolioEmpty(t *testing.T) {
	ctx := context.Background()
	s := newTestService(newFakeRepo(), newFakeProvider(nil))
	portfolio := mustCreatePortfolio(t, s)

	detail, err := s.GetPortfolio(ctx, portfolio.PortfolioID)
	if err != nil {
		t.Fatalf("GetPortfolio: %v", err)
	}

	if detail.Summary.PositionCount != 0 {
		t.Errorf("positionCount = %d, want 0", detail.Summary.PositionCount)
	}
	if !detail.Summary.TotalValue.IsZero() || !detail.Summary.TotalCostBasis.IsZero() ||
		!detail.Summary.TotalGainLoss.IsZero() || !detail.Summary.TotalGainLossPercent.IsZero() {
		t.Errorf("summary = %+v, want all totals zero", detail.Summary)
	}

	if _, err := s.GetPortfolio(ctx, "missing"); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("unknown portfolio err = %v, want ErrNotFound", err)
	}
}
