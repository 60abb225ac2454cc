package engine

import (
	"context"
	"errors"
	"time"

	"fakeoutBot/internal/domain"
	"fakeoutBot/internal/ports"
)

// Mock implementations shared by the engine tests.

var errExchange = errors.New("exchange unavailable")

type mockLogger struct {
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

type stopAdjustment struct {
	positionID int64
	newStop    float64
}

type mockNotifier struct {
	levelEvents     [][2]float64
	stopAdjustments []stopAdjustment
}

func (m *mockNotifier) LevelsReplaced(ctx context.Context, symbol string, high, low float64) {
	m.levelEvents = append(m.levelEvents, [2]float64{high, low})
}

func (m *mockNotifier) StopAdjusted(ctx context.Context, symbol string, positionID int64, newStop float64) {
	m.stopAdjustments = append(m.stopAdjustments, stopAdjustment{positionID: positionID, newStop: newStop})
}

type placedOrder struct {
	kind          string // "market", "stop", "tp"
	side          domain.OrderSide
	quantity      string
	price         string
	clientOrderID string
}

type mockExchange struct {
	serverTimeErr error
	markPrice     float64
	markPriceErr  error
	bid, ask      float64
	bookTickerErr error
	balance       float64
	balanceErr    error
	specs         *ports.SymbolSpecs
	specsErr      error
	klines        []*domain.Kline
	klinesErr     error

	placedOrders []placedOrder
	cancelled    []int64
	nextOrderID  int64
	marketErr    error
	stopErr      error
	tpErr        error
	cancelErr    error
	avgFillPrice float64
}

func (m *mockExchange) SetServerTime(ctx context.Context) error { return m.serverTimeErr }

func (m *mockExchange) GetServerTime(ctx context.Context) (time.Time, error) {
	return time.Now(), m.serverTimeErr
}

func (m *mockExchange) Ping(ctx context.Context) error { return nil }

func (m *mockExchange) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	return m.markPrice, m.markPriceErr
}

func (m *mockExchange) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	return m.markPrice, m.markPriceErr
}

func (m *mockExchange) GetBookTicker(ctx context.Context, symbol string) (float64, float64, error) {
	return m.bid, m.ask, m.bookTickerErr
}

func (m *mockExchange) GetAccountBalance(ctx context.Context, asset string) (float64, error) {
	return m.balance, m.balanceErr
}

func (m *mockExchange) GetSymbolSpecs(ctx context.Context, symbol string) (*ports.SymbolSpecs, error) {
	return m.specs, m.specsErr
}

func (m *mockExchange) nextID() int64 {
	m.nextOrderID++
	return m.nextOrderID
}

func (m *mockExchange) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string, clientOrderID string) (*ports.OrderResponse, error) {
	if m.marketErr != nil {
		return nil, m.marketErr
	}
	m.placedOrders = append(m.placedOrders, placedOrder{kind: "market", side: side, quantity: quantity, clientOrderID: clientOrderID})
	return &ports.OrderResponse{OrderID: m.nextID(), AvgPrice: m.avgFillPrice, Status: "FILLED"}, nil
}

func (m *mockExchange) PlaceStopMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string, stopPrice string) (*ports.OrderResponse, error) {
	if m.stopErr != nil {
		return nil, m.stopErr
	}
	m.placedOrders = append(m.placedOrders, placedOrder{kind: "stop", side: side, quantity: quantity, price: stopPrice})
	return &ports.OrderResponse{OrderID: m.nextID(), Status: "NEW"}, nil
}

func (m *mockExchange) PlaceTakeProfitMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string, stopPrice string) (*ports.OrderResponse, error) {
	if m.tpErr != nil {
		return nil, m.tpErr
	}
	m.placedOrders = append(m.placedOrders, placedOrder{kind: "tp", side: side, quantity: quantity, price: stopPrice})
	return &ports.OrderResponse{OrderID: m.nextID(), Status: "NEW"}, nil
}

func (m *mockExchange) GetPositionRisk(ctx context.Context, symbol string) (*ports.PositionRisk, error) {
	return nil, nil
}

func (m *mockExchange) CancelOrder(ctx context.Context, symbol string, orderID int64) (*ports.OrderResponse, error) {
	if m.cancelErr != nil {
		return nil, m.cancelErr
	}
	m.cancelled = append(m.cancelled, orderID)
	return &ports.OrderResponse{OrderID: orderID, Status: "CANCELED"}, nil
}

func (m *mockExchange) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error) {
	return m.klines, m.klinesErr
}

func (m *mockExchange) GetKlinesRange(ctx context.Context, symbol string, interval string, start, end time.Time) ([]*domain.Kline, error) {
	return m.klines, m.klinesErr
}

func (m *mockExchange) StreamKlines(ctx context.Context, symbol, interval string, handler func(kline *domain.Kline), errHandler func(err error)) (chan struct{}, chan struct{}, error) {
	return make(chan struct{}), make(chan struct{}), nil
}

// lastOrder returns the most recent placed order of the given kind, nil if none.
func (m *mockExchange) lastOrder(kind string) *placedOrder {
	for i := len(m.placedOrders) - 1; i >= 0; i-- {
		if m.placedOrders[i].kind == kind {
			return &m.placedOrders[i]
		}
	}
	return nil
}

type mockPositionRepo struct {
	positions map[int64]*domain.Position
	nextID    int64
	createErr error
	updateErr error
	findErr   error
}

func newMockPositionRepo() *mockPositionRepo {
	return &mockPositionRepo{positions: make(map[int64]*domain.Position)}
}

func (m *mockPositionRepo) Create(ctx context.Context, pos *domain.Position) (int64, error) {
	if m.createErr != nil {
		return 0, m.createErr
	}
	m.nextID++
	pos.ID = m.nextID
	m.positions[pos.ID] = pos
	return pos.ID, nil
}

func (m *mockPositionRepo) Update(ctx context.Context, pos *domain.Position) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.positions[pos.ID] = pos
	return nil
}

func (m *mockPositionRepo) FindOpenBySymbol(ctx context.Context, symbol string) ([]*domain.Position, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	var open []*domain.Position
	for _, pos := range m.positions {
		if pos.Symbol == symbol && pos.Status == domain.StatusOpen {
			open = append(open, pos)
		}
	}
	return open, nil
}

func (m *mockPositionRepo) FindByID(ctx context.Context, id int64) (*domain.Position, error) {
	return m.positions[id], nil
}

func (m *mockPositionRepo) FindAll(ctx context.Context) ([]*domain.Position, error) {
	all := make([]*domain.Position, 0, len(m.positions))
	for _, pos := range m.positions {
		all = append(all, pos)
	}
	return all, nil
}

func (m *mockPositionRepo) GetTotalProfit(ctx context.Context) (float64, error) {
	return 0, nil
}

type mockTradeRepo struct {
	trades     []*domain.Trade
	nextID     int64
	createErr  error
	todayCount int
	stats      *ports.SymbolTradeStats
}

func (m *mockTradeRepo) CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	if m.createErr != nil {
		return 0, m.createErr
	}
	m.nextID++
	trade.ID = m.nextID
	m.trades = append(m.trades, trade)
	return trade.ID, nil
}

func (m *mockTradeRepo) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error) {
	return m.trades, nil
}

func (m *mockTradeRepo) CountTodayBySymbol(ctx context.Context, symbol string) (int, error) {
	return m.todayCount, nil
}

func (m *mockTradeRepo) StatsBySymbol(ctx context.Context, symbol string) (*ports.SymbolTradeStats, error) {
	if m.stats != nil {
		return m.stats, nil
	}
	return &ports.SymbolTradeStats{}, nil
}

// --- Test data helpers ---

func testKline(openTime time.Time, open, high, low, close, volume float64) *domain.Kline {
	return &domain.Kline{
		Symbol:   "EURUSDT",
		Interval: "5m",
		OpenTime: openTime,
		Open:     open,
		High:     high,
		Low:      low,
		Close:    close,
		Volume:   volume,
		IsFinal:  true,
	}
}

func settledTrade(id int64, pnl float64) *domain.Trade {
	return &domain.Trade{
		ID:        id,
		Symbol:    "EURUSDT",
		Side:      domain.Long,
		PNL:       pnl,
		EntryTime: time.Now().Add(-time.Hour),
		ExitTime:  time.Now(),
	}
}
