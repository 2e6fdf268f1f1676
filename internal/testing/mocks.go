package testing

import (
	"context"
	"sync"

	"github.com/aristath/datafeed/internal/domain"
	"github.com/aristath/datafeed/internal/marketdata"
)

// StubSource implements every source capability with scriptable responses
// and per-method call counts. Use NewStubSource and the Set* methods to
// script one payload or error per capability; unscripted capabilities
// return a nil payload with a nil error.
type StubSource struct {
	mu sync.Mutex

	name string
	down bool

	history         *domain.PriceHistory
	historyErr      error
	intraday        *domain.PriceHistory
	intradayErr     error
	fundamentals    *domain.Fundamentals
	fundamentalsErr error
	quote           *domain.Quote
	quoteErr        error
	info            *domain.SecurityInfo
	infoErr         error
	earnings        *domain.EarningsEvent
	earningsErr     error

	calls map[string]int
}

var (
	_ marketdata.PriceHistorySource = (*StubSource)(nil)
	_ marketdata.IntradaySource     = (*StubSource)(nil)
	_ marketdata.FundamentalsSource = (*StubSource)(nil)
	_ marketdata.QuoteSource        = (*StubSource)(nil)
	_ marketdata.SecurityInfoSource = (*StubSource)(nil)
	_ marketdata.EarningsSource     = (*StubSource)(nil)
)

// NewStubSource creates an available stub with the given source name.
func NewStubSource(name string) *StubSource {
	return &StubSource{
		name:  name,
		calls: make(map[string]int),
	}
}

// SetDown makes Available report false.
func (s *StubSource) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// SetPriceHistory scripts the PriceHistory response.
func (s *StubSource) SetPriceHistory(h *domain.PriceHistory, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history, s.historyErr = h, err
}

// SetIntraday scripts the Intraday response.
func (s *StubSource) SetIntraday(h *domain.PriceHistory, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intraday, s.intradayErr = h, err
}

// SetFundamentals scripts the Fundamentals response.
func (s *StubSource) SetFundamentals(f *domain.Fundamentals, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fundamentals, s.fundamentalsErr = f, err
}

// SetQuote scripts the Quote response.
func (s *StubSource) SetQuote(q *domain.Quote, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quote, s.quoteErr = q, err
}

// SetSecurityInfo scripts the SecurityInfo response.
func (s *StubSource) SetSecurityInfo(info *domain.SecurityInfo, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info, s.infoErr = info, err
}

// SetNextEarnings scripts the NextEarnings response.
func (s *StubSource) SetNextEarnings(e *domain.EarningsEvent, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.earnings, s.earningsErr = e, err
}

// Calls reports how many times the named capability method was invoked.
func (s *StubSource) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *StubSource) record(method string) {
	s.calls[method]++
}

// Name implements marketdata.Source.
func (s *StubSource) Name() string {
	return s.name
}

// Available implements marketdata.Source.
func (s *StubSource) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.down
}

// PriceHistory implements marketdata.PriceHistorySource.
func (s *StubSource) PriceHistory(ctx context.Context, symbol string, period domain.Period) (*domain.PriceHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("PriceHistory")
	if s.historyErr != nil {
		return nil, s.historyErr
	}
	return s.history, nil
}

// Intraday implements marketdata.IntradaySource.
func (s *StubSource) Intraday(ctx context.Context, symbol, interval string, period domain.Period) (*domain.PriceHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Intraday")
	if s.intradayErr != nil {
		return nil, s.intradayErr
	}
	return s.intraday, nil
}

// Fundamentals implements marketdata.FundamentalsSource.
func (s *StubSource) Fundamentals(ctx context.Context, symbol string) (*domain.Fundamentals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Fundamentals")
	if s.fundamentalsErr != nil {
		return nil, s.fundamentalsErr
	}
	return s.fundamentals, nil
}

// Quote implements marketdata.QuoteSource.
func (s *StubSource) Quote(ctx context.Context, symbol string) (*domain.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Quote")
	if s.quoteErr != nil {
		return nil, s.quoteErr
	}
	return s.quote, nil
}

// SecurityInfo implements marketdata.SecurityInfoSource.
func (s *StubSource) SecurityInfo(ctx context.Context, symbol string) (*domain.SecurityInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("SecurityInfo")
	if s.infoErr != nil {
		return nil, s.infoErr
	}
	return s.info, nil
}

// NextEarnings implements marketdata.EarningsSource.
func (s *StubSource) NextEarnings(ctx context.Context, symbol string) (*domain.EarningsEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("NextEarnings")
	if s.earningsErr != nil {
		return nil, s.earningsErr
	}
	return s.earnings, nil
}
