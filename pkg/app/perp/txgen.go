package perp

import (
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/perpbook/pkg/app/core/ids"
	"github.com/uhyunpark/perpbook/pkg/app/core/orderbook"
)

// TxGenerator creates random commands for load testing. Prices random-walk
// around each instrument's mark.
type TxGenerator struct {
	traders     []ids.TraderID
	instruments []ids.InstrumentID
	marks       map[ids.InstrumentID]decimal.Decimal
	maxLeverage int64
	issued      uint64 // orders generated so far, used to aim cancels
	rng         *rand.Rand
}

// NewTxGenerator creates a generator over numTraders simulated traders.
// marks gives each instrument's starting mark price.
func NewTxGenerator(numTraders int, marks map[ids.InstrumentID]decimal.Decimal, maxLeverage int64, seed int64) *TxGenerator {
	traders := make([]ids.TraderID, numTraders)
	for i := range traders {
		traders[i] = ids.TraderIDFromUint64(uint64(i + 1))
	}

	g := &TxGenerator{
		traders:     traders,
		marks:       make(map[ids.InstrumentID]decimal.Decimal, len(marks)),
		maxLeverage: maxLeverage,
		rng:         rand.New(rand.NewSource(seed)),
	}
	if g.maxLeverage < 1 {
		g.maxLeverage = 1
	}
	for inst, mark := range marks {
		g.instruments = append(g.instruments, inst)
		g.marks[inst] = mark
	}
	// map order is random; keep a stable instrument order for a given seed
	ids.SortInstruments(g.instruments)
	return g
}

// GenerateOrder creates a random order: 80% limit, 20% market, priced within
// ±2% of the mark and carrying twice the margin it needs.
func (g *TxGenerator) GenerateOrder() Command {
	inst := g.pick()
	mark := g.marks[inst]

	typ := orderbook.Limit
	if g.rng.Intn(100) >= 80 {
		typ = orderbook.Market
	}
	side := orderbook.Long
	if g.rng.Intn(2) == 1 {
		side = orderbook.Short
	}

	bps := decimal.NewFromInt(int64(g.rng.Intn(401) - 200)) // ±200 bps
	px := mark.Add(mark.Mul(bps).Div(decimal.NewFromInt(10_000))).Round(2)
	size := decimal.NewFromInt(int64(g.rng.Intn(10) + 1))
	lev := decimal.NewFromInt(g.rng.Int63n(g.maxLeverage) + 1)
	margin := px.Mul(size).Div(lev).Mul(decimal.NewFromInt(2))

	g.issued++
	return Command{
		Op:         OpOrder,
		Instrument: inst,
		Trader:     g.traders[g.rng.Intn(len(g.traders))],
		Side:       side,
		Type:       typ,
		Price:      px,
		Size:       size,
		Leverage:   lev,
		Margin:     margin,
	}
}

// GenerateCancel aims at one of the last 100 ids handed out. Ids are shared
// with trades, so many cancels miss; that is fine for load.
func (g *TxGenerator) GenerateCancel() Command {
	id := int64(g.issued) - int64(g.rng.Intn(100))
	if id < 1 {
		id = 1
	}
	return Command{Op: OpCancel, Instrument: g.pick(), OrderID: uint64(id)}
}

// GenerateMark moves one instrument's mark by up to ±50 bps.
func (g *TxGenerator) GenerateMark() Command {
	inst := g.pick()
	mark := g.marks[inst]
	bps := decimal.NewFromInt(int64(g.rng.Intn(101) - 50))
	next := mark.Add(mark.Mul(bps).Div(decimal.NewFromInt(10_000))).Round(2)
	if next.IsPositive() {
		g.marks[inst] = next
	}
	return Command{Op: OpMark, Instrument: inst, Price: g.marks[inst]}
}

// GenerateMix creates a random command: 85% orders, 10% cancels, 4% mark
// ticks, 1% funding ticks.
func (g *TxGenerator) GenerateMix() Command {
	switch r := g.rng.Intn(100); {
	case r < 85:
		return g.GenerateOrder()
	case r < 95:
		return g.GenerateCancel()
	case r < 99:
		return g.GenerateMark()
	default:
		return Command{Op: OpFunding, Instrument: g.pick()}
	}
}

// GenerateBatch creates multiple random commands
func (g *TxGenerator) GenerateBatch(count int) []Command {
	batch := make([]Command, count)
	for i := range batch {
		batch[i] = g.GenerateMix()
	}
	return batch
}

func (g *TxGenerator) pick() ids.InstrumentID {
	return g.instruments[g.rng.Intn(len(g.instruments))]
}
