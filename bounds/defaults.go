package bounds

// DefaultGlobal applies to any ticker without its own entry.
var DefaultGlobal = Entry{
	Strike: NewRange(10, 600),
	Price:  NewRange(0.05, 15.0),
}

// DefaultTickers are historical strike and premium ranges with a 20% buffer.
var DefaultTickers = map[string]Entry{
	"TSLA":  {Strike: NewRange(200, 400), Price: NewRange(1.0, 8.0)},
	"SPY":   {Strike: NewRange(400, 600), Price: NewRange(0.5, 12.0)},
	"QQQ":   {Strike: NewRange(350, 500), Price: NewRange(0.8, 10.0)},
	"AAPL":  {Strike: NewRange(150, 250), Price: NewRange(1.2, 9.0)},
	"NVDA":  {Strike: NewRange(80, 200), Price: NewRange(2.0, 15.0)},
	"AMZN":  {Strike: NewRange(140, 220), Price: NewRange(1.5, 8.5)},
	"MSFT":  {Strike: NewRange(300, 450), Price: NewRange(1.0, 7.0)},
	"META":  {Strike: NewRange(350, 550), Price: NewRange(2.5, 12.0)},
	"GOOGL": {Strike: NewRange(100, 180), Price: NewRange(1.8, 9.5)},
	"PLTR":  {Strike: NewRange(15, 35), Price: NewRange(0.3, 4.0)},
	"HOOD":  {Strike: NewRange(8, 25), Price: NewRange(0.2, 3.5)},
	"AMD":   {Strike: NewRange(100, 200), Price: NewRange(1.5, 8.0)},
	"UBER":  {Strike: NewRange(50, 85), Price: NewRange(0.8, 5.0)},
	"IWM":   {Strike: NewRange(180, 250), Price: NewRange(1.0, 6.0)},
	"SPX":   {Strike: NewRange(5200, 6000), Price: NewRange(5.0, 50.0)},
}

// Default builds a Catalog from DefaultGlobal and DefaultTickers.
func Default() *Catalog {
	c, err := NewCatalog(DefaultGlobal, DefaultTickers)
	if err != nil {
		panic(err)
	}
	return c
}
